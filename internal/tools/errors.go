package tools

import "fmt"

// ErrToolUnavailable is returned by [Registry.Execute] for a name that
// is not registered: never discovered, filtered out by the bridge
// config, or misspelled. Retrying will not help.
type ErrToolUnavailable struct {
	ToolName string
}

func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.ToolName)
}

// ErrInvalidArguments is returned when a tool's arguments cannot be
// decoded or do not fit its parameter schema. The tool was not run.
type ErrInvalidArguments struct {
	ToolName string
	Err      error
}

func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.ToolName, e.Err)
}

func (e *ErrInvalidArguments) Unwrap() error { return e.Err }
