// Package tools defines the tool registry the bridge registers into.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	// Validate, when set, checks decoded arguments before Handler runs.
	Validate func(args map[string]any) error `json:"-"`

	Handler func(ctx context.Context, args map[string]any) (*Result, error) `json:"-"`
}

// ContentBlock is one item of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Result is the content envelope every tool returns.
type Result struct {
	Content []ContentBlock `json:"content"`
	Details map[string]any `json:"details,omitempty"`
	IsError bool           `json:"isError,omitempty"`
}

// TextResult wraps a single text block.
func TextResult(text string) *Result {
	return &Result{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// Text joins the text blocks of the result with newlines.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, b := range r.Content {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Registry holds available tools. Registration normally happens at
// startup, but the registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates a registry with the built-in tools.
func NewRegistry(logger *slog.Logger) *Registry {
	r := NewEmptyRegistry(logger)
	r.registerBuiltins()
	return r
}

// NewEmptyRegistry creates a registry with no tools.
func NewEmptyRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name]; dup {
		r.logger.Warn("replacing registered tool", "tool", t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools in function-calling form, sorted by name.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.Names() {
		t := r.Get(name)
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with given arguments.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (*Result, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, &ErrToolUnavailable{ToolName: name}
	}

	var args map[string]any
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, &ErrInvalidArguments{ToolName: name, Err: err}
		}
	}

	if tool.Validate != nil {
		if err := tool.Validate(args); err != nil {
			return nil, &ErrInvalidArguments{ToolName: name, Err: err}
		}
	}

	return tool.Handler(ctx, args)
}
