package tools

import "context"

// helloToolName is the built-in liveness tool.
const helloToolName = "dimos_hello"

// registerBuiltins adds the tools that exist without a remote server.
func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        helloToolName,
		Description: "Says hello world from the Dimos plugin.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(context.Context, map[string]any) (*Result, error) {
			return TextResult("Hello, world! Dimos plugin is running."), nil
		},
	})
}
