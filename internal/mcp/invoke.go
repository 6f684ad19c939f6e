package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// DefaultCallTimeout bounds a single tool call, connection attempt included.
const DefaultCallTimeout = 30 * time.Second

// emptyResultText stands in for a result with no text content.
const emptyResultText = "OK"

// InvokeConfig configures tool invocation.
type InvokeConfig struct {
	Endpoint Endpoint

	// Timeout bounds each call. Zero means DefaultCallTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// ToolResult is the normalized text outcome of a tool call.
type ToolResult struct {
	Tool    string
	Text    string
	IsError bool // the remote reported a tool-level error
}

// Err returns the tool-level error as a *ToolError, or nil when the
// call succeeded.
func (r ToolResult) Err() error {
	if !r.IsError {
		return nil
	}
	return &ToolError{Tool: r.Tool, Message: r.Text}
}

// callToolResult is the result payload of a tools/call response.
// Content stays raw because some servers send a non-list value.
type callToolResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

// Invoke calls one tool on its own connection and returns the
// normalized result. It is safe for concurrent use; concurrent calls
// share nothing.
//
// A tool-level error (an error response, or a result flagged isError)
// is not a failure of Invoke: it comes back as a ToolResult with
// IsError set and, for error responses, "Error: " prefixed text.
// Invoke fails with *TimeoutError when the timer started before the
// dial expires, and with *TransportError or *ProtocolError when the
// connection or the stream breaks.
func Invoke(ctx context.Context, cfg InvokeConfig, name string, args map[string]any) (ToolResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if args == nil {
		args = map[string]any{}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := NewSession(cfg.Endpoint, logger).Run(callCtx, methodToolsCall, callToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		err = timeoutCause(ctx, err, methodToolsCall+" "+name, timeout)
		logger.Warn("MCP tool call failed",
			"tool", name,
			"elapsed", time.Since(start).Round(time.Millisecond),
			"error", err,
		)
		return ToolResult{Tool: name}, err
	}

	result := normalizeResponse(name, resp)
	logger.Debug("MCP tool call complete",
		"tool", name,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"is_error", result.IsError,
		"result_len", len(result.Text),
	)
	return result, nil
}

// InvokeOutcome is delivered by InvokeAsync.
type InvokeOutcome struct {
	Result ToolResult
	Err    error
}

// InvokeAsync starts Invoke on its own goroutine and returns a channel
// that receives exactly one outcome. The channel is buffered, so an
// abandoned call does not leak its goroutine.
func InvokeAsync(ctx context.Context, cfg InvokeConfig, name string, args map[string]any) <-chan InvokeOutcome {
	out := make(chan InvokeOutcome, 1)
	go func() {
		res, err := Invoke(ctx, cfg, name, args)
		out <- InvokeOutcome{Result: res, Err: err}
	}()
	return out
}

// normalizeResponse folds a tools/call response into a ToolResult.
func normalizeResponse(tool string, resp *Response) ToolResult {
	if resp.Error != nil {
		return ToolResult{Tool: tool, Text: "Error: " + resp.Error.Message, IsError: true}
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		// Not an object: show whatever the server sent.
		return ToolResult{Tool: tool, Text: orOK(compactJSON(resp.Result))}
	}

	return ToolResult{
		Tool:    tool,
		Text:    contentText(result.Content),
		IsError: result.IsError,
	}
}

// contentText joins the text entries of a content list with newlines.
// A missing or empty list, or one without text entries, yields "OK".
// Content that is not a list is rendered as compact JSON.
func contentText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyResultText
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(trimmed, &blocks); err != nil {
		return orOK(compactJSON(trimmed))
	}

	var parts []string
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return orOK(strings.Join(parts, "\n"))
}

// compactJSON renders raw without insignificant whitespace.
func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// orOK substitutes emptyResultText for an empty string.
func orOK(s string) string {
	if s == "" {
		return emptyResultText
	}
	return s
}
