package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// DefaultDiscoveryTimeout bounds a whole discovery run, connection
// attempt included.
const DefaultDiscoveryTimeout = 10 * time.Second

// DiscoverConfig configures a discovery run.
type DiscoverConfig struct {
	Endpoint Endpoint

	// Timeout bounds the run. Zero means DefaultDiscoveryTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// discoverOutcome carries the worker's result back to Discover.
type discoverOutcome struct {
	tools []ToolDescriptor
	err   error
}

// Discover fetches the remote tool catalog once. It blocks the caller
// until the catalog arrives or the run fails; the exchange itself runs
// on a separate goroutine so the wait can be abandoned when the bound
// elapses.
//
// Every failure is returned as a *DiscoveryError wrapping the cause
// (*TransportError, *ProtocolError, *TimeoutError or *RPCError).
// Discover never retries.
func Discover(ctx context.Context, cfg DiscoverConfig) ([]ToolDescriptor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	addr := cfg.Endpoint.Addr()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan discoverOutcome, 1)
	go func() {
		tools, err := listTools(runCtx, cfg.Endpoint, logger)
		done <- discoverOutcome{tools: tools, err: err}
	}()

	var out discoverOutcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		out.err = runCtx.Err()
	}

	if out.err != nil {
		return nil, &DiscoveryError{Addr: addr, Err: timeoutCause(ctx, out.err, methodToolsList, timeout)}
	}

	logger.Info("discovered MCP tools", "addr", addr, "count", len(out.tools))
	return out.tools, nil
}

// listTools runs one tools/list session and decodes the catalog.
// Duplicate names keep their first definition; unreadable entries are
// skipped.
func listTools(ctx context.Context, ep Endpoint, logger *slog.Logger) ([]ToolDescriptor, error) {
	resp, err := NewSession(ep, logger).Run(ctx, methodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	// Entries are decoded one by one so a single malformed tool does
	// not cost the rest of the catalog.
	var result struct {
		Tools []json.RawMessage `json:"tools"`
	}
	if err := resp.decodeResult(methodToolsList, &result); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(result.Tools))
	tools := make([]ToolDescriptor, 0, len(result.Tools))
	for _, raw := range result.Tools {
		var td ToolDescriptor
		if err := json.Unmarshal(raw, &td); err != nil {
			logger.Warn("skipping unreadable MCP tool", "entry", truncateLine(raw), "error", err)
			continue
		}
		if td.Name == "" {
			logger.Warn("skipping MCP tool without a name")
			continue
		}
		if seen[td.Name] {
			logger.Warn("skipping duplicate MCP tool", "mcp_name", td.Name)
			continue
		}
		seen[td.Name] = true
		tools = append(tools, td)
	}
	return tools, nil
}

// timeoutCause converts a deadline that fired on our own timer into a
// *TimeoutError. Cancellation of the parent context is passed through.
func timeoutCause(parent context.Context, err error, op string, after time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return &TimeoutError{Op: op, After: after}
	}
	return err
}
