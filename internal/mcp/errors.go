package mcp

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// TransportError reports a connection-level fault: the endpoint could
// not be dialed, or the connection failed or closed mid-session.
type TransportError struct {
	Op   string // "dial", "read" or "write"
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a message that could not be understood: a line
// that is not JSON, or JSON that does not have the expected shape.
type ProtocolError struct {
	Reason string
	Line   string // offending input, truncated
	Err    error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := "mcp protocol error: " + e.Reason
	if e.Line != "" {
		msg += fmt.Sprintf(" (line %q)", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the decoding error, if any.
func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError reports that a session did not reach its terminal
// response within the configured bound.
type TimeoutError struct {
	Op    string
	After time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcp %s: no response within %s", e.Op, e.After)
}

// Timeout reports true so TimeoutError satisfies net.Error-style checks.
func (e *TimeoutError) Timeout() bool { return true }

// ToolError is an error the remote reported for a specific tool call.
// Invoke folds it into a ToolResult rather than failing the call.
type ToolError struct {
	Tool    string
	Message string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// DiscoveryError wraps any failure of the tools/list exchange.
type DiscoveryError struct {
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover tools at %s: %v", e.Addr, e.Err)
}

// Unwrap returns the cause.
func (e *DiscoveryError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err means the remote could not be
// reached or the connection broke. Every *TransportError qualifies;
// otherwise the net and errno types are inspected. Timeouts, protocol
// faults and tool errors do not qualify.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return true
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}

// maxLoggedLine bounds how much of an offending line is kept in errors.
const maxLoggedLine = 200

// truncateLine shortens b for inclusion in an error message.
func truncateLine(b []byte) string {
	if len(b) <= maxLoggedLine {
		return string(b)
	}
	return string(b[:maxLoggedLine]) + "..."
}
