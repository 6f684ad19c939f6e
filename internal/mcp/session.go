package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nugget/dimos-bridge/internal/buildinfo"
)

// Phase is the handshake state of a Session.
type Phase int

const (
	// PhaseInit: initialize sent, waiting for its response.
	PhaseInit Phase = iota
	// PhaseAwaitingResult: payload request sent, waiting for its response.
	PhaseAwaitingResult
	// PhaseDone is terminal.
	PhaseDone
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseAwaitingResult:
		return "awaiting_result"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// step is the action a transition asks the session to take.
type step int

const (
	stepDrop        step = iota // ignore the message
	stepSendPayload             // handshake answered; send the payload request
	stepDeliver                 // payload answered; hand the response to the caller
)

// ExpectedID returns the response id the phase is waiting for, or 0
// when nothing is pending.
func (p Phase) ExpectedID() int64 {
	switch p {
	case PhaseInit:
		return handshakeID
	case PhaseAwaitingResult:
		return payloadID
	default:
		return 0
	}
}

// next is the transition function. A response whose id is not the one
// the phase expects leaves the phase unchanged and is dropped; remote
// servers may interleave notifications or stray replies.
func (p Phase) next(respID int64) (Phase, step) {
	switch {
	case p == PhaseInit && respID == handshakeID:
		return PhaseAwaitingResult, stepSendPayload
	case p == PhaseAwaitingResult && respID == payloadID:
		return PhaseDone, stepDeliver
	default:
		return p, stepDrop
	}
}

// errSessionUsed is returned when Run is called twice on one Session.
var errSessionUsed = errors.New("mcp session already used")

// Session drives one handshake-plus-request exchange over its own
// connection. Sessions are single use.
type Session struct {
	id       string
	endpoint Endpoint
	logger   *slog.Logger

	phase Phase
	used  bool
}

// NewSession creates a session for the given endpoint. The connection
// is not opened until Run.
func NewSession(ep Endpoint, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		endpoint: ep,
		logger:   logger.With("mcp_session", id, "mcp_addr", ep.Addr()),
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string {
	return s.id
}

// Phase returns the current handshake phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Run connects, performs the initialize handshake, sends method with
// params as the payload request and returns its response. The
// connection is closed before Run returns, whatever the outcome.
//
// An error field in the payload response is returned inside the
// Response, not as an error; interpreting it is up to the caller. If
// ctx ends first, Run returns ctx.Err().
func (s *Session) Run(ctx context.Context, method string, params any) (*Response, error) {
	if s.used {
		return nil, errSessionUsed
	}
	s.used = true
	s.phase = PhaseInit

	ch, err := Dial(ctx, s.endpoint, s.logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer ch.Close()

	s.logger.Debug("mcp session connected", "method", method)

	initReq := NewRequest(handshakeID, methodInitialize, initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: clientName, Version: buildinfo.ClientVersion()},
	})
	if err := ch.Send(initReq); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("mcp session abandoned", "phase", s.phase, "error", ctx.Err())
			return nil, ctx.Err()

		case raw, ok := <-ch.Messages():
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, ch.Err()
			}

			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, &ProtocolError{Reason: "unexpected message shape", Line: truncateLine(raw), Err: err}
			}

			next, action := s.phase.next(resp.ID)
			switch action {
			case stepDrop:
				s.logger.Debug("dropping unmatched MCP message",
					"id", string(resp.RawID),
					"expected_id", s.phase.ExpectedID(),
					"phase", s.phase,
				)
				continue

			case stepSendPayload:
				if resp.Error != nil {
					return nil, fmt.Errorf("initialize: %w", resp.Error)
				}
				s.logHandshake(resp.Result)

				if err := ch.Send(NewNotification(methodInitialized, nil)); err != nil {
					return nil, err
				}
				if err := ch.Send(NewRequest(payloadID, method, params)); err != nil {
					return nil, err
				}

			case stepDeliver:
				s.phase = next
				s.logger.Debug("mcp session done", "method", method, "rpc_error", resp.Error != nil)
				return &resp, nil
			}
			s.phase = next
		}
	}
}

// logHandshake records what the server said about itself.
func (s *Session) logHandshake(result json.RawMessage) {
	var info initializeResult
	if err := json.Unmarshal(result, &info); err != nil {
		s.logger.Debug("unreadable initialize result", "error", err)
		return
	}
	s.logger.Debug("MCP server initialized",
		"server_name", info.ServerInfo.Name,
		"server_version", info.ServerInfo.Version,
		"protocol_version", info.ProtocolVersion,
	)
}
