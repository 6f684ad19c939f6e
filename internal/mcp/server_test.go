package mcp

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"golang.org/x/net/nettest"
)

// fakeServer is an in-process MCP server on a loopback listener. For
// every request line it reads, handle returns the values to write back;
// strings are written verbatim, anything else as one JSON line.
type fakeServer struct {
	ln     net.Listener
	handle func(req Request) []any

	mu       sync.Mutex
	received []Request

	// disconnects receives one value each time a connection ends.
	disconnects chan struct{}
}

func newFakeServer(t *testing.T, handle func(req Request) []any) *fakeServer {
	t.Helper()

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{
		ln:          ln,
		handle:      handle,
		disconnects: make(chan struct{}, 64),
	}
	t.Cleanup(func() { ln.Close() })

	go s.serve()
	return s
}

func (s *fakeServer) endpoint() Endpoint {
	addr := s.ln.Addr().(*net.TCPAddr)
	return Endpoint{Host: addr.IP.String(), Port: addr.Port}
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serveConn(conn)
	}
}

func (s *fakeServer) serveConn(conn net.Conn) {
	defer func() {
		conn.Close()
		select {
		case s.disconnects <- struct{}{}:
		default:
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, req)
		s.mu.Unlock()

		if s.handle == nil {
			continue
		}
		for _, out := range s.handle(req) {
			var line []byte
			switch v := out.(type) {
			case string:
				line = []byte(v)
			default:
				data, _ := json.Marshal(v)
				line = append(data, '\n')
			}
			if _, err := conn.Write(line); err != nil {
				return
			}
		}
	}
}

// requests returns the requests received so far, notifications included.
func (s *fakeServer) requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.received...)
}

// methods returns the methods of the requests received so far.
func (s *fakeServer) methods() []string {
	var out []string
	for _, r := range s.requests() {
		out = append(out, r.Method)
	}
	return out
}

// resultMsg builds a success response.
func resultMsg(id int64, result any) Response {
	data, _ := json.Marshal(result)
	return Response{JSONRPC: jsonrpcVersion, ID: id, Result: data}
}

// errorMsg builds an error response.
func errorMsg(id int64, message string) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: -32000, Message: message}}
}

// mcpServer answers the initialize handshake, tools/list with catalog,
// and tools/call with whatever call returns for the call params.
func mcpServer(catalog []ToolDescriptor, call func(params map[string]any) any) func(Request) []any {
	return func(req Request) []any {
		switch req.Method {
		case methodInitialize:
			return []any{resultMsg(req.ID, map[string]any{
				"protocolVersion": protocolVersion,
				"serverInfo":      map[string]any{"name": "fake", "version": "0.0.1"},
				"capabilities":    map[string]any{"tools": map[string]any{}},
			})}
		case methodToolsList:
			return []any{resultMsg(req.ID, toolsListResult{Tools: catalog})}
		case methodToolsCall:
			params, _ := req.Params.(map[string]any)
			out := call(params)
			if r, ok := out.(Response); ok {
				r.ID = req.ID
				return []any{r}
			}
			return []any{resultMsg(req.ID, out)}
		}
		return nil
	}
}

// closedEndpoint returns an endpoint on which nothing is listening.
func closedEndpoint(t *testing.T) Endpoint {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()
	return Endpoint{Host: addr.IP.String(), Port: addr.Port}
}
