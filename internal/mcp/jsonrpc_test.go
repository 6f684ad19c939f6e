package mcp

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestInitializeRequestShape(t *testing.T) {
	req := NewRequest(handshakeID, methodInitialize, initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: clientName, Version: "1.2.3"},
	})
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"dimos-bridge","version":"1.2.3"}}}`
	if string(data) != want {
		t.Errorf("initialize = %s\nwant %s", data, want)
	}
}

func TestToolsCallRequestShape(t *testing.T) {
	req := NewRequest(payloadID, methodToolsCall, callToolParams{
		Name:      "relative_move",
		Arguments: map[string]any{"forward": 1.5},
	})
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"relative_move","arguments":{"forward":1.5}}}`
	if string(data) != want {
		t.Errorf("tools/call = %s\nwant %s", data, want)
	}
}

func TestOmitsNilParams(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want string
	}{
		{"request", NewRequest(1, "ping", nil), `{"jsonrpc":"2.0","id":1,"method":"ping"}`},
		{"notification", NewNotification(methodInitialized, nil), `{"jsonrpc":"2.0","method":"notifications/initialized"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}

func TestResponseUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantID  int64
		wantErr bool
	}{
		{"result", `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`, 1, false},
		{"error", `{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"Method not found"}}`, 2, true},
		{"server notification", `{"jsonrpc":"2.0","method":"notifications/progress","params":{"progress":1}}`, 0, false},
		{"string id", `{"jsonrpc":"2.0","id":"srv-1","method":"ping"}`, 0, false},
		{"numeric string id", `{"jsonrpc":"2.0","id":"2","result":{}}`, 0, false},
		{"fractional id", `{"jsonrpc":"2.0","id":2.5,"result":{}}`, 0, false},
		{"null id with error", `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp Response
			if err := json.Unmarshal([]byte(tt.raw), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.ID != tt.wantID {
				t.Errorf("ID = %d, want %d", resp.ID, tt.wantID)
			}
			if got := resp.Err() != nil; got != tt.wantErr {
				t.Errorf("Err() = %v, want error: %v", resp.Err(), tt.wantErr)
			}
		})
	}
}

func TestResponseErr_NilIsUntyped(t *testing.T) {
	var resp Response
	// A typed nil inside an interface would make this comparison fail.
	if err := resp.Err(); err != nil {
		t.Errorf("Err() = %#v, want untyped nil", err)
	}

	resp.Error = &RPCError{Code: -32600, Message: "Invalid Request"}
	var rpcErr *RPCError
	if !errors.As(resp.Err(), &rpcErr) || rpcErr.Code != -32600 {
		t.Errorf("Err() = %v, want the *RPCError", resp.Err())
	}
	if got, want := rpcErr.Error(), "mcp rpc error -32600: Invalid Request"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestResponseDecodeResult(t *testing.T) {
	resp := Response{Result: json.RawMessage(`{"tools":[{"name":"stop"}]}`)}
	var list toolsListResult
	if err := resp.decodeResult(methodToolsList, &list); err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if len(list.Tools) != 1 || list.Tools[0].Name != "stop" {
		t.Errorf("tools = %+v", list.Tools)
	}

	resp.Result = json.RawMessage(`{"tools":"nope"}`)
	var perr *ProtocolError
	if err := resp.decodeResult(methodToolsList, &list); !errors.As(err, &perr) {
		t.Fatalf("decodeResult error = %v, want *ProtocolError", err)
	}
	if perr.Reason != "unreadable tools/list result" {
		t.Errorf("Reason = %q", perr.Reason)
	}
}

func TestResponseUnmarshal_KeepsRawID(t *testing.T) {
	var resp Response
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"srv-1","method":"ping"}`), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(resp.RawID) != `"srv-1"` {
		t.Errorf("RawID = %s, want %q", resp.RawID, `"srv-1"`)
	}

	if err := json.Unmarshal([]byte(`["not","an","object"]`), &resp); err == nil {
		t.Error("non-object message decoded without error")
	}
}
