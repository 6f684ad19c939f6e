package mcp

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nugget/dimos-bridge/internal/tools"
)

func TestToolName(t *testing.T) {
	tests := []struct {
		prefix string
		tool   string
		want   string
	}{
		{"", "relative_move", "relative_move"},
		{"", "Keep-As-Is", "Keep-As-Is"},
		{"dimos", "relative_move", "dimos_relative_move"},
		{"My Robot", "Do Thing", "my_robot_do_thing"},
		{"test", "UPPERCASE", "test_uppercase"},
		{"a--b", "c--d", "a_b_c_d"},
		{"special!@#", "chars$%^", "special_chars"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"/"+tt.tool, func(t *testing.T) {
			got := ToolName(tt.prefix, tt.tool)
			if got != tt.want {
				t.Errorf("ToolName(%q, %q) = %q, want %q", tt.prefix, tt.tool, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"Hello-World", "hello_world"},
		{"a--b", "a_b"},
		{"_leading_", "leading"},
		{"special!chars", "special_chars"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitize(tt.input)
			if got != tt.want {
				t.Errorf("sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

var robotCatalog = []ToolDescriptor{
	{
		Name:        "echo",
		Description: "",
		InputSchema: map[string]any{
			"properties": map[string]any{"msg": map[string]any{"type": "string"}},
			"required":   []any{"msg"},
		},
	},
	{Name: "get_pose", Description: "Current robot pose", InputSchema: map[string]any{"type": "object"}},
	{Name: "stop", Description: "Stop all motion"},
}

func TestBridgeTools_EchoScenario(t *testing.T) {
	srv := newFakeServer(t, mcpServer(robotCatalog[:1], nil))
	registry := tools.NewEmptyRegistry(nil)

	count, err := BridgeTools(context.Background(), BridgeConfig{Endpoint: srv.endpoint()}, registry)
	if err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if got := registry.Names(); !reflect.DeepEqual(got, []string{"echo"}) {
		t.Fatalf("registered = %v, want [echo]", got)
	}

	tool := registry.Get("echo")
	props := tool.Parameters["properties"].(map[string]any)
	if len(props) != 1 {
		t.Fatalf("got %d parameters, want 1", len(props))
	}
	if msg := props["msg"].(map[string]any); msg["type"] != "string" {
		t.Errorf("msg type = %v, want string", msg["type"])
	}
	if !reflect.DeepEqual(tool.Parameters["required"], []string{"msg"}) {
		t.Errorf("required = %v, want [msg]", tool.Parameters["required"])
	}
	if tool.Validate == nil || tool.Validate(map[string]any{}) == nil {
		t.Error("validator should reject a call without msg")
	}
}

func TestBridgeTools_AllTools(t *testing.T) {
	srv := newFakeServer(t, mcpServer(robotCatalog, nil))
	registry := tools.NewEmptyRegistry(nil)

	count, err := BridgeTools(context.Background(), BridgeConfig{
		Endpoint: srv.endpoint(),
		Prefix:   "dimos",
	}, registry)
	if err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	want := []string{"dimos_echo", "dimos_get_pose", "dimos_stop"}
	if got := registry.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("registered = %v, want %v", got, want)
	}
	if d := registry.Get("dimos_get_pose").Description; d != "Current robot pose" {
		t.Errorf("description = %q", d)
	}
}

func TestBridgeTools_IncludeFilter(t *testing.T) {
	srv := newFakeServer(t, mcpServer(robotCatalog, nil))
	registry := tools.NewEmptyRegistry(nil)

	count, err := BridgeTools(context.Background(), BridgeConfig{
		Endpoint: srv.endpoint(),
		Include:  []string{"echo", "stop"},
		Exclude:  []string{"stop"}, // ignored when Include is set
	}, registry)
	if err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if registry.Get("get_pose") != nil {
		t.Error("get_pose should have been filtered out")
	}
}

func TestBridgeTools_ExcludeFilter(t *testing.T) {
	srv := newFakeServer(t, mcpServer(robotCatalog, nil))
	registry := tools.NewEmptyRegistry(nil)

	count, err := BridgeTools(context.Background(), BridgeConfig{
		Endpoint: srv.endpoint(),
		Exclude:  []string{"stop"},
	}, registry)
	if err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if registry.Get("stop") != nil {
		t.Error("stop should have been excluded")
	}
}

func TestBridgeTools_DiscoveryFailureRegistersNothing(t *testing.T) {
	registry := tools.NewEmptyRegistry(nil)

	count, err := BridgeTools(context.Background(), BridgeConfig{
		Endpoint:         closedEndpoint(t),
		DiscoveryTimeout: time.Second,
	}, registry)

	var discErr *DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("BridgeTools error = %v, want *DiscoveryError", err)
	}
	if count != 0 || len(registry.Names()) != 0 {
		t.Errorf("registered %d tools (%v) after failed discovery", count, registry.Names())
	}
}

func TestBridgeTools_HandlerProxiesCall(t *testing.T) {
	var mu sync.Mutex
	var gotParams map[string]any
	srv := newFakeServer(t, mcpServer(robotCatalog, func(params map[string]any) any {
		mu.Lock()
		gotParams = params
		mu.Unlock()
		return map[string]any{"content": []any{
			map[string]any{"type": "text", "text": "x=1.0 y=2.0"},
		}}
	}))
	registry := tools.NewEmptyRegistry(nil)

	if _, err := BridgeTools(context.Background(), BridgeConfig{Endpoint: srv.endpoint(), Prefix: "dimos"}, registry); err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}

	result, err := registry.Execute(context.Background(), "dimos_get_pose", `{"frame":"map"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Text() != "x=1.0 y=2.0" {
		t.Errorf("text = %q, want %q", result.Text(), "x=1.0 y=2.0")
	}
	if result.IsError {
		t.Error("IsError set on a successful call")
	}
	if result.Details["tool"] != "get_pose" {
		t.Errorf("details.tool = %v, want get_pose", result.Details["tool"])
	}
	if args, _ := result.Details["args"].(map[string]any); args["frame"] != "map" {
		t.Errorf("details.args = %v, want frame=map", result.Details["args"])
	}

	// The remote sees its own name and the arguments verbatim.
	mu.Lock()
	defer mu.Unlock()
	if gotParams["name"] != "get_pose" {
		t.Errorf("tools/call name = %v, want get_pose (not the prefixed name)", gotParams["name"])
	}
	if args, _ := gotParams["arguments"].(map[string]any); args["frame"] != "map" {
		t.Errorf("tools/call arguments = %v", gotParams["arguments"])
	}
}

func TestBridgeTools_HandlerToolError(t *testing.T) {
	srv := newFakeServer(t, mcpServer(robotCatalog, func(map[string]any) any {
		return errorMsg(0, "bad arg")
	}))
	registry := tools.NewEmptyRegistry(nil)

	if _, err := BridgeTools(context.Background(), BridgeConfig{Endpoint: srv.endpoint()}, registry); err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}

	result, err := registry.Execute(context.Background(), "echo", `{"msg":"hi"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Text() != "Error: bad arg" || !result.IsError {
		t.Errorf("result = %+v, want folded tool error", result)
	}
}

func TestBridgeTools_HandlerTimeout(t *testing.T) {
	base := mcpServer(robotCatalog, nil)
	srv := newFakeServer(t, func(req Request) []any {
		if req.Method == methodToolsCall {
			return nil
		}
		return base(req)
	})
	registry := tools.NewEmptyRegistry(nil)

	if _, err := BridgeTools(context.Background(), BridgeConfig{
		Endpoint:    srv.endpoint(),
		CallTimeout: 100 * time.Millisecond,
	}, registry); err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}

	_, err := registry.Execute(context.Background(), "stop", "")
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Execute error = %v, want *TimeoutError", err)
	}
}

func TestBridgeTools_InvalidArgumentsNotSent(t *testing.T) {
	srv := newFakeServer(t, mcpServer(robotCatalog, func(map[string]any) any {
		return map[string]any{}
	}))
	registry := tools.NewEmptyRegistry(nil)

	if _, err := BridgeTools(context.Background(), BridgeConfig{Endpoint: srv.endpoint()}, registry); err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}

	_, err := registry.Execute(context.Background(), "echo", `{"msg": 3}`)
	var invalid *tools.ErrInvalidArguments
	if !errors.As(err, &invalid) {
		t.Fatalf("Execute error = %v, want *tools.ErrInvalidArguments", err)
	}
	for _, m := range srv.methods() {
		if m == methodToolsCall {
			t.Fatal("invalid arguments reached the remote")
		}
	}
}
