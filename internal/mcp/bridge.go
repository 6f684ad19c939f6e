package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nugget/dimos-bridge/internal/tools"
)

// sanitizeRe matches characters that are not lowercase alphanumeric or underscore.
var sanitizeRe = regexp.MustCompile(`[^a-z0-9_]`)

// BridgeConfig configures BridgeTools.
type BridgeConfig struct {
	Endpoint Endpoint

	DiscoveryTimeout time.Duration
	CallTimeout      time.Duration

	// Prefix, when set, namespaces registered names as
	// "{prefix}_{toolName}". Empty keeps the remote names unchanged.
	Prefix string

	// Include and Exclude filter by remote tool name:
	//   - If Include is non-empty, only tools whose names appear in it are registered.
	//   - Otherwise tools whose names appear in Exclude are skipped.
	Include []string
	Exclude []string

	Logger *slog.Logger
}

// BridgeTools discovers the remote catalog and registers one tool per
// entry on registry. Discovery blocks until it completes or fails; on
// failure nothing is registered and the *DiscoveryError is returned for
// the caller to log.
//
// Schemas are translated on every call, never cached.
//
// BridgeTools returns the number of tools registered.
func BridgeTools(ctx context.Context, cfg BridgeConfig, registry *tools.Registry) (int, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	descriptors, err := Discover(ctx, DiscoverConfig{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.DiscoveryTimeout,
		Logger:   logger,
	})
	if err != nil {
		return 0, err
	}

	includeSet := toSet(cfg.Include)
	excludeSet := toSet(cfg.Exclude)

	invokeCfg := InvokeConfig{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.CallTimeout,
		Logger:   logger,
	}

	count := 0
	for _, td := range descriptors {
		if len(includeSet) > 0 {
			if !includeSet[td.Name] {
				continue
			}
		} else if excludeSet[td.Name] {
			continue
		}

		name := ToolName(cfg.Prefix, td.Name)
		registry.Register(bridgeTool(invokeCfg, name, td))
		count++

		logger.Debug("bridged MCP tool",
			"mcp_name", td.Name,
			"registered_name", name,
		)
	}

	return count, nil
}

// ToolName returns the registry name for a remote tool. With an empty
// prefix the remote name is used as is; otherwise both parts are
// sanitized to lowercase alphanumerics and underscores and joined.
func ToolName(prefix, mcpToolName string) string {
	if prefix == "" {
		return mcpToolName
	}
	return fmt.Sprintf("%s_%s", sanitize(prefix), sanitize(mcpToolName))
}

// bridgeTool creates a registry tool that proxies calls to the remote.
func bridgeTool(cfg InvokeConfig, name string, td ToolDescriptor) *tools.Tool {
	// Calls use the remote name, not the possibly prefixed registry name.
	mcpName := td.Name
	schema := TranslateSchema(td.InputSchema)

	return &tools.Tool{
		Name:        name,
		Description: td.Description,
		Parameters:  schema.JSONSchema(),
		Validate:    schema.Validate,
		Handler: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			res, err := Invoke(ctx, cfg, mcpName, args)
			if err != nil {
				return nil, fmt.Errorf("call %s: %w", mcpName, err)
			}
			if toolErr := res.Err(); toolErr != nil && cfg.Logger != nil {
				cfg.Logger.Info("MCP tool reported an error", "error", toolErr)
			}
			out := tools.TextResult(res.Text)
			out.IsError = res.IsError
			out.Details = map[string]any{
				"tool": mcpName,
				"args": args,
			}
			return out, nil
		},
	}
}

// sanitize converts a name to lowercase and replaces non-alphanumeric
// characters (except underscore) with underscores. Consecutive
// underscores are collapsed and leading/trailing underscores are trimmed.
func sanitize(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "-", "_")
	s = sanitizeRe.ReplaceAllString(s, "_")

	// Collapse consecutive underscores.
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}

	return strings.Trim(s, "_")
}

// toSet converts a string slice to a set for O(1) lookups.
func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}
