// dimos-bridge exposes the tools of a remote Dimos MCP server through a
// local tool registry.
//
// The remote is reached over TCP and speaks newline-delimited JSON-RPC.
// Its tools are discovered once at startup and registered next to the
// built-in dimos_hello tool; each call then opens its own connection.
// Configuration is loaded from a YAML file discovered automatically (see
// [config.DefaultSearchPaths]); without one, defaults and the
// DIMOS_BRIDGE_HOST / DIMOS_BRIDGE_PORT environment variables apply.
//
// Usage:
//
//	dimos-bridge tools                 List registered tools
//	dimos-bridge call <tool> [json]    Call a tool with JSON arguments
//	dimos-bridge history               Summarize recorded tool calls
//	dimos-bridge version               Print version and build information
//	dimos-bridge -o json tools         Output as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nugget/dimos-bridge/internal/buildinfo"
	"github.com/nugget/dimos-bridge/internal/config"
	"github.com/nugget/dimos-bridge/internal/mcp"
	"github.com/nugget/dimos-bridge/internal/tools"
	"github.com/nugget/dimos-bridge/internal/usage"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the whole
// command can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		stop()
		os.Exit(1)
	}
}

// run is the real entry point. Command output goes to stdout; logs go
// to stderr so they never mix with JSON output.
//
// Arguments are parsed by hand, as the flag package's global state
// gets in the way of calling run from parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case command == "" && !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			if command != "" {
				// Collect remaining args as subcommand arguments.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	// Default to human-readable text output.
	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "tools":
		return runTools(ctx, stdout, stderr, configPath, outputFmt)
	case "call":
		if len(cmdArgs) == 0 || len(cmdArgs) > 2 {
			return fmt.Errorf("usage: dimos-bridge call <tool> [json-args]")
		}
		argsJSON := ""
		if len(cmdArgs) == 2 {
			argsJSON = cmdArgs[1]
		}
		return runCall(ctx, stdout, stderr, configPath, outputFmt, cmdArgs[0], argsJSON)
	case "history":
		return runHistory(ctx, stdout, configPath, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runTools registers the remote tools and prints the registry.
func runTools(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	registry, _, _, err := setup(ctx, stderr, configPath)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(registry.List())
	}

	for _, name := range registry.Names() {
		t := registry.Get(name)
		fmt.Fprintf(stdout, "%s\n", t.Name)
		if t.Description != "" {
			fmt.Fprintf(stdout, "  %s\n", t.Description)
		}
		fmt.Fprintf(stdout, "  params: %s\n", describeParams(t.Parameters))
	}
	return nil
}

// runCall registers the remote tools and executes one of them. When
// call history is configured, the call is recorded whether or not it
// succeeded.
func runCall(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, name, argsJSON string) error {
	registry, cfg, logger, err := setup(ctx, stderr, configPath)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := registry.Execute(ctx, name, argsJSON)
	if cfg.HistoryDB != "" {
		recordCall(ctx, logger, cfg.HistoryDB, name, start, result, err)
	}
	if err != nil {
		var unavailable *tools.ErrToolUnavailable
		if errors.As(err, &unavailable) {
			logger.Info("registered tools", "names", registry.Names())
		}
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(stdout, result.Text())
	return nil
}

// recordCall appends one call to the history database. Failures are
// logged; they never fail the call itself.
func recordCall(ctx context.Context, logger *slog.Logger, dbPath, name string, start time.Time, result *tools.Result, callErr error) {
	store, err := usage.NewStore(dbPath)
	if err != nil {
		logger.Warn("call history unavailable", "path", dbPath, "error", err)
		return
	}
	defer store.Close()

	rec := usage.Record{
		Timestamp: start,
		Tool:      name,
		Duration:  time.Since(start),
	}
	switch {
	case callErr != nil:
		rec.IsError = true
		rec.Error = callErr.Error()
	case result.IsError:
		rec.IsError = true
		rec.Error = result.Text()
	}

	if err := store.Record(ctx, rec); err != nil {
		logger.Warn("failed to record tool call", "tool", name, "error", err)
	}
}

// recentCalls is how many calls the text history lists individually.
const recentCalls = 10

// runHistory prints per-tool totals from the call history database,
// followed in text mode by the most recent calls.
func runHistory(ctx context.Context, stdout io.Writer, configPath, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return errors.New("call history is disabled (set history_db in the config file)")
	}

	store, err := usage.NewStore(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	byTool, err := store.SummaryByTool(time.Time{}, time.Now().Add(time.Second))
	if err != nil {
		return err
	}

	names := make([]string, 0, len(byTool))
	for name := range byTool {
		names = append(names, name)
	}
	sort.Strings(names)

	if outputFmt == "json" {
		type row struct {
			Tool       string `json:"tool"`
			Calls      int    `json:"calls"`
			Errors     int    `json:"errors"`
			DurationMS int64  `json:"duration_ms"`
		}
		rows := make([]row, 0, len(names))
		for _, name := range names {
			s := byTool[name]
			rows = append(rows, row{name, s.TotalCalls, s.ErrorCalls, s.TotalDuration.Milliseconds()})
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tCALLS\tERRORS\tTOTAL TIME")
	for _, name := range names {
		s := byTool[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, s.TotalCalls, s.ErrorCalls, s.TotalDuration)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	recent, err := store.Recent(ctx, recentCalls)
	if err != nil || len(recent) == 0 {
		return err
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Recent calls:")
	for _, rec := range recent {
		status := "ok"
		if rec.IsError {
			status = "error: " + rec.Error
		}
		fmt.Fprintf(stdout, "  %s  %-20s %8s  %s\n",
			rec.Timestamp.Local().Format(time.DateTime), rec.Tool, rec.Duration, status)
	}
	return nil
}

// setup loads configuration, builds the logger and the registry, and
// bridges the remote tools into it. A discovery failure is logged and
// leaves only the built-in tools registered.
func setup(ctx context.Context, stderr io.Writer, configPath string) (*tools.Registry, *config.Config, *slog.Logger, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := cfg.Logger(stderr)
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	} else {
		logger.Debug("no config file found, using defaults")
	}

	registry := tools.NewRegistry(logger)

	count, err := mcp.BridgeTools(ctx, mcp.BridgeConfig{
		Endpoint: mcp.Endpoint{
			Host: cfg.Bridge.Host,
			Port: cfg.Bridge.Port,
		},
		DiscoveryTimeout: cfg.Bridge.DiscoveryTimeout,
		CallTimeout:      cfg.Bridge.CallTimeout,
		Prefix:           cfg.Bridge.ToolPrefix,
		Include:          cfg.Bridge.IncludeTools,
		Exclude:          cfg.Bridge.ExcludeTools,
		Logger:           logger,
	}, registry)
	if err != nil {
		logger.Error("MCP tool discovery failed; remote tools not registered",
			"error", err,
			"connection_error", mcp.IsConnectionError(err),
		)
		return registry, cfg, logger, nil
	}

	logger.Info("MCP server connected",
		"addr", fmt.Sprintf("%s:%d", cfg.Bridge.Host, cfg.Bridge.Port),
		"tools", count,
	)
	return registry, cfg, logger, nil
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations and, when nothing
// is found, the environment-derived defaults are used. Returns the
// config and the path loaded ("" for defaults).
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		cfg, envErr := config.FromEnv()
		return cfg, "", envErr
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// describeParams renders a parameter schema as "name:type" pairs, with
// required fields marked by a trailing '*'.
func describeParams(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return "(none)"
	}

	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []string:
		for _, r := range req {
			required[r] = true
		}
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		typ := "string"
		if p, ok := props[name].(map[string]any); ok {
			if s, ok := p["type"].(string); ok {
				typ = s
			}
		}
		part := name + ":" + typ
		if required[name] {
			part += "*"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	b := buildinfo.Current()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}
	fmt.Fprintln(w, b)
	fmt.Fprintf(w, "  %-12s %s\n", "client:", buildinfo.ClientVersion())
	fmt.Fprintf(w, "  %-12s %s %s/%s\n", "runtime:", b.GoVersion, b.OS, b.Arch)
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "dimos-bridge - expose Dimos MCP tools to the agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: dimos-bridge [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  tools                List registered tools")
	fmt.Fprintln(w, "  call <tool> [json]   Call a tool with JSON object arguments")
	fmt.Fprintln(w, "  history              Summarize recorded tool calls")
	fmt.Fprintln(w, "  version              Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Without a config file, %s and %s override the default endpoint.\n", config.EnvHost, config.EnvPort)
	return nil
}
