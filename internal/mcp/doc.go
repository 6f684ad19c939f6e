// Package mcp bridges tools exposed by a remote MCP server into the
// dimos-bridge tool registry.
//
// The remote speaks newline-delimited JSON-RPC 2.0 over a plain TCP
// connection. Every operation opens its own connection and runs one
// short session on it: an initialize handshake followed by exactly one
// payload request (tools/list for discovery, tools/call for invocation).
// Connections are never pooled or reused, so concurrent invocations
// share no state.
//
// Discovered tool schemas are translated into a closed set of field
// kinds (string, number, boolean, array, object) so that the registry
// can validate arguments before a call leaves the process.
package mcp
