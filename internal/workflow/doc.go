// Package workflow implements the dynamic workflow tool subsystem: the
// part of flowbridge with real state, concurrency, and failure handling.
//
// Four collaborating pieces live here:
//
//   - DiscoveryService fetches the remote workflow catalog, validates and
//     transforms entries into strict internal Definitions, and caches the
//     filtered result with a stale-cache fallback.
//
//   - ExecutionService starts remote runs and polls them to a terminal
//     state, with per-run cooperative cancellation, a wall-clock timeout,
//     and a concurrency cap.
//
//   - ToolManager bridges the two into the tool registry: one generated
//     tool per workflow, refreshed periodically by diffing the discovered
//     catalog against the registered set by workflow id.
//
//   - ErrorHandler classifies every failure in the subsystem, fixes its
//     severity and retryability, records it in a bounded buffer, and
//     renders MCP-compliant error payloads with secrets redacted.
//
// The package's overriding rule is containment: no failure in here may
// take the MCP server down or prevent static tools from serving. Remote
// flakiness degrades to cached data, skipped items, or structured error
// results, never to a crash or a protocol-level failure.
package workflow
