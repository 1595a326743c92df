// Package logging provides a structured logging system for flowbridge with
// unified log handling and level filtering.
//
// The package is built on Go's standard slog package. All log entries carry a
// subsystem identifier so output can be filtered per component:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Info("Discovery", "Fetched %d workflows", n)
//	logging.Error("Execution", err, "Workflow %s failed", id)
//
// Because flowbridge speaks MCP over stdio, stdout is reserved for protocol
// frames and all diagnostics must go to stderr. Init enforces nothing here,
// but every call site in this repository passes os.Stderr.
//
// Subsystems in use: Bootstrap, Config, APIClient, Registry, Discovery,
// Execution, WorkflowManager, WorkflowErrors, Server.
package logging
