// Package registry implements the in-memory tool catalog backing the MCP
// server.
//
// Tools are registered with a structural validation pass (name, description,
// handler, constrained schema types), dispatched through Execute with
// per-call argument validation, and removed or replaced by the workflow tool
// manager as the remote catalog changes. Registrations never silently
// overwrite: a name collision is an error, which is what keeps the static
// and dynamic tool namespaces honest.
//
// Subscribers (the MCP serving layer) observe changes through Updates and
// re-sync the advertised tool list on each signal.
package registry
