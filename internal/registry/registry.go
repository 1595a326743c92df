package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"flowbridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrToolNotFound is returned by Execute for unknown tool names.
var ErrToolNotFound = errors.New("tool not found")

// ToolHandler executes a tool call. Handlers receive the already-validated
// arguments and return an MCP call result. A non-nil error is converted into
// an error result at the serving boundary, never propagated as a protocol
// failure.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

// ToolDefinition describes a callable tool. Identity is Name; once
// registered, the definition is owned by the registry and callers must not
// mutate it.
type ToolDefinition struct {
	Name        string
	Description string
	Category    string
	Version     string
	InputSchema mcp.ToolInputSchema
	Handler     ToolHandler
}

// Registry is the in-memory catalog of callable tools, static and dynamic.
//
// The registry enforces name uniqueness (no silent overwrite), validates
// definitions structurally at registration time, and validates call
// arguments against the tool's schema before dispatching to the handler.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*ToolDefinition

	// updateChan notifies subscribers that the tool set changed.
	updateChan chan struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools:      make(map[string]*ToolDefinition),
		updateChan: make(chan struct{}, 1),
	}
}

// Register adds a tool to the registry.
//
// Returns an error if the definition fails structural validation or a tool
// with the same name is already registered.
func (r *Registry) Register(def ToolDefinition) error {
	if err := validateDefinition(&def); err != nil {
		return fmt.Errorf("invalid tool definition %q: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}

	r.tools[def.Name] = &def
	r.notifyUpdate()

	logging.Debug("Registry", "Registered tool %s (category: %s)", def.Name, def.Category)
	return nil
}

// Unregister removes a tool by name. Returns an error if the tool is not
// registered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	delete(r.tools, name)
	r.notifyUpdate()

	logging.Debug("Registry", "Unregistered tool %s", name)
	return nil
}

// Execute validates args against the named tool's schema and invokes its
// handler. Argument validation failures are reported before the handler
// runs, so handlers can assume required arguments are present and typed.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (result *mcp.CallToolResult, err error) {
	r.mu.RLock()
	def, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if err := validateArguments(def.InputSchema, args); err != nil {
		return nil, fmt.Errorf("invalid arguments for tool %q: %w", name, err)
	}

	// A panicking handler must not take the whole stdio session down.
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Registry", fmt.Errorf("%v", rec), "Tool %s panicked", name)
			result = nil
			err = fmt.Errorf("tool %q panicked: %v", name, rec)
		}
	}()

	result, err = def.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		// Handlers returning no payload still produce a canonical result.
		result = mcp.NewToolResultText("")
	}
	return result, nil
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// Get returns a copy of the named tool definition.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, exists := r.tools[name]
	if !exists {
		return ToolDefinition{}, false
	}
	return *def, true
}

// Tools returns copies of all registered tools, sorted by name.
func (r *Registry) Tools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ToolsByCategory returns copies of all tools in the given category, sorted
// by name.
func (r *Registry) ToolsByCategory(category string) []ToolDefinition {
	var out []ToolDefinition
	for _, def := range r.Tools() {
		if def.Category == category {
			out = append(out, def)
		}
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Updates returns a channel that receives a signal whenever the tool set
// changes. Signals are coalesced; consumers should re-read the full tool
// list on each signal.
func (r *Registry) Updates() <-chan struct{} {
	return r.updateChan
}

// notifyUpdate signals subscribers without blocking. Callers hold r.mu.
func (r *Registry) notifyUpdate() {
	select {
	case r.updateChan <- struct{}{}:
	default:
	}
}
