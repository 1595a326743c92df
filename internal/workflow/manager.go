package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"flowbridge/internal/registry"
	"flowbridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"
)

// workflowToolPrefix namespaces dynamic tools away from the static catalog.
const workflowToolPrefix = "workflow-"

// Manager phases, visible through Phase for diagnostics.
const (
	phaseIdle        = "idle"
	phaseDiscovering = "discovering"
	phaseDiffing     = "diffing"
	phaseApplying    = "applying"
)

// ManagerConfig controls the workflow tool manager.
type ManagerConfig struct {
	// Enabled gates the whole subsystem. When false the manager stays idle
	// forever and never touches the registry.
	Enabled bool
	// RefreshInterval spaces periodic catalog refreshes. 0 disables the
	// periodic timer; discovery still runs once at initialization.
	RefreshInterval time.Duration
}

// RefreshSummary reports what one refresh cycle changed.
type RefreshSummary struct {
	Added   int
	Updated int
	Removed int
	Errors  []string
}

// registeredWorkflow tracks one dynamic tool currently in the registry,
// keyed by remote workflow id.
type registeredWorkflow struct {
	def      Definition
	toolName string
}

// ToolManager orchestrates discovery into the tool registry: it generates
// one dynamic tool per discovered workflow, diffs each refresh against the
// registered set by workflow id, and applies adds, updates and removals.
//
// Failures never propagate to the server: a failed discovery leaves the
// registry as it was (stale tools keep serving), and a failed tool
// generation skips that workflow only.
type ToolManager struct {
	discovery *DiscoveryService
	execution *ExecutionService
	registry  *registry.Registry
	errors    *ErrorHandler
	config    ManagerConfig

	mu         sync.Mutex
	registered map[string]registeredWorkflow
	phase      string

	refreshGroup singleflight.Group

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewToolManager wires the manager to its collaborators. Nothing happens
// until Initialize.
func NewToolManager(discovery *DiscoveryService, execution *ExecutionService, reg *registry.Registry, errorHandler *ErrorHandler, cfg ManagerConfig) *ToolManager {
	return &ToolManager{
		discovery:  discovery,
		execution:  execution,
		registry:   reg,
		errors:     errorHandler,
		config:     cfg,
		registered: make(map[string]registeredWorkflow),
		phase:      phaseIdle,
		stopCh:     make(chan struct{}),
	}
}

// Initialize runs the first discovery cycle and, when configured, starts
// the periodic refresh loop. It never returns an error for remote
// failures: the server must come up and serve static tools regardless.
func (m *ToolManager) Initialize(ctx context.Context) error {
	if !m.config.Enabled {
		logging.Info("WorkflowManager", "Workflow tools disabled by configuration")
		return nil
	}

	summary := m.Refresh(ctx)
	if len(summary.Errors) > 0 {
		logging.Warn("WorkflowManager", "Initial workflow discovery finished with %d errors; continuing with %d tools",
			len(summary.Errors), m.RegisteredCount())
	} else {
		logging.Info("WorkflowManager", "Registered %d workflow tools", summary.Added)
	}

	if m.config.RefreshInterval > 0 {
		m.wg.Add(1)
		go m.refreshLoop(ctx)
	}
	return nil
}

// Stop terminates the periodic refresh loop and waits for it to exit.
// Safe to call multiple times and when the loop was never started.
func (m *ToolManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *ToolManager) refreshLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Refresh runs one discovery-diff-apply cycle. Overlapping calls (periodic
// timer vs. manual trigger) collapse onto the in-flight cycle and share its
// summary instead of racing the registry.
func (m *ToolManager) Refresh(ctx context.Context) RefreshSummary {
	v, _, shared := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx), nil
	})
	if shared {
		logging.Debug("WorkflowManager", "Refresh already in progress, sharing its result")
	}
	return v.(RefreshSummary)
}

// TriggerManualRefresh is the explicit refresh entry point used by config
// reload and diagnostics.
func (m *ToolManager) TriggerManualRefresh(ctx context.Context) RefreshSummary {
	logging.Info("WorkflowManager", "Manual workflow refresh triggered")
	return m.Refresh(ctx)
}

func (m *ToolManager) doRefresh(ctx context.Context) RefreshSummary {
	var summary RefreshSummary

	if !m.config.Enabled {
		return summary
	}

	m.setPhase(phaseDiscovering)
	defer m.setPhase(phaseIdle)

	defs, err := m.discovery.RefreshWorkflows(ctx)
	if err != nil {
		m.errors.Handle(listingFailureClass(err), "refresh workflows", err, nil)
		summary.Errors = append(summary.Errors, fmt.Sprintf("discovery failed: %v", err))
		return summary
	}

	m.setPhase(phaseDiffing)
	desired := make(map[string]Definition, len(defs))
	for _, def := range defs {
		desired[def.ID] = def
	}

	m.mu.Lock()
	var toAdd, toUpdate []Definition
	var toRemove []registeredWorkflow
	for id, def := range desired {
		current, exists := m.registered[id]
		switch {
		case !exists:
			toAdd = append(toAdd, def)
		case current.def.Description != def.Description ||
			current.def.Name != def.Name ||
			!current.def.InputSchema.Equal(def.InputSchema):
			toUpdate = append(toUpdate, def)
		}
	}
	for id, current := range m.registered {
		if _, still := desired[id]; !still {
			toRemove = append(toRemove, current)
		}
	}
	m.mu.Unlock()

	m.setPhase(phaseApplying)

	for _, current := range toRemove {
		if err := m.registry.Unregister(current.toolName); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("remove %s: %v", current.toolName, err))
			continue
		}
		m.mu.Lock()
		delete(m.registered, current.def.ID)
		m.mu.Unlock()
		summary.Removed++
	}

	for _, def := range toUpdate {
		m.mu.Lock()
		current := m.registered[def.ID]
		m.mu.Unlock()

		// Idempotent update: replace the registration wholesale.
		if err := m.registry.Unregister(current.toolName); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("update %s: %v", current.toolName, err))
			continue
		}
		if err := m.registerWorkflow(def); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("update %s: %v", def.Name, err))
			m.mu.Lock()
			delete(m.registered, def.ID)
			m.mu.Unlock()
			continue
		}
		summary.Updated++
	}

	for _, def := range toAdd {
		if err := m.registerWorkflow(def); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("add %s: %v", def.Name, err))
			continue
		}
		summary.Added++
	}

	logging.Info("WorkflowManager", "Workflow refresh: %d added, %d updated, %d removed, %d errors",
		summary.Added, summary.Updated, summary.Removed, len(summary.Errors))
	return summary
}

// registerWorkflow generates and registers the dynamic tool for one
// workflow. A failure here is contained to that workflow.
func (m *ToolManager) registerWorkflow(def Definition) error {
	toolDef := m.makeToolDefinition(def)
	if err := m.registry.Register(toolDef); err != nil {
		m.errors.Handle(FailureToolGeneration, "register tool for workflow "+def.ID, err, nil)
		return err
	}

	m.mu.Lock()
	m.registered[def.ID] = registeredWorkflow{def: def, toolName: toolDef.Name}
	m.mu.Unlock()

	logging.Debug("WorkflowManager", "Registered workflow tool %s (workflow id: %s)", toolDef.Name, def.ID)
	return nil
}

// makeToolDefinition converts a workflow definition into a registry tool.
// The handler closes over the workflow id and delegates to the execution
// service, formatting the terminal outcome as JSON text content.
func (m *ToolManager) makeToolDefinition(def Definition) registry.ToolDefinition {
	workflowID := def.ID
	return registry.ToolDefinition{
		Name:        workflowToolPrefix + def.Name,
		Description: def.Description,
		Category:    def.Category,
		Version:     def.Version,
		InputSchema: def.InputSchema.ToMCP(),
		Handler: func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
			result := m.execution.ExecuteWorkflow(ctx, workflowID, args)
			return m.formatExecutionResult(result), nil
		},
	}
}

// formatExecutionResult renders a terminal execution outcome as an MCP
// result: structured JSON on success, an error envelope otherwise.
func (m *ToolManager) formatExecutionResult(result *ExecutionResult) *mcp.CallToolResult {
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "workflow execution failed"
		}
		class := result.Class
		if class == "" {
			class = FailureExecution
		}
		return m.errors.ToolErrorResult(class, message)
	}

	payload := map[string]interface{}{
		"status":             result.Status,
		"workflowId":         result.OriginalWorkflowID,
		"workflowInstanceId": result.WorkflowInstanceID,
		"correlationId":      result.CorrelationID,
		"output":             result.Metadata["output"],
	}
	if result.DurationMs > 0 {
		payload["durationMs"] = result.DurationMs
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return m.errors.ToolErrorResult(FailureExecution, fmt.Sprintf("failed to format workflow result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// Enabled reports whether the workflow subsystem is active.
func (m *ToolManager) Enabled() bool {
	return m.config.Enabled
}

// Phase returns the current refresh phase for diagnostics.
func (m *ToolManager) Phase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// RegisteredCount returns the number of dynamic workflow tools currently
// registered.
func (m *ToolManager) RegisteredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registered)
}

func (m *ToolManager) setPhase(phase string) {
	m.mu.Lock()
	m.phase = phase
	m.mu.Unlock()
}
