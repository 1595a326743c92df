// Package app bootstraps flowbridge: it wires configuration, the API client,
// the tool registry, the workflow subsystem and the MCP server into a running
// application.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"flowbridge/internal/apiclient"
	"flowbridge/internal/config"
	"flowbridge/internal/registry"
	"flowbridge/internal/server"
	"flowbridge/internal/tools"
	"flowbridge/internal/workflow"
	"flowbridge/pkg/logging"
)

// serverName and serverVersion identify flowbridge in the MCP handshake.
const (
	serverName    = "flowbridge"
	serverVersion = "1.0.0"
)

// Application holds the wired subsystems for one flowbridge process.
//
// Bootstrap is strict only about configuration: a missing API key fails
// startup. Everything remote is forgiving, a dead Hublead API still yields a
// serving MCP process with the static tools registered.
type Application struct {
	cfg       config.Config
	client    *apiclient.Client
	registry  *registry.Registry
	errors    *workflow.ErrorHandler
	discovery *workflow.DiscoveryService
	execution *workflow.ExecutionService
	manager   *workflow.ToolManager
	server    *server.Server
	watcher   *config.Watcher
}

// NewApplication loads configuration from configPath (empty means the default
// location) and wires all subsystems. The MCP server is created but not yet
// serving; call Run.
func NewApplication(configPath string) (*Application, error) {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Logs go to stderr: stdout belongs to the MCP stdio transport.
	logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)
	logging.Info("Bootstrap", "Starting %s %s", serverName, serverVersion)

	client, err := apiclient.New(cfg.BaseURL, cfg.APIKey,
		apiclient.WithRetryAttempts(cfg.Workflows.RetryAttempts))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	reg := registry.New()
	if err := tools.RegisterSocialTools(reg, client); err != nil {
		return nil, err
	}

	errorHandler := workflow.NewErrorHandler()
	discovery := workflow.NewDiscoveryService(client, errorHandler, cfg.Workflows.FilterPatterns)
	execution := workflow.NewExecutionService(client, errorHandler, workflow.ExecutionConfig{
		Timeout:             time.Duration(cfg.Workflows.ExecutionTimeout) * time.Millisecond,
		StatusCheckInterval: time.Duration(cfg.Workflows.StatusCheckInterval) * time.Millisecond,
		MaxConcurrent:       cfg.Workflows.MaxConcurrentExecutions,
	})
	manager := workflow.NewToolManager(discovery, execution, reg, errorHandler, workflow.ManagerConfig{
		Enabled:         cfg.WorkflowsEnabled(),
		RefreshInterval: time.Duration(cfg.Workflows.DiscoveryInterval) * time.Millisecond,
	})

	app := &Application{
		cfg:       cfg,
		client:    client,
		registry:  reg,
		errors:    errorHandler,
		discovery: discovery,
		execution: execution,
		manager:   manager,
	}
	app.watcher = config.NewWatcher(configPath, app.applyConfigChange)

	return app, nil
}

// Run performs initial workflow discovery, starts the config watcher and
// serves MCP over stdio until the client disconnects or ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.manager.Initialize(ctx); err != nil {
		return err
	}

	if err := a.watcher.Start(); err != nil {
		// Hot reload is a convenience; startup proceeds without it.
		logging.Warn("Bootstrap", "Config watcher unavailable: %v", err)
	}

	a.server = server.New(serverName, serverVersion, a.registry)
	defer a.shutdown()

	return a.server.Serve(ctx)
}

// applyConfigChange reacts to a config file reload. Only the workflow filter
// patterns are applied live; everything else requires a restart.
func (a *Application) applyConfigChange(updated config.Config) {
	a.discovery.SetFilterPatterns(updated.Workflows.FilterPatterns)
	summary := a.manager.TriggerManualRefresh(context.Background())
	logging.Info("Bootstrap", "Applied updated filter patterns: %d added, %d removed",
		summary.Added, summary.Removed)
}

// shutdown drains the subsystems in reverse dependency order.
func (a *Application) shutdown() {
	logging.Info("Bootstrap", "Shutting down")
	a.watcher.Stop()
	a.manager.Stop()
	a.execution.CancelAll()
	if a.server != nil {
		a.server.Stop()
	}
}

// Config returns the loaded configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// Registry returns the tool registry, populated with static tools and, after
// Run, the discovered workflow tools.
func (a *Application) Registry() *registry.Registry {
	return a.registry
}

// Discovery returns the workflow discovery service.
func (a *Application) Discovery() *workflow.DiscoveryService {
	return a.discovery
}

// Manager returns the workflow tool manager.
func (a *Application) Manager() *workflow.ToolManager {
	return a.manager
}
