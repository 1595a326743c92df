// Package server exposes the tool registry over the MCP stdio transport.
package server

import (
	"context"
	"fmt"
	"sync"

	"flowbridge/internal/registry"
	"flowbridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server bridges the tool registry onto an MCP server. The registry is the
// single source of truth: the server mirrors it at startup and on every
// registry update notification, so dynamic workflow tools appear, change and
// disappear without a restart.
type Server struct {
	registry  *registry.Registry
	mcpServer *server.MCPServer

	mu     sync.Mutex
	served map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates an MCP server mirroring the given registry.
func New(name, version string, reg *registry.Registry) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		registry:  reg,
		mcpServer: mcpServer,
		served:    make(map[string]bool),
		stopCh:    make(chan struct{}),
	}

	s.syncTools()
	s.wg.Add(1)
	go s.watchUpdates()

	return s
}

// Serve runs the stdio transport. It blocks until the client closes the
// connection or the process is terminated.
func (s *Server) Serve(ctx context.Context) error {
	logging.Info("Server", "Serving MCP over stdio with %d tools", s.registry.Count())
	return server.ServeStdio(s.mcpServer)
}

// Stop terminates the update watcher. The stdio transport itself ends when
// the client closes its end.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// watchUpdates mirrors registry changes onto the MCP server. Notifications
// are coalesced by the registry; each one triggers a full resync.
func (s *Server) watchUpdates() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.registry.Updates():
			s.syncTools()
		}
	}
}

// syncTools replaces the served tool set with the registry's current one.
// AddTools overwrites same-named registrations, so updates need no separate
// path; removals go through DeleteTools, which notifies connected clients.
func (s *Server) syncTools() {
	defs := s.registry.Tools()

	current := make(map[string]bool, len(defs))
	toolsToAdd := make([]server.ServerTool, 0, len(defs))
	for _, def := range defs {
		current[def.Name] = true
		toolsToAdd = append(toolsToAdd, server.ServerTool{
			Tool:    s.makeTool(def),
			Handler: s.makeHandler(def.Name),
		})
	}

	s.mu.Lock()
	var toRemove []string
	for name := range s.served {
		if !current[name] {
			toRemove = append(toRemove, name)
		}
	}
	s.served = current
	s.mu.Unlock()

	if len(toRemove) > 0 {
		s.mcpServer.DeleteTools(toRemove...)
	}
	if len(toolsToAdd) > 0 {
		s.mcpServer.AddTools(toolsToAdd...)
	}

	logging.Debug("Server", "Synced %d tools (%d removed)", len(toolsToAdd), len(toRemove))
}

func (s *Server) makeTool(def registry.ToolDefinition) mcp.Tool {
	return mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema,
	}
}

// makeHandler adapts a registry tool to the MCP handler signature. Execution
// failures become error results; an error return would surface as a protocol
// failure on the client side.
func (s *Server) makeHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.registry.Execute(ctx, name, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tool %s failed: %v", name, err)), nil
		}
		return result, nil
	}
}
