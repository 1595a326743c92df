// Package tools provides the static tool catalog: hand-written tools that are
// always available, independent of workflow discovery.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"flowbridge/internal/apiclient"
	"flowbridge/internal/registry"
	"flowbridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	socialAccountsPath = "/api/v1/service/social/get-accounts"
	socialCreatePath   = "/api/v1/service/social/create"
)

// socialAPI is what the social tools need from the API client.
type socialAPI interface {
	Get(ctx context.Context, path string, query url.Values) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body interface{}) (*apiclient.Response, error)
}

// RegisterSocialTools adds the static social media tools to the registry.
// These tools do not depend on workflow discovery and keep serving even when
// the remote workflow catalog is unreachable.
func RegisterSocialTools(reg *registry.Registry, client socialAPI) error {
	defs := []registry.ToolDefinition{
		getAccountsTool(client),
		createPostTool(client),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("failed to register static tool %s: %w", def.Name, err)
		}
	}
	logging.Info("SocialTools", "Registered %d static social tools", len(defs))
	return nil
}

func getAccountsTool(client socialAPI) registry.ToolDefinition {
	return registry.ToolDefinition{
		Name:        "social-get-accounts",
		Description: "List the social media accounts connected to the Hublead workspace",
		Category:    "social",
		Version:     "1.0.0",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
			resp, err := client.Get(ctx, socialAccountsPath, nil)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to fetch social accounts: %v", err)), nil
			}
			return jsonResult(resp.Data)
		},
	}
}

func createPostTool(client socialAPI) registry.ToolDefinition {
	return registry.ToolDefinition{
		Name:        "social-create-post",
		Description: "Create a social media post draft on the connected accounts",
		Category:    "social",
		Version:     "1.0.0",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Post body text",
				},
				"accounts": map[string]interface{}{
					"type":        "array",
					"description": "Account identifiers to post to",
				},
				"scheduled_at": map[string]interface{}{
					"type":        "string",
					"description": "Optional RFC 3339 publish time; omit for a draft",
				},
			},
			Required: []string{"content"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
			resp, err := client.Post(ctx, socialCreatePath, args)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to create post: %v", err)), nil
			}
			return jsonResult(resp.Data)
		},
	}
}

// jsonResult re-indents a raw API payload as text content.
func jsonResult(data json.RawMessage) (*mcp.CallToolResult, error) {
	var pretty interface{}
	if err := json.Unmarshal(data, &pretty); err != nil {
		return mcp.NewToolResultText(string(data)), nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(string(data)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
