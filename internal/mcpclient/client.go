// Package mcpclient connects the agent to its MCP tool servers and keeps a
// registry of discovered tools under namespaced names ("sql_get_schema",
// "mongo_run_aggregate_query", ...).
package mcpclient

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool is one discovered tool, under its namespaced name.
type Tool struct {
	Name        string
	Description string
}

type binding struct {
	client   *client.Client
	toolName string
}

// Registry multiplexes tool calls across several MCP server connections.
type Registry struct {
	clients  []*client.Client
	bindings map[string]binding
	tools    []Tool
}

func NewRegistry() *Registry {
	return &Registry{bindings: map[string]binding{}}
}

// Connect dials an MCP server and registers its tools under prefix. An
// endpoint starting with "http" is treated as an SSE base URL; anything
// else as a command line to spawn a stdio server.
func (r *Registry) Connect(ctx context.Context, prefix, endpoint string) error {
	c, err := dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", endpoint, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "askdb", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return fmt.Errorf("initializing %s: %w", endpoint, err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("listing tools on %s: %w", endpoint, err)
	}

	r.clients = append(r.clients, c)
	for _, tool := range listed.Tools {
		name := prefix + "_" + tool.Name
		r.bindings[name] = binding{client: c, toolName: tool.Name}
		r.tools = append(r.tools, Tool{Name: name, Description: tool.Description})
	}
	sort.Slice(r.tools, func(i, j int) bool { return r.tools[i].Name < r.tools[j].Name })
	return nil
}

func dial(ctx context.Context, endpoint string) (*client.Client, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		base := strings.TrimSuffix(endpoint, "/")
		if !strings.HasSuffix(base, "/sse") {
			base += "/sse"
		}
		c, err := client.NewSSEMCPClient(base)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
	parts := strings.Fields(endpoint)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty MCP endpoint")
	}
	return client.NewStdioMCPClient(parts[0], nil, parts[1:]...)
}

// Tools lists all registered tools in name order.
func (r *Registry) Tools() []Tool { return r.tools }

// CallTool invokes a namespaced tool and returns the concatenated text
// content of the result. A tool-level error becomes a Go error carrying the
// tool's message.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	b, ok := r.bindings[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	res, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: b.toolName, Arguments: args},
	})
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", name, err)
	}

	var text strings.Builder
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			text.WriteString(tc.Text)
		}
	}
	if res.IsError {
		msg := text.String()
		if msg == "" {
			msg = "tool failed"
		}
		return "", fmt.Errorf("%s: %s", name, msg)
	}
	return text.String(), nil
}

// Close closes every server connection.
func (r *Registry) Close() error {
	var first error
	for _, c := range r.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
