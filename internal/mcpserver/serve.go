package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
)

// Serve runs an MCP server on the requested transport: stdio when addr is
// empty, SSE over HTTP otherwise.
func Serve(s *server.MCPServer, addr string) error {
	if addr == "" {
		return server.ServeStdio(s)
	}
	sse := server.NewSSEServer(s)
	if err := sse.Start(addr); err != nil {
		return fmt.Errorf("sse server: %w", err)
	}
	return nil
}
