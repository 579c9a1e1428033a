// Package mcpserver exposes the SQL and Mongo datasources as MCP tool
// servers. Tool results are JSON text; datasource failures are returned as
// MCP tool errors so transports stay healthy when a query fails.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/askdb/askdb/internal/datasource/sqldb"
)

// NewSQLServer builds the MCP server for a Postgres datasource.
func NewSQLServer(src *sqldb.Source) *server.MCPServer {
	s := server.NewMCPServer("askdb-sql", "1.0.0", server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("get_schema",
		mcp.WithDescription("Get the database schema: tables, columns, types and primary keys. Call this before writing any query."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, err := src.Schema(ctx, false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(schema)
	})

	s.AddTool(mcp.NewTool("sample_rows",
		mcp.WithDescription("Get random sample rows from a table, to understand the content and format of its data."),
		mcp.WithString("table_name", mcp.Required(), mcp.Description("Name of the table to sample.")),
		mcp.WithNumber("n", mcp.DefaultNumber(5), mcp.Description("Number of rows to sample.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		n := req.GetInt("n", 5)
		res, err := src.SampleRows(ctx, table, n)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	})

	s.AddTool(mcp.NewTool("run_select_query",
		mcp.WithDescription("Execute a read-only SQL query. Only SELECT, SHOW, EXPLAIN and WITH statements are allowed."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The SQL query string.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := src.RunSelectQuery(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	})

	s.AddTool(mcp.NewTool("refresh_schema",
		mcp.WithDescription("Refresh the cached schema. Call this if the database schema has changed."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if _, err := src.Schema(ctx, true); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("schema cache refreshed"), nil
	})

	return s
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
