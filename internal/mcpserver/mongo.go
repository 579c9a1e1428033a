package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/askdb/askdb/internal/datasource/mongodb"
)

const aggregateDescription = `Execute a MongoDB aggregation pipeline.

CRITICAL: in $group stages every field except _id MUST use an accumulator
operator object.
  CORRECT: {"$group": {"_id": "$category", "total": {"$sum": "$price"}}}
  WRONG:   {"$group": {"_id": "$category", "total": "$price"}}
Accumulators: $sum, $avg, $min, $max, $first, $last, $push, $addToSet.
Put $match early and $sort after $group.`

// NewMongoServer builds the MCP server for a Mongo datasource.
func NewMongoServer(src *mongodb.Source, sampleSize int) *server.MCPServer {
	s := server.NewMCPServer("askdb-mongo", "1.0.0", server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List all collections in the MongoDB database."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := src.ListCollections(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(names)
	})

	s.AddTool(mcp.NewTool("get_schema",
		mcp.WithDescription("Infer the schema of a collection from sample documents: field names, observed types and examples."),
		mcp.WithString("collection_name", mcp.Required(), mcp.Description("The collection to analyze.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		coll, err := req.RequireString("collection_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		schema, err := src.InferSchema(ctx, coll, sampleSize)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(schema)
	})

	s.AddTool(mcp.NewTool("run_find_query",
		mcp.WithDescription("Execute a MongoDB find query with optional filter ($gt, $lt, $in, $regex, ...), projection, sort ([[field, direction], ...]) and limit."),
		mcp.WithString("collection_name", mcp.Required(), mcp.Description("Collection to query.")),
		mcp.WithObject("filter", mcp.Description("MongoDB filter document.")),
		mcp.WithObject("projection", mcp.Description("Fields to include (1) or exclude (0).")),
		mcp.WithArray("sort", mcp.Description("Sort spec as a list of [field, direction] pairs.")),
		mcp.WithNumber("limit", mcp.DefaultNumber(5), mcp.Description("Maximum documents to return.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		coll, err := req.RequireString("collection_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args := req.GetArguments()
		filter, _ := args["filter"].(map[string]any)
		projection, _ := args["projection"].(map[string]any)
		sortSpec := decodeSortSpec(args["sort"])
		limit := req.GetInt("limit", 5)

		res, err := src.Find(ctx, coll, filter, projection, sortSpec, limit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	})

	s.AddTool(mcp.NewTool("run_aggregate_query",
		mcp.WithDescription(aggregateDescription),
		mcp.WithString("collection_name", mcp.Required(), mcp.Description("Collection to query.")),
		mcp.WithArray("pipeline", mcp.Required(), mcp.Description("List of aggregation stages, in order.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		coll, err := req.RequireString("collection_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		raw, _ := req.GetArguments()["pipeline"].([]any)
		pipeline := make([]map[string]any, 0, len(raw))
		for i, stage := range raw {
			m, ok := stage.(map[string]any)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("pipeline stage %d is not an object", i)), nil
			}
			pipeline = append(pipeline, m)
		}
		res, err := src.Aggregate(ctx, coll, pipeline)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	})

	s.AddTool(mcp.NewTool("count_documents",
		mcp.WithDescription("Count documents matching a filter."),
		mcp.WithString("collection_name", mcp.Required(), mcp.Description("Collection to count.")),
		mcp.WithObject("filter", mcp.Description("MongoDB filter document.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		coll, err := req.RequireString("collection_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter, _ := req.GetArguments()["filter"].(map[string]any)
		n, err := src.Count(ctx, coll, filter)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d", n)), nil
	})

	return s
}

// decodeSortSpec accepts the JSON shape [["field", -1], ["other", 1]].
func decodeSortSpec(raw any) [][2]any {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out [][2]any
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		out = append(out, [2]any{pair[0], pair[1]})
	}
	return out
}
