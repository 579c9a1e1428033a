package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/viz"
)

const sqlGenSystemPrompt = `You are an expert SQL data analyst. Generate a single valid read-only SQL SELECT query for the task.

RULES:
1. The query MUST be read-only: SELECT (or WITH ... SELECT) only
2. Never modify data: no INSERT, UPDATE, DELETE, DROP or ALTER
3. Use only tables and columns present in the schema
4. Limit result sets to what the task needs

Respond ONLY with valid JSON in the following format:
{"query": "SELECT ...", "explanation": "what the query does"}
Do not include any other text or explanation.`

const mongoGenSystemPrompt = `You are an expert MongoDB data analyst. Generate a valid MongoDB query for the task.

CRITICAL RULES FOR AGGREGATION:
1. In $group stages, ALL fields except _id MUST use accumulator operators
2. NEVER write: {"$group": {"_id": "$field", "value": "$other_field"}}
3. ALWAYS write: {"$group": {"_id": "$field", "value": {"$sum": "$other_field"}}}
4. ACCUMULATORS MUST BE OBJECTS, NOT STRINGS.
   WRONG: "count": "$sum: 1"
   CORRECT: "count": {"$sum": 1}

Common accumulators: $sum, $avg, $min, $max, $first, $last, $push, $addToSet

Examples of CORRECT aggregation:
- Average: {"$group": {"_id": "$category", "avg_price": {"$avg": "$price"}}}
- Count: {"$group": {"_id": "$status", "count": {"$sum": 1}}}
- Total: {"$group": {"_id": null, "total": {"$sum": "$amount"}}}

Respond ONLY with valid JSON in the following format:
{
  "collection": "name",
  "query_type": "find" | "aggregate" | "count",
  "filter": {},
  "projection": null,
  "sort": [["field", -1]],
  "limit": 10,
  "pipeline": [],
  "explanation": "what the query does"
}
Do not include any other text or explanation.`

// executeSubTask runs one sub-task end to end: generate a query, execute it
// through the tool registry, optionally render a chart and summarize. It
// never returns an error; failures are captured in the result.
func (o *Orchestrator) executeSubTask(ctx context.Context, runID, schemaCtx string, task SubTask) SubTaskResult {
	if o.config.Agent.SubTaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Agent.SubTaskTimeout)
		defer cancel()
	}
	o.logger.Printf("[task %s] processing: %s", task.ID, task.Question)

	result := SubTaskResult{TaskID: task.ID, Question: task.Question, Target: task.Target}

	var docs []map[string]any
	var explanation string
	var execErr error
	switch task.Target {
	case TargetMongo:
		docs, explanation, result.QueryJSON, execErr = o.runMongoTask(ctx, schemaCtx, task)
	default:
		docs, explanation, result.QueryJSON, execErr = o.runSQLTask(ctx, schemaCtx, task)
	}
	if execErr != nil {
		result.Answer = execErr.Error()
		result.Failed = true
		return result
	}

	if task.VisualizationNeeded && len(docs) > 0 {
		path, err := o.renderChart(runID, task, docs)
		if err != nil {
			o.logger.Printf("[task %s] chart skipped: %v", task.ID, err)
		} else {
			result.ChartPath = path
		}
	}

	answer, err := o.summarize(ctx, task, explanation, docs)
	if err != nil {
		result.Answer = fmt.Sprintf("query succeeded but summarization failed: %v", err)
		result.Failed = true
		return result
	}
	result.Answer = answer
	return result
}

func (o *Orchestrator) runSQLTask(ctx context.Context, schemaCtx string, task SubTask) ([]map[string]any, string, []byte, error) {
	user := fmt.Sprintf("DATABASE SCHEMA:\n%s\nTASK: %q", schemaCtx, task.Question)
	var q SQLQuery
	if err := o.provider.CompleteJSON(ctx, sqlGenSystemPrompt, user, &q); err != nil {
		return nil, "", nil, fmt.Errorf("generated query malformed: %w", err)
	}
	queryJSON, _ := json.Marshal(q)

	text, err := o.tools.CallTool(ctx, "sql_run_select_query", map[string]any{"query": q.Query})
	if err != nil {
		return nil, "", queryJSON, fmt.Errorf("query execution failed: %w", err)
	}
	var res struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, "", queryJSON, fmt.Errorf("query execution failed: unexpected result: %w", err)
	}
	docs := make([]map[string]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		doc := make(map[string]any, len(res.Columns))
		for i, col := range res.Columns {
			if i < len(row) {
				doc[col] = row[i]
			}
		}
		docs = append(docs, doc)
	}
	return docs, q.Explanation, queryJSON, nil
}

func (o *Orchestrator) runMongoTask(ctx context.Context, schemaCtx string, task SubTask) ([]map[string]any, string, []byte, error) {
	user := fmt.Sprintf("DATABASE SCHEMA:\n%s\nTASK: %q", schemaCtx, task.Question)
	var q MongoQuery
	if err := o.provider.CompleteJSON(ctx, mongoGenSystemPrompt, user, &q); err != nil {
		return nil, "", nil, fmt.Errorf("generated query malformed: %w", err)
	}
	if q.QueryType == "aggregate" && len(q.Pipeline) > 0 {
		q.Pipeline = pipeline.Repair(q.Pipeline, o.repairOpts...)
		if err := pipeline.Validate(q.Pipeline); err != nil {
			return nil, "", nil, fmt.Errorf("generated query malformed: %w", err)
		}
	}
	queryJSON, _ := json.Marshal(q)

	var text string
	var err error
	switch q.QueryType {
	case "find":
		args := map[string]any{"collection_name": q.Collection}
		if q.Filter != nil {
			args["filter"] = q.Filter
		}
		if q.Projection != nil {
			args["projection"] = q.Projection
		}
		if q.Sort != nil {
			args["sort"] = q.Sort
		}
		if q.Limit > 0 {
			args["limit"] = q.Limit
		}
		text, err = o.tools.CallTool(ctx, "mongo_run_find_query", args)
	case "count":
		args := map[string]any{"collection_name": q.Collection}
		if q.Filter != nil {
			args["filter"] = q.Filter
		}
		text, err = o.tools.CallTool(ctx, "mongo_count_documents", args)
		if err == nil {
			n, convErr := strconv.Atoi(strings.TrimSpace(text))
			if convErr != nil {
				return nil, "", queryJSON, fmt.Errorf("query execution failed: unexpected count result %q", text)
			}
			return []map[string]any{{"count": n}}, q.Explanation, queryJSON, nil
		}
	case "aggregate":
		text, err = o.tools.CallTool(ctx, "mongo_run_aggregate_query", map[string]any{
			"collection_name": q.Collection,
			"pipeline":        q.Pipeline,
		})
	default:
		return nil, "", queryJSON, fmt.Errorf("generated query malformed: unknown query type %q", q.QueryType)
	}
	if err != nil {
		return nil, "", queryJSON, fmt.Errorf("query execution failed: %w", err)
	}

	var res struct {
		Documents []map[string]any `json:"documents"`
	}
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, "", queryJSON, fmt.Errorf("query execution failed: unexpected result: %w", err)
	}
	return res.Documents, q.Explanation, queryJSON, nil
}

func (o *Orchestrator) renderChart(runID string, task SubTask, docs []map[string]any) (string, error) {
	labelKey, valueKey, ok := viz.SelectSeries(docs)
	if !ok {
		return "", fmt.Errorf("no numeric series in results")
	}
	labels, values := viz.ExtractSeries(docs, labelKey, valueKey)
	title := task.ChartTitle
	if title == "" {
		title = task.Question
	}
	path := filepath.Join(o.config.Reports.Dir, fmt.Sprintf("%s_%s.png", runID, task.ID))
	if err := viz.Render(task.ChartType, title, labels, values, path); err != nil {
		return "", err
	}
	return path, nil
}

func (o *Orchestrator) summarize(ctx context.Context, task SubTask, explanation string, docs []map[string]any) (string, error) {
	sample := docs
	if len(sample) > 5 {
		sample = sample[:5]
	}
	sampleJSON, _ := json.MarshalIndent(sample, "", "  ")
	prompt := fmt.Sprintf(`Task: %q
Query Explanation: %s
Results: %s
Total Results: %d

Provide a clear, concise answer to the task question based on the data.
Include specific numbers and insights.`, task.Question, explanation, sampleJSON, len(docs))

	return o.provider.Complete(ctx, "", prompt)
}
