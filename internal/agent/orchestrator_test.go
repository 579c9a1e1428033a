package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/askdb/askdb/config"
)

// fakeProvider returns scripted completions matched by a substring of the
// system or user prompt.
type fakeProvider struct {
	mu        sync.Mutex
	responses map[string]string // substring -> response
	calls     []string
}

func (f *fakeProvider) Complete(_ context.Context, system, user string) (string, error) {
	return f.lookup(system + user)
}

func (f *fakeProvider) CompleteJSON(_ context.Context, system, user string, out any) error {
	text, err := f.lookup(system + user)
	if err != nil {
		return err
	}
	return decodeModelJSON(text, out)
}

func (f *fakeProvider) lookup(prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, prompt)
	for key, resp := range f.responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return "", fmt.Errorf("no scripted response for prompt")
}

// fakeTools records tool calls and returns scripted results per tool name.
type fakeTools struct {
	mu      sync.Mutex
	results map[string]string
	errors  map[string]error
	calls   []toolCall
}

type toolCall struct {
	name string
	args map[string]any
}

func (f *fakeTools) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolCall{name: name, args: args})
	if err, ok := f.errors[name]; ok {
		return "", err
	}
	if res, ok := f.results[name]; ok {
		return res, nil
	}
	return "", fmt.Errorf("unknown tool %s", name)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Agent: config.AgentConfig{
			MaxConcurrentTasks: 2,
			SubTaskTimeout:     10 * time.Second,
		},
		Reports: config.ReportsConfig{Dir: t.TempDir()},
	}
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[TEST] ", log.LstdFlags)
}

const planTwoTasks = `{"sub_tasks": [
  {"id": "t1", "question": "total revenue per category", "target": "mongo", "visualization_needed": false},
  {"id": "t2", "question": "count active users", "target": "sql", "visualization_needed": false}
]}`

func TestRunExecutesPlanAndWritesReport(t *testing.T) {
	provider := &fakeProvider{responses: map[string]string{
		"planning an analysis":          planTwoTasks,
		"expert MongoDB data analyst":   `{"collection": "orders", "query_type": "aggregate", "pipeline": [{"$group": {"_id": "$category", "revenue": {"$sum": "$amount"}}}], "explanation": "revenue by category"}`,
		"expert SQL data analyst":       `{"query": "SELECT COUNT(*) AS n FROM users WHERE active", "explanation": "active user count"}`,
		"Provide a clear, concise answ": "There are 42 of them.",
	}}
	tools := &fakeTools{results: map[string]string{
		"sql_get_schema":            `{"tables": []}`,
		"mongo_list_collections":    `["orders"]`,
		"mongo_get_schema":          `{"fields": []}`,
		"mongo_run_aggregate_query": `{"documents": [{"_id": "books", "revenue": 120}], "count": 1}`,
		"sql_run_select_query":      `{"columns": ["n"], "rows": [[42]], "row_count": 1}`,
	}}

	o, err := NewOrchestrator(testConfig(t), testLogger(), nil, provider, tools, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	result, err := o.Run(context.Background(), "how is the business doing?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(result.Results))
	}
	for _, r := range result.Results {
		if r.Failed {
			t.Fatalf("task %s failed: %s", r.TaskID, r.Answer)
		}
		if r.Answer != "There are 42 of them." {
			t.Fatalf("task %s answer = %q", r.TaskID, r.Answer)
		}
	}
	if result.ReportPath == "" {
		t.Fatal("expected a report path")
	}
	html, err := os.ReadFile(result.ReportPath)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(html), "how is the business doing?") {
		t.Fatal("report does not contain the question")
	}
	if filepath.Ext(result.ReportPath) != ".html" {
		t.Fatalf("report path = %s", result.ReportPath)
	}
}

func TestRunRepairsMalformedPipelineBeforeExecution(t *testing.T) {
	provider := &fakeProvider{responses: map[string]string{
		"planning an analysis": `{"sub_tasks": [{"id": "t1", "question": "orders per category", "target": "mongo", "visualization_needed": false}]}`,
		"expert MongoDB data analyst": `{"collection": "orders", "query_type": "aggregate",
  "pipeline": [{"$group": {"_id": "$category", "count": "$sum: 1"}}], "explanation": "counts"}`,
		"Provide a clear, concise answ": "Fine.",
	}}
	tools := &fakeTools{results: map[string]string{
		"sql_get_schema":            `{"tables": []}`,
		"mongo_list_collections":    `["orders"]`,
		"mongo_get_schema":          `{"fields": []}`,
		"mongo_run_aggregate_query": `{"documents": [], "count": 0}`,
	}}

	o, err := NewOrchestrator(testConfig(t), testLogger(), nil, provider, tools, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if _, err := o.Run(context.Background(), "orders per category"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var sent map[string]any
	for _, call := range tools.calls {
		if call.name == "mongo_run_aggregate_query" {
			sent = call.args
		}
	}
	if sent == nil {
		t.Fatal("aggregate tool was never called")
	}
	raw, _ := json.Marshal(sent["pipeline"])
	want := `[{"$group":{"_id":"$category","count":{"$sum":1}}}]`
	if string(raw) != want {
		t.Fatalf("pipeline sent = %s, want %s", raw, want)
	}
}

func TestRunFailsSubTaskOnUnrepairablePipeline(t *testing.T) {
	provider := &fakeProvider{responses: map[string]string{
		"planning an analysis": `{"sub_tasks": [{"id": "t1", "question": "broken", "target": "mongo", "visualization_needed": false}]}`,
		"expert MongoDB data analyst": `{"collection": "orders", "query_type": "aggregate",
  "pipeline": [{"$group": {"_id": "$c", "total": "$price"}}], "explanation": "broken"}`,
	}}
	tools := &fakeTools{results: map[string]string{
		"sql_get_schema":         `{"tables": []}`,
		"mongo_list_collections": `["orders"]`,
		"mongo_get_schema":       `{"fields": []}`,
	}}

	o, err := NewOrchestrator(testConfig(t), testLogger(), nil, provider, tools, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	result, err := o.Run(context.Background(), "broken")
	if err != nil {
		t.Fatalf("Run should not fail on a sub-task failure: %v", err)
	}
	if len(result.Results) != 1 || !result.Results[0].Failed {
		t.Fatalf("expected one failed result, got %+v", result.Results)
	}
	if !strings.Contains(result.Results[0].Answer, "generated query malformed") {
		t.Fatalf("answer = %q, want validation failure", result.Results[0].Answer)
	}
	for _, call := range tools.calls {
		if call.name == "mongo_run_aggregate_query" {
			t.Fatal("invalid pipeline must not be executed")
		}
	}
}

func TestRunIsolatesExecutionFailures(t *testing.T) {
	provider := &fakeProvider{responses: map[string]string{
		"planning an analysis":          planTwoTasks,
		"expert MongoDB data analyst":   `{"collection": "orders", "query_type": "count", "filter": {}, "explanation": "count"}`,
		"expert SQL data analyst":       `{"query": "SELECT 1", "explanation": "probe"}`,
		"Provide a clear, concise answ": "Half worked.",
	}}
	tools := &fakeTools{
		results: map[string]string{
			"sql_get_schema":         `{"tables": []}`,
			"mongo_list_collections": `["orders"]`,
			"mongo_get_schema":       `{"fields": []}`,
			"mongo_count_documents":  "7",
		},
		errors: map[string]error{
			"sql_run_select_query": fmt.Errorf("connection refused"),
		},
	}

	o, err := NewOrchestrator(testConfig(t), testLogger(), nil, provider, tools, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	result, err := o.Run(context.Background(), "mixed outcome")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	byID := make(map[string]SubTaskResult)
	for _, r := range result.Results {
		byID[r.TaskID] = r
	}
	if byID["t1"].Failed {
		t.Fatalf("mongo task should succeed: %s", byID["t1"].Answer)
	}
	if !byID["t2"].Failed || !strings.Contains(byID["t2"].Answer, "query execution failed") {
		t.Fatalf("sql task should be tagged as execution failure: %+v", byID["t2"])
	}
}

func TestPlannerRejectsEmptyAndUnknownTargets(t *testing.T) {
	p := NewPlanner(&fakeProvider{responses: map[string]string{
		"planning an analysis": `{"sub_tasks": []}`,
	}})
	if _, err := p.Plan(context.Background(), "schema", "question"); err == nil {
		t.Fatal("expected error for empty plan")
	}

	p = NewPlanner(&fakeProvider{responses: map[string]string{
		"planning an analysis": `{"sub_tasks": [{"id": "t1", "question": "q", "target": "graphql"}]}`,
	}})
	if _, err := p.Plan(context.Background(), "schema", "question"); err == nil {
		t.Fatal("expected error for unknown target")
	}
}

func TestPlannerAssignsMissingAndDuplicateIDs(t *testing.T) {
	p := NewPlanner(&fakeProvider{responses: map[string]string{
		"planning an analysis": `{"sub_tasks": [
  {"id": "", "question": "a", "target": "sql"},
  {"id": "t1", "question": "b", "target": "mongo"},
  {"id": "t1", "question": "c", "target": "sql"}
]}`,
	}})
	plan, err := p.Plan(context.Background(), "schema", "question")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	seen := make(map[string]bool)
	for _, task := range plan.SubTasks {
		if task.ID == "" || seen[task.ID] {
			t.Fatalf("duplicate or empty id in %+v", plan.SubTasks)
		}
		seen[task.ID] = true
	}
}

func TestRefreshSchemasReintrospects(t *testing.T) {
	provider := &fakeProvider{responses: map[string]string{}}
	tools := &fakeTools{results: map[string]string{
		"sql_refresh_schema": `{"tables": []}`,
	}}

	o, err := NewOrchestrator(testConfig(t), testLogger(), nil, provider, tools, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if err := o.RefreshSchemas(context.Background()); err != nil {
		t.Fatalf("RefreshSchemas: %v", err)
	}
	if len(tools.calls) != 1 || tools.calls[0].name != "sql_refresh_schema" {
		t.Fatalf("calls = %+v, want one sql_refresh_schema call", tools.calls)
	}

	tools = &fakeTools{errors: map[string]error{
		"sql_refresh_schema": fmt.Errorf("connection reset"),
	}}
	o, err = NewOrchestrator(testConfig(t), testLogger(), nil, provider, tools, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if err := o.RefreshSchemas(context.Background()); err == nil {
		t.Fatal("expected error when the tool call fails")
	}
}
