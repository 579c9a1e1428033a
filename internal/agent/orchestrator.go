package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/report"
	"github.com/askdb/askdb/internal/schemacache"
	"github.com/askdb/askdb/internal/searchindex"
	"github.com/askdb/askdb/internal/store"
	"github.com/askdb/askdb/internal/telemetry"
)

// ToolCaller issues remote tool calls. Satisfied by mcpclient.Registry.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Orchestrator coordinates a full analysis run: schema gathering, planning,
// concurrent sub-task execution, reporting and persistence.
type Orchestrator struct {
	config    *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry

	provider Provider
	planner  *Planner
	tools    ToolCaller

	store   *store.Store       // may be nil
	index   *searchindex.Index // may be nil
	schemas *schemacache.Cache // may be nil

	repairOpts []pipeline.Option
	semaphore  chan struct{}
}

var orchestratorTracer trace.Tracer = otel.Tracer("askdb/internal/agent")

// NewOrchestrator wires an orchestrator. store, index and schemas are
// optional; passing nil disables persistence, search indexing and schema
// caching respectively.
func NewOrchestrator(cfg *config.Config, logger *log.Logger, tel *telemetry.Telemetry, provider Provider, tools ToolCaller, st *store.Store, idx *searchindex.Index, schemas *schemacache.Cache) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[AGENT] ", log.LstdFlags)
	}
	maxTasks := cfg.Agent.MaxConcurrentTasks
	if maxTasks <= 0 {
		maxTasks = 5
	}
	var opts []pipeline.Option
	if cfg.LLM.DefaultOperand != "" {
		opts = append(opts, pipeline.WithDefaultOperand(cfg.LLM.DefaultOperand))
	}
	return &Orchestrator{
		config:     cfg,
		logger:     logger,
		telemetry:  tel,
		provider:   provider,
		planner:    NewPlanner(provider),
		tools:      tools,
		store:      st,
		index:      idx,
		schemas:    schemas,
		repairOpts: opts,
		semaphore:  make(chan struct{}, maxTasks),
	}, nil
}

// Run answers a question end to end and returns the per-task results along
// with the rendered report path.
func (o *Orchestrator) Run(ctx context.Context, question string) (RunResult, error) {
	start := time.Now()
	ctx, span := orchestratorTracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("question", question)))
	defer span.End()

	runID := o.createRun(ctx, question)
	span.SetAttributes(attribute.String("run.id", runID))

	result, err := o.run(ctx, runID, question)
	result.RunID = runID
	result.Question = question
	result.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.finishRun(ctx, runID, store.RunStatusFailed, "", err.Error())
		if o.telemetry != nil {
			o.telemetry.RecordRun(false, result.Duration)
		}
		return result, err
	}

	o.finishRun(ctx, runID, store.RunStatusSucceeded, result.ReportPath, "")
	if o.telemetry != nil {
		o.telemetry.RecordRun(true, result.Duration)
	}
	o.logger.Printf("run %s completed in %v with %d tasks", runID, result.Duration.Round(time.Millisecond), len(result.Results))
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, runID, question string) (RunResult, error) {
	var result RunResult

	schemaCtx, err := o.gatherSchemaContext(ctx)
	if err != nil {
		return result, fmt.Errorf("gathering schema context: %w", err)
	}

	planCtx, planSpan := orchestratorTracer.Start(ctx, "agent.plan")
	plan, err := o.planner.Plan(planCtx, schemaCtx, question)
	if err != nil {
		planSpan.RecordError(err)
		planSpan.SetStatus(codes.Error, err.Error())
		planSpan.End()
		return result, fmt.Errorf("planning failed: %w", err)
	}
	planSpan.SetAttributes(attribute.Int("plan.task_count", len(plan.SubTasks)))
	planSpan.End()

	execCtx, execSpan := orchestratorTracer.Start(ctx, "agent.execute")
	result.Results = o.executePlan(execCtx, runID, schemaCtx, plan)
	execSpan.End()

	for _, r := range result.Results {
		o.recordResult(ctx, runID, r)
	}

	reportPath, err := o.writeReport(ctx, runID, question, result.Results)
	if err != nil {
		return result, fmt.Errorf("writing report: %w", err)
	}
	result.ReportPath = reportPath
	return result, nil
}

// executePlan fans sub-tasks out under the concurrency semaphore and
// collects results in plan order.
func (o *Orchestrator) executePlan(ctx context.Context, runID, schemaCtx string, plan AnalysisPlan) []SubTaskResult {
	results := make([]SubTaskResult, len(plan.SubTasks))
	var wg sync.WaitGroup
	for i, task := range plan.SubTasks {
		wg.Add(1)
		go func(i int, task SubTask) {
			defer wg.Done()
			select {
			case o.semaphore <- struct{}{}:
				defer func() { <-o.semaphore }()
			case <-ctx.Done():
				results[i] = SubTaskResult{
					TaskID:   task.ID,
					Question: task.Question,
					Target:   task.Target,
					Answer:   ctx.Err().Error(),
					Failed:   true,
				}
				return
			}
			results[i] = o.executeSubTask(ctx, runID, schemaCtx, task)
			if o.telemetry != nil {
				o.telemetry.RecordSubTask(!results[i].Failed)
			}
		}(i, task)
	}
	wg.Wait()
	return results
}

// RefreshSchemas drops the cached schema context and tells the SQL tool
// server to re-introspect, so the next run sees schema changes immediately.
// The Mongo server infers its schema per call and needs no refresh signal.
func (o *Orchestrator) RefreshSchemas(ctx context.Context) error {
	o.schemas.Invalidate(ctx, "sql")
	o.schemas.Invalidate(ctx, "mongo")
	if _, err := o.tools.CallTool(ctx, "sql_refresh_schema", nil); err != nil {
		return fmt.Errorf("refreshing sql schema: %w", err)
	}
	return nil
}

// gatherSchemaContext collects schema descriptions from both datasources,
// consulting the redis cache first.
func (o *Orchestrator) gatherSchemaContext(ctx context.Context) (string, error) {
	var b strings.Builder

	sqlSchema, err := o.schemaFor(ctx, "sql", o.fetchSQLSchema)
	if err != nil {
		return "", err
	}
	b.WriteString("=== SQL DATABASE ===\n")
	b.WriteString(sqlSchema)
	b.WriteString("\n")

	mongoSchema, err := o.schemaFor(ctx, "mongo", o.fetchMongoSchema)
	if err != nil {
		return "", err
	}
	b.WriteString("=== MONGODB DATABASE ===\n")
	b.WriteString(mongoSchema)
	b.WriteString("\n")
	return b.String(), nil
}

func (o *Orchestrator) schemaFor(ctx context.Context, source string, fetch func(context.Context) (string, error)) (string, error) {
	if o.schemas != nil {
		if cached := o.schemas.Get(ctx, source); cached != "" {
			return cached, nil
		}
	}
	schema, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	if o.schemas != nil {
		o.schemas.Set(ctx, source, schema)
	}
	return schema, nil
}

func (o *Orchestrator) fetchSQLSchema(ctx context.Context) (string, error) {
	return o.tools.CallTool(ctx, "sql_get_schema", nil)
}

func (o *Orchestrator) fetchMongoSchema(ctx context.Context) (string, error) {
	text, err := o.tools.CallTool(ctx, "mongo_list_collections", nil)
	if err != nil {
		return "", err
	}
	var collections []string
	if err := json.Unmarshal([]byte(text), &collections); err != nil {
		return "", fmt.Errorf("unexpected list_collections result: %w", err)
	}
	var b strings.Builder
	for _, coll := range collections {
		schema, err := o.tools.CallTool(ctx, "mongo_get_schema", map[string]any{"collection_name": coll})
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "Collection: %s\n%s\n\n", coll, schema)
	}
	return b.String(), nil
}

func (o *Orchestrator) writeReport(ctx context.Context, runID, question string, results []SubTaskResult) (string, error) {
	data := report.Data{
		RunID:       runID,
		Question:    question,
		GeneratedAt: time.Now(),
		Tasks:       make([]report.TaskSection, 0, len(results)),
	}
	for _, r := range results {
		section := report.TaskSection{
			Question: r.Question,
			Answer:   r.Answer,
			Query:    string(r.QueryJSON),
			Failed:   r.Failed,
		}
		if r.ChartPath != "" {
			section.ChartFile = filepath.Base(r.ChartPath)
		}
		data.Tasks = append(data.Tasks, section)
	}
	path, err := report.Write(o.config.Reports.Dir, data)
	if err != nil {
		return "", err
	}
	if o.config.Reports.ExportPDF {
		pdfPath := strings.TrimSuffix(path, ".html") + ".pdf"
		if err := report.ExportPDF(ctx, path, pdfPath); err != nil {
			o.logger.Printf("pdf export skipped: %v", err)
		}
	}
	return path, nil
}

func (o *Orchestrator) createRun(ctx context.Context, question string) string {
	if o.store == nil {
		return uuid.NewString()
	}
	id, err := o.store.CreateRun(ctx, question)
	if err != nil {
		o.logger.Printf("warning: could not persist run: %v", err)
		return uuid.NewString()
	}
	return id
}

func (o *Orchestrator) finishRun(ctx context.Context, runID, status, reportPath, errMsg string) {
	if o.store == nil {
		return
	}
	if err := o.store.FinishRun(ctx, runID, status, reportPath, errMsg); err != nil {
		o.logger.Printf("warning: could not finish run %s: %v", runID, err)
	}
}

func (o *Orchestrator) recordResult(ctx context.Context, runID string, r SubTaskResult) {
	if o.store != nil {
		rec := store.SubTaskRecord{
			RunID:     runID,
			TaskID:    r.TaskID,
			Question:  r.Question,
			Target:    r.Target,
			QueryJSON: r.QueryJSON,
			Answer:    r.Answer,
			ChartPath: r.ChartPath,
			Failed:    r.Failed,
		}
		if err := o.store.SaveSubTaskResult(ctx, rec); err != nil {
			o.logger.Printf("warning: could not persist result for task %s: %v", r.TaskID, err)
		}
	}
	if o.index != nil && !r.Failed {
		entry := searchindex.Entry{
			RunID:     runID,
			TaskID:    r.TaskID,
			Question:  r.Question,
			Answer:    r.Answer,
			CreatedAt: time.Now(),
		}
		if err := o.index.Add(entry); err != nil {
			o.logger.Printf("warning: could not index result for task %s: %v", r.TaskID, err)
		}
	}
}
