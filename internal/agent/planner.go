package agent

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Planner decomposes a user question into independent sub-tasks.
type Planner struct {
	provider Provider
	logger   *log.Logger
}

// NewPlanner creates a planner instance.
func NewPlanner(provider Provider) *Planner {
	return &Planner{
		provider: provider,
		logger:   log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

const plannerSystemPrompt = `You are a senior data analyst planning an analysis across a relational (SQL) database and a MongoDB document database.

Break the user's request into 2-5 independent sub-tasks that can be executed concurrently.
For each sub-task:
- Make it specific and answerable with one query
- Set "target" to "sql" or "mongo" depending on where the data lives (consult the schemas)
- Decide if visualization would help and set "visualization_needed"
- If so choose "chart_type" from: bar, pie, line, scatter, and a "chart_title"

Keep tasks focused and avoid overlap.

Respond ONLY with valid JSON in the following format:
{
  "sub_tasks": [
    {
      "id": "t1",
      "question": "specific question",
      "target": "sql",
      "visualization_needed": true,
      "chart_type": "bar",
      "chart_title": "title"
    }
  ]
}
Do not include any other text or explanation.`

// Plan asks the LLM for a decomposition of question given the schema
// context of both datasources.
func (p *Planner) Plan(ctx context.Context, schemaCtx, question string) (AnalysisPlan, error) {
	user := fmt.Sprintf("DATABASE SCHEMAS:\n%s\nUSER REQUEST: %q", schemaCtx, question)

	var plan AnalysisPlan
	if err := p.provider.CompleteJSON(ctx, plannerSystemPrompt, user, &plan); err != nil {
		return AnalysisPlan{}, fmt.Errorf("failed to generate plan: %w", err)
	}
	if err := p.validate(&plan); err != nil {
		return AnalysisPlan{}, fmt.Errorf("plan validation failed: %w", err)
	}
	p.logger.Printf("Planning completed with %d tasks", len(plan.SubTasks))
	return plan, nil
}

func (p *Planner) validate(plan *AnalysisPlan) error {
	if len(plan.SubTasks) == 0 {
		return fmt.Errorf("plan contains no sub-tasks")
	}
	seen := make(map[string]bool, len(plan.SubTasks))
	for i := range plan.SubTasks {
		t := &plan.SubTasks[i]
		if strings.TrimSpace(t.Question) == "" {
			return fmt.Errorf("sub-task %d has an empty question", i)
		}
		switch t.Target {
		case TargetSQL, TargetMongo:
		default:
			return fmt.Errorf("sub-task %d has unknown target %q", i, t.Target)
		}
		if t.ID == "" || seen[t.ID] {
			t.ID = "t" + strconv.Itoa(i+1)
		}
		seen[t.ID] = true
		if !t.VisualizationNeeded {
			t.ChartType = ""
			t.ChartTitle = ""
		}
	}
	return nil
}
