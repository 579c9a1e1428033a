package agent

import (
	"time"

	"github.com/askdb/askdb/internal/pipeline"
)

// Target names the datasource a sub-task runs against.
const (
	TargetSQL   = "sql"
	TargetMongo = "mongo"
)

// SubTask is one independently answerable question produced by the planner.
type SubTask struct {
	ID                  string `json:"id"`
	Question            string `json:"question"`
	Target              string `json:"target"`
	VisualizationNeeded bool   `json:"visualization_needed"`
	ChartType           string `json:"chart_type,omitempty"`
	ChartTitle          string `json:"chart_title,omitempty"`
}

// AnalysisPlan is the planner's decomposition of a user question.
type AnalysisPlan struct {
	SubTasks []SubTask `json:"sub_tasks"`
}

// SQLQuery is the structured output of SQL query generation.
type SQLQuery struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
}

// MongoQuery is the structured output of Mongo query generation. QueryType
// selects which of the tool calls is made and which fields are consulted.
type MongoQuery struct {
	Collection  string            `json:"collection"`
	QueryType   string            `json:"query_type"` // find, aggregate or count
	Filter      map[string]any    `json:"filter,omitempty"`
	Projection  map[string]any    `json:"projection,omitempty"`
	Sort        []any             `json:"sort,omitempty"` // [["field", -1], ...]
	Limit       int               `json:"limit,omitempty"`
	Pipeline    pipeline.Pipeline `json:"pipeline,omitempty"`
	Explanation string            `json:"explanation"`
}

// SubTaskResult captures the outcome of one sub-task. A failed sub-task
// still yields a result; failures never abort the batch.
type SubTaskResult struct {
	TaskID    string `json:"task_id"`
	Question  string `json:"question"`
	Target    string `json:"target"`
	Answer    string `json:"answer"`
	QueryJSON []byte `json:"query_json,omitempty"`
	ChartPath string `json:"chart_path,omitempty"`
	Failed    bool   `json:"failed"`
}

// RunResult is the aggregate outcome of one orchestrated run.
type RunResult struct {
	RunID      string          `json:"run_id"`
	Question   string          `json:"question"`
	Results    []SubTaskResult `json:"results"`
	ReportPath string          `json:"report_path,omitempty"`
	Duration   time.Duration   `json:"duration"`
}
