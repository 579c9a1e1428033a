// Package telemetry tracks run metrics and LLM spend, and exports both to
// prometheus.
package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/askdb/askdb/config"
)

// Telemetry provides monitoring and cost tracking for the agent.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu sync.RWMutex
	// Run metrics
	totalRuns      int64
	failedRuns     int64
	totalSubTasks  int64
	failedSubTasks int64
	// LLM metrics
	llmRequests int64
	llmTokens   int64
	totalCost   float64

	runDuration  prometheus.Histogram
	runsTotal    *prometheus.CounterVec
	subTaskTotal *prometheus.CounterVec
	llmTokensC   prometheus.Counter
	llmCost      prometheus.Counter
}

// New registers the collectors and returns a ready Telemetry. A disabled
// config still returns a working instance so call sites stay unconditional.
func New(cfg config.TelemetryConfig, logger *log.Logger) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: logger,
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "askdb_run_duration_seconds",
			Help:    "Wall time of full analysis runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "askdb_runs_total",
			Help: "Completed analysis runs by status.",
		}, []string{"status"}),
		subTaskTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "askdb_subtasks_total",
			Help: "Executed sub-tasks by status.",
		}, []string{"status"}),
		llmTokensC: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "askdb_llm_tokens_total",
			Help: "Tokens consumed across all LLM calls.",
		}),
		llmCost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "askdb_llm_cost_dollars_total",
			Help: "Estimated LLM spend in dollars.",
		}),
	}
	if cfg.Enabled {
		prometheus.MustRegister(t.runDuration, t.runsTotal, t.subTaskTotal, t.llmTokensC, t.llmCost)
	}
	return t
}

// RecordRun records one finished analysis run.
func (t *Telemetry) RecordRun(success bool, duration time.Duration) {
	t.mu.Lock()
	t.totalRuns++
	if !success {
		t.failedRuns++
	}
	t.mu.Unlock()

	status := "success"
	if !success {
		status = "failure"
	}
	if t.config.Enabled {
		t.runsTotal.WithLabelValues(status).Inc()
		t.runDuration.Observe(duration.Seconds())
	}
}

// RecordSubTask records one executed sub-task.
func (t *Telemetry) RecordSubTask(success bool) {
	t.mu.Lock()
	t.totalSubTasks++
	if !success {
		t.failedSubTasks++
	}
	t.mu.Unlock()

	status := "success"
	if !success {
		status = "failure"
	}
	if t.config.Enabled {
		t.subTaskTotal.WithLabelValues(status).Inc()
	}
}

// RecordLLMUsage tracks tokens and estimated cost for one model call.
func (t *Telemetry) RecordLLMUsage(promptTokens, completionTokens int, cost float64) {
	t.mu.Lock()
	t.llmRequests++
	t.llmTokens += int64(promptTokens + completionTokens)
	if t.config.CostTracking {
		t.totalCost += cost
	}
	t.mu.Unlock()

	if t.config.Enabled {
		t.llmTokensC.Add(float64(promptTokens + completionTokens))
		if t.config.CostTracking {
			t.llmCost.Add(cost)
		}
	}
}

// Snapshot is a point-in-time view for the ops API.
type Snapshot struct {
	TotalRuns      int64   `json:"total_runs"`
	FailedRuns     int64   `json:"failed_runs"`
	TotalSubTasks  int64   `json:"total_subtasks"`
	FailedSubTasks int64   `json:"failed_subtasks"`
	LLMRequests    int64   `json:"llm_requests"`
	LLMTokens      int64   `json:"llm_tokens"`
	TotalCost      float64 `json:"total_cost"`
}

func (t *Telemetry) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		TotalRuns:      t.totalRuns,
		FailedRuns:     t.failedRuns,
		TotalSubTasks:  t.totalSubTasks,
		FailedSubTasks: t.failedSubTasks,
		LLMRequests:    t.llmRequests,
		LLMTokens:      t.llmTokens,
		TotalCost:      t.totalCost,
	}
}
