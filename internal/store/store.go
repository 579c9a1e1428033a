// Package store persists analysis runs, their sub-task results and the
// recurring-question schedules in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

type Store struct {
	DB *sql.DB
}

// Open connects to the run store database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging run store: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Run is one analysis run.
type Run struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Status     string     `json:"status"`
	ReportPath string     `json:"report_path,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SubTaskRecord is one persisted sub-task result.
type SubTaskRecord struct {
	RunID     string          `json:"run_id"`
	TaskID    string          `json:"task_id"`
	Question  string          `json:"question"`
	Target    string          `json:"target"`
	QueryJSON json.RawMessage `json:"query_json,omitempty"`
	Answer    string          `json:"answer"`
	ChartPath string          `json:"chart_path,omitempty"`
	Failed    bool            `json:"failed"`
}

// Schedule is a recurring question.
type Schedule struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	CronExpr  string     `json:"cron_expr"`
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreateRun inserts a new run in status running and returns its id.
func (s *Store) CreateRun(ctx context.Context, question string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO runs (id, question, status, created_at)
VALUES ($1,$2,$3,NOW())`, id, question, RunStatusRunning)
	if err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run with its final status, report path and error.
func (s *Store) FinishRun(ctx context.Context, id, status, reportPath, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE runs SET status = $2, report_path = $3, error = $4, finished_at = NOW()
WHERE id = $1`, id, status, nullable(reportPath), nullable(errMsg))
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	return nil
}

// SaveSubTaskResult persists one sub-task outcome.
func (s *Store) SaveSubTaskResult(ctx context.Context, rec SubTaskRecord) error {
	query := []byte("null")
	if len(rec.QueryJSON) > 0 {
		query = rec.QueryJSON
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO subtask_results (run_id, task_id, question, target, query_json, answer, chart_path, failed)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.RunID, rec.TaskID, rec.Question, rec.Target, query, rec.Answer, nullable(rec.ChartPath), rec.Failed)
	if err != nil {
		return fmt.Errorf("saving subtask result: %w", err)
	}
	return nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, question, status, COALESCE(report_path,''), COALESCE(error,''), created_at, finished_at
FROM runs WHERE id = $1`, id)
	var r Run
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.Question, &r.Status, &r.ReportPath, &r.Error, &r.CreatedAt, &finished); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, question, status, COALESCE(report_path,''), COALESCE(error,''), created_at, finished_at
FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Question, &r.Status, &r.ReportPath, &r.Error, &r.CreatedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListSubTaskResults returns the results of one run in insertion order.
func (s *Store) ListSubTaskResults(ctx context.Context, runID string) ([]SubTaskRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT run_id, task_id, question, target, query_json, answer, COALESCE(chart_path,''), failed
FROM subtask_results WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing subtask results: %w", err)
	}
	defer rows.Close()

	var recs []SubTaskRecord
	for rows.Next() {
		var rec SubTaskRecord
		if err := rows.Scan(&rec.RunID, &rec.TaskID, &rec.Question, &rec.Target, &rec.QueryJSON, &rec.Answer, &rec.ChartPath, &rec.Failed); err != nil {
			return nil, fmt.Errorf("scanning subtask result: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CreateSchedule registers a recurring question.
func (s *Store) CreateSchedule(ctx context.Context, question, cronExpr string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO schedules (id, question, cron_expr, enabled, created_at)
VALUES ($1,$2,$3,TRUE,NOW())`, id, question, cronExpr)
	if err != nil {
		return "", fmt.Errorf("creating schedule: %w", err)
	}
	return id, nil
}

// ListSchedules returns enabled schedules.
func (s *Store) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, question, cron_expr, enabled, last_run_at, created_at
FROM schedules WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var sc Schedule
		var last sql.NullTime
		if err := rows.Scan(&sc.ID, &sc.Question, &sc.CronExpr, &sc.Enabled, &last, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		if last.Valid {
			sc.LastRunAt = &last.Time
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

// TouchSchedule records that a schedule just fired.
func (s *Store) TouchSchedule(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE schedules SET last_run_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching schedule %s: %w", id, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
