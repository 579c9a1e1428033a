package server

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/store"
)

type schedRunner struct {
	fired chan string
}

func (r *schedRunner) Run(_ context.Context, question string) (agent.RunResult, error) {
	r.fired <- question
	return agent.RunResult{}, nil
}

func TestIsDueInvalidExprFallsBackToDaily(t *testing.T) {
	hourAgo := time.Now().Add(-time.Hour)
	dayAgo := time.Now().Add(-25 * time.Hour)

	if !isDue("not a cron", nil) {
		t.Fatal("never-run schedule should be due even with a bad expression")
	}
	if isDue("not a cron", &hourAgo) {
		t.Fatal("bad expression with hour-old run should wait for the daily fallback")
	}
	if !isDue("not a cron", &dayAgo) {
		t.Fatal("bad expression with day-old run should be due")
	}
}

func TestTickFiresDueSchedule(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	staleRun := time.Now().Add(-2 * time.Hour)
	freshRun := time.Now().Add(-time.Minute)
	mock.ExpectQuery("SELECT id, question, cron_expr").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "question", "cron_expr", "enabled", "last_run_at", "created_at"}).
			AddRow("s1", "weekly revenue by region", "@hourly", true, staleRun, time.Now()).
			AddRow("s2", "fresh signups", "@hourly", true, freshRun, time.Now()))
	mock.ExpectExec("UPDATE schedules SET last_run_at").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	runner := &schedRunner{fired: make(chan string, 2)}
	s := &Scheduler{
		Store:  &store.Store{DB: db},
		Runner: runner,
		Logger: log.New(io.Discard, "", 0),
	}
	s.tick()

	select {
	case q := <-runner.fired:
		if q != "weekly revenue by region" {
			t.Fatalf("fired schedule question = %q", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("due schedule did not fire")
	}
	select {
	case q := <-runner.fired:
		t.Fatalf("fresh schedule fired: %q", q)
	case <-time.After(50 * time.Millisecond):
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTickSkipsScheduleWhenTouchFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, question, cron_expr").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "question", "cron_expr", "enabled", "last_run_at", "created_at"}).
			AddRow("s1", "daily active users", "@daily", true, nil, time.Now()))
	mock.ExpectExec("UPDATE schedules SET last_run_at").
		WithArgs("s1").
		WillReturnError(context.DeadlineExceeded)

	runner := &schedRunner{fired: make(chan string, 1)}
	s := &Scheduler{
		Store:  &store.Store{DB: db},
		Runner: runner,
		Logger: log.New(io.Discard, "", 0),
	}
	s.tick()

	select {
	case q := <-runner.fired:
		t.Fatalf("schedule fired despite touch failure: %q", q)
	case <-time.After(50 * time.Millisecond):
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
