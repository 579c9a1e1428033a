package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestCreateAndFinishRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(sqlmock.AnyArg(), "top products by revenue", RunStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := st.CreateRun(context.Background(), "top products by revenue")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a run id")
	}

	mock.ExpectExec("UPDATE runs SET status").
		WithArgs(id, RunStatusSucceeded, "reports/run.html", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.FinishRun(context.Background(), id, RunStatusSucceeded, "reports/run.html", ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveSubTaskResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	rec := SubTaskRecord{
		RunID:     "run-1",
		TaskID:    "t1",
		Question:  "orders per category",
		Target:    "mongo",
		QueryJSON: []byte(`{"collection":"orders"}`),
		Answer:    "Electronics leads.",
		Failed:    false,
	}
	mock.ExpectExec("INSERT INTO subtask_results").
		WithArgs(rec.RunID, rec.TaskID, rec.Question, rec.Target, []byte(`{"collection":"orders"}`), rec.Answer, nil, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := st.SaveSubTaskResult(context.Background(), rec); err != nil {
		t.Fatalf("SaveSubTaskResult: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	finished := created.Add(30 * time.Second)
	mock.ExpectQuery("SELECT id, question, status").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "question", "status", "report_path", "error", "created_at", "finished_at"}).
			AddRow("r2", "q2", RunStatusRunning, "", "", created.Add(time.Hour), nil).
			AddRow("r1", "q1", RunStatusSucceeded, "reports/r1.html", "", created, finished))

	runs, err := st.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].FinishedAt != nil {
		t.Fatalf("running run should have nil FinishedAt")
	}
	if runs[1].FinishedAt == nil || !runs[1].FinishedAt.Equal(finished) {
		t.Fatalf("finished run has wrong FinishedAt: %v", runs[1].FinishedAt)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	mock.ExpectExec("INSERT INTO schedules").
		WithArgs(sqlmock.AnyArg(), "daily revenue", "0 9 * * *").
		WillReturnResult(sqlmock.NewResult(0, 1))
	id, err := st.CreateSchedule(context.Background(), "daily revenue", "0 9 * * *")
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	mock.ExpectQuery("SELECT id, question, cron_expr").
		WillReturnRows(sqlmock.NewRows([]string{"id", "question", "cron_expr", "enabled", "last_run_at", "created_at"}).
			AddRow(id, "daily revenue", "0 9 * * *", true, nil, time.Now()))
	schedules, err := st.ListSchedules(context.Background())
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(schedules) != 1 || schedules[0].CronExpr != "0 9 * * *" {
		t.Fatalf("unexpected schedules: %+v", schedules)
	}

	mock.ExpectExec("UPDATE schedules SET last_run_at").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.TouchSchedule(context.Background(), id); err != nil {
		t.Fatalf("TouchSchedule: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
