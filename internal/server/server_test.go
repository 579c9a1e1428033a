package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/store"
)

type runnerStub struct {
	result agent.RunResult
	err    error
	asked  []string
}

func (r *runnerStub) Run(_ context.Context, question string) (agent.RunResult, error) {
	r.asked = append(r.asked, question)
	if r.err != nil {
		return agent.RunResult{}, r.err
	}
	return r.result, nil
}

func newTestServer(t *testing.T, runner Runner) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cfg := &config.Config{Server: config.ServerConfig{JWTSecret: "test-secret"}}
	srv, err := New(cfg, log.New(os.Stderr, "[TEST] ", log.LstdFlags), &store.Store{DB: db}, nil, nil, runner)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, mock
}

func bearer(t *testing.T, secret string) string {
	t.Helper()
	tok, err := SignToken("tester", []byte(secret), time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	return "Bearer " + tok
}

func TestAskRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, &runnerStub{})
	e := srv.Echo()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": "q"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": "q"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAskRunsQuestion(t *testing.T) {
	runner := &runnerStub{result: agent.RunResult{RunID: "r1", Question: "how many users?"}}
	srv, _ := newTestServer(t, runner)
	e := srv.Echo()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": "how many users?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", bearer(t, "test-secret"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result agent.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.RunID != "r1" {
		t.Fatalf("run id = %q", result.RunID)
	}
	if len(runner.asked) != 1 || runner.asked[0] != "how many users?" {
		t.Fatalf("runner asked = %v", runner.asked)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	srv, _ := newTestServer(t, &runnerStub{})
	e := srv.Echo()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": "  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", bearer(t, "test-secret"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	srv, mock := newTestServer(t, &runnerStub{})
	e := srv.Echo()

	mock.ExpectQuery("SELECT id, question, status").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "question", "status", "report_path", "error", "created_at", "finished_at"}).
			AddRow("r1", "q1", store.RunStatusSucceeded, "reports/r1.html", "", time.Now(), time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("Authorization", bearer(t, "test-secret"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var runs []store.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestCreateScheduleValidatesCron(t *testing.T) {
	srv, _ := newTestServer(t, &runnerStub{})
	e := srv.Echo()

	req := httptest.NewRequest(http.MethodPost, "/api/schedules", strings.NewReader(`{"question": "q", "cron_expr": "not a cron"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", bearer(t, "test-secret"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIsDue(t *testing.T) {
	hourAgo := time.Now().Add(-time.Hour)
	dayAgo := time.Now().Add(-25 * time.Hour)
	justNow := time.Now().Add(-time.Minute)

	if !isDue("@hourly", nil) {
		t.Fatal("never-run schedule should be due")
	}
	if !isDue("@hourly", &hourAgo) {
		t.Fatal("@hourly with hour-old run should be due")
	}
	if isDue("@hourly", &justNow) {
		t.Fatal("@hourly with fresh run should not be due")
	}
	if !isDue("@daily", &dayAgo) {
		t.Fatal("@daily with day-old run should be due")
	}
	if isDue("@daily", &hourAgo) {
		t.Fatal("@daily with hour-old run should not be due")
	}
	if !isDue("* * * * *", &justNow) {
		t.Fatal("every-minute cron with minute-old run should be due")
	}
	if isDue("0 0 1 1 *", &justNow) {
		t.Fatal("yearly cron should not be due right after a run")
	}
}
