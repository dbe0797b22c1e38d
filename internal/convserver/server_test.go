package convserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/RishanR/mediapipe-fydp/internal/logger"
	"github.com/RishanR/mediapipe-fydp/pkg/convert"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewServer(logger.Default()).Register(e)
	return e
}

func TestHealth(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestConvertRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)

	// No output_dir.
	req := httptest.NewRequest(http.MethodPost, "/v1/convert", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConvertJobLifecycle(t *testing.T) {
	t.Parallel()

	backend := "convserver-test-rt"
	done := make(chan struct{})
	convert.RegisterGenerator(convert.Backend(backend), func(p convert.GeneratorParams) error {
		defer close(done)
		return nil
	})

	e := newTestEcho(t)
	body := `{"backend":"` + backend + `","output_dir":"` +
		filepath.ToSlash(t.TempDir()) + `","combine_file_only":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/convert", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var job Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID == "" || job.Status != StatusRunning {
		t.Fatalf("job = %+v", job)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("generator never ran")
	}

	// The job record flips to completed shortly after the generator
	// returns.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("job lookup status = %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if job.Status == StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed: %+v", job)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Artifact == "" || job.FinishedAt == nil {
		t.Fatalf("completed job missing fields: %+v", job)
	}
}

func TestGetUnknownJob(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/conv_missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
