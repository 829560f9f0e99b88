package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func serveHealth(t *testing.T, h echo.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestCheckDB_Healthy(t *testing.T) {
	usage := func() *poolUsage { return &poolUsage{Open: 2, InUse: 1, Idle: 1, Limit: 10} }
	h := checkDB(func(context.Context) error { return nil }, usage, zerolog.Nop())

	rec, body := serveHealth(t, h)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	if _, ok := body["error"]; ok {
		t.Errorf("healthy body should not carry an error: %v", body)
	}
	pool, _ := body["pool"].(map[string]interface{})
	for _, key := range []string{"open", "in_use", "idle", "limit", "acquired_total", "acquire_wait"} {
		if _, ok := pool[key]; !ok {
			t.Errorf("expected pool key %q in %v", key, pool)
		}
	}
}

func TestCheckDB_PingFailureHidesCause(t *testing.T) {
	var logs bytes.Buffer
	cause := errors.New("dial tcp 10.0.0.5:5432: password authentication failed for user \"roster\"")
	h := checkDB(func(context.Context) error { return cause }, func() *poolUsage { return nil }, zerolog.New(&logs))

	rec, body := serveHealth(t, h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["status"] != "unhealthy" || body["error"] != "database unreachable" {
		t.Errorf("unexpected body %v", body)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") || strings.Contains(rec.Body.String(), "password") {
		t.Errorf("response leaks the ping error: %s", rec.Body.String())
	}
	if !strings.Contains(logs.String(), "password authentication failed") {
		t.Errorf("expected ping error in logs, got %q", logs.String())
	}
}

func TestCheckDB_UsesDeadline(t *testing.T) {
	var hadDeadline bool
	h := checkDB(func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}, func() *poolUsage { return nil }, zerolog.Nop())

	serveHealth(t, h)
	if !hadDeadline {
		t.Error("expected ping context to carry a deadline")
	}
}

func TestHealthHandler_NilPool(t *testing.T) {
	rec, body := serveHealth(t, HealthHandler(nil, zerolog.Nop()))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["error"] != "database unreachable" {
		t.Errorf("unexpected body %v", body)
	}
	if _, ok := body["pool"]; ok {
		t.Errorf("expected no pool section without a pool: %v", body)
	}
}
