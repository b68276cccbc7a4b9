package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) HealthCheck(ctx context.Context) error {
	return s.err
}

func TestHealth_AllHealthy(t *testing.T) {
	handler := NewHealthHandler(
		HealthCheck{Name: "database", Checker: &stubChecker{}, Required: true},
		HealthCheck{Name: "cache", Checker: &stubChecker{}},
	)

	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %s, want healthy", resp.Status)
	}
	if resp.Services["database"] != "healthy" || resp.Services["cache"] != "healthy" {
		t.Errorf("services = %v", resp.Services)
	}
}

func TestHealth_RequiredFailureIsUnhealthy(t *testing.T) {
	handler := NewHealthHandler(
		HealthCheck{Name: "database", Checker: &stubChecker{err: errors.New("connection refused")}, Required: true},
	)

	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status = %s, want unhealthy", resp.Status)
	}
}

func TestHealth_OptionalFailureDegrades(t *testing.T) {
	handler := NewHealthHandler(
		HealthCheck{Name: "database", Checker: &stubChecker{}, Required: true},
		HealthCheck{Name: "cache", Checker: &stubChecker{err: errors.New("timeout")}},
	)

	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when only optional checks fail", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %s, want degraded", resp.Status)
	}
}

func TestHealth_SkipsNilCheckers(t *testing.T) {
	handler := NewHealthHandler(
		HealthCheck{Name: "database", Checker: &stubChecker{}, Required: true},
		HealthCheck{Name: "cache", Checker: nil},
	)

	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := resp.Services["cache"]; ok {
		t.Error("nil checker should not appear in the report")
	}
}

func TestReady(t *testing.T) {
	healthy := NewHealthHandler(
		HealthCheck{Name: "database", Checker: &stubChecker{}, Required: true},
		HealthCheck{Name: "cache", Checker: &stubChecker{err: errors.New("timeout")}},
	)

	w := httptest.NewRecorder()
	healthy.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (optional failures do not block readiness)", w.Code)
	}

	broken := NewHealthHandler(
		HealthCheck{Name: "database", Checker: &stubChecker{err: errors.New("connection refused")}, Required: true},
	)

	w = httptest.NewRecorder()
	broken.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestLive(t *testing.T) {
	handler := NewHealthHandler()

	w := httptest.NewRecorder()
	handler.Live(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
