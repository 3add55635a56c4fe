package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	payload := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return payload
}

func TestHealthz(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)
	h := NewHealthHandlers(
		WithHealthStartedAt(started),
		WithHealthClock(func() time.Time { return now }),
	)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "ok" {
		t.Fatalf("status field = %v", payload["status"])
	}
	if payload["uptime"] != "1m30s" {
		t.Fatalf("uptime = %v", payload["uptime"])
	}
	if payload["timestamp"] != "2024-05-01T10:01:30Z" {
		t.Fatalf("timestamp = %v", payload["timestamp"])
	}
}

func TestReadyzAllChecksPass(t *testing.T) {
	h := NewHealthHandlers(
		WithReadinessCheck("gateway", func(context.Context) error { return nil }),
		WithReadinessCheck("store", func(context.Context) error { return nil }),
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "ok" {
		t.Fatalf("status field = %v", payload["status"])
	}
	checks := payload["checks"].(map[string]any)
	if len(checks) != 2 {
		t.Fatalf("checks = %v", checks)
	}
	gateway := checks["gateway"].(map[string]any)
	if gateway["status"] != "ok" {
		t.Fatalf("gateway check = %v", gateway)
	}
	if details := payload["details"].([]any); len(details) != 0 {
		t.Fatalf("details = %v", details)
	}
}

func TestReadyzReportsDegraded(t *testing.T) {
	h := NewHealthHandlers(
		WithReadinessCheck("gateway", func(context.Context) error { return errors.New("connection refused") }),
		WithReadinessCheck("store", func(context.Context) error { return nil }),
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "degraded" {
		t.Fatalf("status field = %v", payload["status"])
	}
	checks := payload["checks"].(map[string]any)
	gateway := checks["gateway"].(map[string]any)
	if gateway["status"] != "degraded" || gateway["error"] != "connection refused" {
		t.Fatalf("gateway check = %v", gateway)
	}
	store := checks["store"].(map[string]any)
	if store["status"] != "ok" {
		t.Fatalf("store check = %v", store)
	}
	details := payload["details"].([]any)
	if len(details) != 1 || details[0] != "gateway: connection refused" {
		t.Fatalf("details = %v", details)
	}
}

func TestReadyzWithoutChecks(t *testing.T) {
	h := NewHealthHandlers()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "ok" {
		t.Fatalf("status field = %v", payload["status"])
	}
}
