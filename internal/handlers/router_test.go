package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterNotFoundEnvelope(t *testing.T) {
	r := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "route_not_found" {
		t.Fatalf("error = %v", payload["error"])
	}
	if id, ok := payload["request_id"].(string); !ok || id == "" {
		t.Fatalf("expected request id in payload: %v", payload)
	}
}

func TestRouterHealthRoutes(t *testing.T) {
	r := NewRouter()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		payload := decodeBody(t, rec)
		if payload["status"] != "ok" {
			t.Fatalf("%s status field = %v", path, payload["status"])
		}
	}
}

func TestRouterUnconfiguredGroupsReturnNotImplemented(t *testing.T) {
	r := NewRouter()

	for _, path := range []string{
		"/api/v1/sessions/",
		"/api/v1/payments/methods",
		"/api/v1/webhooks/robokassa/result",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		payload := decodeBody(t, rec)
		if payload["error"] != "not_implemented" {
			t.Fatalf("%s error = %v", path, payload["error"])
		}
	}
}

func TestRouterMountsRegisteredGroups(t *testing.T) {
	r := NewRouter(
		WithPaymentRoutes(func(group chi.Router) {
			group.Get("/methods", func(w http.ResponseWriter, req *http.Request) {
				writeJSONResponse(w, http.StatusOK, map[string]any{"methods": []any{}})
			})
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/methods", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
