package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nomadpass/checkout-api/internal/domain"
	"github.com/nomadpass/checkout-api/internal/payments"
	"github.com/nomadpass/checkout-api/internal/platform/sessions"
	"github.com/nomadpass/checkout-api/internal/services"
)

type fakeFlowDispatcher struct {
	result payments.Result
	calls  int
	method string
}

func (d *fakeFlowDispatcher) Dispatch(_ context.Context, _ domain.Quotation, _ domain.ContactInfo, methodID string) payments.Result {
	d.calls++
	d.method = methodID
	return d.result
}

func newSessionRouter(t *testing.T, dispatcher *fakeFlowDispatcher) (chi.Router, *sessions.Store) {
	t.Helper()
	store := sessions.NewStore(time.Hour, time.Now)
	engine := services.NewPricingEngine(services.PricingEngineDeps{})
	newFlow := func() (*services.CheckoutFlow, error) {
		return services.NewCheckoutFlow(services.CheckoutFlowDeps{
			Engine:     engine,
			Dispatcher: dispatcher,
		})
	}
	h, err := NewSessionHandlers(store, newFlow)
	if err != nil {
		t.Fatalf("NewSessionHandlers: %v", err)
	}
	r := chi.NewRouter()
	r.Route("/sessions", h.Routes)
	return r, store
}

func doJSON(t *testing.T, r chi.Router, method, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	payload := map[string]any{}
	if raw := rec.Body.Bytes(); len(raw) > 0 && strings.Contains(rec.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, raw)
		}
	}
	return rec, payload
}

func createSessionID(t *testing.T, r chi.Router) string {
	t.Helper()
	rec, payload := doJSON(t, r, http.MethodPost, "/sessions/", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %s", rec.Code, rec.Body.String())
	}
	id, _ := payload["sessionId"].(string)
	if id == "" {
		t.Fatalf("create session returned no id: %v", payload)
	}
	return id
}

func TestCreateSession(t *testing.T) {
	r, _ := newSessionRouter(t, &fakeFlowDispatcher{})

	rec, payload := doJSON(t, r, http.MethodPost, "/sessions/", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["step"] != "selection" {
		t.Fatalf("step = %v", payload["step"])
	}
	servicesList, ok := payload["services"].([]any)
	if !ok || len(servicesList) != 7 {
		t.Fatalf("expected full catalog, got %v", payload["services"])
	}
	quote, ok := payload["quote"].(map[string]any)
	if !ok {
		t.Fatalf("missing quote: %v", payload)
	}
	applied, ok := quote["appliedDiscounts"].([]any)
	if !ok || len(applied) != 0 {
		t.Fatalf("appliedDiscounts = %v", quote["appliedDiscounts"])
	}
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := newSessionRouter(t, &fakeFlowDispatcher{})

	rec, payload := doJSON(t, r, http.MethodGet, "/sessions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["error"] != "session_not_found" {
		t.Fatalf("error = %v", payload["error"])
	}
}

func TestToggleService(t *testing.T) {
	r, _ := newSessionRouter(t, &fakeFlowDispatcher{})
	id := createSessionID(t, r)

	rec, payload := doJSON(t, r, http.MethodPost, "/sessions/"+id+"/services/1/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	servicesList := payload["services"].([]any)
	first := servicesList[0].(map[string]any)
	if first["id"] != "1" || first["selected"] != true {
		t.Fatalf("unexpected first service %v", first)
	}

	rec, payload = doJSON(t, r, http.MethodPost, "/sessions/"+id+"/services/nope/toggle", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["error"] != "unknown_service" {
		t.Fatalf("error = %v", payload["error"])
	}
}

func TestAdvanceRequiresSelection(t *testing.T) {
	r, _ := newSessionRouter(t, &fakeFlowDispatcher{})
	id := createSessionID(t, r)

	rec, payload := doJSON(t, r, http.MethodPost, "/sessions/"+id+"/advance", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["error"] != "empty_selection" {
		t.Fatalf("error = %v", payload["error"])
	}
}

func TestAdvanceRejectsInvalidContact(t *testing.T) {
	r, _ := newSessionRouter(t, &fakeFlowDispatcher{})
	id := createSessionID(t, r)

	doJSON(t, r, http.MethodPost, "/sessions/"+id+"/services/1/toggle", "")
	doJSON(t, r, http.MethodPost, "/sessions/"+id+"/advance", "")

	rec, payload := doJSON(t, r, http.MethodPost, "/sessions/"+id+"/advance", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["error"] != "invalid_contact" {
		t.Fatalf("error = %v", payload["error"])
	}
	fields, ok := payload["fields"].(map[string]any)
	if !ok {
		t.Fatalf("missing fields detail: %v", payload)
	}
	for _, name := range []string{"name", "email", "phone"} {
		if _, ok := fields[name]; !ok {
			t.Fatalf("expected %s in fields, got %v", name, fields)
		}
	}
}

func TestSetContactValidatesBody(t *testing.T) {
	r, _ := newSessionRouter(t, &fakeFlowDispatcher{})
	id := createSessionID(t, r)

	rec, payload := doJSON(t, r, http.MethodPut, "/sessions/"+id+"/contact", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["error"] != "invalid_request" {
		t.Fatalf("error = %v", payload["error"])
	}

	rec, _ = doJSON(t, r, http.MethodPut, "/sessions/"+id+"/contact", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d", rec.Code)
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	dispatcher := &fakeFlowDispatcher{result: payments.Result{
		Outcome:           payments.OutcomeRedirect,
		RedirectURL:       "https://pay.example/redirect",
		ProviderPaymentID: "cs_123",
	}}
	r, _ := newSessionRouter(t, dispatcher)
	id := createSessionID(t, r)

	doJSON(t, r, http.MethodPost, "/sessions/"+id+"/services/1/toggle", "")
	doJSON(t, r, http.MethodPost, "/sessions/"+id+"/services/2/toggle", "")

	rec, payload := doJSON(t, r, http.MethodPost, "/sessions/"+id+"/advance", "")
	if rec.Code != http.StatusOK || payload["step"] != "contact" {
		t.Fatalf("advance to contact: status %d step %v", rec.Code, payload["step"])
	}

	contact := `{"name":"Ana Silva","email":"ana@example.com","phone":"+351 912 345 678","termsAccepted":true}`
	rec, payload = doJSON(t, r, http.MethodPut, "/sessions/"+id+"/contact", contact)
	if rec.Code != http.StatusOK {
		t.Fatalf("set contact status = %d", rec.Code)
	}
	if payload["termsAccepted"] != true {
		t.Fatalf("termsAccepted = %v", payload["termsAccepted"])
	}

	rec, payload = doJSON(t, r, http.MethodPost, "/sessions/"+id+"/advance", "")
	if rec.Code != http.StatusOK || payload["step"] != "payment" {
		t.Fatalf("advance to payment: status %d step %v", rec.Code, payload["step"])
	}

	rec, payload = doJSON(t, r, http.MethodGet, "/sessions/"+id+"/quote", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("quote status = %d", rec.Code)
	}
	if payload["subtotalEur"].(float64) != 270 {
		t.Fatalf("subtotal = %v", payload["subtotalEur"])
	}
	if payload["discountFraction"].(float64) != 0.05 {
		t.Fatalf("discount = %v", payload["discountFraction"])
	}
	if payload["totalEur"].(float64) != 256.5 {
		t.Fatalf("total = %v", payload["totalEur"])
	}

	rec, payload = doJSON(t, r, http.MethodPost, "/sessions/"+id+"/pay", `{"method":"EUR"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay status = %d, body %s", rec.Code, rec.Body.String())
	}
	if payload["outcome"] != "redirect" || payload["redirectUrl"] != "https://pay.example/redirect" {
		t.Fatalf("unexpected pay response %v", payload)
	}
	if dispatcher.calls != 1 || dispatcher.method != "eur" {
		t.Fatalf("dispatcher calls=%d method=%q", dispatcher.calls, dispatcher.method)
	}

	// Successful dispatch resets the session for a fresh order.
	rec, payload = doJSON(t, r, http.MethodGet, "/sessions/"+id, "")
	if rec.Code != http.StatusOK || payload["step"] != "selection" {
		t.Fatalf("after pay: status %d step %v", rec.Code, payload["step"])
	}
}

func TestPayValidation(t *testing.T) {
	r, _ := newSessionRouter(t, &fakeFlowDispatcher{})
	id := createSessionID(t, r)

	rec, payload := doJSON(t, r, http.MethodPost, "/sessions/"+id+"/pay", `{"method":""}`)
	if rec.Code != http.StatusBadRequest || payload["error"] != "invalid_request" {
		t.Fatalf("blank method: status %d error %v", rec.Code, payload["error"])
	}

	rec, payload = doJSON(t, r, http.MethodPost, "/sessions/"+id+"/pay", `{"method":"eur"}`)
	if rec.Code != http.StatusConflict || payload["error"] != "invalid_transition" {
		t.Fatalf("wrong step: status %d error %v", rec.Code, payload["error"])
	}
}

func TestPayFailureMapsErrorKind(t *testing.T) {
	cases := []struct {
		name string
		kind payments.ErrorKind
		want int
	}{
		{name: "validation", kind: payments.KindValidation, want: http.StatusBadRequest},
		{name: "configuration", kind: payments.KindConfiguration, want: http.StatusInternalServerError},
		{name: "unavailable", kind: payments.KindUnavailable, want: http.StatusServiceUnavailable},
		{name: "transport", kind: payments.KindTransport, want: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dispatcher := &fakeFlowDispatcher{result: payments.Result{
				Outcome:      payments.OutcomeFailure,
				ErrorKind:    tc.kind,
				ErrorMessage: "provider said no",
			}}
			r, _ := newSessionRouter(t, dispatcher)
			id := createSessionID(t, r)
			doJSON(t, r, http.MethodPost, "/sessions/"+id+"/services/1/toggle", "")
			doJSON(t, r, http.MethodPost, "/sessions/"+id+"/advance", "")
			contact := `{"name":"Ana Silva","email":"ana@example.com","phone":"+351 912 345 678"}`
			doJSON(t, r, http.MethodPut, "/sessions/"+id+"/contact", contact)
			doJSON(t, r, http.MethodPost, "/sessions/"+id+"/advance", "")

			rec, payload := doJSON(t, r, http.MethodPost, "/sessions/"+id+"/pay", `{"method":"eur"}`)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if payload["outcome"] != "failure" || payload["errorKind"] != string(tc.kind) {
				t.Fatalf("unexpected payload %v", payload)
			}

			// Failure keeps the session on the payment step for a retry.
			_, session := doJSON(t, r, http.MethodGet, "/sessions/"+id, "")
			if session["step"] != "payment" {
				t.Fatalf("step after failure = %v", session["step"])
			}
		})
	}
}

func TestBackKeepsSelection(t *testing.T) {
	r, _ := newSessionRouter(t, &fakeFlowDispatcher{})
	id := createSessionID(t, r)

	doJSON(t, r, http.MethodPost, "/sessions/"+id+"/services/3/toggle", "")
	doJSON(t, r, http.MethodPost, "/sessions/"+id+"/advance", "")

	rec, payload := doJSON(t, r, http.MethodPost, "/sessions/"+id+"/back", "")
	if rec.Code != http.StatusOK || payload["step"] != "selection" {
		t.Fatalf("back: status %d step %v", rec.Code, payload["step"])
	}
	for _, entry := range payload["services"].([]any) {
		svc := entry.(map[string]any)
		if svc["id"] == "3" && svc["selected"] != true {
			t.Fatalf("selection lost after back: %v", svc)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	r, store := newSessionRouter(t, &fakeFlowDispatcher{})
	id := createSessionID(t, r)

	rec, _ := doJSON(t, r, http.MethodDelete, "/sessions/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("store len = %d", store.Len())
	}
	rec, _ = doJSON(t, r, http.MethodGet, "/sessions/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}
