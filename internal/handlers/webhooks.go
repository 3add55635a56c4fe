package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nomadpass/checkout-api/internal/platform/httpx"
)

// callbackVerifier checks the signature of a RoboKassa result notification.
type callbackVerifier interface {
	VerifyCallback(params url.Values) bool
}

// WebhookHandlers receives asynchronous provider notifications.
type WebhookHandlers struct {
	robokassa callbackVerifier
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(robokassa callbackVerifier, logger func(ctx context.Context, event string, fields map[string]any)) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{robokassa: robokassa, logger: logger}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/robokassa/result", h.robokassaResult)
	r.Post("/robokassa/result", h.robokassaResult)
}

// robokassaResult handles the merchant result URL. RoboKassa expects the
// literal body "OK<InvId>" on success and retries otherwise.
func (h *WebhookHandlers) robokassaResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.robokassa == nil {
		httpx.WriteError(ctx, w, httpx.NewError("robokassa_unavailable", "robokassa provider unavailable", http.StatusServiceUnavailable))
		return
	}

	params := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "could not parse form payload", http.StatusBadRequest))
			return
		}
		params = r.Form
	}

	invID := strings.TrimSpace(params.Get("InvId"))
	if !h.robokassa.VerifyCallback(params) {
		h.logger(ctx, "webhook.robokassa.rejected", map[string]any{
			"invId": invID,
		})
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "signature verification failed", http.StatusForbidden))
		return
	}

	h.logger(ctx, "webhook.robokassa.confirmed", map[string]any{
		"invId":  invID,
		"outSum": params.Get("OutSum"),
	})

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK" + invID))
}
