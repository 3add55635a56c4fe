package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nomadpass/checkout-api/internal/domain"
	"github.com/nomadpass/checkout-api/internal/payments"
	"github.com/nomadpass/checkout-api/internal/platform/httpx"
	"github.com/nomadpass/checkout-api/internal/platform/sessions"
	"github.com/nomadpass/checkout-api/internal/services"
)

// FlowFactory builds a fresh checkout flow for a new session.
type FlowFactory func() (*services.CheckoutFlow, error)

// SessionHandlers exposes the per-session checkout state machine over HTTP.
type SessionHandlers struct {
	store   *sessions.Store
	newFlow FlowFactory
}

// NewSessionHandlers constructs session handlers backed by the given store.
func NewSessionHandlers(store *sessions.Store, newFlow FlowFactory) (*SessionHandlers, error) {
	if store == nil {
		return nil, errors.New("session handlers: store is required")
	}
	if newFlow == nil {
		return nil, errors.New("session handlers: flow factory is required")
	}
	return &SessionHandlers{store: store, newFlow: newFlow}, nil
}

// Routes registers session endpoints under the provided router.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createSession)
	r.Route("/{sessionID}", func(sr chi.Router) {
		sr.Get("/", h.getSession)
		sr.Delete("/", h.deleteSession)
		sr.Post("/services/{serviceID}/toggle", h.toggleService)
		sr.Put("/contact", h.setContact)
		sr.Post("/advance", h.advance)
		sr.Post("/back", h.back)
		sr.Get("/quote", h.getQuote)
		sr.Post("/pay", h.pay)
	})
}

type serviceView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceEUR    int64  `json:"priceEur"`
	Category    string `json:"category"`
	Selected    bool   `json:"selected"`
}

type contactView struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	PromoCode string `json:"promoCode,omitempty"`
}

type quoteView struct {
	SubtotalEUR       int64    `json:"subtotalEur"`
	DiscountFraction  float64  `json:"discountFraction"`
	DiscountAmountEUR float64  `json:"discountAmountEur"`
	TotalEUR          float64  `json:"totalEur"`
	AppliedDiscounts  []string `json:"appliedDiscounts"`
}

type sessionView struct {
	SessionID     string        `json:"sessionId"`
	Step          string        `json:"step"`
	TermsAccepted bool          `json:"termsAccepted"`
	Services      []serviceView `json:"services"`
	Contact       contactView   `json:"contact"`
	Quote         quoteView     `json:"quote"`
}

type contactRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PromoCode     string `json:"promoCode"`
	TermsAccepted *bool  `json:"termsAccepted"`
}

type payRequest struct {
	Method string `json:"method"`
}

type payResponse struct {
	Outcome      string `json:"outcome"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
	PaymentID    string `json:"paymentId,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (h *SessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flow, err := h.newFlow()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "could not create checkout session", http.StatusServiceUnavailable))
		return
	}
	id := h.store.Put(flow)
	writeJSONResponse(w, http.StatusCreated, renderSession(id, flow))
}

func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := h.resolveFlow(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, renderSession(id, flow))
}

func (h *SessionHandlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	h.store.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandlers) toggleService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, flow, ok := h.resolveFlow(w, r)
	if !ok {
		return
	}
	serviceID := chi.URLParam(r, "serviceID")
	if err := flow.ToggleService(serviceID); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("unknown_service", err.Error(), http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, renderSession(id, flow))
}

func (h *SessionHandlers) setContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, flow, ok := h.resolveFlow(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req contactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	flow.SetContact(domain.ContactInfo{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		PromoCode: req.PromoCode,
	})
	if req.TermsAccepted != nil {
		flow.SetTermsAccepted(*req.TermsAccepted)
	}

	writeJSONResponse(w, http.StatusOK, renderSession(id, flow))
}

func (h *SessionHandlers) advance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, flow, ok := h.resolveFlow(w, r)
	if !ok {
		return
	}

	if err := flow.Advance(); err != nil {
		var validation *services.ContactValidationError
		switch {
		case errors.As(err, &validation):
			details := make(map[string]any, len(validation.Fields))
			for field, message := range validation.Fields {
				details[field] = message
			}
			httpx.WriteError(ctx, w, httpx.NewError("invalid_contact", "contact information is incomplete or invalid", http.StatusBadRequest).
				WithDetails(map[string]any{"fields": details}))
		case errors.Is(err, services.ErrEmptySelection):
			httpx.WriteError(ctx, w, httpx.NewError("empty_selection", err.Error(), http.StatusConflict))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, renderSession(id, flow))
}

func (h *SessionHandlers) back(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := h.resolveFlow(w, r)
	if !ok {
		return
	}
	flow.Back()
	writeJSONResponse(w, http.StatusOK, renderSession(id, flow))
}

func (h *SessionHandlers) getQuote(w http.ResponseWriter, r *http.Request) {
	_, flow, ok := h.resolveFlow(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, renderQuote(flow.Quote()))
}

func (h *SessionHandlers) pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, flow, ok := h.resolveFlow(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req payRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	method := strings.TrimSpace(strings.ToLower(req.Method))
	if method == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "method is required", http.StatusBadRequest))
		return
	}

	result, err := flow.Pay(ctx, method)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentInProgress):
			httpx.WriteError(ctx, w, httpx.NewError("payment_in_progress", err.Error(), http.StatusConflict))
		case errors.Is(err, services.ErrNotOnPaymentStep):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
		case errors.Is(err, services.ErrEmptySelection):
			httpx.WriteError(ctx, w, httpx.NewError("empty_selection", err.Error(), http.StatusConflict))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("payment_failed", err.Error(), http.StatusBadGateway))
		}
		return
	}

	resp := payResponse{
		Outcome:      string(result.Outcome),
		RedirectURL:  result.RedirectURL,
		PaymentID:    result.ProviderPaymentID,
		ErrorKind:    string(result.ErrorKind),
		ErrorMessage: result.ErrorMessage,
	}
	writeJSONResponse(w, payStatusCode(result), resp)
}

func payStatusCode(result payments.Result) int {
	if result.Outcome == payments.OutcomeRedirect {
		return http.StatusOK
	}
	switch result.ErrorKind {
	case payments.KindValidation:
		return http.StatusBadRequest
	case payments.KindConfiguration:
		return http.StatusInternalServerError
	case payments.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (h *SessionHandlers) resolveFlow(w http.ResponseWriter, r *http.Request) (string, *services.CheckoutFlow, bool) {
	ctx := r.Context()
	id := chi.URLParam(r, "sessionID")
	flow, err := h.store.Get(id)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found or expired", http.StatusNotFound))
		return "", nil, false
	}
	return id, flow, true
}

func renderSession(id string, flow *services.CheckoutFlow) sessionView {
	catalog := flow.Services()
	views := make([]serviceView, 0, len(catalog))
	for _, svc := range catalog {
		views = append(views, serviceView{
			ID:          svc.ID,
			Name:        svc.Name,
			Description: svc.Description,
			PriceEUR:    svc.PriceEUR,
			Category:    string(svc.Category),
			Selected:    svc.Selected,
		})
	}
	contact := flow.Contact()
	return sessionView{
		SessionID:     id,
		Step:          string(flow.Step()),
		TermsAccepted: flow.TermsAccepted(),
		Services:      views,
		Contact: contactView{
			Name:      contact.Name,
			Email:     contact.Email,
			Phone:     contact.Phone,
			PromoCode: contact.PromoCode,
		},
		Quote: renderQuote(flow.Quote()),
	}
}

func renderQuote(q domain.Quotation) quoteView {
	applied := q.AppliedDiscounts
	if applied == nil {
		applied = []string{}
	}
	return quoteView{
		SubtotalEUR:       q.SubtotalEUR,
		DiscountFraction:  q.DiscountFraction,
		DiscountAmountEUR: q.DiscountAmountEUR,
		TotalEUR:          q.TotalEUR,
		AppliedDiscounts:  applied,
	}
}
