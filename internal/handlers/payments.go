package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nomadpass/checkout-api/internal/payments"
	"github.com/nomadpass/checkout-api/internal/platform/httpx"
	"github.com/nomadpass/checkout-api/internal/services"
)

// methodLister exposes the dispatcher's routing table.
type methodLister interface {
	Methods() map[string]payments.Currency
}

// stripeSessionReader fetches checkout session snapshots from Stripe.
type stripeSessionReader interface {
	RetrieveSession(ctx context.Context, sessionID string) (payments.SessionSnapshot, error)
}

// cryptoGateway exposes the NOWPayments diagnostic surface.
type cryptoGateway interface {
	AvailableCurrencies(ctx context.Context) []string
	MinimumAmount(ctx context.Context, currency string) (float64, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (payments.PaymentStatus, error)
}

// PaymentHandlers exposes payment method metadata and provider read endpoints.
type PaymentHandlers struct {
	methods   methodLister
	converter payments.AmountConverter
	stripe    stripeSessionReader
	crypto    cryptoGateway
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(methods methodLister, converter payments.AmountConverter, stripe stripeSessionReader, crypto cryptoGateway) *PaymentHandlers {
	return &PaymentHandlers{
		methods:   methods,
		converter: converter,
		stripe:    stripe,
		crypto:    crypto,
	}
}

// Routes registers payment endpoints under the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/methods", h.listMethods)
	r.Get("/stripe/sessions/{checkoutSessionID}", h.stripeSession)
	r.Get("/crypto/currencies", h.cryptoCurrencies)
	r.Get("/crypto/minimum-amount", h.cryptoMinimumAmount)
	r.Get("/crypto/payments/{paymentID}", h.cryptoPaymentStatus)
}

type methodView struct {
	ID            string `json:"id"`
	Currency      string `json:"currency"`
	DisplayAmount string `json:"displayAmount,omitempty"`
}

func (h *PaymentHandlers) listMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.methods == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment dispatcher unavailable", http.StatusServiceUnavailable))
		return
	}

	var amountEUR float64
	hasAmount := false
	if raw := strings.TrimSpace(r.URL.Query().Get("amount")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount must be a non-negative number", http.StatusBadRequest))
			return
		}
		amountEUR = parsed
		hasAmount = true
	}

	routes := h.methods.Methods()
	ids := make([]string, 0, len(routes))
	for id := range routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	views := make([]methodView, 0, len(ids))
	for _, id := range ids {
		view := methodView{ID: id, Currency: string(routes[id])}
		if hasAmount && h.converter != nil {
			view.DisplayAmount = services.FormatAmount(h.converter.Convert(amountEUR, routes[id]))
		}
		views = append(views, view)
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"methods": views})
}

type stripeSessionView struct {
	ID            string `json:"id"`
	AmountTotal   int64  `json:"amountTotal"`
	Currency      string `json:"currency"`
	OrderID       string `json:"orderId,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	Status        string `json:"status"`
}

func (h *PaymentHandlers) stripeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stripe == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stripe_unavailable", "stripe provider unavailable", http.StatusServiceUnavailable))
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "checkoutSessionID"))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "checkout session id is required", http.StatusBadRequest))
		return
	}

	snapshot, err := h.stripe.RetrieveSession(ctx, sessionID)
	if err != nil {
		writeProviderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, stripeSessionView{
		ID:            snapshot.ID,
		AmountTotal:   snapshot.AmountTotal,
		Currency:      snapshot.Currency,
		OrderID:       snapshot.OrderID,
		CustomerEmail: snapshot.CustomerEmail,
		Status:        snapshot.Status,
	})
}

func (h *PaymentHandlers) cryptoCurrencies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.crypto == nil {
		httpx.WriteError(ctx, w, httpx.NewError("crypto_unavailable", "crypto provider unavailable", http.StatusServiceUnavailable))
		return
	}
	currencies := h.crypto.AvailableCurrencies(ctx)
	if currencies == nil {
		currencies = []string{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"currencies": currencies})
}

func (h *PaymentHandlers) cryptoMinimumAmount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.crypto == nil {
		httpx.WriteError(ctx, w, httpx.NewError("crypto_unavailable", "crypto provider unavailable", http.StatusServiceUnavailable))
		return
	}

	currency := strings.TrimSpace(r.URL.Query().Get("currency"))
	if currency == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "currency is required", http.StatusBadRequest))
		return
	}

	minimum, err := h.crypto.MinimumAmount(ctx, currency)
	if err != nil {
		writeProviderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"currency": strings.ToLower(currency),
		"minimum":  minimum,
	})
}

type cryptoPaymentView struct {
	PaymentID     string  `json:"paymentId"`
	Status        string  `json:"status"`
	PayAddress    string  `json:"payAddress,omitempty"`
	PriceAmount   float64 `json:"priceAmount"`
	PriceCurrency string  `json:"priceCurrency"`
	PayAmount     float64 `json:"payAmount"`
	PayCurrency   string  `json:"payCurrency"`
	OrderID       string  `json:"orderId,omitempty"`
}

func (h *PaymentHandlers) cryptoPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.crypto == nil {
		httpx.WriteError(ctx, w, httpx.NewError("crypto_unavailable", "crypto provider unavailable", http.StatusServiceUnavailable))
		return
	}

	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentID"))
	if paymentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment id is required", http.StatusBadRequest))
		return
	}

	status, err := h.crypto.GetPaymentStatus(ctx, paymentID)
	if err != nil {
		writeProviderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cryptoPaymentView{
		PaymentID:     status.PaymentID.String(),
		Status:        status.PaymentStatus,
		PayAddress:    status.PayAddress,
		PriceAmount:   status.PriceAmount,
		PriceCurrency: status.PriceCurrency,
		PayAmount:     status.PayAmount,
		PayCurrency:   status.PayCurrency,
		OrderID:       status.OrderID,
	})
}

func writeProviderError(ctx context.Context, w http.ResponseWriter, err error) {
	var provErr *payments.Error
	if errors.As(err, &provErr) {
		switch provErr.Kind {
		case payments.KindValidation:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", provErr.Message, http.StatusBadRequest))
			return
		case payments.KindConfiguration:
			httpx.WriteError(ctx, w, httpx.NewError("provider_misconfigured", provErr.Message, http.StatusInternalServerError))
			return
		case payments.KindUnavailable:
			httpx.WriteError(ctx, w, httpx.NewError("provider_unavailable", provErr.Message, http.StatusServiceUnavailable))
			return
		default:
			httpx.WriteError(ctx, w, httpx.NewError("provider_error", provErr.Message, http.StatusBadGateway))
			return
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError("provider_error", "payment provider request failed", http.StatusBadGateway))
}
