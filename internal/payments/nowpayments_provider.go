package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultNOWPaymentsBaseURL = "https://api.nowpayments.io/v1"
	defaultPayCurrency        = "usdttrc20"
	invoiceURLFallbackPrefix  = "https://nowpayments.io/payment/?iid="
)

// defaultCryptoCurrencies is the hardcoded fallback when the currency
// listing endpoint is unusable with either key.
var defaultCryptoCurrencies = []string{"BTC", "ETH", "USDT", "TRX"}

// NOWPaymentsConfig carries credentials and targets for the crypto provider.
// The restricted PublicKey is preferred for read-only calls; APIKey is the
// privileged key used for invoice creation.
type NOWPaymentsConfig struct {
	APIKey    string
	PublicKey string
	BaseURL   string
	// Origin is the public base URL success/cancel/callback targets are
	// built from.
	Origin string
	// PayCurrency is the target settlement cryptocurrency ticker.
	PayCurrency string
	HTTPClient  *http.Client
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// NOWPaymentsProvider creates hosted crypto invoices denominated in EUR.
type NOWPaymentsProvider struct {
	apiKey      string
	publicKey   string
	baseURL     string
	origin      string
	payCurrency string
	httpClient  *http.Client
	logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewNOWPaymentsProvider constructs a NOWPayments provider.
func NewNOWPaymentsProvider(cfg NOWPaymentsConfig) *NOWPaymentsProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultNOWPaymentsBaseURL
	}
	payCurrency := strings.ToLower(strings.TrimSpace(cfg.PayCurrency))
	if payCurrency == "" {
		payCurrency = defaultPayCurrency
	}
	publicKey := strings.TrimSpace(cfg.PublicKey)
	if publicKey == "" {
		publicKey = strings.TrimSpace(cfg.APIKey)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No timeout at this layer; the transport default applies.
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NOWPaymentsProvider{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		publicKey:   publicKey,
		baseURL:     baseURL,
		origin:      strings.TrimRight(strings.TrimSpace(cfg.Origin), "/"),
		payCurrency: payCurrency,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Name identifies the provider in dispatch logs and results.
func (p *NOWPaymentsProvider) Name() string { return "nowpayments" }

type nowInvoiceRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	PayCurrency      string  `json:"pay_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description"`
	IPNCallbackURL   string  `json:"ipn_callback_url"`
	SuccessURL       string  `json:"success_url"`
	CancelURL        string  `json:"cancel_url"`
}

type nowInvoiceResponse struct {
	ID         flexID `json:"id"`
	PaymentID  flexID `json:"payment_id"`
	InvoiceURL string `json:"invoice_url"`
	PayAddress string `json:"pay_address"`
}

// Initiate probes the liveness endpoint first and fails fast with a distinct
// error kind when the API is unreachable; otherwise it creates an invoice
// priced in EUR with the configured crypto settlement currency.
func (p *NOWPaymentsProvider) Initiate(ctx context.Context, req Request) (Initiation, error) {
	if p == nil || p.apiKey == "" {
		return Initiation{}, NewError(KindConfiguration, "nowpayments: api key is not configured")
	}
	if err := p.CheckStatus(ctx); err != nil {
		return Initiation{}, err
	}

	payload := nowInvoiceRequest{
		PriceAmount:      req.AmountEUR,
		PriceCurrency:    "eur",
		PayCurrency:      p.payCurrency,
		OrderID:          req.OrderID,
		OrderDescription: req.Description,
		IPNCallbackURL:   p.origin + "/api/nowpayments/callback",
		SuccessURL:       p.origin + "/payment/success",
		CancelURL:        p.origin + "/payment/cancel",
	}

	var invoice nowInvoiceResponse
	if err := p.doRequest(ctx, http.MethodPost, "/invoice", p.apiKey, payload, &invoice); err != nil {
		return Initiation{}, err
	}

	paymentID := invoice.ID.String()
	if paymentID == "" {
		paymentID = invoice.PaymentID.String()
	}

	redirectURL := strings.TrimSpace(invoice.InvoiceURL)
	if redirectURL == "" {
		// Degrade gracefully when the API omits the hosted URL.
		redirectURL = invoiceURLFallbackPrefix + paymentID
	}

	p.logger(ctx, "payments.nowpayments.invoice.created", map[string]any{
		"orderId":   req.OrderID,
		"paymentId": paymentID,
	})

	return Initiation{
		RedirectURL: redirectURL,
		PaymentID:   paymentID,
	}, nil
}

// CheckStatus probes the liveness endpoint. Any failure, including a body
// that is not {"message":"OK"}, is reported as provider unavailability.
func (p *NOWPaymentsProvider) CheckStatus(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/status", nil)
	if err != nil {
		return WrapError(KindUnavailable, "nowpayments: api is unreachable", err)
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return WrapError(KindUnavailable, "nowpayments: api is unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewError(KindUnavailable, fmt.Sprintf("nowpayments: status probe returned HTTP %d", resp.StatusCode))
	}
	var status struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil || status.Message != "OK" {
		return NewError(KindUnavailable, "nowpayments: api is unreachable")
	}
	return nil
}

// AvailableCurrencies lists tickers accepted by the provider. It is
// best-effort diagnostics: the restricted key is tried first, then the
// privileged key, and finally a hardcoded set rather than failing the caller.
func (p *NOWPaymentsProvider) AvailableCurrencies(ctx context.Context) []string {
	var listing struct {
		Currencies []string `json:"currencies"`
	}
	if err := p.doRequest(ctx, http.MethodGet, "/currencies", p.publicKey, nil, &listing); err != nil {
		p.logger(ctx, "payments.nowpayments.currencies.retry", map[string]any{"error": err.Error()})
		if err := p.doRequest(ctx, http.MethodGet, "/currencies", p.apiKey, nil, &listing); err != nil {
			p.logger(ctx, "payments.nowpayments.currencies.fallback", map[string]any{"error": err.Error()})
			return append([]string(nil), defaultCryptoCurrencies...)
		}
	}
	if len(listing.Currencies) == 0 {
		return append([]string(nil), defaultCryptoCurrencies...)
	}
	return listing.Currencies
}

// MinimumAmount returns the smallest EUR-priced payment accepted for the
// given settlement currency.
func (p *NOWPaymentsProvider) MinimumAmount(ctx context.Context, currency string) (float64, error) {
	path := fmt.Sprintf("/min-amount?currency_from=eur&currency_to=%s", strings.ToLower(strings.TrimSpace(currency)))
	var result struct {
		MinAmount float64 `json:"min_amount"`
	}
	if err := p.doRequest(ctx, http.MethodGet, path, p.apiKey, nil, &result); err != nil {
		return 0, err
	}
	return result.MinAmount, nil
}

// PaymentStatus is the raw provider view of a payment used for diagnostics.
type PaymentStatus struct {
	PaymentID     flexID  `json:"payment_id"`
	PaymentStatus string  `json:"payment_status"`
	PayAddress    string  `json:"pay_address"`
	PriceAmount   float64 `json:"price_amount"`
	PriceCurrency string  `json:"price_currency"`
	PayAmount     float64 `json:"pay_amount"`
	PayCurrency   string  `json:"pay_currency"`
	OrderID       string  `json:"order_id"`
}

// GetPaymentStatus fetches the provider-side state of a payment.
func (p *NOWPaymentsProvider) GetPaymentStatus(ctx context.Context, paymentID string) (PaymentStatus, error) {
	var status PaymentStatus
	if err := p.doRequest(ctx, http.MethodGet, "/payment/"+strings.TrimSpace(paymentID), p.apiKey, nil, &status); err != nil {
		return PaymentStatus{}, err
	}
	return status, nil
}

func (p *NOWPaymentsProvider) doRequest(ctx context.Context, method, path, key string, payload, out any) error {
	if strings.TrimSpace(key) == "" {
		return NewError(KindConfiguration, "nowpayments: api key is not configured")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return WrapError(KindTransport, "nowpayments: encode request", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return WrapError(KindTransport, "nowpayments: build request", err)
	}
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return WrapError(KindTransport, "nowpayments: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewError(KindTransport, nowErrorMessage(resp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(KindTransport, "nowpayments: decode response", err)
	}
	return nil
}

// nowErrorMessage prefers the structured message field of an error body and
// falls back to the raw response text; the body is never silently swallowed.
func nowErrorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(resp.Body)
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("nowpayments: HTTP %d", resp.StatusCode)
	}
	var structured struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil {
		if structured.Message != "" {
			return structured.Message
		}
		if structured.Error != "" {
			return structured.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

// flexID accepts provider identifiers sent either as JSON strings or numbers.
type flexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// String returns the identifier text.
func (f flexID) String() string { return string(f) }
