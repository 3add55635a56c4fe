package payments

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const stripeProductName = "Digital Nomad services"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider. An empty APIKey is not
// a construction error: it becomes a configuration failure when a payment is
// actually attempted.
type StripeProviderConfig struct {
	APIKey string
	// Origin is the public base URL redirect targets are built from.
	Origin   string
	Backends *stripe.Backends
	Logger   StripeLogger
	// Sessions overrides the checkout session API, used by tests.
	Sessions stripeSessionAPI
}

// StripeProvider creates hosted checkout sessions settling in EUR.
type StripeProvider struct {
	sessions stripeSessionAPI
	origin   string
	logger   StripeLogger
}

// SessionSnapshot is the read-side view of a checkout session used by the
// post-payment landing page.
type SessionSnapshot struct {
	ID string
	// AmountTotal is in minor units (euro cents).
	AmountTotal   int64
	Currency      string
	OrderID       string
	CustomerEmail string
	Status        string
}

// NewStripeProvider constructs a Stripe provider.
func NewStripeProvider(cfg StripeProviderConfig) *StripeProvider {
	sessions := cfg.Sessions
	if sessions == nil {
		if apiKey := strings.TrimSpace(cfg.APIKey); apiKey != "" {
			sc := client.New(apiKey, cfg.Backends)
			sessions = sc.CheckoutSessions
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		sessions: sessions,
		origin:   strings.TrimRight(strings.TrimSpace(cfg.Origin), "/"),
		logger:   logger,
	}
}

// Name identifies the provider in dispatch logs and results.
func (p *StripeProvider) Name() string { return "stripe" }

// Initiate creates a hosted checkout session carrying a single aggregated
// line item; the order id travels in metadata for later reconciliation.
func (p *StripeProvider) Initiate(ctx context.Context, req Request) (Initiation, error) {
	if p == nil || p.sessions == nil {
		return Initiation{}, NewError(KindConfiguration, "stripe: api key is not configured")
	}

	amountCents := int64(math.Round(req.AmountEUR * 100))

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.origin + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(p.origin + "/payment/cancel"),
		PaymentMethodTypes: []*string{
			stripe.String("card"),
		},
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("eur"),
					UnitAmount: stripe.Int64(amountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(stripeProductName),
						Description: stripe.String(req.Description),
					},
				},
			},
		},
		Metadata: map[string]string{
			"orderId": req.OrderID,
		},
	}
	params.Context = ctx
	if email := strings.TrimSpace(req.Contact.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return Initiation{}, WrapError(KindTransport, stripeErrorMessage(err), err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"orderId":   req.OrderID,
		"amount":    amountCents,
	})

	return Initiation{
		RedirectURL: session.URL,
		PaymentID:   session.ID,
	}, nil
}

// RetrieveSession fetches a checkout session snapshot for confirmation pages.
func (p *StripeProvider) RetrieveSession(ctx context.Context, sessionID string) (SessionSnapshot, error) {
	if p == nil || p.sessions == nil {
		return SessionSnapshot{}, NewError(KindConfiguration, "stripe: api key is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionSnapshot{}, NewError(KindValidation, "stripe: session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := p.sessions.Get(sessionID, params)
	if err != nil {
		return SessionSnapshot{}, WrapError(KindTransport, stripeErrorMessage(err), err)
	}

	snapshot := SessionSnapshot{
		ID:          session.ID,
		AmountTotal: session.AmountTotal,
		Currency:    strings.ToUpper(string(session.Currency)),
		Status:      string(session.Status),
	}
	if session.Metadata != nil {
		snapshot.OrderID = session.Metadata["orderId"]
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		snapshot.CustomerEmail = session.CustomerDetails.Email
	} else {
		snapshot.CustomerEmail = session.CustomerEmail
	}
	return snapshot, nil
}

// stripeErrorMessage extracts the nested error message from Stripe API
// failures, falling back to the raw error text rather than swallowing it.
func stripeErrorMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && strings.TrimSpace(stripeErr.Msg) != "" {
		return stripeErr.Msg
	}
	return err.Error()
}
