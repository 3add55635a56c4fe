package payments

import (
	"context"
	"fmt"

	"github.com/nomadpass/checkout-api/internal/domain"
)

// Currency enumerates the supported settlement currencies. Catalog pricing is
// EUR-denominated; settlement is the currency the customer actually pays in.
type Currency string

const (
	// CurrencyEUR settles in euros via hosted card checkout.
	CurrencyEUR Currency = "EUR"
	// CurrencyRUB settles in roubles via a signed redirect URL.
	CurrencyRUB Currency = "RUB"
	// CurrencyUSDT settles in USDT via a hosted crypto invoice.
	CurrencyUSDT Currency = "USDT"
)

// ErrorKind classifies provider failures for uniform display handling.
type ErrorKind string

const (
	// KindValidation marks caller input problems recovered locally.
	KindValidation ErrorKind = "validation"
	// KindConfiguration marks missing merchant identity or API keys. Fatal
	// for the attempt only, never for the process.
	KindConfiguration ErrorKind = "configuration"
	// KindTransport marks non-2xx responses and unreachable hosts.
	KindTransport ErrorKind = "transport"
	// KindUnavailable marks a failed liveness probe, short-circuiting before
	// payment creation is attempted.
	KindUnavailable ErrorKind = "provider_unavailable"
)

// Error is the typed failure surface shared by all providers. The dispatcher
// inspects it with errors.As and converts it into a PaymentResult.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payments: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("payments: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a typed provider error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError constructs a typed provider error wrapping a cause.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Request carries everything a provider needs to initiate one payment
// attempt. It exists only for the duration of a single dispatch call and is
// never retried automatically.
type Request struct {
	// AmountEUR is the EUR-denominated total with no currency rounding.
	AmountEUR float64
	// SettlementAmount is the amount in the settlement currency, already
	// converted and rounded to the currency's display precision by the
	// dispatcher. Advisory for providers that charge in EUR.
	SettlementAmount float64
	Settlement       Currency
	// OrderID is an opaque correlation key unique per attempt, generated at
	// the dispatch boundary so identifiers are comparable across providers.
	OrderID     string
	Description string
	Contact     domain.ContactInfo
}

// Initiation is a provider-native successful payment initiation.
type Initiation struct {
	// RedirectURL is the hosted page the caller should navigate to.
	RedirectURL string
	// PaymentID is the provider-assigned identifier when one exists.
	PaymentID string
}

// Provider turns a payment request into a provider-native initiation. All
// failures must surface as *Error so the dispatcher can normalise them;
// implementations perform network I/O and must honour ctx.
type Provider interface {
	Name() string
	Initiate(ctx context.Context, req Request) (Initiation, error)
}

// Outcome enumerates the normalised dispatch results.
type Outcome string

const (
	// OutcomeRedirect means the caller should navigate to RedirectURL.
	OutcomeRedirect Outcome = "redirect"
	// OutcomeFailure means the attempt failed; the checkout stays on the
	// payment step so the customer can retry explicitly.
	OutcomeFailure Outcome = "failure"
)

// Result is the uniform outcome of one dispatch call.
type Result struct {
	Outcome           Outcome
	RedirectURL       string
	ProviderPaymentID string
	ErrorKind         ErrorKind
	ErrorMessage      string
}

// ConvertedAmount is a settlement-currency amount plus its display precision.
type ConvertedAmount struct {
	Amount float64
	// Precision is the number of fractional digits shown to the customer.
	Precision int
}

// AmountConverter converts an EUR total into a settlement currency using
// static configured rates. Implemented by the services currency converter.
type AmountConverter interface {
	Convert(amountEUR float64, target Currency) ConvertedAmount
}
