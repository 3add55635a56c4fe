package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nomadpass/checkout-api/internal/domain"
)

// Route binds a UI-level payment method id to exactly one provider and
// settlement currency.
type Route struct {
	Provider Provider
	Currency Currency
}

// Dispatcher resolves a payment method to a single provider, builds the
// request, and normalises the provider outcome. Exactly one provider call per
// dispatch; there is no automatic fallback to a different provider.
type Dispatcher struct {
	routes    map[string]Route
	converter AmountConverter
	now       func() time.Time
	entropy   io.Reader
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// DispatcherOption configures optional behaviour when building a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the time source used for order identifiers.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithEntropy overrides the randomness source for order id suffixes.
func WithEntropy(r io.Reader) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.entropy = r
		}
	}
}

// WithLogger attaches a structured event logger.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a Dispatcher over the supplied method routes.
func NewDispatcher(routes map[string]Route, converter AmountConverter, opts ...DispatcherOption) (*Dispatcher, error) {
	if len(routes) == 0 {
		return nil, errors.New("payments: at least one route is required")
	}
	if converter == nil {
		return nil, errors.New("payments: amount converter is required")
	}
	copyMap := make(map[string]Route, len(routes))
	for method, route := range routes {
		key := strings.TrimSpace(strings.ToLower(method))
		if key == "" || route.Provider == nil {
			return nil, fmt.Errorf("payments: invalid route registration for method %q", method)
		}
		copyMap[key] = route
	}

	d := &Dispatcher{
		routes:    copyMap,
		converter: converter,
		now:       time.Now,
		logger:    func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.entropy == nil {
		d.entropy = ulid.Monotonic(rand.New(rand.NewSource(d.now().UnixNano())), 0)
	}
	return d, nil
}

// Methods returns the registered method ids with their settlement currencies.
func (d *Dispatcher) Methods() map[string]Currency {
	out := make(map[string]Currency, len(d.routes))
	for method, route := range d.routes {
		out[method] = route.Currency
	}
	return out
}

// Dispatch prices nothing itself: callers recompute the quotation from
// current state immediately before dispatching, so a stale quotation can
// never reach a provider.
func (d *Dispatcher) Dispatch(ctx context.Context, quotation domain.Quotation, contact domain.ContactInfo, methodID string) Result {
	route, ok := d.routes[strings.TrimSpace(strings.ToLower(methodID))]
	if !ok {
		return failureResult(NewError(KindValidation, fmt.Sprintf("unsupported payment method %q", methodID)))
	}

	settlement := d.converter.Convert(quotation.TotalEUR, route.Currency)

	req := Request{
		AmountEUR:        quotation.TotalEUR,
		SettlementAmount: settlement.Amount,
		Settlement:       route.Currency,
		OrderID:          d.newOrderID(),
		Description:      orderDescription(quotation),
		Contact:          contact,
	}

	d.logger(ctx, "payments.dispatch.started", map[string]any{
		"method":   methodID,
		"provider": route.Provider.Name(),
		"orderId":  req.OrderID,
		"currency": string(route.Currency),
	})

	initiation, err := route.Provider.Initiate(ctx, req)
	if err != nil {
		d.logger(ctx, "payments.dispatch.failed", map[string]any{
			"method":   methodID,
			"provider": route.Provider.Name(),
			"orderId":  req.OrderID,
			"error":    err.Error(),
		})
		return failureResult(err)
	}

	d.logger(ctx, "payments.dispatch.redirect", map[string]any{
		"method":    methodID,
		"provider":  route.Provider.Name(),
		"orderId":   req.OrderID,
		"paymentId": initiation.PaymentID,
	})

	return Result{
		Outcome:           OutcomeRedirect,
		RedirectURL:       initiation.RedirectURL,
		ProviderPaymentID: initiation.PaymentID,
	}
}

// newOrderID builds `order_<timestamp>_<suffix>` identifiers. Timestamp plus
// random suffix is a correlation key, not a security token.
func (d *Dispatcher) newOrderID() string {
	now := d.now().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), d.entropy).String()
	suffix := strings.ToLower(id[len(id)-8:])
	return fmt.Sprintf("order_%d_%s", now.UnixMilli(), suffix)
}

func orderDescription(quotation domain.Quotation) string {
	names := make([]string, 0, len(quotation.SelectedServices))
	for _, svc := range quotation.SelectedServices {
		names = append(names, svc.Name)
	}
	return "Digital nomad visa services: " + strings.Join(names, ", ")
}

func failureResult(err error) Result {
	var perr *Error
	if errors.As(err, &perr) {
		return Result{
			Outcome:      OutcomeFailure,
			ErrorKind:    perr.Kind,
			ErrorMessage: perr.Message,
		}
	}
	return Result{
		Outcome:      OutcomeFailure,
		ErrorKind:    KindTransport,
		ErrorMessage: err.Error(),
	}
}
