package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nomadpass/checkout-api/internal/domain"
	"github.com/nomadpass/checkout-api/internal/payments"
)

var (
	// ErrEmptySelection blocks advancing past the selection step and
	// dispatching payments without any chosen service.
	ErrEmptySelection = errors.New("checkout: select at least one service")
	// ErrUnknownService is returned when toggling a service id that is not
	// in the catalog.
	ErrUnknownService = errors.New("checkout: unknown service")
	// ErrPaymentInProgress rejects re-entrant dispatch while an attempt is
	// outstanding, preventing double-submission.
	ErrPaymentInProgress = errors.New("checkout: a payment attempt is already in progress")
	// ErrNotOnPaymentStep is returned when dispatch is requested outside the
	// payment step.
	ErrNotOnPaymentStep = errors.New("checkout: not on the payment step")
)

// ContactValidationError carries per-field messages when the contact step
// gate rejects a transition.
type ContactValidationError struct {
	Fields map[string]string
}

// Error implements the error interface.
func (e *ContactValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)
	return fmt.Sprintf("checkout: invalid contact fields [%s]", strings.Join(names, ", "))
}

// paymentDispatcher abstracts payments.Dispatcher for easier testing.
type paymentDispatcher interface {
	Dispatch(ctx context.Context, quotation domain.Quotation, contact domain.ContactInfo, methodID string) payments.Result
}

// CheckoutFlowDeps wires the dependencies required by a checkout flow.
type CheckoutFlowDeps struct {
	Catalog    []domain.Service
	Engine     *PricingEngine
	Dispatcher paymentDispatcher
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// CheckoutFlow is the per-session state machine governing
// selection -> contact -> payment. Backward transitions are always permitted
// and never clear data; completion resets everything atomically. A failed
// payment leaves the flow on the payment step so the customer can retry.
type CheckoutFlow struct {
	mu            sync.Mutex
	catalog       []domain.Service
	contact       domain.ContactInfo
	termsAccepted bool
	step          domain.CheckoutStep
	processing    bool

	engine     *PricingEngine
	dispatcher paymentDispatcher
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutFlow constructs a flow starting at the selection step.
func NewCheckoutFlow(deps CheckoutFlowDeps) (*CheckoutFlow, error) {
	if deps.Engine == nil {
		return nil, errors.New("checkout flow: pricing engine is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("checkout flow: payment dispatcher is required")
	}
	catalog := deps.Catalog
	if len(catalog) == 0 {
		catalog = domain.DefaultCatalog()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CheckoutFlow{
		catalog:    cloneCatalog(catalog),
		step:       domain.StepSelection,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}, nil
}

// Step returns the current checkout step.
func (f *CheckoutFlow) Step() domain.CheckoutStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Services returns a copy of the catalog with current selection flags.
func (f *CheckoutFlow) Services() []domain.Service {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneCatalog(f.catalog)
}

// Contact returns the current contact record.
func (f *CheckoutFlow) Contact() domain.ContactInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contact
}

// ToggleService flips the selection flag of one catalog entry.
func (f *CheckoutFlow) ToggleService(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.catalog {
		if f.catalog[i].ID == id {
			f.catalog[i].Selected = !f.catalog[i].Selected
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownService, id)
}

// SetContact replaces the contact record. Validation happens at the step
// gate, not here, so partially filled forms can be stored freely.
func (f *CheckoutFlow) SetContact(contact domain.ContactInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contact = contact
}

// SetTermsAccepted records the acceptance-of-terms flag.
func (f *CheckoutFlow) SetTermsAccepted(accepted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.termsAccepted = accepted
}

// TermsAccepted reports the acceptance-of-terms flag.
func (f *CheckoutFlow) TermsAccepted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.termsAccepted
}

// Quote recomputes the quotation from scratch from the current selection and
// contact state. It is never cached or incrementally patched.
func (f *CheckoutFlow) Quote() domain.Quotation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engine.Price(f.catalog, f.contact)
}

// Advance moves the flow forward one step, enforcing the step gates:
// selection requires a non-empty selection, contact requires valid fields.
func (f *CheckoutFlow) Advance() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.step {
	case domain.StepSelection:
		if domain.SelectedCount(f.catalog) == 0 {
			return ErrEmptySelection
		}
		f.step = domain.StepContact
		return nil
	case domain.StepContact:
		if fields := ValidateContact(f.contact); len(fields) > 0 {
			return &ContactValidationError{Fields: fields}
		}
		f.step = domain.StepPayment
		return nil
	default:
		return errors.New("checkout: the payment step completes only through a successful payment")
	}
}

// Back moves the flow one step backward. It is always permitted and never
// clears any data; on the selection step it is a no-op.
func (f *CheckoutFlow) Back() {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.step {
	case domain.StepContact:
		f.step = domain.StepSelection
	case domain.StepPayment:
		f.step = domain.StepContact
	}
}

// Pay recomputes the quotation synchronously from current state and
// dispatches exactly one payment attempt. While an attempt is outstanding
// further calls are rejected with ErrPaymentInProgress. A redirect outcome
// completes the flow and resets it atomically; a failure leaves it on the
// payment step.
func (f *CheckoutFlow) Pay(ctx context.Context, methodID string) (payments.Result, error) {
	f.mu.Lock()
	if f.step != domain.StepPayment {
		f.mu.Unlock()
		return payments.Result{}, ErrNotOnPaymentStep
	}
	if f.processing {
		f.mu.Unlock()
		return payments.Result{}, ErrPaymentInProgress
	}
	if domain.SelectedCount(f.catalog) == 0 {
		f.mu.Unlock()
		return payments.Result{}, ErrEmptySelection
	}
	f.processing = true
	quotation := f.engine.Price(f.catalog, f.contact)
	contact := f.contact
	f.mu.Unlock()

	result := f.dispatcher.Dispatch(ctx, quotation, contact, methodID)

	f.mu.Lock()
	f.processing = false
	if result.Outcome == payments.OutcomeRedirect {
		f.resetLocked()
		f.logger(ctx, "checkout.completed", map[string]any{
			"method":    methodID,
			"paymentId": result.ProviderPaymentID,
		})
	} else {
		f.logger(ctx, "checkout.payment_failed", map[string]any{
			"method": methodID,
			"kind":   string(result.ErrorKind),
			"error":  result.ErrorMessage,
		})
	}
	f.mu.Unlock()

	return result, nil
}

// Reset clears selections, contact fields, and the terms flag, returning the
// flow to the selection step.
func (f *CheckoutFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

func (f *CheckoutFlow) resetLocked() {
	for i := range f.catalog {
		f.catalog[i].Selected = false
	}
	f.contact = domain.ContactInfo{}
	f.termsAccepted = false
	f.step = domain.StepSelection
}

func cloneCatalog(catalog []domain.Service) []domain.Service {
	out := make([]domain.Service, len(catalog))
	copy(out, catalog)
	return out
}
