package domain

import "strings"

// Category groups services for presentation purposes.
type Category string

const (
	// CategoryEssential marks services most customers start with.
	CategoryEssential Category = "essential"
	// CategoryAdditional marks optional companion services.
	CategoryAdditional Category = "additional"
	// CategoryPremium marks high-touch services.
	CategoryPremium Category = "premium"
)

// Service is an immutable catalog entry. The Selected flag is per-session
// state owned by the caller and passed into the pricing engine by value.
type Service struct {
	ID          string
	Name        string
	Description string
	// PriceEUR is the catalog price in whole euros.
	PriceEUR int64
	Category Category
	Selected bool
}

// ContactInfo carries the raw contact form fields. Values are validated
// before checkout may advance; the pricing engine matches the promo code
// against the raw field on every evaluation.
type ContactInfo struct {
	Name      string
	Email     string
	Phone     string
	PromoCode string
}

// Quotation is an immutable priced snapshot of a selection after discount
// evaluation. It is recomputed from scratch on every selection or contact
// change and never patched incrementally.
type Quotation struct {
	SelectedServices []Service
	// SubtotalEUR is the sum of selected catalog prices in whole euros.
	SubtotalEUR int64
	// DiscountFraction is the effective discount in [0,1). Matching rules do
	// not stack; the maximum value among matches applies.
	DiscountFraction float64
	// DiscountAmountEUR equals SubtotalEUR * DiscountFraction with no
	// currency rounding. Rounding is deferred to provider boundaries.
	DiscountAmountEUR float64
	// TotalEUR equals SubtotalEUR - DiscountAmountEUR.
	TotalEUR float64
	// AppliedDiscounts lists the descriptions of every matching rule, in
	// rule-configuration order, even though only the best value applies.
	AppliedDiscounts []string
}

// DiscountType enumerates the supported discount rule kinds.
type DiscountType string

const (
	// DiscountBulk applies when every catalog service is selected.
	DiscountBulk DiscountType = "bulk"
	// DiscountPromo applies when the contact supplied a matching promo code.
	DiscountPromo DiscountType = "promo"
	// DiscountFirstTime applies when at least two services are selected.
	DiscountFirstTime DiscountType = "first_time"
	// DiscountSeasonal applies inside a configured time window.
	DiscountSeasonal DiscountType = "seasonal"
)

// DiscountRule is a data-describable rule evaluated by the pricing engine.
// Rules are static configuration, never persisted state.
type DiscountRule struct {
	Type        DiscountType
	Value       float64
	Description string
	// Code is consulted for promo rules only; matching is case-insensitive.
	Code string
	// MinSelected is consulted for first_time rules only.
	MinSelected int
	// StartsAt/EndsAt bound seasonal rules; RFC 3339 timestamps. Empty
	// bounds leave that side of the window open.
	StartsAt string
	EndsAt   string
}

// CheckoutStep enumerates the checkout flow states.
type CheckoutStep string

const (
	// StepSelection is the initial service-picking step.
	StepSelection CheckoutStep = "selection"
	// StepContact captures customer contact data.
	StepContact CheckoutStep = "contact"
	// StepPayment offers the payment methods.
	StepPayment CheckoutStep = "payment"
)

// SelectedCount returns the number of selected services in the catalog copy.
func SelectedCount(catalog []Service) int {
	count := 0
	for _, svc := range catalog {
		if svc.Selected {
			count++
		}
	}
	return count
}

// SelectedServices returns the selected entries in catalog order.
func SelectedServices(catalog []Service) []Service {
	out := make([]Service, 0, len(catalog))
	for _, svc := range catalog {
		if svc.Selected {
			out = append(out, svc)
		}
	}
	return out
}

// NormalizePromoCode trims and upper-cases a raw promo code for comparison.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
