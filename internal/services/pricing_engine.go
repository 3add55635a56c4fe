package services

import (
	"time"

	"github.com/nomadpass/checkout-api/internal/domain"
)

// PricingEngine applies the configured discount rules to a selection plus
// contact state and produces an immutable quotation. It is a total function
// with no side effects: empty selections price to zero and gating them lives
// in the checkout flow, not here.
type PricingEngine struct {
	rules []domain.DiscountRule
	now   func() time.Time
}

// PricingEngineDeps configures the engine. Zero values fall back to the
// default rule set and wall clock.
type PricingEngineDeps struct {
	Rules []domain.DiscountRule
	Now   func() time.Time
}

// NewPricingEngine constructs a PricingEngine.
func NewPricingEngine(deps PricingEngineDeps) *PricingEngine {
	rules := deps.Rules
	if len(rules) == 0 {
		rules = domain.DefaultDiscountRules()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &PricingEngine{
		rules: rules,
		now:   func() time.Time { return now().UTC() },
	}
}

// Price evaluates every configured rule against the full catalog (with its
// selection flags) and the contact record. Matching rules do not stack: the
// effective discount fraction is the maximum value among matches, while all
// matching descriptions are surfaced for transparency.
func (e *PricingEngine) Price(catalog []domain.Service, contact domain.ContactInfo) domain.Quotation {
	selected := domain.SelectedServices(catalog)

	var subtotal int64
	for _, svc := range selected {
		subtotal += svc.PriceEUR
	}

	fraction := 0.0
	var applied []string
	for _, rule := range e.rules {
		if rule.Value <= 0 || rule.Value > 1 {
			continue
		}
		if !e.ruleMatches(rule, catalog, contact) {
			continue
		}
		if rule.Value > fraction {
			fraction = rule.Value
		}
		applied = append(applied, rule.Description)
	}

	discountAmount := float64(subtotal) * fraction
	return domain.Quotation{
		SelectedServices:  selected,
		SubtotalEUR:       subtotal,
		DiscountFraction:  fraction,
		DiscountAmountEUR: discountAmount,
		TotalEUR:          float64(subtotal) - discountAmount,
		AppliedDiscounts:  applied,
	}
}

func (e *PricingEngine) ruleMatches(rule domain.DiscountRule, catalog []domain.Service, contact domain.ContactInfo) bool {
	switch rule.Type {
	case domain.DiscountBulk:
		if len(catalog) == 0 {
			return false
		}
		for _, svc := range catalog {
			if !svc.Selected {
				return false
			}
		}
		return true
	case domain.DiscountPromo:
		// Promo codes compare case-insensitively after trimming.
		code := domain.NormalizePromoCode(contact.PromoCode)
		return code != "" && code == domain.NormalizePromoCode(rule.Code)
	case domain.DiscountFirstTime:
		min := rule.MinSelected
		if min <= 0 {
			min = 2
		}
		return domain.SelectedCount(catalog) >= min
	case domain.DiscountSeasonal:
		return e.withinWindow(rule.StartsAt, rule.EndsAt)
	default:
		return false
	}
}

func (e *PricingEngine) withinWindow(startsAt, endsAt string) bool {
	now := e.now()
	if startsAt != "" {
		start, err := time.Parse(time.RFC3339, startsAt)
		if err != nil || now.Before(start) {
			return false
		}
	}
	if endsAt != "" {
		end, err := time.Parse(time.RFC3339, endsAt)
		if err != nil || now.After(end) {
			return false
		}
	}
	return startsAt != "" || endsAt != ""
}
