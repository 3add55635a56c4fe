package services

import (
	"math"
	"testing"
	"time"

	"github.com/nomadpass/checkout-api/internal/domain"
)

func testCatalog() []domain.Service {
	return []domain.Service{
		{ID: "a", Name: "Consultation", PriceEUR: 150, Category: domain.CategoryEssential},
		{ID: "b", Name: "Tax number", PriceEUR: 120, Category: domain.CategoryEssential},
		{ID: "c", Name: "Bank package", PriceEUR: 450, Category: domain.CategoryPremium},
	}
}

func selectServices(catalog []domain.Service, ids ...string) []domain.Service {
	for _, id := range ids {
		for i := range catalog {
			if catalog[i].ID == id {
				catalog[i].Selected = true
			}
		}
	}
	return catalog
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPricingEngineEmptySelection(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	quote := engine.Price(testCatalog(), domain.ContactInfo{})

	if quote.SubtotalEUR != 0 {
		t.Fatalf("expected zero subtotal, got %d", quote.SubtotalEUR)
	}
	if quote.DiscountFraction != 0 || quote.DiscountAmountEUR != 0 || quote.TotalEUR != 0 {
		t.Fatalf("expected zero quote, got %+v", quote)
	}
	if len(quote.AppliedDiscounts) != 0 {
		t.Fatalf("expected no applied discounts, got %v", quote.AppliedDiscounts)
	}
	if len(quote.SelectedServices) != 0 {
		t.Fatalf("expected no selected services, got %v", quote.SelectedServices)
	}
}

func TestPricingEngineSingleService(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	quote := engine.Price(selectServices(testCatalog(), "a"), domain.ContactInfo{})

	if quote.SubtotalEUR != 150 {
		t.Fatalf("expected subtotal 150, got %d", quote.SubtotalEUR)
	}
	if quote.DiscountFraction != 0 {
		t.Fatalf("expected no discount for a single service, got fraction %v", quote.DiscountFraction)
	}
	if !almostEqual(quote.TotalEUR, 150) {
		t.Fatalf("expected total 150, got %v", quote.TotalEUR)
	}
}

func TestPricingEngineFirstTimeDiscount(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	quote := engine.Price(selectServices(testCatalog(), "a", "b"), domain.ContactInfo{})

	if quote.SubtotalEUR != 270 {
		t.Fatalf("expected subtotal 270, got %d", quote.SubtotalEUR)
	}
	if !almostEqual(quote.DiscountFraction, 0.05) {
		t.Fatalf("expected 0.05 fraction, got %v", quote.DiscountFraction)
	}
	if len(quote.AppliedDiscounts) != 1 {
		t.Fatalf("expected one applied discount, got %v", quote.AppliedDiscounts)
	}
	if !almostEqual(quote.DiscountAmountEUR, 270*0.05) {
		t.Fatalf("expected discount %v, got %v", 270*0.05, quote.DiscountAmountEUR)
	}
	if !almostEqual(quote.TotalEUR, 270-270*0.05) {
		t.Fatalf("expected total %v, got %v", 270-270*0.05, quote.TotalEUR)
	}
}

func TestPricingEngineMaxWinsButAllSurfaced(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	// Selecting everything matches bulk (0.15), first-time (0.05) and, with
	// the promo code, promo (0.10).
	catalog := selectServices(testCatalog(), "a", "b", "c")
	quote := engine.Price(catalog, domain.ContactInfo{PromoCode: "digital2024"})

	if !almostEqual(quote.DiscountFraction, 0.15) {
		t.Fatalf("expected max fraction 0.15, got %v", quote.DiscountFraction)
	}
	if len(quote.AppliedDiscounts) != 3 {
		t.Fatalf("expected all three matching descriptions, got %v", quote.AppliedDiscounts)
	}
	subtotal := float64(quote.SubtotalEUR)
	if !almostEqual(quote.DiscountAmountEUR, subtotal*0.15) {
		t.Fatalf("discount amount mismatch: got %v want %v", quote.DiscountAmountEUR, subtotal*0.15)
	}
	if !almostEqual(quote.TotalEUR, subtotal-quote.DiscountAmountEUR) {
		t.Fatalf("total mismatch: got %v want %v", quote.TotalEUR, subtotal-quote.DiscountAmountEUR)
	}
}

func TestPricingEnginePromoCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		fraction float64
	}{
		{name: "exact", code: "DIGITAL2024", fraction: 0.10},
		{name: "lowercase", code: "digital2024", fraction: 0.10},
		{name: "padded", code: "  Digital2024  ", fraction: 0.10},
		{name: "wrong", code: "NOMAD2024", fraction: 0},
		{name: "empty", code: "", fraction: 0},
	}

	engine := NewPricingEngine(PricingEngineDeps{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quote := engine.Price(selectServices(testCatalog(), "a"), domain.ContactInfo{PromoCode: tc.code})
			if !almostEqual(quote.DiscountFraction, tc.fraction) {
				t.Fatalf("expected fraction %v, got %v", tc.fraction, quote.DiscountFraction)
			}
		})
	}
}

func TestPricingEngineIgnoresInvalidRuleValues(t *testing.T) {
	rules := []domain.DiscountRule{
		{Type: domain.DiscountFirstTime, Value: 0, Description: "zero", MinSelected: 1},
		{Type: domain.DiscountFirstTime, Value: 1.5, Description: "above one", MinSelected: 1},
		{Type: domain.DiscountFirstTime, Value: -0.1, Description: "negative", MinSelected: 1},
	}
	engine := NewPricingEngine(PricingEngineDeps{Rules: rules})

	quote := engine.Price(selectServices(testCatalog(), "a", "b"), domain.ContactInfo{})
	if quote.DiscountFraction != 0 || len(quote.AppliedDiscounts) != 0 {
		t.Fatalf("expected invalid rules to be skipped, got %+v", quote)
	}
}

func TestPricingEngineSeasonalWindow(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		startsAt string
		endsAt   string
		matches  bool
	}{
		{name: "inside window", startsAt: "2024-07-01T00:00:00Z", endsAt: "2024-07-31T23:59:59Z", matches: true},
		{name: "before window", startsAt: "2024-08-01T00:00:00Z", endsAt: "2024-08-31T23:59:59Z", matches: false},
		{name: "after window", startsAt: "2024-06-01T00:00:00Z", endsAt: "2024-06-30T23:59:59Z", matches: false},
		{name: "open start", startsAt: "", endsAt: "2024-07-31T23:59:59Z", matches: true},
		{name: "open end", startsAt: "2024-07-01T00:00:00Z", endsAt: "", matches: true},
		{name: "no bounds", startsAt: "", endsAt: "", matches: false},
		{name: "bad timestamp", startsAt: "not-a-date", endsAt: "", matches: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rules := []domain.DiscountRule{{
				Type:        domain.DiscountSeasonal,
				Value:       0.2,
				Description: "seasonal",
				StartsAt:    tc.startsAt,
				EndsAt:      tc.endsAt,
			}}
			engine := NewPricingEngine(PricingEngineDeps{
				Rules: rules,
				Now:   func() time.Time { return now },
			})

			quote := engine.Price(selectServices(testCatalog(), "a"), domain.ContactInfo{})
			matched := quote.DiscountFraction > 0
			if matched != tc.matches {
				t.Fatalf("expected matches=%v, got fraction %v", tc.matches, quote.DiscountFraction)
			}
		})
	}
}

func TestPricingEngineBulkRequiresEverySelection(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	quote := engine.Price(selectServices(testCatalog(), "a", "b"), domain.ContactInfo{})
	for _, desc := range quote.AppliedDiscounts {
		if desc == "15% off when ordering every service" {
			t.Fatalf("bulk discount applied without a full selection: %v", quote.AppliedDiscounts)
		}
	}
}
