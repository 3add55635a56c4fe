package domain

// DefaultCatalog returns the fixed service catalog offered by the checkout
// flow. Entries are returned fresh on every call so callers can mark
// selections without sharing state.
func DefaultCatalog() []Service {
	return []Service{
		{
			ID:          "1",
			Name:        "Individual immigration consultation",
			Description: "One-on-one session with an expert covering any migration or relocation question: case strategy, rental search with document checks, school enrolment and similar requests.",
			PriceEUR:    150,
			Category:    CategoryEssential,
		},
		{
			ID:          "2",
			Name:        "NIF tax number",
			Description: "Obtaining the Portuguese tax number (NIF) required for residents and non-residents operating in Portugal. Covers document submission and follow-up until the NIF is issued.",
			PriceEUR:    120,
			Category:    CategoryEssential,
		},
		{
			ID:          "3",
			Name:        "Consulate appointment booking",
			Description: "Booking the consulate submission slot for any visa programme, including pre-filling the application form and monitoring the booking portal around the clock.",
			PriceEUR:    100,
			Category:    CategoryEssential,
		},
		{
			ID:          "4",
			Name:        "Document check-up",
			Description: "Review of the full document package for completeness and compliance: translations, apostilles, application forms, statements and rental contracts, with a final checklist of fixes.",
			PriceEUR:    250,
			Category:    CategoryEssential,
		},
		{
			ID:          "5",
			Name:        "Sole proprietor registration",
			Description: "Registration with the tax authority as a freelancer or sole proprietor, including choice of the applicable tax regime.",
			PriceEUR:    160,
			Category:    CategoryAdditional,
		},
		{
			ID:          "6",
			Name:        "Bank application package",
			Description: "Preparation of the complete application package for account opening at a Portuguese bank: expert consultation, document templates, translations and guidance through compliance requests.",
			PriceEUR:    450,
			Category:    CategoryPremium,
		},
		{
			ID:          "7",
			Name:        "Bank account opening consultation",
			Description: "Consultation on opening an account with Caixa Geral: which documents to prepare and which branches to approach.",
			PriceEUR:    150,
			Category:    CategoryPremium,
		},
	}
}

// DefaultDiscountRules returns the static discount configuration evaluated by
// the pricing engine. Matching rules do not stack; the maximum wins.
func DefaultDiscountRules() []DiscountRule {
	return []DiscountRule{
		{
			Type:        DiscountBulk,
			Value:       0.15,
			Description: "15% off when ordering every service",
		},
		{
			Type:        DiscountPromo,
			Value:       0.10,
			Description: "10% off with promo code",
			Code:        "DIGITAL2024",
		},
		{
			Type:        DiscountFirstTime,
			Value:       0.05,
			Description: "5% off for new customers",
			MinSelected: 2,
		},
	}
}
