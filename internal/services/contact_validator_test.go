package services

import (
	"testing"

	"github.com/nomadpass/checkout-api/internal/domain"
)

func validContact() domain.ContactInfo {
	return domain.ContactInfo{
		Name:  "Ana Martins",
		Email: "ana@example.com",
		Phone: "+351 912 345 678",
	}
}

func TestValidateContactAcceptsValidInput(t *testing.T) {
	if errs := ValidateContact(validContact()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateContact(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.ContactInfo)
		field   string
		message string
	}{
		{
			name:    "missing name",
			mutate:  func(c *domain.ContactInfo) { c.Name = "" },
			field:   "name",
			message: "name is required",
		},
		{
			name:    "whitespace name",
			mutate:  func(c *domain.ContactInfo) { c.Name = "   " },
			field:   "name",
			message: "name is required",
		},
		{
			name:    "short name",
			mutate:  func(c *domain.ContactInfo) { c.Name = "A" },
			field:   "name",
			message: "name must be at least 2 characters",
		},
		{
			name:    "missing email",
			mutate:  func(c *domain.ContactInfo) { c.Email = "" },
			field:   "email",
			message: "email is required",
		},
		{
			name:    "invalid email",
			mutate:  func(c *domain.ContactInfo) { c.Email = "not-an-email" },
			field:   "email",
			message: "enter a valid email address",
		},
		{
			name:    "email with spaces",
			mutate:  func(c *domain.ContactInfo) { c.Email = "ana martins@example.com" },
			field:   "email",
			message: "enter a valid email address",
		},
		{
			name:    "missing phone",
			mutate:  func(c *domain.ContactInfo) { c.Phone = "" },
			field:   "phone",
			message: "phone is required",
		},
		{
			name:    "short phone",
			mutate:  func(c *domain.ContactInfo) { c.Phone = "12345" },
			field:   "phone",
			message: "enter a valid phone number",
		},
		{
			name:    "phone with letters",
			mutate:  func(c *domain.ContactInfo) { c.Phone = "call me maybe" },
			field:   "phone",
			message: "enter a valid phone number",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			contact := validContact()
			tc.mutate(&contact)
			errs := ValidateContact(contact)
			if len(errs) != 1 {
				t.Fatalf("expected exactly one error, got %v", errs)
			}
			if errs[tc.field] != tc.message {
				t.Fatalf("expected %q on %q, got %v", tc.message, tc.field, errs)
			}
		})
	}
}

func TestValidateContactTwoCharacterName(t *testing.T) {
	contact := validContact()
	contact.Name = "Li"
	if errs := ValidateContact(contact); len(errs) != 0 {
		t.Fatalf("expected two-rune name to pass, got %v", errs)
	}
}

func TestValidateContactIgnoresPromoCode(t *testing.T) {
	contact := validContact()
	contact.PromoCode = "definitely-not-a-real-code"
	if errs := ValidateContact(contact); len(errs) != 0 {
		t.Fatalf("expected promo code to be ignored, got %v", errs)
	}
}

func TestValidateContactReportsAllFields(t *testing.T) {
	errs := ValidateContact(domain.ContactInfo{})
	if len(errs) != 3 {
		t.Fatalf("expected three field errors, got %v", errs)
	}
	for _, field := range []string{"name", "email", "phone"} {
		if errs[field] == "" {
			t.Fatalf("expected an error for %q, got %v", field, errs)
		}
	}
}
