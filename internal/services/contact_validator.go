package services

import (
	"regexp"
	"strings"

	"github.com/nomadpass/checkout-api/internal/domain"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]{10,}$`)
)

// ValidateContact checks the contact form fields and returns per-field error
// messages keyed by field name. An empty map means the contact is valid.
// The promo code is optional and never validated here; the pricing engine
// re-checks it itself.
func ValidateContact(contact domain.ContactInfo) map[string]string {
	errs := make(map[string]string)

	name := strings.TrimSpace(contact.Name)
	if name == "" {
		errs["name"] = "name is required"
	} else if len([]rune(name)) < 2 {
		errs["name"] = "name must be at least 2 characters"
	}

	email := strings.TrimSpace(contact.Email)
	if email == "" {
		errs["email"] = "email is required"
	} else if !emailPattern.MatchString(email) {
		errs["email"] = "enter a valid email address"
	}

	phone := strings.TrimSpace(contact.Phone)
	if phone == "" {
		errs["phone"] = "phone is required"
	} else if !phonePattern.MatchString(phone) {
		errs["phone"] = "enter a valid phone number"
	}

	return errs
}
