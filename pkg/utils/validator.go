package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	identifierRegex   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@:\-]{0,127}$`)
	controlCharsRegex = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateIdentifier validates a user, request or item code identifier
func ValidateIdentifier(field, value string) error {
	if !identifierRegex.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// ValidateQuantity validates a requested or allocated quantity
func ValidateQuantity(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %d", qty)
	}
	return nil
}

// ValidateUnitPrice validates a line item unit price
func ValidateUnitPrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("unit price cannot be negative: %s", price.String())
	}
	return nil
}

// RequireText rejects empty or whitespace-only free text
func RequireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlCharsRegex.ReplaceAllString(s, ""))
}
