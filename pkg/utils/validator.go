package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// MaxBudget is the largest amount accepted for a request budget
var MaxBudget = decimal.NewFromInt(100_000_000)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateBudget validates a budget amount. Zero is allowed.
func ValidateBudget(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("budget must not be negative: %s", amount.StringFixed(2))
	}

	if amount.GreaterThan(MaxBudget) {
		return fmt.Errorf("budget exceeds maximum limit: %s", amount.StringFixed(2))
	}

	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("budget has more than two decimal places: %s", amount.String())
	}

	return nil
}

// SanitizeString strips control characters (keeping tab and newlines) and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
