package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validation helpers are pure: they return nil when the value is
// acceptable and a ValidationError otherwise. Orchestrators run them
// before the first write and stop at the first failure.

func Required(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return Invalid(field, "is required")
	}
	return nil
}

func Positive(field string, d decimal.Decimal) *ValidationError {
	if !d.IsPositive() {
		return Invalid(field, "must be greater than zero")
	}
	return nil
}

func NonNegative(field string, d decimal.Decimal) *ValidationError {
	if d.IsNegative() {
		return Invalid(field, "must not be negative")
	}
	return nil
}

func RequiredID(field string, id int64) *ValidationError {
	if id <= 0 {
		return Invalid(field, "is required")
	}
	return nil
}

// DateNotInFuture rejects a zero date and any calendar day after now.
func DateNotInFuture(field string, date, now time.Time) *ValidationError {
	if date.IsZero() {
		return Invalid(field, "is required")
	}
	if DateOnly(date).After(DateOnly(now)) {
		return Invalid(field, "must not be in the future")
	}
	return nil
}

// DateOnly truncates t to its calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// First returns the first non-nil result.
func First(checks ...*ValidationError) *ValidationError {
	for _, c := range checks {
		if c != nil {
			return c
		}
	}
	return nil
}
