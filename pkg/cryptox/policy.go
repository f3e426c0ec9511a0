package cryptox

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrWeakPassword reports a password that fails the configured strength
// policy. Callers match it with errors.Is.
var ErrWeakPassword = errors.New("password does not meet strength policy")

// Policy is the minimum-strength policy applied before hashing. Both knobs
// come from configuration, not constants.
type Policy struct {
	// MinLength is the minimum number of characters (runes).
	MinLength int

	// MinClasses is the minimum number of distinct character classes
	// (lowercase, uppercase, digit, symbol) that must appear.
	MinClasses int
}

// DefaultPolicy requires 8+ characters drawn from at least two classes.
var DefaultPolicy = Policy{MinLength: 8, MinClasses: 2}

// Check validates password against the policy. The returned error wraps
// ErrWeakPassword with a description safe to show the end user.
func (p Policy) Check(password string) error {
	runes := []rune(password)
	if len(runes) < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, p.MinLength)
	}

	var lower, upper, digit, symbol bool
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	classes := 0
	for _, present := range []bool{lower, upper, digit, symbol} {
		if present {
			classes++
		}
	}

	if classes < p.MinClasses {
		return fmt.Errorf(
			"%w: must mix at least %d of lowercase, uppercase, digits and symbols",
			ErrWeakPassword, p.MinClasses,
		)
	}

	return nil
}
