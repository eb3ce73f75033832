// Package validation provides centralized input validation for binwatch.
package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for identifiers.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowColons  bool
}

// BinIDRules returns the rules for bin ids. Bin ids are interpolated into
// MQTT topics and file names, so separators and wildcards are rejected.
func BinIDRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		AllowColons:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if r == '+' || r == '#' {
			return fmt.Errorf("name cannot contain topic wildcard '%c' at position %d", r, i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case ':':
		return rules.AllowColons
	}
	return false
}

// ValidateBinID validates a bin id with BinIDRules.
func ValidateBinID(id string) error {
	return ValidateName(id, BinIDRules())
}

// =============================================================================
// Hour values
// =============================================================================

// ValidateHours checks an hour count taken from a request or command line.
// The value must be finite, non-negative and at most max.
func ValidateHours(h, max float64) error {
	switch {
	case math.IsNaN(h) || math.IsInf(h, 0):
		return fmt.Errorf("must be a finite number")
	case h < 0:
		return fmt.Errorf("must not be negative")
	case h > max:
		return fmt.Errorf("must not exceed %g hours", max)
	}
	return nil
}

// =============================================================================
// SQL helpers
// =============================================================================

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
