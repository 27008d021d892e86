// Package phone normalizes North American phone numbers as the portal's
// customer search expects them.
package phone

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalid is returned for numbers that do not reduce to ten digits.
var ErrInvalid = errors.New("invalid phone number")

// Normalize strips formatting, drops a leading country code 1 from an
// eleven digit number, and requires exactly ten digits.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", fmt.Errorf("%w: %q has %d digits", ErrInvalid, raw, len(digits))
	}
	return digits, nil
}

// Format renders ten digits as (514) 555-0100 for logs and messages.
func Format(digits string) string {
	if len(digits) != 10 {
		return digits
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
}
