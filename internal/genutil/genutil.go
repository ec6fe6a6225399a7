// Package genutil holds small stateless helpers used by page objects and
// scenarios: random indices, pattern escaping and number parsing.
package genutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/ahrdadan/pagecheck/internal/errs"
)

// RandomInt returns a uniformly distributed integer in [0, max].
func RandomInt(max int) (int, error) {
	return RandomIntBetween(0, max)
}

// RandomIntBetween returns a uniformly distributed integer in [min, max],
// both ends inclusive.
func RandomIntBetween(min, max int) (int, error) {
	if min > max {
		return 0, errs.New(errs.InvalidArgument, fmt.Sprintf("min (%d) should not be greater than max (%d)", min, max))
	}
	span := uint64(max) - uint64(min)
	if span == math.MaxUint64 {
		return int(rand.Uint64()), nil
	}
	return int(uint64(min) + rand.Uint64N(span+1)), nil
}

// EscapeForPattern prefixes every regular expression metacharacter
// (. * + ? ^ $ { } ( ) | [ ] \) with a backslash. It is not idempotent:
// escaping an escaped string escapes the backslashes again.
func EscapeForPattern(text string) string {
	return regexp.QuoteMeta(text)
}

// ParseInt parses a base 10 integer.
func ParseInt(value string) (int, error) {
	return ParseIntRadix(value, 10)
}

// ParseIntRadix parses value as an integer in the given radix (2-36).
// Surrounding whitespace is ignored and base 16 accepts a 0x prefix. Base 10
// also accepts a plain decimal fraction such as "3.7", which is truncated
// toward zero; exponent forms are rejected.
func ParseIntRadix(value string, radix int) (int, error) {
	if radix < 2 || radix > 36 {
		return 0, errs.New(errs.InvalidArgument, fmt.Sprintf("radix %d out of range [2, 36]", radix))
	}

	s := strings.TrimSpace(value)
	if s == "" {
		return 0, errs.New(errs.InvalidArgument, "the provided string is not a valid number")
	}

	if radix == 16 {
		s = trimHexPrefix(s)
	}

	n, err := strconv.ParseInt(s, radix, 0)
	if err == nil {
		return int(n), nil
	}

	if radix == 10 && decimalFraction.MatchString(s) {
		whole, _, _ := strings.Cut(s, ".")
		if n, err = strconv.ParseInt(whole, 10, 0); err == nil {
			return int(n), nil
		}
	}

	return 0, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("%q is not a valid base %d number", value, radix), err)
}

var decimalFraction = regexp.MustCompile(`^[+-]?[0-9]+\.[0-9]*$`)

func trimHexPrefix(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return sign + s
}

// IsValidNumber reports whether value has a numeric Go type and is not NaN.
// Strings and other types are never coerced.
func IsValidNumber(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr:
		return true
	case float32:
		return !math.IsNaN(float64(v))
	case float64:
		return !math.IsNaN(v)
	default:
		return false
	}
}
