package phone

import "regexp"

// LocalDigits is the length of a normalized local phone number.
const LocalDigits = 9

// CountryCode is stripped during normalization and prepended again when
// formatting numbers for the SMS gateway.
const CountryCode = "995"

var (
	nonDigitRe   = regexp.MustCompile(`\D+`)
	phoneLikeRe  = regexp.MustCompile(`^[0-9+\s\-()]+$`)
	personalIDRe = regexp.MustCompile(`^\d{11}$`)
)

// Normalize reduces a raw phone input to its 9 local digits: strip all
// non-digit characters, strip the country code when the result is longer
// than 9 digits, then keep the last 9. The result is not guaranteed to be
// 9 digits long; callers must check with IsNormalized before using it.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	digits := nonDigitRe.ReplaceAllString(raw, "")

	if len(digits) > LocalDigits && digits[:len(CountryCode)] == CountryCode {
		digits = digits[len(CountryCode):]
	}

	if len(digits) > LocalDigits {
		digits = digits[len(digits)-LocalDigits:]
	}

	return digits
}

// IsNormalized reports whether s is exactly 9 digits.
func IsNormalized(s string) bool {
	if len(s) != LocalDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsPhoneLike reports whether raw looks like a phone number at all:
// digits, plus sign, spaces, dashes and parentheses only.
func IsPhoneLike(raw string) bool {
	return raw != "" && phoneLikeRe.MatchString(raw)
}

// ValidPersonalID reports whether raw is an 11-digit personal ID.
func ValidPersonalID(raw string) bool {
	return personalIDRe.MatchString(raw)
}
