package utils

import (
	"strconv"
	"strings"
)

// OrdinalSuffix returns the English suffix for a 1-based rank
// (1st, 2nd, 3rd, 4th, 11th, 21st, ...).
func OrdinalSuffix(n int) string {
	if n < 0 {
		n = -n
	}
	switch n % 100 {
	case 11, 12, 13:
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// Ordinal formats a 1-based rank with its suffix, e.g. Ordinal(3) == "3rd".
func Ordinal(n int) string {
	return strconv.Itoa(n) + OrdinalSuffix(n)
}

// FormatPhone renders a 10-digit phone number as (206)555-0123. Shorter
// inputs are returned unchanged.
func FormatPhone(phone string) string {
	if len(phone) < 3 {
		return phone
	}
	out := "(" + phone[:3] + ")" + phone[3:]
	if len(out) > 8 {
		out = out[:8] + "-" + out[8:]
	}
	return out
}

// ShortName renders a party's initials for customer-facing lists, e.g.
// "A L" for Ada Lovelace, "A" when no last name is known.
func ShortName(firstName, lastName string) string {
	first := strings.ToUpper(initial(firstName))
	if lastName == "" {
		return first
	}
	return first + " " + strings.ToUpper(initial(lastName))
}

func initial(s string) string {
	if s == "" {
		return ""
	}
	return s[:1]
}
