package core

import "strings"

const CategoryOther = "Other"

// Categories is the fixed enumeration offered to users and to the AI
// categorizer. Order is the display order.
var Categories = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Bills & Utilities",
	"Healthcare",
	"Education",
	"Travel",
	"Personal Care",
	CategoryOther,
}

// IsKnownCategory reports whether name is one of Categories (exact match).
func IsKnownCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// NormalizeCategory maps untrusted text onto the enumeration. Matching is
// case-insensitive and ignores surrounding quotes, punctuation and a leading
// "Category:" label. Anything unrecognised becomes CategoryOther.
func NormalizeCategory(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "category:") {
		s = s[len("category:"):]
	}
	s = strings.Trim(s, " \t\"'`*.!:")
	for _, c := range Categories {
		if strings.EqualFold(c, s) {
			return c
		}
	}
	return CategoryOther
}
