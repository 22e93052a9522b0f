package crawler

import (
	"strings"
	"unicode/utf8"
)

// NormalizeQuery trims q and rejects it when shorter than MinQueryLength.
func NormalizeQuery(q string) (string, error) {
	trimmed := strings.TrimSpace(q)
	if utf8.RuneCountInString(trimmed) < MinQueryLength {
		return "", &ValidationError{
			Query:  q,
			Reason: "party name must have at least 3 characters",
		}
	}
	return trimmed, nil
}

// Slug derives the deterministic export name component for a query.
func Slug(q string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(q)), " ", "_")
}
