package sensitive

import (
	"regexp"
	"strings"
)

// Marker prefixes values that match a sensitive pattern.
const Marker = "[SENSITIVE]"

// Pattern is a named sensitive-data regular expression.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// Patterns is the fixed set checked by IsSensitive, in evaluation order.
// All patterns are case-insensitive.
var Patterns = []Pattern{
	{Name: "national_id", Re: regexp.MustCompile(`(?i)\b\d{1,2}\.\d{3}\.\d{3}-[\dk]\b`)},
	{Name: "email", Re: regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)},
	{Name: "card_number", Re: regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
	{Name: "secret_keyword", Re: regexp.MustCompile(`(?i)\b(password|passwd|clave|token|key)`)},
	{Name: "phone", Re: regexp.MustCompile(`\b(\+56|56)?\s?9\s?\d{4}\s?\d{4}\b`)},
}

// IsSensitive reports whether s matches any pattern.
func IsSensitive(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, p := range Patterns {
		if p.Re.MatchString(s) {
			return true
		}
	}
	return false
}

// Find returns the names of every pattern matching s.
func Find(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var names []string
	for _, p := range Patterns {
		if p.Re.MatchString(s) {
			names = append(names, p.Name)
		}
	}
	return names
}

// Tag trims s and prefixes it with Marker when it is sensitive.
func Tag(s string) string {
	s = strings.TrimSpace(s)
	if IsSensitive(s) {
		return Marker + " " + s
	}
	return s
}
