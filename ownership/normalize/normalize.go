// Package normalize canonicalizes organization names.
//
// The canonical form is the join key of both registries: uppercase, single
// spaced, no leading article, no trailing legal-entity suffix and no trailing
// punctuation. Normalize is idempotent.
package normalize

import (
	"regexp"
	"strings"
)

// Name pairs a canonical name with the raw input it came from.
type Name struct {
	Normalized string
	Original   string
}

// Legal-entity suffixes, longest first so PLLC is never read as LLC.
// Each needs a space or comma before it and must end the name.
var suffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[\s,]+P\.?\s?L\.?\s?L\.?\s?C\.?$`),
	regexp.MustCompile(`[\s,]+L\.?\s?L\.?\s?C\.?$`),
	regexp.MustCompile(`[\s,]+L\.?\s?L\.?\s?P\.?$`),
	regexp.MustCompile(`[\s,]+L\.?\s?P\.?$`),
	regexp.MustCompile(`[\s,]+(?:INCORPORATED|INC\.?)$`),
	regexp.MustCompile(`[\s,]+(?:CORPORATION|CORP\.?)$`),
	regexp.MustCompile(`[\s,]+LTD\.?$`),
	regexp.MustCompile(`[\s,]+P\.?\s?C\.?$`),
	regexp.MustCompile(`[\s,]+CO\.?$`),
}

const (
	leadingArticle      = "THE "
	trailingPunctuation = ".,;:-& "
)

// Normalize returns the canonical form of raw. It never fails; empty input
// yields an empty Name.
func Normalize(raw string) Name {
	return Name{Normalized: Key(raw), Original: raw}
}

// Key returns only the canonical form of raw.
func Key(raw string) string {
	s := collapse(strings.ToUpper(raw))

	for {
		prev := s
		s = strings.TrimPrefix(s, leadingArticle)
		s = strings.TrimRight(s, trailingPunctuation)
		s = stripSuffix(s)
		s = strings.TrimSpace(s)
		if s == prev {
			return s
		}
	}
}

// stripSuffix removes at most one legal suffix.
func stripSuffix(s string) string {
	for _, re := range suffixPatterns {
		if loc := re.FindStringIndex(s); loc != nil {
			return s[:loc[0]]
		}
	}
	return s
}

// Upper uppercases s and collapses runs of whitespace. Classification rules
// match against this form.
func Upper(s string) string {
	return collapse(strings.ToUpper(s))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
