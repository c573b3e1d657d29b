// Package text provides payload normalization for synthesis commands.
//
// Inbound chat text arrives with platform artifacts: stray control
// characters, decorative whitespace, and no length guarantee. The provider
// charges per character and rejects oversized payloads, so the dispatch
// router normalizes every payload before building a synthesis request.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

const whitespaceRegexPattern = `\s+`

// Normalizer prepares raw chat text for submission to the provider.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	maxRunes          int
}

// NewNormalizer creates a normalizer that bounds payloads at maxRunes.
// A non-positive bound disables truncation.
func NewNormalizer(maxRunes int) *Normalizer {
	return &Normalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		maxRunes:          maxRunes,
	}
}

// Normalize strips control characters, collapses whitespace runs to single
// spaces, trims the result, and truncates it to the configured rune bound.
// An empty result means the original text carried nothing synthesizable.
func (n *Normalizer) Normalize(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}

		return r
	}, raw)

	cleaned = n.whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	return truncateRunes(cleaned, n.maxRunes)
}

// truncateRunes bounds a string by rune count, never splitting a character.
func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}

	return string(runes[:maxRunes])
}
