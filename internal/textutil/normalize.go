package textutil

import (
	"strings"
	"unicode"
)

// Normalize lowercases a string, strips emoji, symbols and punctuation, and
// collapses whitespace runs. Used before any fuzzy comparison so that
// "🍕 Pizza Night!!!" and "pizza night" compare equal.
func Normalize(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.ToLower(value) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			// Emoji, punctuation, symbols: treat as a token boundary
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the normalized tokens of a string.
func Tokens(value string) []string {
	normalized := Normalize(value)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// TokenSet returns the normalized tokens as a membership set.
func TokenSet(value string) map[string]bool {
	tokens := Tokens(value)
	if len(tokens) == 0 {
		return nil
	}
	set := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		set[token] = true
	}
	return set
}
