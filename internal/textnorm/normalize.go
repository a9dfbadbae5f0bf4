// Package textnorm turns free-text product names, brands and image file names
// into comparable keys and tokens.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMinTokenLength drops units and stopwords such as "ml" or "3".
const DefaultMinTokenLength = 3

// Normalizer produces comparison forms of text. The zero value keeps only
// ASCII letters and digits, which means accented letters are dropped rather
// than folded.
type Normalizer struct {
	// FoldDiacritics maps accented Latin letters onto their base letter
	// before anything else is stripped.
	FoldDiacritics bool
}

// Normalize lowercases text and drops every rune outside [a-z0-9],
// whitespace included. Two strings that only differ in spacing, punctuation
// or case normalize to the same key.
func (n Normalizer) Normalize(text string) string {
	text = n.prepare(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isKeyRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokenize lowercases text, splits it on whitespace, hyphens, underscores
// and other punctuation, and drops tokens shorter than minLen.
func (n Normalizer) Tokenize(text string, minLen int) []string {
	text = n.prepare(text)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		var b strings.Builder
		for _, r := range f {
			if isKeyRune(r) {
				b.WriteRune(r)
			}
		}
		tok := b.String()
		if tok == "" || len(tok) < minLen {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Lower lowercases text and, when folding is on, removes diacritics. It
// keeps every other rune, which is what substring keyword matching needs.
func (n Normalizer) Lower(text string) string {
	return n.prepare(text)
}

func (n Normalizer) prepare(text string) string {
	text = strings.ToLower(text)
	if !n.FoldDiacritics {
		return text
	}
	return fold(text)
}

func fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

func isKeyRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// Normalize is Normalizer{}.Normalize.
func Normalize(text string) string {
	return Normalizer{}.Normalize(text)
}

// Tokenize is Normalizer{}.Tokenize.
func Tokenize(text string, minLen int) []string {
	return Normalizer{}.Tokenize(text, minLen)
}
