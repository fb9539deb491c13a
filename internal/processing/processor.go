package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	whitespace    = regexp.MustCompile(`\s+`)
	sentenceBreak = regexp.MustCompile(`\. +|\.$`)
	markup        = bluemonday.StrictPolicy()

	// Known HTML elements only: a bare "<" as in "p<0.05" or "a<b" is text.
	htmlTag    = regexp.MustCompile(`(?i)</?(?:a|b|i|u|p|br|hr|em|strong|span|div|img|ul|ol|li|h[1-6]|blockquote|table|tr|td|th|sup|sub|small)(?:\s[^<>]*)?/?>`)
	htmlEntity = regexp.MustCompile(`&(?:[a-zA-Z]+|#[0-9]+|#x[0-9a-fA-F]+);`)
)

// CollapseWhitespace squeezes whitespace runs to single spaces and trims the result.
func CollapseWhitespace(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
}

// StripMarkup removes HTML tags and decodes entities, leaving plain text. Input
// without a recognised element tag is returned with only its entities decoded.
func StripMarkup(input string) string {
	if input == "" {
		return ""
	}
	if htmlTag.MatchString(input) {
		return html.UnescapeString(markup.Sanitize(input))
	}
	if htmlEntity.MatchString(input) {
		return html.UnescapeString(input)
	}
	return input
}

// SplitSentences splits text on a period followed by spaces or ending the text.
// Trailing whitespace does not hide a final period. Fragments are trimmed and empty
// ones dropped.
func SplitSentences(text string) []string {
	parts := sentenceBreak.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TitleCase upper-cases the first letter of every word and lower-cases the rest.
// A word starts at any letter not preceded by another letter, so "петров-водкин"
// becomes "Петров-Водкин".
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToTitle(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// Fold lower-cases s and maps ё to е. Every rune maps to exactly one rune, so rune
// offsets in the folded string line up with the original.
func Fold(s string) string {
	return string(FoldRunes([]rune(s)))
}

// FoldRunes is Fold over a rune slice; the input is not modified.
func FoldRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		r = unicode.ToLower(r)
		if r == 'ё' {
			r = 'е'
		}
		out[i] = r
	}
	return out
}

// BuildDocumentID hashes the stable fields of a row to form a deterministic ID.
func BuildDocumentID(title, text string) string {
	s := sha1.Sum([]byte(title + "|" + text))
	return hex.EncodeToString(s[:])
}
