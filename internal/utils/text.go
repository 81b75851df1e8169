package utils

import (
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "are": true, "was": true, "were": true,
	"what": true, "when": true, "where": true, "who": true, "why": true, "how": true, "did": true,
	"does": true, "this": true, "that": true, "with": true, "have": true, "has": true, "had": true,
	"about": true, "from": true, "your": true, "our": true, "they": true, "them": true, "her": true,
	"his": true, "she": true, "him": true, "can": true, "not": true, "but": true, "all": true,
	"any": true, "tell": true, "know": true, "just": true, "into": true, "there": true, "their": true,
}

// Keywords returns the distinct lower-case content words (three letters or more) of text.
func Keywords(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 3 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// KeywordSet is Keywords as a lookup set.
func KeywordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, k := range Keywords(text) {
		set[k] = true
	}
	return set
}

// Truncate shortens text to at most limit runes, appending "..." when cut.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return strings.TrimSpace(string(runes[:limit-3])) + "..."
}

// NormalizeSpace collapses runs of whitespace into single spaces.
func NormalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
