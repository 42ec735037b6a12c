package reader

import (
	"regexp"
	"strings"
)

// tokenRE matches word-like runs. The index is intentionally ASCII-centric:
// accented terms still surface through the raw-text match fallback at result
// time.
var tokenRE = regexp.MustCompile(`[A-Za-z0-9']+`)

// stopwords are dropped from every indexed document and every query.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "me": {}, "my": {}, "not": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "she": {}, "that": {}, "the": {}, "their": {}, "them": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

// suffixes stripped by the crude stemmer, in trial order. Only the first
// matching suffix is removed, and only when enough stem remains.
var stemSuffixes = []string{"ing", "edly", "ed", "ly", "es", "s"}

// normalizeToken lowercases, strips surrounding apostrophes, drops short and
// purely numeric tokens, and applies one round of suffix stemming. Returns ""
// for tokens that should not be indexed.
func normalizeToken(token string) string {
	token = strings.ToLower(strings.Trim(token, "'"))
	if len(token) < 2 {
		return ""
	}
	if isDigits(token) {
		return ""
	}
	for _, suf := range stemSuffixes {
		if strings.HasSuffix(token, suf) && len(token) > len(suf)+2 {
			token = token[:len(token)-len(suf)]
			break
		}
	}
	return token
}

// Tokenize splits text into normalized index terms, dropping stopwords.
// It is deterministic: equal input always yields equal output.
func Tokenize(text string) []string {
	var tokens []string
	for _, raw := range tokenRE.FindAllString(text, -1) {
		token := normalizeToken(raw)
		if token == "" {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
