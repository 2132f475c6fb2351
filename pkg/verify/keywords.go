package verify

import (
	"regexp"
	"sort"
	"strings"
)

// stopwords trimmed from keyword extraction; shared list across the
// planner and the strategy tokenizer.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "their": {}, "then": {},
	"there": {}, "these": {}, "this": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {},
}

var tokenRe = regexp.MustCompile(`[a-z0-9]{3,}`)

// Tokenize returns the lower-cased alphanumeric runs of at least three
// characters, minus stop words.
func Tokenize(text string) []string {
	tokens := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ExtractKeywords ranks tokens by frequency (ties broken
// alphabetically) and returns up to limit of them.
func ExtractKeywords(text string, limit int) []string {
	freq := map[string]int{}
	for _, t := range Tokenize(text) {
		freq[t]++
	}

	ranked := make([]string, 0, len(freq))
	for t := range freq {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if freq[ranked[i]] != freq[ranked[j]] {
			return freq[ranked[i]] > freq[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if limit < 1 {
		limit = 1
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
