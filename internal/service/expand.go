package service

import "strings"

// stopwords are dropped during query expansion. The list is small on
// purpose: it only needs to strip interrogative scaffolding, not model
// English.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "may": {}, "might": {}, "can": {},
	"what": {}, "how": {}, "when": {}, "where": {}, "why": {},
	"who": {}, "which": {}, "this": {}, "that": {}, "these": {}, "those": {},
}

// expandQuery appends the question's keywords to the question itself,
// weighting content words in the embedding. Questions too short to
// yield at least two keywords pass through unchanged.
func expandQuery(question string) string {
	keywords := extractKeywords(question)
	if len(keywords) < 2 {
		return question
	}
	return question + " " + strings.Join(keywords, " ")
}

// extractKeywords lowercases the question, strips everything that is
// not a letter or digit, and keeps words longer than two characters
// that are not stopwords. Order follows the question.
func extractKeywords(question string) []string {
	normalized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, question)

	var keywords []string
	for _, word := range strings.Fields(normalized) {
		if len(word) <= 2 {
			continue
		}
		if _, ok := stopwords[word]; ok {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}
