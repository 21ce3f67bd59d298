package playbook

import (
	"strings"
	"unicode"
)

// Matcher decides whether two bullet contents are near-duplicates. The
// comparison policy is pluggable; the lexical matcher below is the default
// and the documented baseline. Embedding-based matching stays out of scope.
type Matcher interface {
	Match(a, b string) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(a, b string) bool

func (f MatcherFunc) Match(a, b string) bool { return f(a, b) }

// DefaultSimilarityThreshold is the Jaccard cutoff used when none is
// configured.
const DefaultSimilarityThreshold = 0.85

// LexicalMatcher matches in three tiers: exact equality, normalized-text
// equality (lowercase, collapsed whitespace), then token-set Jaccard
// similarity against the threshold.
type LexicalMatcher struct {
	Threshold float64
}

// NewLexicalMatcher creates a lexical matcher; a non-positive threshold
// falls back to the default.
func NewLexicalMatcher(threshold float64) *LexicalMatcher {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &LexicalMatcher{Threshold: threshold}
}

func (m *LexicalMatcher) Match(a, b string) bool {
	if a == b {
		return true
	}
	if normalizeText(a) == normalizeText(b) {
		return true
	}
	return jaccardSimilarity(tokenize(a), tokenize(b)) >= m.Threshold
}

// normalizeText converts text to a canonical form for comparison.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		} else {
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return b.String()
}

// tokenize splits text into word tokens.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	s = strings.ToLower(s)

	var word strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word.WriteRune(r)
		} else if word.Len() > 0 {
			tokens[word.String()] = true
			word.Reset()
		}
	}
	if word.Len() > 0 {
		tokens[word.String()] = true
	}

	return tokens
}

// jaccardSimilarity computes the Jaccard index between two token sets.
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}
