package classify

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// fuzzyMatchRatio is the minimum similarity for a token to count as a
// keyword match.
const fuzzyMatchRatio = 0.8

// similarity is edit distance scaled into [0, 1] over rune length.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// keywordScore counts keywords present in the text, exactly or fuzzily, and
// divides by the category's keyword total.
func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0.0
	}

	lower := strings.ToLower(text)
	words := tokenize(lower)
	matches := 0

	for _, kw := range keywords {
		kwLower := strings.ToLower(kw)
		if strings.Contains(lower, kwLower) {
			matches++
			continue
		}
		for _, w := range words {
			if similarity(kwLower, w) >= fuzzyMatchRatio {
				matches++
				break
			}
		}
	}

	score := float64(matches) / float64(len(keywords))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// tokenize splits text on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
