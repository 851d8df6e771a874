package ranking

import (
	"math"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// bagOfWords builds a token frequency map.
func bagOfWords(text string) map[string]int {
	freq := make(map[string]int)
	for _, t := range tokenize(text) {
		freq[t]++
	}
	return freq
}

// cosineSim is the cosine similarity between two frequency maps, in [0,1].
func cosineSim(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	dot := 0
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}

	var na, nb float64
	for _, v := range a {
		na += float64(v * v)
	}
	for _, v := range b {
		nb += float64(v * v)
	}
	if na == 0 || nb == 0 {
		return 0
	}

	return float64(dot) / (math.Sqrt(na) * math.Sqrt(nb))
}

// textSimilarity scores the query text against a product title using
// bag-of-words cosine similarity.
func textSimilarity(queryText, title string) float64 {
	if queryText == "" || title == "" {
		return 0
	}
	return cosineSim(bagOfWords(queryText), bagOfWords(title))
}

// exactMatchBoost returns 1.0 on a case-insensitive exact attribute match.
func exactMatchBoost(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return 1.0
	}
	return 0
}
