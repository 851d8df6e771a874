package ranking

import (
	"sort"

	"omnisearch/domain"
)

// Ranker orders a pre-filtered candidate set for one search variant. Rankers
// are stateless and safe for concurrent use.
type Ranker interface {
	Rank(candidates []domain.Candidate, query domain.QueryContext, debug bool) []domain.RankedResult
}

// VectorRanker is the control variant: the identity function over the
// upstream vector-similarity order. No re-ranking.
type VectorRanker struct{}

func (VectorRanker) Rank(candidates []domain.Candidate, query domain.QueryContext, debug bool) []domain.RankedResult {
	out := make([]domain.RankedResult, 0, len(candidates))
	for _, cand := range candidates {
		res := domain.RankedResult{Candidate: cand, FinalScore: cand.Similarity}
		if debug {
			res.DebugScores = &domain.ScoreBreakdown{
				VectorScore: cand.Similarity,
				FinalScore:  cand.Similarity,
			}
		}
		out = append(out, res)
	}
	return out
}

// BlendRanker is the enhanced variant: a weighted linear blend of vector
// similarity, exact color/category matches, and query-title text similarity.
type BlendRanker struct {
	weights Weights
}

func NewBlendRanker(weights Weights) (*BlendRanker, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &BlendRanker{weights: weights}, nil
}

// Rank re-scores and re-orders the supplied candidates. The sort is stable:
// equal scores keep the upstream retrieval order, so identical inputs always
// produce identical output.
func (r *BlendRanker) Rank(candidates []domain.Candidate, query domain.QueryContext, debug bool) []domain.RankedResult {
	out := make([]domain.RankedResult, 0, len(candidates))
	for _, cand := range candidates {
		vector := cand.Similarity
		color := exactMatchBoost(query.Color, cand.Color)
		category := exactMatchBoost(query.Category, cand.Category)
		text := textSimilarity(query.Text, cand.Title)

		score := r.weights.Vector*vector +
			r.weights.Color*color +
			r.weights.Category*category +
			r.weights.Text*text
		score = clamp01(score)

		res := domain.RankedResult{Candidate: cand, FinalScore: score}
		if debug {
			res.DebugScores = &domain.ScoreBreakdown{
				VectorScore:   vector,
				ColorScore:    color,
				CategoryScore: category,
				TextScore:     text,
				FinalScore:    score,
			}
		}
		out = append(out, res)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return out
}

// RankerFor resolves a variant through the closed dispatch table. Unknown
// variants and invalid weights both come back false, leaving the fallback
// to the caller.
func RankerFor(variant domain.Variant, weights Weights) (Ranker, bool) {
	switch variant {
	case domain.VariantSearchV1:
		return VectorRanker{}, true
	case domain.VariantSearchV2:
		ranker, err := NewBlendRanker(weights)
		if err != nil {
			return nil, false
		}
		return ranker, true
	}
	return nil, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
