package search

import (
	"context"
	"fmt"
	"time"

	"omnisearch/business/ranking"
	"omnisearch/business/tracking"
	"omnisearch/domain"
	"omnisearch/pkg/logger"
	"omnisearch/pkg/metrics"
)

const defaultTopK = 10

// impressionLogTimeout bounds the detached impression write so a wedged
// store cannot leak goroutines indefinitely.
const impressionLogTimeout = 5 * time.Second

// ---- Collaborator interfaces ----

// CandidateSource is the upstream vector search boundary. It returns
// candidates already filtered and scored by similarity.
type CandidateSource interface {
	Retrieve(ctx context.Context, query domain.QueryContext, topK int) ([]domain.Candidate, error)
}

type Assigner interface {
	Assign(ctx context.Context, userID string) domain.UserAssignment
}

type ImpressionRecorder interface {
	RecordImpression(ctx context.Context, imp domain.Impression) (tracking.RecordStatus, error)
}

// ---- Service ----

type (
	SearchRequest struct {
		UserID    string
		Query     string
		Color     string
		Category  string
		TopK      int
		SessionID string
		Debug     bool
	}

	SearchResponse struct {
		Variant        domain.Variant        `json:"variant"`
		Results        []domain.RankedResult `json:"results"`
		ResultsCount   int                   `json:"results_count"`
		ResponseTimeMs float64               `json:"response_time_ms"`
	}
)

// Service runs the experiment's search path: resolve the user's variant,
// retrieve candidates, rank them with the variant's ranker, and log the
// impression without ever blocking the response on ingestion.
type Service struct {
	assigner Assigner
	source   CandidateSource
	recorder ImpressionRecorder
	weights  ranking.Weights
	now      func() time.Time
}

func NewService(assigner Assigner, source CandidateSource, recorder ImpressionRecorder, weights ranking.Weights) *Service {
	return &Service{
		assigner: assigner,
		source:   source,
		recorder: recorder,
		weights:  weights,
		now:      time.Now,
	}
}

// Search executes the variant-selected retrieval and ranking path.
func (s *Service) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if req.UserID == "" {
		return SearchResponse{}, domain.NewValidationError("user_id", "required")
	}
	if req.Query == "" {
		return SearchResponse{}, domain.NewValidationError("query", "required")
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	start := s.now()

	assignment := s.assigner.Assign(ctx, req.UserID)

	ranker, ok := ranking.RankerFor(assignment.Variant, s.weights)
	if !ok {
		// Unknown variant in a stored record: fall back to control.
		assignment.Variant = domain.VariantSearchV1
		ranker = ranking.VectorRanker{}
	}

	query := domain.QueryContext{
		Text:     req.Query,
		Color:    req.Color,
		Category: req.Category,
	}

	candidates, err := s.source.Retrieve(ctx, query, req.TopK)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("candidate retrieval failed: %w", err)
	}

	results := ranker.Rank(candidates, query, req.Debug)

	elapsed := s.now().Sub(start)
	elapsedMs := float64(elapsed.Microseconds()) / 1000.0

	metrics.SearchDuration.WithLabelValues(assignment.Variant.String()).Observe(elapsed.Seconds())

	logger.Debug("search served",
		"user_id", req.UserID,
		"variant", assignment.Variant,
		"query", req.Query,
		"results", len(results),
		"elapsed_ms", elapsedMs,
	)

	// Fire-and-forget: ingestion failures are absorbed by the tracking
	// service and must not touch the request path.
	go s.logImpression(domain.Impression{
		UserID:         req.UserID,
		Query:          req.Query,
		Variant:        assignment.Variant,
		ResultsCount:   len(results),
		ResponseTimeMs: elapsedMs,
		SessionID:      req.SessionID,
	})

	return SearchResponse{
		Variant:        assignment.Variant,
		Results:        results,
		ResultsCount:   len(results),
		ResponseTimeMs: elapsedMs,
	}, nil
}

func (s *Service) logImpression(imp domain.Impression) {
	ctx, cancel := context.WithTimeout(context.Background(), impressionLogTimeout)
	defer cancel()

	if _, err := s.recorder.RecordImpression(ctx, imp); err != nil {
		logger.Warn("impression rejected", "user_id", imp.UserID, "error", err)
	}
}
