package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"omnisearch/business/ranking"
	"omnisearch/business/tracking"
	"omnisearch/domain"
)

type fakeAssigner struct {
	variant domain.Variant
}

func (f *fakeAssigner) Assign(ctx context.Context, userID string) domain.UserAssignment {
	return domain.UserAssignment{
		UserID:       userID,
		ExperimentID: "search_ranking",
		Variant:      f.variant,
		AssignedAt:   time.Now(),
	}
}

type fakeSource struct {
	candidates []domain.Candidate
	err        error

	gotTopK  int
	gotQuery domain.QueryContext
}

func (f *fakeSource) Retrieve(ctx context.Context, query domain.QueryContext, topK int) ([]domain.Candidate, error) {
	f.gotQuery = query
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []domain.Impression
	done     chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{done: make(chan struct{}, 1)}
}

func (f *fakeRecorder) RecordImpression(ctx context.Context, imp domain.Impression) (tracking.RecordStatus, error) {
	f.mu.Lock()
	f.recorded = append(f.recorded, imp)
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return tracking.RecordStored, nil
}

func (f *fakeRecorder) waitForImpression(t *testing.T) domain.Impression {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for impression")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorded[len(f.recorded)-1]
}

func testCandidates() []domain.Candidate {
	return []domain.Candidate{
		{ProductID: "a", Title: "red summer dress", Color: "red", Category: "dresses", Similarity: 0.6},
		{ProductID: "b", Title: "blue jeans", Color: "blue", Category: "pants", Similarity: 0.8},
	}
}

func TestSearchControlKeepsUpstreamOrder(t *testing.T) {
	source := &fakeSource{candidates: testCandidates()}
	recorder := newFakeRecorder()
	svc := NewService(&fakeAssigner{variant: domain.VariantSearchV1}, source, recorder, ranking.DefaultWeights())

	resp, err := svc.Search(context.Background(), SearchRequest{UserID: "u1", Query: "red dress"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Variant != domain.VariantSearchV1 {
		t.Errorf("expected control variant, got %q", resp.Variant)
	}
	if resp.Results[0].ProductID != "a" || resp.Results[1].ProductID != "b" {
		t.Error("control must preserve upstream order")
	}
	if resp.ResultsCount != 2 {
		t.Errorf("expected 2 results, got %d", resp.ResultsCount)
	}
}

func TestSearchEnhancedReranks(t *testing.T) {
	source := &fakeSource{candidates: testCandidates()}
	recorder := newFakeRecorder()
	svc := NewService(&fakeAssigner{variant: domain.VariantSearchV2}, source, recorder, ranking.DefaultWeights())

	resp, err := svc.Search(context.Background(), SearchRequest{
		UserID:   "u1",
		Query:    "red dress",
		Color:    "red",
		Category: "dresses",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Variant != domain.VariantSearchV2 {
		t.Errorf("expected enhanced variant, got %q", resp.Variant)
	}
	// "a" matches color, category, and text, beating "b"'s raw similarity.
	if resp.Results[0].ProductID != "a" {
		t.Errorf("expected re-ranked order, got %q first", resp.Results[0].ProductID)
	}
}

func TestSearchValidatesInput(t *testing.T) {
	svc := NewService(&fakeAssigner{variant: domain.VariantSearchV1}, &fakeSource{}, newFakeRecorder(), ranking.DefaultWeights())

	_, err := svc.Search(context.Background(), SearchRequest{Query: "q"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "user_id" {
		t.Errorf("expected user_id validation error, got %v", err)
	}

	_, err = svc.Search(context.Background(), SearchRequest{UserID: "u"})
	if !errors.As(err, &ve) || ve.Field != "query" {
		t.Errorf("expected query validation error, got %v", err)
	}
}

func TestSearchDefaultsTopK(t *testing.T) {
	source := &fakeSource{candidates: testCandidates()}
	svc := NewService(&fakeAssigner{variant: domain.VariantSearchV1}, source, newFakeRecorder(), ranking.DefaultWeights())

	if _, err := svc.Search(context.Background(), SearchRequest{UserID: "u", Query: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.gotTopK != 10 {
		t.Errorf("expected default topK 10, got %d", source.gotTopK)
	}

	if _, err := svc.Search(context.Background(), SearchRequest{UserID: "u", Query: "q", TopK: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.gotTopK != 3 {
		t.Errorf("expected topK 3, got %d", source.gotTopK)
	}
}

func TestSearchPropagatesSourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("weaviate unreachable")}
	svc := NewService(&fakeAssigner{variant: domain.VariantSearchV1}, source, newFakeRecorder(), ranking.DefaultWeights())

	if _, err := svc.Search(context.Background(), SearchRequest{UserID: "u", Query: "q"}); err == nil {
		t.Fatal("expected retrieval error to propagate")
	}
}

func TestSearchUnknownVariantFallsBackToControl(t *testing.T) {
	source := &fakeSource{candidates: testCandidates()}
	svc := NewService(&fakeAssigner{variant: "search_v9"}, source, newFakeRecorder(), ranking.DefaultWeights())

	resp, err := svc.Search(context.Background(), SearchRequest{UserID: "u", Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Variant != domain.VariantSearchV1 {
		t.Errorf("unknown stored variant must fall back to control, got %q", resp.Variant)
	}
}

func TestSearchLogsImpressionAsynchronously(t *testing.T) {
	source := &fakeSource{candidates: testCandidates()}
	recorder := newFakeRecorder()
	svc := NewService(&fakeAssigner{variant: domain.VariantSearchV2}, source, recorder, ranking.DefaultWeights())

	resp, err := svc.Search(context.Background(), SearchRequest{
		UserID:    "u1",
		Query:     "red dress",
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	imp := recorder.waitForImpression(t)
	if imp.UserID != "u1" || imp.Query != "red dress" {
		t.Errorf("unexpected impression identity: %+v", imp)
	}
	if imp.Variant != resp.Variant {
		t.Errorf("impression variant %q != response variant %q", imp.Variant, resp.Variant)
	}
	if imp.ResultsCount != resp.ResultsCount {
		t.Errorf("impression count %d != response count %d", imp.ResultsCount, resp.ResultsCount)
	}
	if imp.SessionID != "sess-1" {
		t.Errorf("expected session carried through, got %q", imp.SessionID)
	}
}

func TestSearchDebugBreakdownOnlyWhenRequested(t *testing.T) {
	source := &fakeSource{candidates: testCandidates()}
	svc := NewService(&fakeAssigner{variant: domain.VariantSearchV2}, source, newFakeRecorder(), ranking.DefaultWeights())

	plain, err := svc.Search(context.Background(), SearchRequest{UserID: "u", Query: "red dress"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plain.Results[0].DebugScores != nil {
		t.Error("breakdown must be absent without debug")
	}

	debug, err := svc.Search(context.Background(), SearchRequest{UserID: "u", Query: "red dress", Debug: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if debug.Results[0].DebugScores == nil {
		t.Error("expected breakdown with debug")
	}
}
