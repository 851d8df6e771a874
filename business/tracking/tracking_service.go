package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"omnisearch/domain"
	"omnisearch/pkg/logger"
	"omnisearch/pkg/metrics"

	"github.com/google/uuid"
)

// RecordStatus is the explicit outcome of an ingestion attempt. A degraded
// store is an expected operating mode, not an error.
type RecordStatus int

const (
	// RecordStored means the event reached the durable store.
	RecordStored RecordStatus = iota
	// RecordBuffered means the store was unreachable and the event sits in
	// the in-memory fallback buffer.
	RecordBuffered
	// RecordRejected means the event failed validation and was not stored
	// anywhere.
	RecordRejected
)

// drainTimeout bounds one background replay of the fallback buffers.
const drainTimeout = 30 * time.Second

// ---- Repository interface ----

type EventRepository interface {
	SaveImpression(ctx context.Context, imp domain.Impression) error
	SaveClick(ctx context.Context, click domain.ClickEvent) error
	QueryImpressions(ctx context.Context, filter domain.EventFilter, since time.Time) ([]domain.Impression, error)
	QueryClicks(ctx context.Context, filter domain.EventFilter, since time.Time) ([]domain.ClickEvent, error)
	DeleteAll(ctx context.Context) error
}

// ---- Service ----

// Service is the event store adapter: validated append of impressions and
// clicks, time-ranged queries, and graceful degradation to a bounded ring
// buffer when the backing store is unreachable.
type Service struct {
	repo EventRepository
	now  func() time.Time

	mu       sync.Mutex
	degraded bool
	impBuf   *ring[domain.Impression]
	clickBuf *ring[domain.ClickEvent]
	drainWG  sync.WaitGroup
}

func NewService(repo EventRepository, bufferCapacity int) *Service {
	return &Service{
		repo:     repo,
		now:      time.Now,
		impBuf:   newRing[domain.Impression](bufferCapacity),
		clickBuf: newRing[domain.ClickEvent](bufferCapacity),
	}
}

// Degraded reports whether the last store interaction failed.
func (s *Service) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// ---- Ingestion ----

// RecordImpression validates and stores an impression. The error is non-nil
// only for rejected events; store outages surface as RecordBuffered.
func (s *Service) RecordImpression(ctx context.Context, imp domain.Impression) (RecordStatus, error) {
	if err := validateImpression(imp); err != nil {
		return RecordRejected, err
	}

	s.fillDefaults(&imp.ID, &imp.Timestamp)

	status := s.persistImpression(ctx, imp)
	metrics.ImpressionsTotal.WithLabelValues(imp.Variant.String()).Inc()
	return status, nil
}

// RecordClick validates and stores a click event, same contract as
// RecordImpression.
func (s *Service) RecordClick(ctx context.Context, click domain.ClickEvent) (RecordStatus, error) {
	if err := validateClick(click); err != nil {
		return RecordRejected, err
	}

	s.fillDefaults(&click.ID, &click.Timestamp)

	status := s.persistClick(ctx, click)
	metrics.ClicksTotal.WithLabelValues(click.Variant.String(), string(click.Source)).Inc()
	return status, nil
}

func (s *Service) persistImpression(ctx context.Context, imp domain.Impression) RecordStatus {
	err := s.repo.SaveImpression(ctx, imp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.markDegradedLocked(err)
		s.impBuf.push(imp)
		metrics.EventFallbackTotal.WithLabelValues("impression").Inc()
		metrics.FallbackBufferSize.WithLabelValues("impression").Set(float64(s.impBuf.len()))
		return RecordBuffered
	}

	s.markAvailableLocked()
	return RecordStored
}

func (s *Service) persistClick(ctx context.Context, click domain.ClickEvent) RecordStatus {
	err := s.repo.SaveClick(ctx, click)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.markDegradedLocked(err)
		s.clickBuf.push(click)
		metrics.EventFallbackTotal.WithLabelValues("click").Inc()
		metrics.FallbackBufferSize.WithLabelValues("click").Set(float64(s.clickBuf.len()))
		return RecordBuffered
	}

	s.markAvailableLocked()
	return RecordStored
}

// markDegradedLocked flips into degraded mode, logging only on the
// transition so a prolonged outage does not storm the logs.
func (s *Service) markDegradedLocked(cause error) {
	if !s.degraded {
		s.degraded = true
		logger.Warn("event store unavailable, buffering events", "error", cause)
	}
}

// markAvailableLocked flips back to healthy mode and hands anything the
// buffer absorbed during the outage to a background replay, so the request
// that observed the recovery is not held for the whole drain.
func (s *Service) markAvailableLocked() {
	if !s.degraded {
		return
	}
	s.degraded = false

	imps := s.impBuf.drain()
	clicks := s.clickBuf.drain()
	if len(imps) == 0 && len(clicks) == 0 {
		return
	}
	logger.Info("event store recovered, draining fallback buffer",
		"buffered_impressions", len(imps),
		"buffered_clicks", len(clicks),
	)

	s.drainWG.Add(1)
	go func() {
		defer s.drainWG.Done()
		s.replay(imps, clicks)
	}()
}

// replay pushes drained events back to the store on its own context. If the
// store drops again mid-replay, the unsaved remainder goes back to the
// buffers.
func (s *Service) replay(imps []domain.Impression, clicks []domain.ClickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for i, imp := range imps {
		if err := s.repo.SaveImpression(ctx, imp); err != nil {
			s.requeue(imps[i:], clicks, err)
			return
		}
	}
	for i, click := range clicks {
		if err := s.repo.SaveClick(ctx, click); err != nil {
			s.requeue(nil, clicks[i:], err)
			return
		}
	}

	s.mu.Lock()
	s.setBufferGaugesLocked()
	s.mu.Unlock()
}

func (s *Service) requeue(imps []domain.Impression, clicks []domain.ClickEvent, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markDegradedLocked(cause)
	for _, imp := range imps {
		s.impBuf.push(imp)
	}
	for _, click := range clicks {
		s.clickBuf.push(click)
	}
	s.setBufferGaugesLocked()
}

func (s *Service) setBufferGaugesLocked() {
	metrics.FallbackBufferSize.WithLabelValues("impression").Set(float64(s.impBuf.len()))
	metrics.FallbackBufferSize.WithLabelValues("click").Set(float64(s.clickBuf.len()))
}

func (s *Service) fillDefaults(id *string, ts *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if ts.IsZero() {
		*ts = s.now()
	}
}

// ---- Queries ----

// QueryImpressions returns impressions within the filter window. A degraded
// store serves the fallback buffer with the Degraded flag set instead of
// failing; a timed-out range read returns the partial rows with Truncated set.
func (s *Service) QueryImpressions(ctx context.Context, filter domain.EventFilter) (domain.ImpressionQueryResult, error) {
	days, err := domain.ValidateDays(filter.Days)
	if err != nil {
		return domain.ImpressionQueryResult{}, err
	}
	filter.Days = days
	since := s.now().AddDate(0, 0, -days)

	rows, err := s.repo.QueryImpressions(ctx, filter, since)
	if err != nil {
		// A blown query budget is a truncated read, not a store outage.
		if errors.Is(err, domain.ErrQueryTruncated) || errors.Is(err, context.DeadlineExceeded) {
			return domain.ImpressionQueryResult{Impressions: rows, Truncated: true}, nil
		}
		s.mu.Lock()
		s.markDegradedLocked(err)
		buffered := filterImpressions(s.impBuf.items(), filter, since)
		s.mu.Unlock()
		return domain.ImpressionQueryResult{Impressions: buffered, Degraded: true}, nil
	}

	return domain.ImpressionQueryResult{Impressions: rows}, nil
}

// QueryClicks mirrors QueryImpressions for click events.
func (s *Service) QueryClicks(ctx context.Context, filter domain.EventFilter) (domain.ClickQueryResult, error) {
	days, err := domain.ValidateDays(filter.Days)
	if err != nil {
		return domain.ClickQueryResult{}, err
	}
	filter.Days = days
	since := s.now().AddDate(0, 0, -days)

	rows, err := s.repo.QueryClicks(ctx, filter, since)
	if err != nil {
		if errors.Is(err, domain.ErrQueryTruncated) || errors.Is(err, context.DeadlineExceeded) {
			return domain.ClickQueryResult{Clicks: rows, Truncated: true}, nil
		}
		s.mu.Lock()
		s.markDegradedLocked(err)
		buffered := filterClicks(s.clickBuf.items(), filter, since)
		s.mu.Unlock()
		return domain.ClickQueryResult{Clicks: buffered, Degraded: true}, nil
	}

	return domain.ClickQueryResult{Clicks: rows}, nil
}

// Reset clears the durable store and both fallback buffers. The only
// destructive operation in the model; intended for tests and ops.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to reset event store: %w", err)
	}

	s.mu.Lock()
	s.impBuf.clear()
	s.clickBuf.clear()
	s.mu.Unlock()

	metrics.FallbackBufferSize.WithLabelValues("impression").Set(0)
	metrics.FallbackBufferSize.WithLabelValues("click").Set(0)

	logger.Info("event store reset")
	return nil
}

// ---- Validation ----

func validateImpression(imp domain.Impression) error {
	if imp.UserID == "" {
		return domain.NewValidationError("user_id", "required")
	}
	if imp.Query == "" {
		return domain.NewValidationError("query", "required")
	}
	if !imp.Variant.Valid() {
		return domain.NewValidationError("variant", fmt.Sprintf("unknown variant %q", imp.Variant))
	}
	if imp.ResultsCount < 0 {
		return domain.NewValidationError("results_count", "must be non-negative")
	}
	if imp.ResponseTimeMs < 0 {
		return domain.NewValidationError("response_time_ms", "must be non-negative")
	}
	return nil
}

func validateClick(click domain.ClickEvent) error {
	if click.UserID == "" {
		return domain.NewValidationError("user_id", "required")
	}
	if click.ProductID == "" {
		return domain.NewValidationError("product_id", "required")
	}
	if click.Rank < 0 {
		return domain.NewValidationError("rank", "must be non-negative")
	}
	if !click.Variant.Valid() {
		return domain.NewValidationError("variant", fmt.Sprintf("unknown variant %q", click.Variant))
	}
	if !click.Source.Valid() {
		return domain.NewValidationError("source", fmt.Sprintf("unknown source %q", click.Source))
	}
	if click.ResponseTimeMs < 0 {
		return domain.NewValidationError("response_time_ms", "must be non-negative")
	}
	return nil
}

// ---- Buffer filtering ----

func filterImpressions(items []domain.Impression, f domain.EventFilter, since time.Time) []domain.Impression {
	out := make([]domain.Impression, 0, len(items))
	for _, imp := range items {
		if imp.Timestamp.Before(since) {
			continue
		}
		if f.UserID != "" && imp.UserID != f.UserID {
			continue
		}
		if f.Variant != "" && imp.Variant != f.Variant {
			continue
		}
		out = append(out, imp)
	}
	return out
}

func filterClicks(items []domain.ClickEvent, f domain.EventFilter, since time.Time) []domain.ClickEvent {
	out := make([]domain.ClickEvent, 0, len(items))
	for _, click := range items {
		if click.Timestamp.Before(since) {
			continue
		}
		if f.UserID != "" && click.UserID != f.UserID {
			continue
		}
		if f.Variant != "" && click.Variant != f.Variant {
			continue
		}
		out = append(out, click)
	}
	return out
}
