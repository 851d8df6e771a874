package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"omnisearch/domain"
)

// EventSource is the slice of the event store adapter the aggregator reads
// through. Reads are filtered, time-bounded, and flag their own degradation.
type EventSource interface {
	QueryImpressions(ctx context.Context, filter domain.EventFilter) (domain.ImpressionQueryResult, error)
	QueryClicks(ctx context.Context, filter domain.EventFilter) (domain.ClickQueryResult, error)
}

// Service computes derived metrics over the append-only event log. All
// aggregations are pure functions of the queried event set and safe for
// concurrent readers.
type Service struct {
	events       EventSource
	queryTimeout time.Duration
}

func NewService(events EventSource, queryTimeout time.Duration) *Service {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Service{events: events, queryTimeout: queryTimeout}
}

// ComputeCTR returns clicks/impressions for the filter window. Zero
// impressions yield a nil CTR: undefined, never a false zero.
func (s *Service) ComputeCTR(ctx context.Context, filter domain.EventFilter) (domain.CTRMetrics, error) {
	days, err := domain.ValidateDays(filter.Days)
	if err != nil {
		return domain.CTRMetrics{}, err
	}
	filter.Days = days

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	imps, err := s.events.QueryImpressions(ctx, filter)
	if err != nil {
		return domain.CTRMetrics{}, fmt.Errorf("query impressions: %w", err)
	}
	clicks, err := s.events.QueryClicks(ctx, filter)
	if err != nil {
		return domain.CTRMetrics{}, fmt.Errorf("query clicks: %w", err)
	}

	out := domain.CTRMetrics{
		Clicks:      len(clicks.Clicks),
		Impressions: len(imps.Impressions),
		PeriodDays:  days,
		Degraded:    imps.Degraded || clicks.Degraded,
		Truncated:   imps.Truncated || clicks.Truncated,
	}
	if out.Impressions > 0 {
		ctr := round4(float64(out.Clicks) / float64(out.Impressions))
		out.CTR = &ctr
	}
	if filter.Variant == "" {
		out.ByVariant = variantBreakdown(imps.Impressions, clicks.Clicks)
	}
	return out, nil
}

func variantBreakdown(imps []domain.Impression, clicks []domain.ClickEvent) map[domain.Variant]domain.VariantCTR {
	out := make(map[domain.Variant]domain.VariantCTR, 2)
	for _, variant := range []domain.Variant{domain.VariantSearchV1, domain.VariantSearchV2} {
		var entry domain.VariantCTR
		for _, imp := range imps {
			if imp.Variant == variant {
				entry.Impressions++
			}
		}
		for _, click := range clicks {
			if click.Variant == variant {
				entry.Clicks++
			}
		}
		if entry.Impressions > 0 {
			ctr := round4(float64(entry.Clicks) / float64(entry.Impressions))
			entry.CTR = &ctr
		}
		out[variant] = entry
	}
	return out
}

// ComputeRankMetrics summarizes clicked positions. Only click events carry a
// rank, so impressions never enter this computation.
func (s *Service) ComputeRankMetrics(ctx context.Context, filter domain.EventFilter) (domain.RankMetrics, error) {
	days, err := domain.ValidateDays(filter.Days)
	if err != nil {
		return domain.RankMetrics{}, err
	}
	filter.Days = days

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	clicks, err := s.events.QueryClicks(ctx, filter)
	if err != nil {
		return domain.RankMetrics{}, fmt.Errorf("query clicks: %w", err)
	}

	out := domain.RankMetrics{
		ClicksByRank: map[int]int{},
		TotalClicks:  len(clicks.Clicks),
		PeriodDays:   days,
		Degraded:     clicks.Degraded,
		Truncated:    clicks.Truncated,
	}
	if len(clicks.Clicks) == 0 {
		return out, nil
	}

	ranks := make([]int, 0, len(clicks.Clicks))
	sum := 0
	for _, c := range clicks.Clicks {
		ranks = append(ranks, c.Rank)
		sum += c.Rank
		out.ClicksByRank[c.Rank]++
	}
	sort.Ints(ranks)

	out.AvgRank = round2(float64(sum) / float64(len(ranks)))
	out.MedianRank = ranks[len(ranks)/2]
	out.MinRank = ranks[0]
	out.MaxRank = ranks[len(ranks)-1]
	return out, nil
}

// ComputeResponseTime summarizes search latency over impressions. P95 uses
// the nearest-rank order statistic for bit-for-bit reproducibility.
func (s *Service) ComputeResponseTime(ctx context.Context, filter domain.EventFilter) (domain.ResponseTimeMetrics, error) {
	days, err := domain.ValidateDays(filter.Days)
	if err != nil {
		return domain.ResponseTimeMetrics{}, err
	}
	filter.Days = days

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	imps, err := s.events.QueryImpressions(ctx, filter)
	if err != nil {
		return domain.ResponseTimeMetrics{}, fmt.Errorf("query impressions: %w", err)
	}

	out := domain.ResponseTimeMetrics{
		Count:      len(imps.Impressions),
		PeriodDays: days,
		Degraded:   imps.Degraded,
		Truncated:  imps.Truncated,
	}
	if len(imps.Impressions) == 0 {
		return out, nil
	}

	times := make([]float64, 0, len(imps.Impressions))
	sum := 0.0
	for _, imp := range imps.Impressions {
		times = append(times, imp.ResponseTimeMs)
		sum += imp.ResponseTimeMs
	}
	sort.Float64s(times)

	out.AvgMs = round2(sum / float64(len(times)))
	out.MinMs = round2(times[0])
	out.MaxMs = round2(times[len(times)-1])
	out.P95Ms = round2(nearestRank(times, 0.95))
	return out, nil
}

// VariantSnapshot is the per-variant rollup consumed by the comparator.
func (s *Service) VariantSnapshot(ctx context.Context, variant domain.Variant, days int) (domain.VariantSnapshot, error) {
	if !variant.Valid() {
		return domain.VariantSnapshot{}, fmt.Errorf("unknown variant: %q", variant)
	}
	days, err := domain.ValidateDays(days)
	if err != nil {
		return domain.VariantSnapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	filter := domain.EventFilter{Variant: variant, Days: days}
	imps, err := s.events.QueryImpressions(ctx, filter)
	if err != nil {
		return domain.VariantSnapshot{}, fmt.Errorf("query impressions: %w", err)
	}
	clicks, err := s.events.QueryClicks(ctx, filter)
	if err != nil {
		return domain.VariantSnapshot{}, fmt.Errorf("query clicks: %w", err)
	}

	out := domain.VariantSnapshot{
		Variant:     variant,
		Clicks:      len(clicks.Clicks),
		Impressions: len(imps.Impressions),
		Degraded:    imps.Degraded || clicks.Degraded,
		Truncated:   imps.Truncated || clicks.Truncated,
	}
	if out.Impressions > 0 {
		ctr := round4(float64(out.Clicks) / float64(out.Impressions))
		out.CTR = &ctr
	}
	if len(clicks.Clicks) > 0 {
		sum := 0
		for _, c := range clicks.Clicks {
			sum += c.Rank
		}
		out.AvgRankClicked = round2(float64(sum) / float64(len(clicks.Clicks)))
	}
	if len(imps.Impressions) > 0 {
		sum := 0.0
		for _, imp := range imps.Impressions {
			sum += imp.ResponseTimeMs
		}
		out.AvgResponseTimeMs = round2(sum / float64(len(imps.Impressions)))
	}
	return out, nil
}

// UserSummary rolls up a single user's activity across variants.
func (s *Service) UserSummary(ctx context.Context, userID string, days int) (domain.UserSummary, error) {
	if userID == "" {
		return domain.UserSummary{}, domain.NewValidationError("user_id", "required")
	}
	days, err := domain.ValidateDays(days)
	if err != nil {
		return domain.UserSummary{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	filter := domain.EventFilter{UserID: userID, Days: days}
	imps, err := s.events.QueryImpressions(ctx, filter)
	if err != nil {
		return domain.UserSummary{}, fmt.Errorf("query impressions: %w", err)
	}
	clicks, err := s.events.QueryClicks(ctx, filter)
	if err != nil {
		return domain.UserSummary{}, fmt.Errorf("query clicks: %w", err)
	}

	out := domain.UserSummary{
		UserID:           userID,
		PeriodDays:       days,
		TotalClicks:      len(clicks.Clicks),
		TotalImpressions: len(imps.Impressions),
		Degraded:         imps.Degraded || clicks.Degraded,
		Truncated:        imps.Truncated || clicks.Truncated,
	}
	if out.TotalImpressions > 0 {
		ctr := round4(float64(out.TotalClicks) / float64(out.TotalImpressions))
		out.CTR = &ctr

		sum := 0.0
		seen := map[domain.Variant]bool{}
		for _, imp := range imps.Impressions {
			sum += imp.ResponseTimeMs
			if !seen[imp.Variant] {
				seen[imp.Variant] = true
				out.VariantsUsed = append(out.VariantsUsed, imp.Variant)
			}
		}
		out.AvgResponseTimeMs = round2(sum / float64(len(imps.Impressions)))
	}
	if out.TotalClicks > 0 {
		sum := 0
		for _, c := range clicks.Clicks {
			sum += c.Rank
		}
		out.AvgRankClicked = round2(float64(sum) / float64(out.TotalClicks))
	}
	return out, nil
}

// nearestRank picks the q-th percentile from an ascending-sorted sample:
// index ceil(q*n) - 1.
func nearestRank(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
