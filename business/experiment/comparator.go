package experiment

import (
	"context"
	"fmt"

	"omnisearch/domain"
	"omnisearch/pkg/logger"
	"omnisearch/pkg/metrics"
)

// significanceLevel is the fixed two-tailed threshold for declaring a winner.
const significanceLevel = 0.05

// MetricsSource supplies the per-variant rollups the comparator tests.
type MetricsSource interface {
	VariantSnapshot(ctx context.Context, variant domain.Variant, days int) (domain.VariantSnapshot, error)
}

// Comparator statistically compares two variants by CTR. A numerically
// higher CTR is never reported as a winner without significance.
type Comparator struct {
	source        MetricsSource
	minSampleSize int
}

// NewComparator builds a comparator with the given minimum per-variant
// impression count. Below that threshold the outcome is InsufficientData;
// zero or negative falls back to the conservative default of 30.
func NewComparator(source MetricsSource, minSampleSize int) *Comparator {
	if minSampleSize <= 0 {
		minSampleSize = 30
	}
	return &Comparator{source: source, minSampleSize: minSampleSize}
}

// Compare runs the two-proportion z-test on CTR between variants a and b
// over the trailing window.
func (c *Comparator) Compare(ctx context.Context, a, b domain.Variant, days int) (domain.VariantComparison, error) {
	days, err := domain.ValidateDays(days)
	if err != nil {
		return domain.VariantComparison{}, err
	}

	snapA, err := c.source.VariantSnapshot(ctx, a, days)
	if err != nil {
		return domain.VariantComparison{}, fmt.Errorf("snapshot %s: %w", a, err)
	}
	snapB, err := c.source.VariantSnapshot(ctx, b, days)
	if err != nil {
		return domain.VariantComparison{}, fmt.Errorf("snapshot %s: %w", b, err)
	}

	out := domain.VariantComparison{
		PeriodDays: days,
		Variants: map[domain.Variant]domain.VariantSnapshot{
			a: snapA,
			b: snapB,
		},
		MinSampleSize: c.minSampleSize,
		Degraded:      snapA.Degraded || snapB.Degraded,
	}

	metrics.ComparisonsTotal.Inc()

	// Guard against unstable estimates: don't compute a statistic at all.
	if snapA.Impressions < c.minSampleSize || snapB.Impressions < c.minSampleSize {
		out.InsufficientData = true
		out.PValue = 1
		return out, nil
	}

	z, p := twoProportionZ(snapA.Clicks, snapA.Impressions, snapB.Clicks, snapB.Impressions)

	ctrA := float64(snapA.Clicks) / float64(snapA.Impressions)
	ctrB := float64(snapB.Clicks) / float64(snapB.Impressions)

	out.ZScore = z
	out.PValue = p
	out.EffectSize = ctrB - ctrA
	out.Significant = p < significanceLevel

	if out.Significant {
		if ctrB > ctrA {
			out.Winner = b
		} else {
			out.Winner = a
		}
	}

	logger.Debug("variant comparison",
		"variant_a", a,
		"variant_b", b,
		"z", z,
		"p_value", p,
		"significant", out.Significant,
		"winner", out.Winner,
	)
	return out, nil
}
