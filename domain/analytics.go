package domain

// EventFilter narrows an event query. UserID and Variant are optional;
// Days is mandatory and bounded (zero means DefaultDays).
type EventFilter struct {
	UserID  string
	Variant Variant
	Days    int
}

// ImpressionQueryResult carries the matching impressions along with the
// adapter's degradation state for the read.
type ImpressionQueryResult struct {
	Impressions []Impression
	Degraded    bool
	Truncated   bool
}

// ClickQueryResult carries the matching clicks along with the adapter's
// degradation state for the read.
type ClickQueryResult struct {
	Clicks    []ClickEvent
	Degraded  bool
	Truncated bool
}

// CTRMetrics is a derived click-through snapshot. CTR is nil when there are
// zero impressions: undefined, not zero. ByVariant splits the window per
// variant and is only populated when no variant filter narrowed the query.
type CTRMetrics struct {
	CTR         *float64               `json:"ctr"`
	Clicks      int                    `json:"clicks"`
	Impressions int                    `json:"impressions"`
	PeriodDays  int                    `json:"period_days"`
	ByVariant   map[Variant]VariantCTR `json:"by_variant,omitempty"`
	Degraded    bool                   `json:"degraded,omitempty"`
	Truncated   bool                   `json:"truncated,omitempty"`
}

// VariantCTR is one variant's slice of a CTR window.
type VariantCTR struct {
	CTR         *float64 `json:"ctr"`
	Clicks      int      `json:"clicks"`
	Impressions int      `json:"impressions"`
}

// RankMetrics summarizes which result positions get clicked. Computed over
// click events only; impressions carry no rank.
type RankMetrics struct {
	AvgRank      float64     `json:"avg_rank"`
	MedianRank   int         `json:"median_rank"`
	MinRank      int         `json:"min_rank"`
	MaxRank      int         `json:"max_rank"`
	ClicksByRank map[int]int `json:"clicks_by_rank"`
	TotalClicks  int         `json:"total_clicks"`
	PeriodDays   int         `json:"period_days"`
	Degraded     bool        `json:"degraded,omitempty"`
	Truncated    bool        `json:"truncated,omitempty"`
}

// ResponseTimeMetrics summarizes search latency over impressions. P95 uses
// the nearest-rank order statistic.
type ResponseTimeMetrics struct {
	AvgMs      float64 `json:"avg_response_time_ms"`
	MinMs      float64 `json:"min_response_time_ms"`
	MaxMs      float64 `json:"max_response_time_ms"`
	P95Ms      float64 `json:"p95_response_time_ms"`
	Count      int     `json:"count"`
	PeriodDays int     `json:"period_days"`
	Degraded   bool    `json:"degraded,omitempty"`
	Truncated  bool    `json:"truncated,omitempty"`
}

// VariantSnapshot is the per-variant rollup used for comparisons.
type VariantSnapshot struct {
	Variant           Variant  `json:"variant"`
	Clicks            int      `json:"clicks"`
	Impressions       int      `json:"impressions"`
	CTR               *float64 `json:"ctr"`
	AvgRankClicked    float64  `json:"avg_rank_clicked"`
	AvgResponseTimeMs float64  `json:"avg_response_time_ms"`
	Degraded          bool     `json:"degraded,omitempty"`
	Truncated         bool     `json:"truncated,omitempty"`
}

// UserSummary is the per-user rollup over a window.
type UserSummary struct {
	UserID            string    `json:"user_id"`
	PeriodDays        int       `json:"period_days"`
	TotalClicks       int       `json:"total_clicks"`
	TotalImpressions  int       `json:"total_impressions"`
	CTR               *float64  `json:"ctr"`
	AvgRankClicked    float64   `json:"avg_rank_clicked"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	VariantsUsed      []Variant `json:"variants_used"`
	Degraded          bool      `json:"degraded,omitempty"`
	Truncated         bool      `json:"truncated,omitempty"`
}

// VariantComparison is the comparator's outcome. Winner stays empty unless
// the difference is statistically significant; InsufficientData is a defined
// outcome, not an error.
type VariantComparison struct {
	PeriodDays       int                         `json:"period_days"`
	Variants         map[Variant]VariantSnapshot `json:"variants"`
	Winner           Variant                     `json:"winner,omitempty"`
	EffectSize       float64                     `json:"effect_size"`
	ZScore           float64                     `json:"z_score"`
	PValue           float64                     `json:"p_value"`
	Significant      bool                        `json:"significant"`
	InsufficientData bool                        `json:"insufficient_data"`
	MinSampleSize    int                         `json:"min_sample_size"`
	Degraded         bool                        `json:"degraded,omitempty"`
}
