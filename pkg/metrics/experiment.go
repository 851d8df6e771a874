package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Latency of the search endpoint, per variant
	SearchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "search_latency_seconds",
		Help:    "Latency of the variant search path",
		Buckets: prometheus.DefBuckets,
	}, []string{"variant"})

	ImpressionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "experiment_impressions_total",
		Help: "Impressions recorded, by variant",
	}, []string{"variant"})

	ClicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "experiment_clicks_total",
		Help: "Clicks recorded, by variant and source",
	}, []string{"variant", "source"})

	// Events absorbed by the in-memory fallback while the store is down
	EventFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_store_fallback_total",
		Help: "Events diverted to the fallback buffer",
	}, []string{"event_type"})

	FallbackBufferSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "event_store_fallback_buffer_size",
		Help: "Current occupancy of the fallback buffer",
	}, []string{"event_type"})

	ComparisonsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "experiment_comparisons_total",
		Help: "Variant comparisons computed",
	})
)

func Init() {
	prometheus.MustRegister(
		SearchDuration,
		ImpressionsTotal,
		ClicksTotal,
		EventFallbackTotal,
		FallbackBufferSize,
		ComparisonsTotal,
	)
}
