package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus instruments for the dashboard pipeline.
type Metrics struct {
	SamplesProcessed prometheus.Counter
	SamplesSkipped   prometheus.Counter
	FieldsDefaulted  *prometheus.CounterVec
	DtFallbacks      prometheus.Counter
	HazardEvents     prometheus.Counter
	ReactionTime     prometheus.Histogram
	PeakShock        prometheus.Gauge
	MaxSeverity      prometheus.Gauge
	PotholeCount     prometheus.Gauge
	FramesRendered   prometheus.Counter
	FramesDropped    *prometheus.CounterVec
	FeedEntries      prometheus.Counter
	Connected        prometheus.Gauge
}

// NewMetrics registers the dashboard instruments with reg. A nil registerer
// yields instruments that are usable but not exported, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SamplesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pothole",
			Name:      "samples_processed_total",
			Help:      "Telemetry samples applied to the dashboard state",
		}),
		SamplesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pothole",
			Name:      "samples_skipped_total",
			Help:      "Feed entries that were not telemetry objects",
		}),
		FieldsDefaulted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pothole",
			Name:      "fields_defaulted_total",
			Help:      "Sample fields replaced by their default during parsing",
		}, []string{"field"}),
		DtFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pothole",
			Name:      "dt_fallbacks_total",
			Help:      "Samples whose inter-arrival dt was replaced by the fallback",
		}),
		HazardEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pothole",
			Name:      "hazard_events_total",
			Help:      "Detected hazard events",
		}),
		ReactionTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pothole",
			Name:      "reaction_time_ms",
			Help:      "Time from hazard onset to corrective speed change",
			Buckets:   []float64{50, 100, 200, 400, 800, 1600, 3200, 6400},
		}),
		PeakShock: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pothole",
			Name:      "peak_shock",
			Help:      "Largest shock seen this session",
		}),
		MaxSeverity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pothole",
			Name:      "max_severity",
			Help:      "Largest severity class seen this session",
		}),
		PotholeCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pothole",
			Name:      "potholes",
			Help:      "Pothole count reported upstream",
		}),
		FramesRendered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pothole",
			Name:      "frames_rendered_total",
			Help:      "Render ticks completed",
		}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pothole",
			Name:      "frames_dropped_total",
			Help:      "Frames a presenter could not deliver to a slow client",
		}, []string{"presenter"}),
		FeedEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pothole",
			Name:      "feed_entries_total",
			Help:      "Entries appended to the telemetry feed",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pothole",
			Name:      "feed_connected",
			Help:      "1 while the feed subscription is live",
		}),
	}
}
