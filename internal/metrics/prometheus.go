package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors bundles the Prometheus metrics the relay exposes.
type Collectors struct {
	SessionsCreated   prometheus.Counter
	SessionsStopped   prometheus.Counter
	ActiveSessions    prometheus.Gauge
	ChunksProcessed   prometheus.Counter
	ChunksDropped     prometheus.Counter
	MalformedMessages prometheus.Counter
	StageDuration     *prometheus.HistogramVec
}

// NewCollectors registers all collectors against reg. Tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingo_sessions_created_total",
			Help: "Total number of translation sessions created",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingo_sessions_stopped_total",
			Help: "Total number of translation sessions stopped",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lingo_active_sessions",
			Help: "Current number of active translation sessions",
		}),
		ChunksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingo_chunks_processed_total",
			Help: "Total number of audio chunks fully processed",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingo_chunks_dropped_total",
			Help: "Total number of audio chunks dropped after a stage failure",
		}),
		MalformedMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingo_malformed_messages_total",
			Help: "Total number of inbound messages rejected before processing",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lingo_stage_duration_seconds",
			Help:    "Duration of pipeline stages per chunk",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
	}
}
