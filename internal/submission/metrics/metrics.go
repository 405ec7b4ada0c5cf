package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the sequencer queue and submission outcomes.
type Metrics struct {
	QueueDepth prometheus.Gauge
	Outcomes   *prometheus.CounterVec
	Latency    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "guildledger_submissions_queued",
			Help: "Submissions accepted but not yet picked up by the sequencer",
		}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "guildledger_submissions_total",
			Help: "Finalized submissions by kind and status",
		}, []string{"kind", "status"}),
		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildledger_submission_latency_seconds",
			Help:    "Time from submission to finalization",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) ObserveOutcome(kind, status string, submittedAt time.Time) {
	m.Outcomes.WithLabelValues(kind, status).Inc()
	m.Latency.Observe(time.Since(submittedAt).Seconds())
}
