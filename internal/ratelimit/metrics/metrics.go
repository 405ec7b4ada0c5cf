package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected prometheus.Counter
	Degraded prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "guildledger_ratelimit_rejected_total",
			Help: "Write requests rejected by the rate limiter",
		}),
		Degraded: f.NewCounter(prometheus.CounterOpts{
			Name: "guildledger_ratelimit_degraded_total",
			Help: "Rate limit checks served by the in-memory fallback",
		}),
	}
}

func (m *Metrics) IncRejected() {
	if m != nil {
		m.Rejected.Inc()
	}
}

func (m *Metrics) IncDegraded() {
	if m != nil {
		m.Degraded.Inc()
	}
}
