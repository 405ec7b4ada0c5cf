package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks reputation issuance.
type Metrics struct {
	Minted        prometheus.Counter
	MintsRejected *prometheus.CounterVec
}

// New registers the reputation metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Minted: factory.NewCounter(prometheus.CounterOpts{
			Name: "guildledger_reputation_minted_points_total",
			Help: "Total reputation points minted",
		}),
		MintsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildledger_reputation_mints_rejected_total",
			Help: "Reputation mint attempts rejected, by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) AddMinted(amount uint64) {
	m.Minted.Add(float64(amount))
}

func (m *Metrics) IncrementRejected(code string) {
	m.MintsRejected.WithLabelValues(code).Inc()
}
