package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks badge issuance.
type Metrics struct {
	Minted prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Minted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "guildledger_badges_minted_total",
			Help: "Total number of badges minted",
		}),
	}
}

func (m *Metrics) IncrementMinted() {
	m.Minted.Inc()
}
