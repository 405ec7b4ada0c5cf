package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks guild lifecycle in the registry.
type Metrics struct {
	GuildsCreated prometheus.Counter
	GuildsRemoved prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GuildsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "guildledger_registry_guilds_created_total",
			Help: "Total number of guilds created",
		}),
		GuildsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "guildledger_registry_guilds_removed_total",
			Help: "Total number of guilds removed",
		}),
	}
}

func (m *Metrics) IncrementGuildsCreated() {
	m.GuildsCreated.Inc()
}

func (m *Metrics) IncrementGuildsRemoved() {
	m.GuildsRemoved.Inc()
}
