package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for guild boards.
// Tracks joins, task authoring and completion, plus completion latency.
type Metrics struct {
	MembersJoined        prometheus.Counter
	TasksCreated         prometheus.Counter
	TasksCompleted       prometheus.Counter
	CompletionsRejected  *prometheus.CounterVec
	CompleteTaskDuration prometheus.Histogram
}

// New registers the guild metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MembersJoined: factory.NewCounter(prometheus.CounterOpts{
			Name: "guildledger_guild_members_joined_total",
			Help: "Total number of guild joins",
		}),
		TasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "guildledger_guild_tasks_created_total",
			Help: "Total number of tasks created",
		}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "guildledger_guild_tasks_completed_total",
			Help: "Total number of tasks completed",
		}),
		CompletionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildledger_guild_task_completions_rejected_total",
			Help: "Task completion attempts rejected, by error code",
		}, []string{"code"}),
		CompleteTaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildledger_guild_complete_task_duration_seconds",
			Help:    "Duration of CompleteTask operations including reward mints",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementMembersJoined() {
	m.MembersJoined.Inc()
}

func (m *Metrics) IncrementTasksCreated() {
	m.TasksCreated.Inc()
}

func (m *Metrics) IncrementTasksCompleted() {
	m.TasksCompleted.Inc()
}

func (m *Metrics) IncrementCompletionRejected(code string) {
	m.CompletionsRejected.WithLabelValues(code).Inc()
}

// ObserveCompleteTask records the duration of a CompleteTask operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCompleteTask(start time.Time) {
	m.CompleteTaskDuration.Observe(time.Since(start).Seconds())
}
