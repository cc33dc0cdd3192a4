package lifecycle

import "github.com/prometheus/client_golang/prometheus"

var (
	// reactionsTotal counts reaction executions by event kind, reaction name
	// and outcome ("ok" or "error").
	reactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_reactions_total",
			Help: "Total number of lifecycle reaction executions.",
		},
		[]string{"event", "reaction", "outcome"},
	)

	// reactionDuration records the time spent running all reactions of one
	// dispatch, labelled by event kind only.
	reactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifecycle_reaction_duration_seconds",
			Help:    "Duration of lifecycle dispatches in seconds.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(reactionsTotal, reactionDuration)
}
