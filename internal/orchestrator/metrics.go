package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helmsman_jobs_submitted_total",
			Help: "Total number of jobs accepted by Submit.",
		},
	)

	jobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_job_transitions_total",
			Help: "Total number of job status transitions, by target status.",
		},
		[]string{"status"},
	)

	executorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_executor_errors_total",
			Help: "Total number of failed executor gateway calls, by operation.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(jobsSubmittedTotal)
	prometheus.MustRegister(jobTransitionsTotal)
	prometheus.MustRegister(executorErrorsTotal)
}
