package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine counters. A nil *Metrics records nothing.
type Metrics struct {
	tasksCreated      *prometheus.CounterVec
	tasksApproved     *prometheus.CounterVec
	tasksCompleted    *prometheus.CounterVec
	tasksCancelled    *prometheus.CounterVec
	executionFailures *prometheus.CounterVec
	tokensIssued      *prometheus.CounterVec
	tokensExpired     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tasksCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackgate",
			Name:      "tasks_created_total",
			Help:      "Tasks created, by task type.",
		}, []string{"task_type"}),
		tasksApproved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackgate",
			Name:      "tasks_approved_total",
			Help:      "Task approvals, including re-approvals.",
		}, []string{"task_type"}),
		tasksCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackgate",
			Name:      "tasks_completed_total",
			Help:      "Tasks that reached completion.",
		}, []string{"task_type"}),
		tasksCancelled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackgate",
			Name:      "tasks_cancelled_total",
			Help:      "Tasks cancelled before completion.",
		}, []string{"task_type"}),
		executionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackgate",
			Name:      "action_failures_total",
			Help:      "Action execute/complete calls that returned an error.",
		}, []string{"task_type", "action_type"}),
		tokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackgate",
			Name:      "tokens_issued_total",
			Help:      "Tokens issued, by task type.",
		}, []string{"task_type"}),
		tokensExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "stackgate",
			Name:      "tokens_expired_total",
			Help:      "Expired tokens removed lazily or by sweep.",
		}),
	}
}

func (m *Metrics) TaskCreated(taskType string) {
	if m != nil {
		m.tasksCreated.WithLabelValues(taskType).Inc()
	}
}

func (m *Metrics) TaskApproved(taskType string) {
	if m != nil {
		m.tasksApproved.WithLabelValues(taskType).Inc()
	}
}

func (m *Metrics) TaskCompleted(taskType string) {
	if m != nil {
		m.tasksCompleted.WithLabelValues(taskType).Inc()
	}
}

func (m *Metrics) TaskCancelled(taskType string) {
	if m != nil {
		m.tasksCancelled.WithLabelValues(taskType).Inc()
	}
}

func (m *Metrics) ExecutionFailed(taskType, actionType string) {
	if m != nil {
		m.executionFailures.WithLabelValues(taskType, actionType).Inc()
	}
}

func (m *Metrics) TokenIssued(taskType string) {
	if m != nil {
		m.tokensIssued.WithLabelValues(taskType).Inc()
	}
}

func (m *Metrics) TokensExpired(n int64) {
	if m != nil && n > 0 {
		m.tokensExpired.Add(float64(n))
	}
}
