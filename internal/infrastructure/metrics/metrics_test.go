package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TaskCreated("reset_password")
	m.TaskCreated("reset_password")
	m.ExecutionFailed("create_project", "new_project_with_user")
	m.TokensExpired(3)
	m.TokensExpired(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksCreated.WithLabelValues("reset_password")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executionFailures.WithLabelValues("create_project", "new_project_with_user")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tokensExpired))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TaskCreated("x")
		m.TokenIssued("x")
		m.TokensExpired(1)
	})
}
