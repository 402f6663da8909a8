package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *HostMetrics
	assert.NotPanics(t, func() {
		m.ObserveExecution("mapleserver", "start", 0.1)
		m.SetState("mapleserver", 2)
		m.IncBindFailure("mapleserver")
	})
}

func TestCollectors(t *testing.T) {
	m := InitMetrics()

	m.SetState("mapleserver", 2)
	m.IncBindFailure("mapleserver")
	m.IncBindFailure("mapleserver")
	m.ObserveExecution("mapleserver", "start", 0.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bindingState.WithLabelValues("mapleserver")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bindFailures.WithLabelValues("mapleserver")))

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["servicehost_lifecycle_operation_duration_seconds"])
	assert.True(t, names["go_goroutines"])
}
