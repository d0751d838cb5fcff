package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("stock:resync").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("stock:resync").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:resync", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:resync", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("stock:resync")))
}

func TestAddItems(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddItems("documents:expire", 3)
	m.AddItems("documents:expire", 0)
	require.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("documents:expire")))

	var nilMetrics *Metrics
	nilMetrics.AddItems("documents:expire", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
