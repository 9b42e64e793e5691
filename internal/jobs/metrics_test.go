package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsRunsAndFailures(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("stock:recalculate").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("stock:recalculate").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:recalculate", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:recalculate", "error")))
	require.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("stock:recalculate")))
	require.Zero(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("ledger:rollup")))

	m.SnapshotRows(42)
	m.RolledAccounts(16)
	require.Equal(t, 42.0, testutil.ToFloat64(m.snapshotRows))
	require.Equal(t, 16.0, testutil.ToFloat64(m.rolledAccounts))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:rollup").End(boom), boom)
	m.SnapshotRows(3)
	m.RolledAccounts(3)
}
