package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

var wib = time.FixedZone("WIB", 7*3600)

type fakeSnapshotter struct {
	days []time.Time
	err  error
}

func (f *fakeSnapshotter) Run(_ context.Context, day time.Time) (stock.SnapshotResult, error) {
	f.days = append(f.days, day)
	if f.err != nil {
		return stock.SnapshotResult{}, f.err
	}
	return stock.SnapshotResult{Date: day.Format(dayLayout), Rows: 3}, nil
}

type fakeRoller struct {
	cutovers []time.Time
}

func (f *fakeRoller) Rollup(_ context.Context, cutover time.Time) (ledger.RollupResult, error) {
	f.cutovers = append(f.cutovers, cutover)
	return ledger.RollupResult{Cutover: cutover.Format(dayLayout)}, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStockRecalcDefaultsToTodayInLocation(t *testing.T) {
	snap := &fakeSnapshotter{}
	job := NewStockRecalcJob(snap, wib, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	// 20:00 UTC on the 9th is already the 10th in WIB.
	job.WithClock(func() time.Time { return time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC) })

	task, err := NewStockRecalculateTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, snap.days, 1)
	require.Equal(t, "2025-03-10", snap.days[0].Format(dayLayout))

	res, err := job.Run(context.Background(), "2025-02-01")
	require.NoError(t, err)
	require.Equal(t, "2025-02-01", res.Date)
}

func TestStockRecalcRejectsBadInput(t *testing.T) {
	snap := &fakeSnapshotter{}
	job := NewStockRecalcJob(snap, wib, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskStockRecalculate, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	_, err = job.Run(context.Background(), "10-03-2025")
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, snap.days)

	snap.err = errors.New("db down")
	_, err = job.Run(context.Background(), "")
	require.EqualError(t, err, "db down")

	var unconfigured *StockRecalcJob
	require.Error(t, unconfigured.Handle(context.Background(), asynq.NewTask(TaskStockRecalculate, nil)))
}

func TestLedgerRollupDefaultsToPreviousMonthEnd(t *testing.T) {
	roller := &fakeRoller{}
	job := NewLedgerRollupJob(roller, wib, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return time.Date(2025, 3, 1, 1, 0, 0, 0, wib) })

	task, err := NewLedgerRollupTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "2025-02-28", roller.cutovers[0].Format(dayLayout))

	res, err := job.Run(context.Background(), "2024-12-31")
	require.NoError(t, err)
	require.Equal(t, "2024-12-31", res.Cutover)
}

func TestTaskPayloads(t *testing.T) {
	task, err := NewLedgerRollupTask("2025-01-31")
	require.NoError(t, err)
	require.Equal(t, TaskLedgerRollup, task.Type())
	var payload LedgerRollupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "2025-01-31", payload.Cutover)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthHandler(t *testing.T) {
	serve := func(h *Handler) (int, httpx.Envelope) {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var env httpx.Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		return rec.Code, env
	}

	code, env := serve(NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, quietLogger()))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 4.0, env.Data.(map[string]any)["pending"])

	code, _ = serve(NewHandler(fakeInspector{err: errors.New("redis down")}, quietLogger()))
	require.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = serve(NewHandler(nil, quietLogger()))
	require.Equal(t, http.StatusOK, code)
}
