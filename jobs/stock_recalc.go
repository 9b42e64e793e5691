package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Snapshotter rebuilds warehouse_stocks for a day.
type Snapshotter interface {
	Run(ctx context.Context, day time.Time) (stock.SnapshotResult, error)
}

// StockRecalcJob runs the daily warehouse stock snapshot.
type StockRecalcJob struct {
	Snapshotter Snapshotter
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Location    *time.Location
	clock       func() time.Time
}

// NewStockRecalcJob constructs the job handler.
func NewStockRecalcJob(snapshotter Snapshotter, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockRecalcJob {
	return &StockRecalcJob{Snapshotter: snapshotter, Location: loc, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes the stock snapshot task.
func (j *StockRecalcJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Snapshotter == nil {
		return errors.New("stock recalculate: dependencies not configured")
	}
	var payload StockRecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("stock recalculate payload: %v: %w", err, asynq.SkipRetry)
	}
	_, err := j.Run(ctx, payload.Date)
	return err
}

// Run snapshots the given YYYY-MM-DD day, or today when date is empty.
func (j *StockRecalcJob) Run(ctx context.Context, date string) (stock.SnapshotResult, error) {
	tracker := j.metrics().Track(TaskStockRecalculate)
	day := j.now().In(j.location())
	if date != "" {
		parsed, err := parseDay(date, j.location())
		if err != nil {
			return stock.SnapshotResult{}, tracker.End(fmt.Errorf("stock recalculate: invalid date %q: %v: %w", date, err, asynq.SkipRetry))
		}
		day = parsed
	}
	res, err := j.Snapshotter.Run(ctx, day)
	if err != nil {
		j.log().Error("stock snapshot failed", slog.String("date", day.Format(dayLayout)), slog.Any("error", err))
		return stock.SnapshotResult{}, tracker.End(err)
	}
	return res, tracker.End(nil)
}

func (j *StockRecalcJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StockRecalcJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockRecalculate))
	}
	return slog.Default().With(slog.String("job", TaskStockRecalculate))
}

func (j *StockRecalcJob) location() *time.Location {
	if j != nil && j.Location != nil {
		return j.Location
	}
	return time.UTC
}

func (j *StockRecalcJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *StockRecalcJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
