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
	"github.com/odyssey-erp/backoffice/internal/ledger"
)

// Roller materialises balances at a cutover day.
type Roller interface {
	Rollup(ctx context.Context, cutover time.Time) (ledger.RollupResult, error)
}

// LedgerRollupJob runs the monthly balance rollup.
type LedgerRollupJob struct {
	Roller   Roller
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Location *time.Location
	clock    func() time.Time
}

// NewLedgerRollupJob constructs the job handler.
func NewLedgerRollupJob(roller Roller, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerRollupJob {
	return &LedgerRollupJob{Roller: roller, Location: loc, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes the rollup task.
func (j *LedgerRollupJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Roller == nil {
		return errors.New("ledger rollup: dependencies not configured")
	}
	var payload LedgerRollupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("ledger rollup payload: %v: %w", err, asynq.SkipRetry)
	}
	_, err := j.Run(ctx, payload.Cutover)
	return err
}

// Run rolls up balances at the given YYYY-MM-DD day, or at the end of the
// previous month when cutover is empty.
func (j *LedgerRollupJob) Run(ctx context.Context, cutover string) (ledger.RollupResult, error) {
	tracker := j.metrics().Track(TaskLedgerRollup)
	day := ledger.PreviousMonthEnd(j.now(), j.location())
	if cutover != "" {
		parsed, err := parseDay(cutover, j.location())
		if err != nil {
			return ledger.RollupResult{}, tracker.End(fmt.Errorf("ledger rollup: invalid cutover %q: %v: %w", cutover, err, asynq.SkipRetry))
		}
		day = parsed
	}
	res, err := j.Roller.Rollup(ctx, day)
	if err != nil {
		j.log().Error("ledger rollup failed", slog.String("cutover", day.Format(dayLayout)), slog.Any("error", err))
		return ledger.RollupResult{}, tracker.End(err)
	}
	j.metrics().RolledAccounts(res.Accounts)
	return res, tracker.End(nil)
}

func (j *LedgerRollupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerRollupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerRollup))
	}
	return slog.Default().With(slog.String("job", TaskLedgerRollup))
}

func (j *LedgerRollupJob) location() *time.Location {
	if j != nil && j.Location != nil {
		return j.Location
	}
	return time.UTC
}

func (j *LedgerRollupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *LedgerRollupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
