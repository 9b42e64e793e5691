package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SnapshotStore aggregates movements and writes warehouse_stocks rows.
type SnapshotStore interface {
	// Aggregate groups movements dated before end by warehouse and product.
	Aggregate(ctx context.Context, end time.Time) ([]Balance, error)
	UpsertBalances(ctx context.Context, day time.Time, balances []Balance) error
}

// SnapshotMetrics receives the row count of each run.
type SnapshotMetrics interface {
	SnapshotRows(rows int)
}

type nopSnapshotMetrics struct{}

func (nopSnapshotMetrics) SnapshotRows(int) {}

// SnapshotResult describes a snapshot run.
type SnapshotResult struct {
	Date string `json:"date"`
	Rows int    `json:"rows"`
}

// Snapshotter recomputes warehouse_stocks for a balance date.
type Snapshotter struct {
	store   SnapshotStore
	ledger  *Ledger
	logger  *slog.Logger
	metrics SnapshotMetrics
}

// NewSnapshotter constructs a Snapshotter.
func NewSnapshotter(store SnapshotStore, ledger *Ledger, logger *slog.Logger, metrics SnapshotMetrics) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopSnapshotMetrics{}
	}
	if ledger == nil {
		ledger = NewLedger(nil)
	}
	return &Snapshotter{store: store, ledger: ledger, logger: logger, metrics: metrics}
}

// Run recomputes the quantity of every (warehouse, product) from all
// movements dated on or before day. Rerunning overwrites with the same totals.
func (s *Snapshotter) Run(ctx context.Context, day time.Time) (SnapshotResult, error) {
	date := s.ledger.Day(day)
	balances, err := s.store.Aggregate(ctx, s.ledger.EndOfDay(date))
	if err != nil {
		return SnapshotResult{}, fmt.Errorf("stock: aggregate movements: %w", err)
	}
	if err := s.store.UpsertBalances(ctx, date, balances); err != nil {
		return SnapshotResult{}, fmt.Errorf("stock: upsert snapshot: %w", err)
	}
	res := SnapshotResult{Date: date.Format(dayLayout), Rows: len(balances)}
	s.metrics.SnapshotRows(res.Rows)
	s.logger.Info("stock snapshot", slog.String("date", res.Date), slog.Int("rows", res.Rows))
	return res, nil
}
