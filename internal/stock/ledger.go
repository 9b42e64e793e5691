package stock

import (
	"context"
	"fmt"
	"time"
)

// QuantityStore sums quantities.
type QuantityStore interface {
	// SumQuantity totals movements dated before end.
	SumQuantity(ctx context.Context, productID, warehouseID int64, end time.Time) (int64, error)
}

// Store appends movements and sums quantities.
type Store interface {
	QuantityStore
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// Ledger records movements and answers point-in-time quantities in a fixed
// business timezone.
type Ledger struct {
	loc *time.Location
}

// NewLedger constructs a Ledger. A nil location means UTC.
func NewLedger(loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{loc: loc}
}

// Record validates m and appends it.
func (l *Ledger) Record(ctx context.Context, store Store, m Movement) (Movement, error) {
	if err := m.Validate(); err != nil {
		return Movement{}, err
	}
	id, err := store.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, fmt.Errorf("stock: insert movement: %w", err)
	}
	m.ID = id
	return m, nil
}

// QuantityAsOf is the signed sum of movements dated up to the end of day.
func (l *Ledger) QuantityAsOf(ctx context.Context, store QuantityStore, productID, warehouseID int64, day time.Time) (int64, error) {
	return store.SumQuantity(ctx, productID, warehouseID, l.EndOfDay(day))
}

// Day truncates t to midnight in the ledger location.
func (l *Ledger) Day(t time.Time) time.Time {
	local := t.In(l.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
}

// EndOfDay returns the exclusive upper bound of the day containing t.
func (l *Ledger) EndOfDay(t time.Time) time.Time {
	return l.Day(t).AddDate(0, 0, 1)
}

// ParseDay parses YYYY-MM-DD in the ledger location.
func (l *Ledger) ParseDay(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, value, l.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("stock: invalid date %q: %w", value, err)
	}
	return t, nil
}
