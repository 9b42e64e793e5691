// Package ledger posts balanced journals and derives account balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store is the write side used inside a unit of work.
type Store interface {
	AccountsByID(ctx context.Context, ids []int64) (map[int64]Account, error)
	InsertJournal(ctx context.Context, j Journal) (int64, error)
	InsertEntries(ctx context.Context, journalID int64, entries []Entry) error
	JournalByInvoice(ctx context.Context, invoice string) (Journal, error)
	DeleteJournalByInvoice(ctx context.Context, invoice string) (int64, error)
	UpdateJournalHeader(ctx context.Context, invoice string, dateIssued time.Time, description string) error
	RetargetEntries(ctx context.Context, journalID, fromAccountID, toAccountID int64) (int64, error)
	// InvalidateRollups drops materialised balances with a cutover on or after
	// day, keeping the rollup tier consistent with back dated changes.
	InvalidateRollups(ctx context.Context, day time.Time) error
}

// Metrics receives posting events.
type Metrics interface {
	JournalPosted(journalType string)
}

type nopMetrics struct{}

func (nopMetrics) JournalPosted(string) {}

// Engine validates and writes journals.
type Engine struct {
	metrics Metrics
	loc     *time.Location
}

// NewEngine constructs an Engine. loc defines the day boundary used for
// rollup invalidation.
func NewEngine(metrics Metrics, loc *time.Location) *Engine {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{metrics: metrics, loc: loc}
}

// Post validates in, verifies every referenced account and writes the journal.
func (e *Engine) Post(ctx context.Context, store Store, in PostingInput) (Journal, error) {
	if store == nil {
		return Journal{}, errNilStore
	}
	if err := in.Validate(); err != nil {
		return Journal{}, err
	}
	ids := make([]int64, 0, len(in.Lines))
	seen := make(map[int64]bool, len(in.Lines))
	for _, line := range in.Lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}
	accounts, err := store.AccountsByID(ctx, ids)
	if err != nil {
		return Journal{}, fmt.Errorf("ledger: load accounts: %w", err)
	}
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return Journal{}, fmt.Errorf("ledger: account %d: %w", id, ErrAccountNotFound)
		}
	}

	journal := Journal{
		Invoice:     in.Invoice,
		DateIssued:  in.DateIssued,
		Description: in.Description,
		Type:        in.Type,
		FinanceType: in.FinanceType,
		WarehouseID: in.WarehouseID,
		UserID:      in.UserID,
	}
	id, err := store.InsertJournal(ctx, journal)
	if err != nil {
		return Journal{}, fmt.Errorf("ledger: insert journal: %w", err)
	}
	journal.ID = id
	journal.Entries = make([]Entry, 0, len(in.Lines))
	for _, line := range in.Lines {
		journal.Entries = append(journal.Entries, Entry{JournalID: id, AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	if err := store.InsertEntries(ctx, id, journal.Entries); err != nil {
		return Journal{}, fmt.Errorf("ledger: insert entries: %w", err)
	}
	if err := store.InvalidateRollups(ctx, e.day(in.DateIssued)); err != nil {
		return Journal{}, fmt.Errorf("ledger: invalidate rollups: %w", err)
	}
	e.metrics.JournalPosted(string(in.Type))
	return journal, nil
}

// Delete removes the journal of invoice and its entries. Missing journals are
// not an error; the number of deleted journals is returned.
func (e *Engine) Delete(ctx context.Context, store Store, invoice string) (int64, error) {
	journal, err := store.JournalByInvoice(ctx, invoice)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := store.DeleteJournalByInvoice(ctx, invoice)
	if err != nil {
		return 0, fmt.Errorf("ledger: delete journal: %w", err)
	}
	if err := store.InvalidateRollups(ctx, e.day(journal.DateIssued)); err != nil {
		return 0, fmt.Errorf("ledger: invalidate rollups: %w", err)
	}
	return n, nil
}

// Amend changes the journal date and description and optionally moves every
// entry from one account to another.
func (e *Engine) Amend(ctx context.Context, store Store, invoice string, dateIssued time.Time, description string, fromAccountID, toAccountID int64) (Journal, error) {
	journal, err := store.JournalByInvoice(ctx, invoice)
	if err != nil {
		return Journal{}, err
	}
	if dateIssued.IsZero() {
		dateIssued = journal.DateIssued
	}
	if err := store.UpdateJournalHeader(ctx, invoice, dateIssued, description); err != nil {
		return Journal{}, fmt.Errorf("ledger: update journal: %w", err)
	}
	if fromAccountID > 0 && toAccountID > 0 && fromAccountID != toAccountID {
		accounts, err := store.AccountsByID(ctx, []int64{toAccountID})
		if err != nil {
			return Journal{}, fmt.Errorf("ledger: load accounts: %w", err)
		}
		if _, ok := accounts[toAccountID]; !ok {
			return Journal{}, fmt.Errorf("ledger: account %d: %w", toAccountID, ErrAccountNotFound)
		}
		if _, err := store.RetargetEntries(ctx, journal.ID, fromAccountID, toAccountID); err != nil {
			return Journal{}, fmt.Errorf("ledger: retarget entries: %w", err)
		}
	}
	earliest := journal.DateIssued
	if dateIssued.Before(earliest) {
		earliest = dateIssued
	}
	if err := store.InvalidateRollups(ctx, e.day(earliest)); err != nil {
		return Journal{}, fmt.Errorf("ledger: invalidate rollups: %w", err)
	}
	return store.JournalByInvoice(ctx, invoice)
}

func (e *Engine) day(t time.Time) time.Time {
	local := t.In(e.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
