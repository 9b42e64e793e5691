package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryStore struct {
	accounts   map[int64]Account
	warehouses []WarehouseRef
	journals   []Journal
	nextID     int64
	rollups    map[string]map[int64]decimal.Decimal
	totalCalls int

	// rollupLock stands in for the advisory lock: exclusive for rollups,
	// shared for invalidation.
	rollupLock   sync.RWMutex
	rollupHeld   bool
	invalidating chan struct{}
	beforeSave   func()
}

func newMemoryStore(accounts ...Account) *memoryStore {
	m := &memoryStore{accounts: map[int64]Account{}, rollups: map[string]map[int64]decimal.Decimal{}}
	for _, acc := range accounts {
		m.accounts[acc.ID] = acc
	}
	return m
}

func (m *memoryStore) AccountsByID(_ context.Context, ids []int64) (map[int64]Account, error) {
	out := map[int64]Account{}
	for _, id := range ids {
		if acc, ok := m.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (m *memoryStore) InsertJournal(_ context.Context, j Journal) (int64, error) {
	m.nextID++
	j.ID = m.nextID
	m.journals = append(m.journals, j)
	return j.ID, nil
}

func (m *memoryStore) InsertEntries(_ context.Context, journalID int64, entries []Entry) error {
	for i := range m.journals {
		if m.journals[i].ID == journalID {
			m.journals[i].Entries = append(m.journals[i].Entries, entries...)
		}
	}
	return nil
}

func (m *memoryStore) JournalByInvoice(_ context.Context, invoice string) (Journal, error) {
	for _, j := range m.journals {
		if j.Invoice == invoice {
			return j, nil
		}
	}
	return Journal{}, ErrJournalNotFound
}

func (m *memoryStore) DeleteJournalByInvoice(_ context.Context, invoice string) (int64, error) {
	kept := m.journals[:0]
	var n int64
	for _, j := range m.journals {
		if j.Invoice == invoice {
			n++
			continue
		}
		kept = append(kept, j)
	}
	m.journals = kept
	return n, nil
}

func (m *memoryStore) UpdateJournalHeader(_ context.Context, invoice string, dateIssued time.Time, description string) error {
	for i := range m.journals {
		if m.journals[i].Invoice == invoice {
			m.journals[i].DateIssued = dateIssued
			m.journals[i].Description = description
			return nil
		}
	}
	return ErrJournalNotFound
}

func (m *memoryStore) RetargetEntries(_ context.Context, journalID, from, to int64) (int64, error) {
	var n int64
	for i := range m.journals {
		if m.journals[i].ID != journalID {
			continue
		}
		for k := range m.journals[i].Entries {
			if m.journals[i].Entries[k].AccountID == from {
				m.journals[i].Entries[k].AccountID = to
				n++
			}
		}
	}
	return n, nil
}

func (m *memoryStore) InvalidateRollups(_ context.Context, day time.Time) error {
	if m.invalidating != nil {
		m.invalidating <- struct{}{}
	}
	m.rollupLock.RLock()
	defer m.rollupLock.RUnlock()
	cut := day.Format(dayLayout)
	for k := range m.rollups {
		if k >= cut {
			delete(m.rollups, k)
		}
	}
	return nil
}

func (m *memoryStore) Account(_ context.Context, id int64) (Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (m *memoryStore) Accounts(context.Context) ([]Account, error) {
	out := make([]Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryStore) Warehouses(context.Context) ([]WarehouseRef, error) {
	return m.warehouses, nil
}

func inWindow(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && t.Before(to)
}

func (m *memoryStore) Totals(_ context.Context, from, to time.Time) (map[int64]Totals, error) {
	m.totalCalls++
	out := map[int64]Totals{}
	for _, j := range m.journals {
		if !inWindow(j.DateIssued, from, to) {
			continue
		}
		for _, e := range j.Entries {
			out[e.AccountID] = out[e.AccountID].Add(Totals{Debit: e.Debit, Credit: e.Credit})
		}
	}
	return out, nil
}

func (m *memoryStore) TotalsByWarehouse(_ context.Context, from, to time.Time) (map[int64]map[int64]Totals, error) {
	out := map[int64]map[int64]Totals{}
	for _, j := range m.journals {
		if !inWindow(j.DateIssued, from, to) {
			continue
		}
		if out[j.WarehouseID] == nil {
			out[j.WarehouseID] = map[int64]Totals{}
		}
		for _, e := range j.Entries {
			out[j.WarehouseID][e.AccountID] = out[j.WarehouseID][e.AccountID].Add(Totals{Debit: e.Debit, Credit: e.Credit})
		}
	}
	return out, nil
}

func (m *memoryStore) Entries(_ context.Context, accountID int64, from, to time.Time) ([]EntryLine, error) {
	out := []EntryLine{}
	for _, j := range m.journals {
		if !inWindow(j.DateIssued, from, to) {
			continue
		}
		for _, e := range j.Entries {
			if e.AccountID == accountID {
				out = append(out, EntryLine{JournalID: j.ID, Invoice: j.Invoice, DateIssued: j.DateIssued, JournalType: j.Type, WarehouseID: j.WarehouseID, AccountID: accountID, Debit: e.Debit, Credit: e.Credit})
			}
		}
	}
	return out, nil
}

func (m *memoryStore) LatestRollup(_ context.Context, day time.Time) (time.Time, map[int64]decimal.Decimal, bool, error) {
	limit := day.Format(dayLayout)
	best := ""
	for k := range m.rollups {
		if k <= limit && k > best {
			best = k
		}
	}
	if best == "" {
		return time.Time{}, nil, false, nil
	}
	cutover, _ := time.Parse(dayLayout, best)
	return cutover, m.rollups[best], true, nil
}

func (m *memoryStore) WithRollupLock(ctx context.Context, fn func(context.Context, ReadStore) error) error {
	m.rollupLock.Lock()
	defer m.rollupLock.Unlock()
	m.rollupHeld = true
	defer func() { m.rollupHeld = false }()
	return fn(ctx, m)
}

func (m *memoryStore) SaveRollup(_ context.Context, cutover time.Time, balances map[int64]decimal.Decimal) error {
	if !m.rollupHeld {
		return errors.New("rollup saved without the rollup lock")
	}
	if m.beforeSave != nil {
		m.beforeSave()
	}
	copied := make(map[int64]decimal.Decimal, len(balances))
	for k, v := range balances {
		copied[k] = v
	}
	m.rollups[cutover.Format(dayLayout)] = copied
	return nil
}
