package sequencer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryStore struct {
	transactions map[string]string
	journals     []string
	orderInvoice map[string]bool
	// committed by another session after LatestOrderInvoice was read
	racing       map[string]bool
	orderNumbers []string
	locks        []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{transactions: map[string]string{}, orderInvoice: map[string]bool{}, racing: map[string]bool{}}
}

func (m *memoryStore) LockScope(_ context.Context, key string) error {
	m.locks = append(m.locks, key)
	return nil
}

func (m *memoryStore) ScopeInvoices(_ context.Context, scope Scope, _ int64, stem string) ([]string, error) {
	var out []string
	if scope.Table == TableJournals {
		for _, inv := range m.journals {
			if strings.HasPrefix(inv, stem) {
				out = append(out, inv)
			}
		}
		return out, nil
	}
	for inv, typ := range m.transactions {
		if !strings.HasPrefix(inv, stem) {
			continue
		}
		if len(scope.Types) > 0 && !contains(scope.Types, typ) {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (m *memoryStore) LatestOrderInvoice(_ context.Context, stem string) (string, error) {
	latest := ""
	consider := func(inv string) {
		if strings.HasPrefix(inv, stem) && inv > latest {
			latest = inv
		}
	}
	for _, inv := range m.journals {
		consider(inv)
	}
	for inv := range m.orderInvoice {
		consider(inv)
	}
	for inv := range m.transactions {
		consider(inv)
	}
	return latest, nil
}

func (m *memoryStore) InvoiceTaken(_ context.Context, invoice string) (bool, error) {
	_, inTransactions := m.transactions[invoice]
	return contains(m.journals, invoice) || m.orderInvoice[invoice] || inTransactions || m.racing[invoice], nil
}

func (m *memoryStore) LatestOrderNumber(_ context.Context, stem string) (string, error) {
	for i := len(m.orderNumbers) - 1; i >= 0; i-- {
		if strings.HasPrefix(m.orderNumbers[i], stem) {
			return m.orderNumbers[i], nil
		}
	}
	return "", nil
}

func (m *memoryStore) OrderNumberTaken(_ context.Context, orderNumber string) (bool, error) {
	return contains(m.orderNumbers, orderNumber), nil
}

type countingMetrics struct {
	allocated  map[string]int
	collisions int
}

func (c *countingMetrics) InvoiceAllocated(prefix string) { c.allocated[prefix]++ }
func (c *countingMetrics) InvoiceCollision()              { c.collisions++ }

func fixedSequencer(metrics Metrics) *Sequencer {
	now := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
	return New(Config{Now: func() time.Time { return now }, Retries: 5, Metrics: metrics})
}

var actor = shared.Actor{UserID: 4, WarehouseID: 1}

func TestFormatAndSuffix(t *testing.T) {
	day := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "SO.BK.07032025.4.0000012", Format(PrefixSales, day, 4, 12))
	require.Equal(t, "ORDER-BKS-07032025-4-00003", FormatOrderNumber("BKS", day, 4, 3))

	n, ok := Suffix("AJ.BK.07032025.4.0000099", ".")
	require.True(t, ok)
	require.EqualValues(t, 99, n)
	_, ok = Suffix("garbage.", ".")
	require.False(t, ok)

	require.EqualValues(t, 1, NextNumber(nil))
	require.EqualValues(t, 11, NextNumber([]string{"X.1", "X.0000010", "X.bad"}))
}

func TestNextUsesScopeMaxPlusOne(t *testing.T) {
	store := newMemoryStore()
	metrics := &countingMetrics{allocated: map[string]int{}}
	seq := fixedSequencer(metrics)
	ctx := context.Background()

	inv, err := seq.Next(ctx, store, AdjustmentScope, actor)
	require.NoError(t, err)
	require.Equal(t, "AJ.BK.07032025.4.0000001", inv)
	store.transactions[inv] = "Adjustment"

	// Reversals share the adjustment prefix and must advance the same counter.
	inv, err = seq.Next(ctx, store, AdjustmentScope, actor)
	require.NoError(t, err)
	require.Equal(t, "AJ.BK.07032025.4.0000002", inv)
	store.transactions[inv] = "Return"

	inv, err = seq.Next(ctx, store, AdjustmentScope, actor)
	require.NoError(t, err)
	require.Equal(t, "AJ.BK.07032025.4.0000003", inv)

	other, err := seq.Next(ctx, store, AdjustmentScope, shared.Actor{UserID: 9, WarehouseID: 1})
	require.NoError(t, err)
	require.Equal(t, "AJ.BK.07032025.9.0000001", other)

	require.Equal(t, 4, metrics.allocated[PrefixAdjustment])
	require.Contains(t, store.locks, "invoice:transactions:AJ.BK:07032025:4")
}

func TestNextRejectsUnknownTable(t *testing.T) {
	seq := fixedSequencer(nil)
	_, err := seq.Next(context.Background(), newMemoryStore(), Scope{Prefix: "X", Table: "users; DROP"}, actor)
	require.ErrorIs(t, err, ErrUnknownTable)
	_, err = seq.Next(context.Background(), newMemoryStore(), SalesScope, shared.Actor{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNextOrderInvoiceStartsAfterEveryTable(t *testing.T) {
	store := newMemoryStore()
	metrics := &countingMetrics{allocated: map[string]int{}}
	seq := fixedSequencer(metrics)
	store.journals = []string{"RO.BK.07032025.4.0000002"}
	store.orderInvoice["RO.BK.07032025.4.0000004"] = true
	store.transactions["RO.BK.07032025.4.0000003"] = "Order"

	inv, err := seq.NextOrderInvoice(context.Background(), store, actor)
	require.NoError(t, err)
	require.Equal(t, "RO.BK.07032025.4.0000005", inv)
	require.Zero(t, metrics.collisions)
}

func TestNextOrderInvoiceUnpaidOrdersDoNotExhaustRetries(t *testing.T) {
	store := newMemoryStore()
	metrics := &countingMetrics{allocated: map[string]int{}}
	seq := fixedSequencer(metrics)

	// Parts-only orders hold their invoice without any journal row.
	for i := 1; i <= 25; i++ {
		inv, err := seq.NextOrderInvoice(context.Background(), store, actor)
		require.NoError(t, err, "allocation %d", i)
		require.Equal(t, Format(PrefixOrder, seq.Today(), actor.UserID, int64(i)), inv)
		store.orderInvoice[inv] = true
		store.transactions[inv] = "Order"
	}
	require.Zero(t, metrics.collisions)
	require.Equal(t, 25, metrics.allocated[PrefixOrder])
}

func TestNextOrderInvoiceSkipsConcurrentCommits(t *testing.T) {
	store := newMemoryStore()
	metrics := &countingMetrics{allocated: map[string]int{}}
	seq := fixedSequencer(metrics)
	store.journals = []string{"RO.BK.07032025.4.0000002"}
	store.racing["RO.BK.07032025.4.0000003"] = true
	store.racing["RO.BK.07032025.4.0000004"] = true

	inv, err := seq.NextOrderInvoice(context.Background(), store, actor)
	require.NoError(t, err)
	require.Equal(t, "RO.BK.07032025.4.0000005", inv)
	require.Equal(t, 2, metrics.collisions)
}

func TestNextOrderInvoiceGivesUp(t *testing.T) {
	store := newMemoryStore()
	seq := fixedSequencer(nil)
	for i := int64(1); i <= 5; i++ {
		store.racing[Format(PrefixOrder, seq.Today(), actor.UserID, i)] = true
	}
	_, err := seq.NextOrderInvoice(context.Background(), store, actor)
	require.ErrorIs(t, err, ErrInvoiceCollision)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestNextOrderNumber(t *testing.T) {
	store := newMemoryStore()
	seq := fixedSequencer(nil)
	ctx := context.Background()

	num, err := seq.NextOrderNumber(ctx, store, "BKS", actor)
	require.NoError(t, err)
	require.Equal(t, "ORDER-BKS-07032025-4-00001", num)
	store.orderNumbers = append(store.orderNumbers, num)

	num, err = seq.NextOrderNumber(ctx, store, "BKS", actor)
	require.NoError(t, err)
	require.Equal(t, "ORDER-BKS-07032025-4-00002", num)

	_, err = seq.NextOrderNumber(ctx, store, "", actor)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLikeStemEscapesWildcards(t *testing.T) {
	require.Equal(t, `ORDER-A\_B-07032025-4-%`, likeStem("ORDER-A_B-07032025-4-"))
}
