package stock

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryStore struct {
	movements []Movement
	snapshots map[string]map[[2]int64]int64
	upserts   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: map[string]map[[2]int64]int64{}}
}

func (m *memoryStore) InsertMovement(_ context.Context, mv Movement) (int64, error) {
	mv.ID = int64(len(m.movements) + 1)
	m.movements = append(m.movements, mv)
	return mv.ID, nil
}

func (m *memoryStore) SumQuantity(_ context.Context, productID, warehouseID int64, end time.Time) (int64, error) {
	var qty int64
	for _, mv := range m.movements {
		if mv.ProductID == productID && mv.WarehouseID == warehouseID && mv.DateIssued.Before(end) {
			qty += mv.Quantity
		}
	}
	return qty, nil
}

func (m *memoryStore) Aggregate(_ context.Context, end time.Time) ([]Balance, error) {
	sums := map[[2]int64]int64{}
	for _, mv := range m.movements {
		if mv.DateIssued.Before(end) {
			sums[[2]int64{mv.WarehouseID, mv.ProductID}] += mv.Quantity
		}
	}
	out := make([]Balance, 0, len(sums))
	for k, q := range sums {
		out = append(out, Balance{WarehouseID: k[0], ProductID: k[1], Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WarehouseID != out[j].WarehouseID {
			return out[i].WarehouseID < out[j].WarehouseID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (m *memoryStore) UpsertBalances(_ context.Context, day time.Time, balances []Balance) error {
	m.upserts++
	key := day.Format(dayLayout)
	if m.snapshots[key] == nil {
		m.snapshots[key] = map[[2]int64]int64{}
	}
	for _, b := range balances {
		m.snapshots[key][[2]int64{b.WarehouseID, b.ProductID}] = b.Quantity
	}
	return nil
}

type gaugeRecorder struct{ last int }

func (g *gaugeRecorder) SnapshotRows(n int) { g.last = n }

func jakarta(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	return loc
}

func movement(product, warehouse, qty int64, at time.Time) Movement {
	return Movement{ProductID: product, WarehouseID: warehouse, Quantity: qty, Cost: decimal.NewFromInt(100), DateIssued: at}
}

func TestRecordValidates(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(nil)
	store := newMemoryStore()

	_, err := ledger.Record(ctx, store, Movement{ProductID: 1, WarehouseID: 1, DateIssued: time.Now()})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = ledger.Record(ctx, store, Movement{ProductID: 1, WarehouseID: 1, Quantity: 1, Cost: decimal.NewFromInt(-1), DateIssued: time.Now()})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, store.movements)

	m, err := ledger.Record(ctx, store, movement(1, 1, 5, time.Now()))
	require.NoError(t, err)
	require.Equal(t, int64(1), m.ID)
}

func TestQuantityAsOfIsEndOfDayInclusive(t *testing.T) {
	ctx := context.Background()
	loc := jakarta(t)
	ledger := NewLedger(loc)
	store := newMemoryStore()

	day1 := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)
	day2 := time.Date(2025, 3, 12, 23, 30, 0, 0, loc)
	for _, mv := range []Movement{movement(1, 1, 10, day1), movement(1, 1, -3, day2), movement(1, 2, 7, day1), movement(2, 1, 4, day1)} {
		_, err := ledger.Record(ctx, store, mv)
		require.NoError(t, err)
	}

	qty, err := ledger.QuantityAsOf(ctx, store, 1, 1, time.Date(2025, 3, 9, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	require.Zero(t, qty)

	qty, err = ledger.QuantityAsOf(ctx, store, 1, 1, time.Date(2025, 3, 12, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	require.Equal(t, int64(7), qty)

	qty, err = ledger.QuantityAsOf(ctx, store, 1, 1, time.Date(2025, 4, 1, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	require.Equal(t, int64(7), qty)
}

func TestSnapshotIsIdempotent(t *testing.T) {
	ctx := context.Background()
	loc := jakarta(t)
	ledger := NewLedger(loc)
	store := newMemoryStore()
	gauge := &gaugeRecorder{}
	snap := NewSnapshotter(store, ledger, nil, gauge)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	for _, mv := range []Movement{movement(1, 1, 10, day.Add(8*time.Hour)), movement(1, 1, -4, day.Add(20*time.Hour)), movement(1, 2, 3, day), movement(1, 1, 50, day.AddDate(0, 0, 1))} {
		_, err := ledger.Record(ctx, store, mv)
		require.NoError(t, err)
	}

	first, err := snap.Run(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)
	require.Equal(t, "2025-03-10", first.Date)
	require.Equal(t, 2, first.Rows)
	require.Equal(t, 2, gauge.last)
	rows := store.snapshots["2025-03-10"]
	require.Equal(t, int64(6), rows[[2]int64{1, 1}])
	require.Equal(t, int64(3), rows[[2]int64{2, 1}])

	second, err := snap.Run(ctx, day)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 2, store.upserts)
	require.Equal(t, int64(6), store.snapshots["2025-03-10"][[2]int64{1, 1}])
	require.Len(t, store.snapshots, 1)
}

type memoryReadStore struct {
	products []ProductStock
	value    decimal.Decimal
	from, to time.Time
	quantity int64
	end      time.Time
}

func (m *memoryReadStore) SumQuantity(_ context.Context, _, _ int64, end time.Time) (int64, error) {
	m.end = end
	return m.quantity, nil
}

func (m *memoryReadStore) WarehouseProducts(context.Context, int64, time.Time, string) ([]ProductStock, error) {
	return m.products, nil
}

func (m *memoryReadStore) WarehouseValue(context.Context, int64, time.Time) (decimal.Decimal, error) {
	return m.value, nil
}

func (m *memoryReadStore) History(_ context.Context, _ int64, from, to time.Time) ([]HistoryLine, error) {
	m.from, m.to = from, to
	return nil, nil
}

func TestReaderWindows(t *testing.T) {
	ctx := context.Background()
	store := &memoryReadStore{value: decimal.NewFromInt(1500)}
	reader := NewReader(store, NewLedger(time.UTC))

	ws, err := reader.WarehouseStock(ctx, 1, time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	require.Equal(t, "2025-03-10", ws.AsOf)
	require.NotNil(t, ws.Products)
	require.True(t, ws.TotalCost.Equal(decimal.NewFromInt(1500)))

	_, err = reader.WarehouseStock(ctx, 0, time.Now(), "")
	require.ErrorIs(t, err, shared.ErrValidation)

	lines, err := reader.ProductHistory(ctx, 1, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, lines)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), store.from)
	require.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), store.to)

	_, err = reader.ProductHistory(ctx, 1, time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrValidation)
}
