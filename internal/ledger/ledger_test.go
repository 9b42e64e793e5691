package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func fixtureAccounts() []Account {
	return []Account{
		{ID: 1, Code: "10100-001", Name: "Kas", Category: CategoryAsset, Side: SideDebit, StartingBalance: d("1000"), WarehouseID: 1, Liquidity: LiquidityCash, IsPrimaryCash: true},
		{ID: 2, Code: "10200-001", Name: "Bank", Category: CategoryAsset, Side: SideDebit, StartingBalance: d("500"), WarehouseID: 1, Liquidity: LiquidityBank},
		{ID: 10, Code: "10500-001", Name: "Persediaan", Category: CategoryAsset, Side: SideDebit},
		{ID: 16, Code: "40100-001", Name: "Penjualan", Category: CategoryRevenue, Side: SideCredit},
		{ID: 21, Code: "50100-001", Name: "HPP", Category: CategoryCost, Side: SideDebit},
		{ID: 30, Code: "30100-001", Name: "Modal", Category: CategoryEquity, Side: SideCredit, StartingBalance: d("1500")},
		{ID: 43, Code: "60100-001", Name: "Biaya Admin Bank", Category: CategoryExpense, Side: SideDebit},
	}
}

type countingMetrics struct{ posted map[string]int }

func (c *countingMetrics) JournalPosted(t string) { c.posted[t]++ }

func post(t *testing.T, e *Engine, store Store, invoice string, at time.Time, typ JournalType, warehouseID int64, b *Builder) Journal {
	t.Helper()
	j, err := e.Post(context.Background(), store, PostingInput{
		Invoice: invoice, DateIssued: at, Type: typ, WarehouseID: warehouseID, UserID: 1, Lines: b.Lines(),
	})
	require.NoError(t, err)
	return j
}

func TestPostingInputValidate(t *testing.T) {
	base := PostingInput{Invoice: "AJ.BK.01012025.1.0000001", DateIssued: day(2025, 1, 1), Type: JournalAdjustment}

	in := base
	require.ErrorIs(t, in.Validate(), ErrEmptyJournal)

	in.Lines = []Line{{AccountID: 10, Debit: d("100")}, {AccountID: 30, Credit: d("99.99")}}
	require.ErrorIs(t, in.Validate(), ErrUnbalanced)
	require.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in.Lines = []Line{{AccountID: 10, Debit: d("100"), Credit: d("100")}}
	require.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in.Lines = []Line{{AccountID: 10, Debit: d("-5")}, {AccountID: 30, Credit: d("-5")}}
	require.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in.Lines = []Line{{AccountID: 10, Debit: d("100.001")}, {AccountID: 30, Credit: d("100")}}
	require.NoError(t, in.Validate())

	in.Invoice = ""
	require.ErrorIs(t, in.Validate(), shared.ErrValidation)
}

func TestBuilderSkipsZeroAndFlipsNegative(t *testing.T) {
	var b Builder
	b.Pair(10, 30, d("1000")).Debit(1, decimal.Zero).Debit(16, d("-300")).Credit(1, d("-300"))
	lines := b.Lines()
	require.Len(t, lines, 4)
	require.Equal(t, Line{AccountID: 10, Debit: d("1000")}, lines[0])
	require.Equal(t, Line{AccountID: 30, Credit: d("1000")}, lines[1])
	require.Equal(t, int64(16), lines[2].AccountID)
	require.True(t, lines[2].Credit.Equal(d("300")))
	require.True(t, lines[3].Debit.Equal(d("300")))
}

func TestBalanceBySide(t *testing.T) {
	totals := Totals{Debit: d("300"), Credit: d("100")}
	require.True(t, Balance(SideDebit, d("50"), totals).Equal(d("250")))
	require.True(t, Balance(SideCredit, d("50"), totals).Equal(d("-150")))
}

func TestPostRejectsUnknownAccount(t *testing.T) {
	store := newMemoryStore(fixtureAccounts()...)
	e := NewEngine(nil, time.UTC)
	var b Builder
	b.Pair(10, 999, d("10"))
	_, err := e.Post(context.Background(), store, PostingInput{Invoice: "X", DateIssued: day(2025, 1, 1), Type: JournalAdjustment, Lines: b.Lines()})
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.Empty(t, store.journals)
}

func TestPostWritesBalancedJournal(t *testing.T) {
	store := newMemoryStore(fixtureAccounts()...)
	metrics := &countingMetrics{posted: map[string]int{}}
	e := NewEngine(metrics, time.UTC)
	var b Builder
	j := post(t, e, store, "AJ.BK.01012025.1.0000001", day(2025, 1, 1), JournalAdjustment, 1, b.Pair(10, 30, d("1000")))
	require.NotZero(t, j.ID)
	require.Len(t, j.Entries, 2)

	stored, err := store.JournalByInvoice(context.Background(), j.Invoice)
	require.NoError(t, err)
	var sum Totals
	for _, e := range stored.Entries {
		sum = sum.Add(Totals{Debit: e.Debit, Credit: e.Credit})
	}
	require.True(t, sum.Debit.Equal(sum.Credit))
	require.Equal(t, 1, metrics.posted["Adjustment"])
}

func TestTwoTierBalancesAgree(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(fixtureAccounts()...)
	e := NewEngine(nil, time.UTC)
	reports := NewReports(store, nil, ReportsConfig{Location: time.UTC, EquityAccountCode: "30100-001", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	var b1, b2, b3 Builder
	post(t, e, store, "SO.BK.05012025.1.0000001", day(2025, 1, 5).Add(10*time.Hour), JournalSales, 1, b1.Pair(1, 16, d("250")).Pair(21, 10, d("100")))
	post(t, e, store, "GR.BK.20012025.1.0000001", day(2025, 1, 20), JournalMutasi, 1, b2.Pair(2, 1, d("200")).Pair(43, 1, d("2.50")))
	post(t, e, store, "SO.BK.03022025.1.0000001", day(2025, 2, 3), JournalSales, 1, b3.Pair(2, 16, d("80")))

	before, err := reports.AccountBalance(ctx, 1, day(2025, 2, 10))
	require.NoError(t, err)
	require.True(t, before.Balance.Equal(d("1047.50")), before.Balance.String())

	res, err := reports.Rollup(ctx, day(2025, 1, 31))
	require.NoError(t, err)
	require.Equal(t, "2025-01-31", res.Cutover)
	require.Equal(t, "30100-001", res.EquityAccount)
	require.Contains(t, store.rollups, "2025-01-31")
	require.True(t, store.rollups["2025-01-31"][30].Equal(d("1500")), "starting balance stays untouched")

	after, err := reports.AccountBalance(ctx, 1, day(2025, 2, 10))
	require.NoError(t, err)
	require.True(t, before.Balance.Equal(after.Balance))
	bank, err := reports.AccountBalance(ctx, 2, day(2025, 2, 10))
	require.NoError(t, err)
	require.True(t, bank.Balance.Equal(d("780")))

	// A back dated posting invalidates the rollup so both tiers still agree.
	var b4 Builder
	post(t, e, store, "GR.BK.15012025.1.0000001", day(2025, 1, 15), JournalMutasi, 1, b4.Pair(1, 30, d("10")))
	require.NotContains(t, store.rollups, "2025-01-31")
	cash, err := reports.AccountBalance(ctx, 1, day(2025, 2, 10))
	require.NoError(t, err)
	require.True(t, cash.Balance.Equal(d("1057.50")))
}

func TestBackdatedPostingDuringRollupDropsItsRow(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(fixtureAccounts()...)
	e := NewEngine(nil, time.UTC)
	reports := NewReports(store, nil, ReportsConfig{Location: time.UTC, EquityAccountCode: "30100-001"})

	var b1 Builder
	post(t, e, store, "SO.BK.05012025.1.0000001", day(2025, 1, 5), JournalSales, 1, b1.Pair(1, 16, d("250")))

	// The posting reaches invalidation after the rollup has read its totals
	// and before it saves them.
	store.invalidating = make(chan struct{}, 1)
	posted := make(chan error, 1)
	store.beforeSave = func() {
		store.beforeSave = nil
		go func() {
			var b Builder
			_, err := e.Post(ctx, store, PostingInput{
				Invoice: "GR.BK.15012025.1.0000001", DateIssued: day(2025, 1, 15), Type: JournalMutasi,
				WarehouseID: 1, UserID: 1, Lines: b.Pair(1, 30, d("10")).Lines(),
			})
			posted <- err
		}()
		<-store.invalidating
	}

	_, err := reports.Rollup(ctx, day(2025, 1, 31))
	require.NoError(t, err)
	require.NoError(t, <-posted)
	require.NotContains(t, store.rollups, "2025-01-31")

	cash, err := reports.AccountBalance(ctx, 1, day(2025, 2, 10))
	require.NoError(t, err)
	require.True(t, cash.Balance.Equal(d("1260")), cash.Balance.String())
}

func TestRollupEquityPosition(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(fixtureAccounts()...)
	e := NewEngine(nil, time.UTC)
	reports := NewReports(store, nil, ReportsConfig{Location: time.UTC, EquityAccountCode: "30100-001"})

	var b Builder
	post(t, e, store, "AJ.BK.02012025.1.0000001", day(2025, 1, 2), JournalAdjustment, 1, b.Pair(10, 30, d("400")))

	res, err := reports.Rollup(ctx, day(2025, 1, 31))
	require.NoError(t, err)
	// opening 1500 + assets (1000 + 500 + 400) - liabilities 0 - equity 1900
	require.True(t, res.EquityPosition.Equal(d("1500")), res.EquityPosition.String())

	again, err := reports.Rollup(ctx, day(2025, 1, 31))
	require.NoError(t, err)
	require.True(t, again.EquityPosition.Equal(res.EquityPosition))
}

func TestMutationHistoryOpensDayBeforeStart(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(fixtureAccounts()...)
	e := NewEngine(nil, time.UTC)
	reports := NewReports(store, nil, ReportsConfig{Location: time.UTC})

	var b1, b2, b3 Builder
	post(t, e, store, "A", day(2025, 3, 1).Add(23*time.Hour), JournalSales, 1, b1.Pair(1, 16, d("100")))
	post(t, e, store, "B", day(2025, 3, 2), JournalSales, 1, b2.Pair(1, 16, d("40")))
	post(t, e, store, "C", day(2025, 3, 3).Add(12*time.Hour), JournalMutasi, 1, b3.Pair(43, 1, d("15")))

	hist, err := reports.MutationHistory(ctx, 1, day(2025, 3, 2), day(2025, 3, 3))
	require.NoError(t, err)
	require.True(t, hist.OpeningBalance.Equal(d("1100")))
	require.True(t, hist.DebitTotal.Equal(d("40")))
	require.True(t, hist.CreditTotal.Equal(d("15")))
	require.True(t, hist.ClosingBalance.Equal(d("1125")))
	require.Len(t, hist.Entries, 2)

	_, err = reports.MutationHistory(ctx, 1, day(2025, 3, 3), day(2025, 3, 2))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = reports.MutationHistory(ctx, 404, day(2025, 3, 1), day(2025, 3, 2))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestProfitLossIsCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemoryStore(fixtureAccounts()...)
	e := NewEngine(nil, time.UTC)
	reports := NewReports(store, cache.NewVersioned(client, "ledger", time.Minute), ReportsConfig{Location: time.UTC})

	var b1 Builder
	post(t, e, store, "S1", day(2025, 4, 1), JournalSales, 1, b1.Pair(1, 16, d("500")).Pair(21, 10, d("200")))
	pl, err := reports.ProfitLoss(ctx, day(2025, 4, 1), day(2025, 4, 30))
	require.NoError(t, err)
	require.True(t, pl.TotalRev.Equal(d("500")))
	require.True(t, pl.NetProfit.Equal(d("300")))

	var b2 Builder
	post(t, e, store, "F1", day(2025, 4, 2), JournalMutasi, 1, b2.Pair(43, 1, d("50")))
	cached, err := reports.ProfitLoss(ctx, day(2025, 4, 1), day(2025, 4, 30))
	require.NoError(t, err)
	require.True(t, cached.NetProfit.Equal(d("300")))

	require.NoError(t, reports.Invalidate(ctx))
	fresh, err := reports.ProfitLoss(ctx, day(2025, 4, 1), day(2025, 4, 30))
	require.NoError(t, err)
	require.True(t, fresh.NetProfit.Equal(d("250")))
	require.True(t, fresh.TotalExp.Equal(d("50")))
}

func TestWarehouseReports(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(fixtureAccounts()...)
	store.warehouses = []WarehouseRef{{ID: 1, Code: "BKS", Name: "Bekasi"}, {ID: 2, Code: "JKT", Name: "Jakarta"}}
	e := NewEngine(nil, time.UTC)
	reports := NewReports(store, nil, ReportsConfig{Location: time.UTC})

	var b1, b2 Builder
	post(t, e, store, "S1", day(2025, 5, 1), JournalSales, 1, b1.Pair(1, 16, d("300")))
	post(t, e, store, "S2", day(2025, 5, 1), JournalSales, 2, b2.Pair(2, 16, d("100")).Pair(21, 10, d("30")))

	balances, err := reports.WarehouseBalances(ctx, day(2025, 5, 1))
	require.NoError(t, err)
	require.True(t, balances.TotalCash.Equal(d("1300")))
	require.True(t, balances.TotalBank.Equal(d("600")))
	require.True(t, balances.Warehouses[0].Cash.Equal(d("1300")))
	require.True(t, balances.Warehouses[1].Cash.IsZero())

	revenue, err := reports.RevenueByWarehouse(ctx, day(2025, 5, 1), day(2025, 5, 1))
	require.NoError(t, err)
	require.Len(t, revenue, 2)
	require.Equal(t, int64(1), revenue[0].WarehouseID)
	require.True(t, revenue[0].NetProfit.Equal(d("300")))
	require.True(t, revenue[1].NetProfit.Equal(d("70")))

	cf, err := reports.CashFlow(ctx, day(2025, 5, 1), day(2025, 5, 31))
	require.NoError(t, err)
	require.Len(t, cf.Accounts, 2)
	require.True(t, cf.Movement.Equal(d("400")))
	require.True(t, cf.Total.Equal(d("1900")))

	bs, err := reports.BalanceSheet(ctx, day(2025, 5, 31))
	require.NoError(t, err)
	require.True(t, bs.CurrentEarnings.Equal(d("370")))
	require.True(t, bs.TotalEquity.Equal(d("1500")))
}

func TestAmendRetargetsPaymentAccount(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(fixtureAccounts()...)
	e := NewEngine(nil, time.UTC)
	var b Builder
	post(t, e, store, "RO.BK.01062025.1.0000001", day(2025, 6, 1), JournalSales, 1, b.Pair(1, 16, d("100")))

	j, err := e.Amend(ctx, store, "RO.BK.01062025.1.0000001", day(2025, 6, 2), "Pembayaran Service Order X. Note: ok", 1, 2)
	require.NoError(t, err)
	require.Equal(t, day(2025, 6, 2), j.DateIssued)
	require.Equal(t, int64(2), j.Entries[0].AccountID)

	_, err = e.Amend(ctx, store, "RO.BK.01062025.1.0000001", time.Time{}, "x", 2, 999)
	require.ErrorIs(t, err, ErrAccountNotFound)

	n, err := e.Delete(ctx, store, "RO.BK.01062025.1.0000001")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = e.Delete(ctx, store, "missing")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPreviousMonthEnd(t *testing.T) {
	require.Equal(t, day(2025, 2, 28), PreviousMonthEnd(time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC), time.UTC))
	require.Equal(t, day(2024, 12, 31), PreviousMonthEnd(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), time.UTC))
}
