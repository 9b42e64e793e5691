package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const dayLayout = "2006-01-02"

// WarehouseRef names a warehouse in reports.
type WarehouseRef struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ReadStore is the read side used by reports and rollups.
type ReadStore interface {
	Account(ctx context.Context, id int64) (Account, error)
	Accounts(ctx context.Context) ([]Account, error)
	Warehouses(ctx context.Context) ([]WarehouseRef, error)
	// Totals sums entries of journals dated in [from, to). A zero from is
	// unbounded.
	Totals(ctx context.Context, from, to time.Time) (map[int64]Totals, error)
	// TotalsByWarehouse is Totals keyed by journal warehouse then account.
	TotalsByWarehouse(ctx context.Context, from, to time.Time) (map[int64]map[int64]Totals, error)
	Entries(ctx context.Context, accountID int64, from, to time.Time) ([]EntryLine, error)
	// LatestRollup returns the newest rollup with cutover on or before day.
	LatestRollup(ctx context.Context, day time.Time) (time.Time, map[int64]decimal.Decimal, bool, error)
	SaveRollup(ctx context.Context, cutover time.Time, balances map[int64]decimal.Decimal) error
	// WithRollupLock runs fn in one unit of work holding the rollup lock
	// exclusively. Rollup invalidation takes the same lock shared, so a back
	// dated posting either commits before fn reads or drops fn's rows after.
	WithRollupLock(ctx context.Context, fn func(context.Context, ReadStore) error) error
}

// ReportsConfig groups report settings.
type ReportsConfig struct {
	Location          *time.Location
	EquityAccountCode string
	Logger            *slog.Logger
}

// Reports answers balance and report queries.
type Reports struct {
	store      ReadStore
	cache      *cache.Versioned
	loc        *time.Location
	equityCode string
	logger     *slog.Logger
}

// NewReports constructs Reports. A nil cache disables caching.
func NewReports(store ReadStore, c *cache.Versioned, cfg ReportsConfig) *Reports {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reports{store: store, cache: c, loc: loc, equityCode: cfg.EquityAccountCode, logger: logger}
}

// Invalidate drops every cached report. Call after a committed posting.
func (r *Reports) Invalidate(ctx context.Context) error {
	return r.cache.Bump(ctx)
}

// Day truncates t to midnight in the report location.
func (r *Reports) Day(t time.Time) time.Time {
	local := t.In(r.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
}

func (r *Reports) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := r.cache.Key(ctx, parts...)
	if err != nil {
		r.logger.Warn("report cache key", slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(value, dest)
	}
	return r.cache.FetchJSON(ctx, key, dest, loader)
}

// balances computes every account balance at the end of day asOf. The base
// is the newest rollup on or before asOf; only later entries are scanned.
// Accounts missing from the rollup fall back to a full scan.
func (r *Reports) balances(ctx context.Context, accounts []Account, asOf time.Time) (map[int64]decimal.Decimal, error) {
	return r.balancesIn(ctx, r.store, accounts, asOf)
}

func (r *Reports) balancesIn(ctx context.Context, store ReadStore, accounts []Account, asOf time.Time) (map[int64]decimal.Decimal, error) {
	day := r.Day(asOf)
	end := day.AddDate(0, 0, 1)

	cutover, base, ok, err := store.LatestRollup(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("ledger: latest rollup: %w", err)
	}
	var from time.Time
	if ok {
		from = time.Date(cutover.Year(), cutover.Month(), cutover.Day(), 0, 0, 0, 0, r.loc).AddDate(0, 0, 1)
	}
	totals, err := store.Totals(ctx, from, end)
	if err != nil {
		return nil, fmt.Errorf("ledger: totals: %w", err)
	}

	var full map[int64]Totals
	out := make(map[int64]decimal.Decimal, len(accounts))
	for _, acc := range accounts {
		if ok {
			if b, has := base[acc.ID]; has {
				out[acc.ID] = Balance(acc.Side, b, totals[acc.ID])
				continue
			}
			if full == nil {
				if full, err = store.Totals(ctx, time.Time{}, end); err != nil {
					return nil, fmt.Errorf("ledger: totals: %w", err)
				}
			}
			out[acc.ID] = Balance(acc.Side, acc.StartingBalance, full[acc.ID])
			continue
		}
		out[acc.ID] = Balance(acc.Side, acc.StartingBalance, totals[acc.ID])
	}
	return out, nil
}

// AccountBalance is the point in time balance of one account.
type AccountBalance struct {
	Account Account         `json:"account"`
	AsOf    string          `json:"as_of"`
	Balance decimal.Decimal `json:"balance"`
}

// AccountBalance returns the balance of accountID at the end of day asOf.
func (r *Reports) AccountBalance(ctx context.Context, accountID int64, asOf time.Time) (AccountBalance, error) {
	acc, err := r.store.Account(ctx, accountID)
	if err != nil {
		return AccountBalance{}, err
	}
	balances, err := r.balances(ctx, []Account{acc}, asOf)
	if err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{Account: acc, AsOf: r.Day(asOf).Format(dayLayout), Balance: balances[acc.ID]}, nil
}

// EntriesForAccount lists entries of accountID dated within [start, end] days.
func (r *Reports) EntriesForAccount(ctx context.Context, accountID int64, start, end time.Time) ([]EntryLine, error) {
	from, to, err := r.window(start, end)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return r.store.Entries(ctx, accountID, from, to)
}

// MutationHistory is an account statement for a window.
type MutationHistory struct {
	Account        Account         `json:"account"`
	Start          string          `json:"start_date"`
	End            string          `json:"end_date"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	DebitTotal     decimal.Decimal `json:"debt_total"`
	CreditTotal    decimal.Decimal `json:"cred_total"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Entries        []EntryLine     `json:"entries"`
}

// MutationHistory opens with the balance at the end of the day before start.
func (r *Reports) MutationHistory(ctx context.Context, accountID int64, start, end time.Time) (MutationHistory, error) {
	from, to, err := r.window(start, end)
	if err != nil {
		return MutationHistory{}, err
	}
	acc, err := r.store.Account(ctx, accountID)
	if err != nil {
		return MutationHistory{}, err
	}
	opening, err := r.balances(ctx, []Account{acc}, from.AddDate(0, 0, -1))
	if err != nil {
		return MutationHistory{}, err
	}
	entries, err := r.store.Entries(ctx, accountID, from, to)
	if err != nil {
		return MutationHistory{}, err
	}
	var totals Totals
	for _, e := range entries {
		totals = totals.Add(Totals{Debit: e.Debit, Credit: e.Credit})
	}
	return MutationHistory{
		Account:        acc,
		Start:          from.Format(dayLayout),
		End:            to.AddDate(0, 0, -1).Format(dayLayout),
		OpeningBalance: opening[acc.ID],
		DebitTotal:     totals.Debit,
		CreditTotal:    totals.Credit,
		ClosingBalance: Balance(acc.Side, opening[acc.ID], totals),
		Entries:        entries,
	}, nil
}

// AccountAmount is one report line.
type AccountAmount struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Category  Category        `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
}

// ProfitLoss summarises revenue, cost and expense movement in a window.
type ProfitLoss struct {
	Start     string          `json:"start_date"`
	End       string          `json:"end_date"`
	Revenue   []AccountAmount `json:"revenue"`
	Cost      []AccountAmount `json:"cost"`
	Expense   []AccountAmount `json:"expense"`
	TotalRev  decimal.Decimal `json:"total_revenue"`
	TotalCost decimal.Decimal `json:"total_cost"`
	TotalExp  decimal.Decimal `json:"total_expense"`
	NetProfit decimal.Decimal `json:"net_profit"`
}

// ProfitLoss builds the profit and loss statement for [start, end].
func (r *Reports) ProfitLoss(ctx context.Context, start, end time.Time) (ProfitLoss, error) {
	from, to, err := r.window(start, end)
	if err != nil {
		return ProfitLoss{}, err
	}
	var out ProfitLoss
	err = r.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return r.profitLoss(ctx, from, to)
	}, "pl", from.Format(dayLayout), to.Format(dayLayout))
	return out, err
}

func (r *Reports) profitLoss(ctx context.Context, from, to time.Time) (ProfitLoss, error) {
	var (
		accounts []Account
		totals   map[int64]Totals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = r.store.Accounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = r.store.Totals(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return ProfitLoss{}, err
	}
	out := ProfitLoss{
		Start:   from.Format(dayLayout),
		End:     to.AddDate(0, 0, -1).Format(dayLayout),
		Revenue: []AccountAmount{},
		Cost:    []AccountAmount{},
		Expense: []AccountAmount{},
	}
	for _, acc := range accounts {
		line := amountLine(acc, Balance(acc.Side, decimal.Zero, totals[acc.ID]))
		switch acc.Category {
		case CategoryRevenue:
			out.Revenue = append(out.Revenue, line)
			out.TotalRev = out.TotalRev.Add(line.Amount)
		case CategoryCost:
			out.Cost = append(out.Cost, line)
			out.TotalCost = out.TotalCost.Add(line.Amount)
		case CategoryExpense:
			out.Expense = append(out.Expense, line)
			out.TotalExp = out.TotalExp.Add(line.Amount)
		}
	}
	out.NetProfit = out.TotalRev.Sub(out.TotalCost).Sub(out.TotalExp)
	return out, nil
}

// CashFlowLine is the movement of one cash or bank account.
type CashFlowLine struct {
	AccountAmount
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Movement        decimal.Decimal `json:"movement"`
}

// CashFlow lists cash and bank accounts for a window.
type CashFlow struct {
	Start    string          `json:"start_date"`
	End      string          `json:"end_date"`
	Accounts []CashFlowLine  `json:"accounts"`
	Movement decimal.Decimal `json:"total_movement"`
	Total    decimal.Decimal `json:"total"`
}

// CashFlow reports, for every cash and bank account, its starting balance
// plus the movement inside [start, end].
func (r *Reports) CashFlow(ctx context.Context, start, end time.Time) (CashFlow, error) {
	from, to, err := r.window(start, end)
	if err != nil {
		return CashFlow{}, err
	}
	var out CashFlow
	err = r.cached(ctx, &out, func(ctx context.Context) (any, error) {
		accounts, err := r.store.Accounts(ctx)
		if err != nil {
			return nil, err
		}
		totals, err := r.store.Totals(ctx, from, to)
		if err != nil {
			return nil, err
		}
		cf := CashFlow{Start: from.Format(dayLayout), End: to.AddDate(0, 0, -1).Format(dayLayout), Accounts: []CashFlowLine{}}
		for _, acc := range accounts {
			if acc.Liquidity == LiquidityNone {
				continue
			}
			movement := Balance(acc.Side, decimal.Zero, totals[acc.ID])
			line := CashFlowLine{
				AccountAmount:   amountLine(acc, acc.StartingBalance.Add(movement)),
				StartingBalance: acc.StartingBalance,
				Movement:        movement,
			}
			cf.Accounts = append(cf.Accounts, line)
			cf.Movement = cf.Movement.Add(movement)
			cf.Total = cf.Total.Add(line.Amount)
		}
		return cf, nil
	}, "cashflow", from.Format(dayLayout), to.Format(dayLayout))
	return out, err
}

// BalanceSheet is the statement of position at the end of a day.
type BalanceSheet struct {
	AsOf             string          `json:"as_of"`
	Assets           []AccountAmount `json:"assets"`
	Liabilities      []AccountAmount `json:"liabilities"`
	Equity           []AccountAmount `json:"equity"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	CurrentEarnings  decimal.Decimal `json:"current_earnings"`
}

// BalanceSheet returns balances of asset, liability and equity accounts at
// the end of asOf, with revenue less cost and expense as current earnings.
func (r *Reports) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	day := r.Day(asOf)
	var out BalanceSheet
	err := r.cached(ctx, &out, func(ctx context.Context) (any, error) {
		accounts, err := r.store.Accounts(ctx)
		if err != nil {
			return nil, err
		}
		balances, err := r.balances(ctx, accounts, day)
		if err != nil {
			return nil, err
		}
		bs := BalanceSheet{AsOf: day.Format(dayLayout), Assets: []AccountAmount{}, Liabilities: []AccountAmount{}, Equity: []AccountAmount{}}
		for _, acc := range accounts {
			line := amountLine(acc, balances[acc.ID])
			switch acc.Category {
			case CategoryAsset:
				bs.Assets = append(bs.Assets, line)
				bs.TotalAssets = bs.TotalAssets.Add(line.Amount)
			case CategoryLiability:
				bs.Liabilities = append(bs.Liabilities, line)
				bs.TotalLiabilities = bs.TotalLiabilities.Add(line.Amount)
			case CategoryEquity:
				bs.Equity = append(bs.Equity, line)
				bs.TotalEquity = bs.TotalEquity.Add(line.Amount)
			case CategoryRevenue:
				bs.CurrentEarnings = bs.CurrentEarnings.Add(line.Amount)
			case CategoryCost, CategoryExpense:
				bs.CurrentEarnings = bs.CurrentEarnings.Sub(line.Amount)
			}
		}
		return bs, nil
	}, "balancesheet", day.Format(dayLayout))
	return out, err
}

// WarehouseBalance holds the cash and bank position of one warehouse.
type WarehouseBalance struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Cash decimal.Decimal `json:"cash"`
	Bank decimal.Decimal `json:"bank"`
}

// WarehouseBalances aggregates cash and bank per warehouse.
type WarehouseBalances struct {
	Warehouses []WarehouseBalance `json:"warehouses"`
	TotalCash  decimal.Decimal    `json:"totalCash"`
	TotalBank  decimal.Decimal    `json:"totalBank"`
}

// WarehouseBalances returns cash and bank balances per warehouse at asOf.
func (r *Reports) WarehouseBalances(ctx context.Context, asOf time.Time) (WarehouseBalances, error) {
	day := r.Day(asOf)
	var out WarehouseBalances
	err := r.cached(ctx, &out, func(ctx context.Context) (any, error) {
		var (
			accounts   []Account
			warehouses []WarehouseRef
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			accounts, err = r.store.Accounts(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			warehouses, err = r.store.Warehouses(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		liquid := accounts[:0:0]
		for _, acc := range accounts {
			if acc.Liquidity != LiquidityNone {
				liquid = append(liquid, acc)
			}
		}
		balances, err := r.balances(ctx, liquid, day)
		if err != nil {
			return nil, err
		}
		res := WarehouseBalances{Warehouses: make([]WarehouseBalance, 0, len(warehouses))}
		byWarehouse := make(map[int64]*WarehouseBalance, len(warehouses))
		for _, w := range warehouses {
			res.Warehouses = append(res.Warehouses, WarehouseBalance{ID: w.ID, Name: w.Name})
		}
		for i := range res.Warehouses {
			byWarehouse[res.Warehouses[i].ID] = &res.Warehouses[i]
		}
		for _, acc := range liquid {
			bal := balances[acc.ID]
			wb := byWarehouse[acc.WarehouseID]
			switch acc.Liquidity {
			case LiquidityCash:
				res.TotalCash = res.TotalCash.Add(bal)
				if wb != nil {
					wb.Cash = wb.Cash.Add(bal)
				}
			case LiquidityBank:
				res.TotalBank = res.TotalBank.Add(bal)
				if wb != nil {
					wb.Bank = wb.Bank.Add(bal)
				}
			}
		}
		return res, nil
	}, "warehousebalance", day.Format(dayLayout))
	return out, err
}

// WarehouseRevenue is the profit summary of one warehouse.
type WarehouseRevenue struct {
	WarehouseID   int64           `json:"warehouse_id"`
	WarehouseCode string          `json:"warehouse_code"`
	WarehouseName string          `json:"warehouse_name"`
	Revenue       decimal.Decimal `json:"total_revenue"`
	Cost          decimal.Decimal `json:"total_cost"`
	Expense       decimal.Decimal `json:"total_expense"`
	NetProfit     decimal.Decimal `json:"net_profit"`
}

// RevenueByWarehouse groups revenue, cost and expense movement by the
// warehouse of each journal within [start, end].
func (r *Reports) RevenueByWarehouse(ctx context.Context, start, end time.Time) ([]WarehouseRevenue, error) {
	from, to, err := r.window(start, end)
	if err != nil {
		return nil, err
	}
	var out []WarehouseRevenue
	err = r.cached(ctx, &out, func(ctx context.Context) (any, error) {
		var (
			accounts   []Account
			warehouses []WarehouseRef
			totals     map[int64]map[int64]Totals
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			accounts, err = r.store.Accounts(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			warehouses, err = r.store.Warehouses(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			totals, err = r.store.TotalsByWarehouse(gctx, from, to)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		rows := make([]WarehouseRevenue, 0, len(warehouses))
		for _, w := range warehouses {
			row := WarehouseRevenue{WarehouseID: w.ID, WarehouseCode: w.Code, WarehouseName: w.Name}
			for _, acc := range accounts {
				amount := Balance(acc.Side, decimal.Zero, totals[w.ID][acc.ID])
				switch acc.Category {
				case CategoryRevenue:
					row.Revenue = row.Revenue.Add(amount)
				case CategoryCost:
					row.Cost = row.Cost.Add(amount)
				case CategoryExpense:
					row.Expense = row.Expense.Add(amount)
				}
			}
			row.NetProfit = row.Revenue.Sub(row.Cost).Sub(row.Expense)
			rows = append(rows, row)
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].NetProfit.GreaterThan(rows[j].NetProfit) })
		return rows, nil
	}, "revenue", from.Format(dayLayout), to.Format(dayLayout))
	return out, err
}

// window converts inclusive days into [from, to).
func (r *Reports) window(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, shared.Validation("start and end date are required")
	}
	from := r.Day(start)
	to := r.Day(end).AddDate(0, 0, 1)
	if !to.After(from) {
		return time.Time{}, time.Time{}, shared.Validation("end date must not be before start date")
	}
	return from, to, nil
}

func amountLine(acc Account, amount decimal.Decimal) AccountAmount {
	return AccountAmount{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Category: acc.Category, Amount: amount}
}

func assign(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
