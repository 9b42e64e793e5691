package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// RollupResult describes a materialised cutover.
type RollupResult struct {
	Cutover        string          `json:"cutover"`
	Accounts       int             `json:"accounts"`
	EquityAccount  string          `json:"equity_account,omitempty"`
	EquityPosition decimal.Decimal `json:"equity_position"`
}

// Rollup materialises every account balance at the end of cutover into the
// rollup tier and returns the equity position: the designated equity
// account's opening balance plus assets less liabilities less equity.
// Starting balances are never rewritten. Rerunning for the same day
// overwrites the same rows.
func (r *Reports) Rollup(ctx context.Context, cutover time.Time) (RollupResult, error) {
	day := r.Day(cutover)
	var (
		accounts []Account
		balances map[int64]decimal.Decimal
	)
	err := r.store.WithRollupLock(ctx, func(ctx context.Context, store ReadStore) error {
		var err error
		if accounts, err = store.Accounts(ctx); err != nil {
			return fmt.Errorf("ledger: rollup accounts: %w", err)
		}
		if balances, err = r.balancesIn(ctx, store, accounts, day); err != nil {
			return err
		}
		if err := store.SaveRollup(ctx, day, balances); err != nil {
			return fmt.Errorf("ledger: save rollup: %w", err)
		}
		return nil
	})
	if err != nil {
		return RollupResult{}, err
	}

	res := RollupResult{Cutover: day.Format(dayLayout), Accounts: len(accounts)}
	var assets, liabilities, equity, opening decimal.Decimal
	for _, acc := range accounts {
		switch acc.Category {
		case CategoryAsset:
			assets = assets.Add(balances[acc.ID])
		case CategoryLiability:
			liabilities = liabilities.Add(balances[acc.ID])
		case CategoryEquity:
			equity = equity.Add(balances[acc.ID])
		}
		if acc.Code == r.equityCode {
			res.EquityAccount = acc.Code
			opening = acc.StartingBalance
		}
	}
	if res.EquityAccount == "" {
		r.logger.Warn("equity account not found for rollup", slog.String("code", r.equityCode))
	}
	res.EquityPosition = opening.Add(assets).Sub(liabilities).Sub(equity)
	r.logger.Info("ledger rollup stored",
		slog.String("cutover", res.Cutover),
		slog.Int("accounts", res.Accounts),
		slog.String("equity_position", res.EquityPosition.StringFixed(2)))
	return res, nil
}

// PreviousMonthEnd returns the last day of the month before now in loc.
func PreviousMonthEnd(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
}
