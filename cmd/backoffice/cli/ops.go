package cli

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// Recalculator rebuilds the stock snapshot for a YYYY-MM-DD day; empty
// means today.
type Recalculator interface {
	Run(ctx context.Context, date string) (stock.SnapshotResult, error)
}

// Roller materialises balance rollups at a YYYY-MM-DD cutover; empty means
// the last day of the previous month.
type Roller interface {
	Run(ctx context.Context, cutover string) (ledger.RollupResult, error)
}

// RecalcCommand runs the stock snapshot synchronously.
func RecalcCommand(ctx context.Context, r Recalculator, date string, out Output) int {
	res, err := r.Run(ctx, date)
	if err != nil {
		_, _ = fmt.Fprintf(out.stderr(), "recalc: %v\n", err)
		return 1
	}
	p := out.printer()
	_, _ = p.Fprintf(out.stdout(), "stock snapshot %s: %d rows\n", res.Date, res.Rows)
	return 0
}

// RollupCommand runs the ledger rollup synchronously.
func RollupCommand(ctx context.Context, r Roller, cutover string, out Output) int {
	res, err := r.Run(ctx, cutover)
	if err != nil {
		_, _ = fmt.Fprintf(out.stderr(), "rollup: %v\n", err)
		return 1
	}
	p := out.printer()
	_, _ = p.Fprintf(out.stdout(), "ledger rollup %s: %d accounts\n", res.Cutover, res.Accounts)
	if res.EquityAccount != "" {
		_, _ = p.Fprintf(out.stdout(), "equity %s: %s\n", res.EquityAccount, amount(p, res.EquityPosition))
	}
	return 0
}
