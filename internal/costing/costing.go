// Package costing maintains the moving average cost of products.
package costing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Inbound is a positive stock movement with its unit cost.
type Inbound struct {
	Quantity int64
	Cost     decimal.Decimal
}

// ErrProductNotFound is returned when the product row is missing.
var ErrProductNotFound = shared.NotFound("product")

// MovingAverage returns Σ(qty×cost)/Σqty over positive movements rounded to
// two places. ok is false when there is no inbound quantity.
func MovingAverage(inbound []Inbound) (decimal.Decimal, bool) {
	var qty int64
	total := decimal.Zero
	for _, in := range inbound {
		if in.Quantity <= 0 {
			continue
		}
		qty += in.Quantity
		total = total.Add(in.Cost.Mul(decimal.NewFromInt(in.Quantity)))
	}
	if qty == 0 {
		return decimal.Zero, false
	}
	return total.Div(decimal.NewFromInt(qty)).Round(2), true
}

// Store loads inbound history and writes products.current_cost.
type Store interface {
	// InboundMovements returns every positive movement of the product that
	// brings new value in. Transfers between warehouses are excluded.
	InboundMovements(ctx context.Context, productID int64) ([]Inbound, error)
	CurrentCost(ctx context.Context, productID int64) (decimal.Decimal, error)
	UpdateCurrentCost(ctx context.Context, productID int64, cost decimal.Decimal) error
}

// Metrics receives recompute outcomes.
type Metrics interface {
	CostRecomputed(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) CostRecomputed(string) {}

// Recompute outcomes.
const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeNoInbound = "no_inbound"
)

// Result describes a recompute.
type Result struct {
	ProductID int64           `json:"product_id"`
	Previous  decimal.Decimal `json:"previous_cost"`
	Cost      decimal.Decimal `json:"current_cost"`
	Outcome   string          `json:"outcome"`
}

// Engine recomputes cost from the full movement history.
type Engine struct {
	metrics Metrics
}

// NewEngine constructs an Engine.
func NewEngine(metrics Metrics) *Engine {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Engine{metrics: metrics}
}

// Recompute writes the moving average cost of productID. Without inbound
// quantity the current cost is left untouched.
func (e *Engine) Recompute(ctx context.Context, store Store, productID int64) (Result, error) {
	if productID <= 0 {
		return Result{}, shared.Validation("product is required")
	}
	previous, err := store.CurrentCost(ctx, productID)
	if err != nil {
		return Result{}, err
	}
	res := Result{ProductID: productID, Previous: previous, Cost: previous}
	inbound, err := store.InboundMovements(ctx, productID)
	if err != nil {
		return Result{}, fmt.Errorf("costing: load movements: %w", err)
	}
	cost, ok := MovingAverage(inbound)
	switch {
	case !ok:
		res.Outcome = OutcomeNoInbound
	case cost.Equal(previous):
		res.Outcome = OutcomeUnchanged
	default:
		if err := store.UpdateCurrentCost(ctx, productID, cost); err != nil {
			return Result{}, fmt.Errorf("costing: update cost: %w", err)
		}
		res.Cost = cost
		res.Outcome = OutcomeUpdated
	}
	e.metrics.CostRecomputed(res.Outcome)
	return res, nil
}
