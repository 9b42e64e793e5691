// Package stock is the append-only stock movement ledger with point-in-time
// quantities and daily warehouse snapshots.
package stock

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const dayLayout = "2006-01-02"

// TypeMutation marks movements of a warehouse transfer.
const TypeMutation = "Mutation"

// Movement is a signed quantity event for a product at a warehouse.
type Movement struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	WarehouseID     int64           `json:"warehouse_id"`
	TransactionID   int64           `json:"transaction_id,omitempty"`
	Quantity        int64           `json:"quantity"`
	Cost            decimal.Decimal `json:"cost"`
	Price           decimal.Decimal `json:"price"`
	DateIssued      time.Time       `json:"date_issued"`
	IsInitial       bool            `json:"is_initial"`
	TransactionType string          `json:"transaction_type"`
}

// Validate checks a movement before it is appended.
func (m Movement) Validate() error {
	fields := map[string]string{}
	if m.ProductID <= 0 {
		fields["product_id"] = "is required"
	}
	if m.WarehouseID <= 0 {
		fields["warehouse_id"] = "is required"
	}
	if m.Quantity == 0 {
		fields["quantity"] = "must not be zero"
	}
	if m.Cost.IsNegative() {
		fields["cost"] = "must not be negative"
	}
	if m.Price.IsNegative() {
		fields["price"] = "must not be negative"
	}
	if m.DateIssued.IsZero() {
		fields["date_issued"] = "is required"
	}
	if len(fields) > 0 {
		return shared.ValidationFields(fields)
	}
	return nil
}

// Balance is the snapshot quantity of one product at one warehouse.
type Balance struct {
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	Quantity    int64 `json:"quantity"`
}

// ProductStock is a product with its quantity at a warehouse.
type ProductStock struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	CurrentCost decimal.Decimal `json:"current_cost"`
	Quantity    int64           `json:"stock_movements_sum_quantity"`
}

// WarehouseStock lists products at a warehouse with the value of the stock.
type WarehouseStock struct {
	WarehouseID int64           `json:"warehouse_id"`
	AsOf        string          `json:"as_of"`
	Products    []ProductStock  `json:"products"`
	TotalCost   decimal.Decimal `json:"summarizedProducts"`
}

// HistoryLine is one movement in a product history.
type HistoryLine struct {
	Movement
	Invoice       string `json:"invoice"`
	WarehouseName string `json:"warehouse_name"`
}
