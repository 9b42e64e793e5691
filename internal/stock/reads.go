package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ReadStore serves stock queries.
type ReadStore interface {
	QuantityStore
	// WarehouseProducts lists non-service products with the quantity of
	// movements at the warehouse dated before end.
	WarehouseProducts(ctx context.Context, warehouseID int64, end time.Time, search string) ([]ProductStock, error)
	// WarehouseValue is Σ(cost×quantity) of those movements.
	WarehouseValue(ctx context.Context, warehouseID int64, end time.Time) (decimal.Decimal, error)
	// History lists movements of a product dated in [from, to), newest first.
	History(ctx context.Context, productID int64, from, to time.Time) ([]HistoryLine, error)
}

// Reader answers stock queries.
type Reader struct {
	store  ReadStore
	ledger *Ledger
}

// NewReader constructs a Reader.
func NewReader(store ReadStore, ledger *Ledger) *Reader {
	if ledger == nil {
		ledger = NewLedger(nil)
	}
	return &Reader{store: store, ledger: ledger}
}

// WarehouseStock lists product quantities at a warehouse as of the end of day.
func (r *Reader) WarehouseStock(ctx context.Context, warehouseID int64, asOf time.Time, search string) (WarehouseStock, error) {
	if warehouseID <= 0 {
		return WarehouseStock{}, shared.Validation("warehouse is required")
	}
	end := r.ledger.EndOfDay(asOf)
	products, err := r.store.WarehouseProducts(ctx, warehouseID, end, strings.TrimSpace(search))
	if err != nil {
		return WarehouseStock{}, fmt.Errorf("stock: warehouse products: %w", err)
	}
	total, err := r.store.WarehouseValue(ctx, warehouseID, end)
	if err != nil {
		return WarehouseStock{}, fmt.Errorf("stock: warehouse value: %w", err)
	}
	if products == nil {
		products = []ProductStock{}
	}
	return WarehouseStock{
		WarehouseID: warehouseID,
		AsOf:        r.ledger.Day(asOf).Format(dayLayout),
		Products:    products,
		TotalCost:   total,
	}, nil
}

// ProductHistory lists the movements of a product between two days inclusive.
func (r *Reader) ProductHistory(ctx context.Context, productID int64, start, end time.Time) ([]HistoryLine, error) {
	if productID <= 0 {
		return nil, shared.Validation("product is required")
	}
	from := r.ledger.Day(start)
	to := r.ledger.EndOfDay(end)
	if !from.Before(to) {
		return nil, shared.Validation("start date must not be after end date")
	}
	lines, err := r.store.History(ctx, productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("stock: product history: %w", err)
	}
	if lines == nil {
		lines = []HistoryLine{}
	}
	return lines, nil
}

// ProductQuantity is the stock of one product at one warehouse.
type ProductQuantity struct {
	ProductID   int64  `json:"product_id"`
	WarehouseID int64  `json:"warehouse_id"`
	AsOf        string `json:"as_of"`
	Quantity    int64  `json:"quantity"`
}

// Quantity returns the quantity of a product at a warehouse at the end of day.
func (r *Reader) Quantity(ctx context.Context, productID, warehouseID int64, asOf time.Time) (ProductQuantity, error) {
	fields := map[string]string{}
	if productID <= 0 {
		fields["product_id"] = "is required"
	}
	if warehouseID <= 0 {
		fields["warehouse_id"] = "is required"
	}
	if len(fields) > 0 {
		return ProductQuantity{}, shared.ValidationFields(fields)
	}
	qty, err := r.ledger.QuantityAsOf(ctx, r.store, productID, warehouseID, asOf)
	if err != nil {
		return ProductQuantity{}, fmt.Errorf("stock: quantity: %w", err)
	}
	return ProductQuantity{
		ProductID:   productID,
		WarehouseID: warehouseID,
		AsOf:        r.ledger.Day(asOf).Format(dayLayout),
		Quantity:    qty,
	}, nil
}
