package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// PGStore implements Store, SnapshotStore and ReadStore on PostgreSQL.
type PGStore struct {
	q db.Querier
}

// NewPGStore constructs PGStore over a pool or an open transaction.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

func (s *PGStore) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO stock_movements (product_id, warehouse_id, transaction_id, quantity, cost, price, date_issued, is_initial, transaction_type, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		m.ProductID, m.WarehouseID, db.NullInt(m.TransactionID), m.Quantity, m.Cost, m.Price, m.DateIssued, m.IsInitial, m.TransactionType).Scan(&id)
	return id, err
}

func (s *PGStore) SumQuantity(ctx context.Context, productID, warehouseID int64, end time.Time) (int64, error) {
	var qty int64
	err := s.q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::bigint FROM stock_movements
WHERE product_id=$1 AND warehouse_id=$2 AND date_issued < $3`, productID, warehouseID, end).Scan(&qty)
	return qty, err
}

func (s *PGStore) Aggregate(ctx context.Context, end time.Time) ([]Balance, error) {
	rows, err := s.q.Query(ctx, `SELECT warehouse_id, product_id, COALESCE(SUM(quantity), 0)::bigint
FROM stock_movements
WHERE date_issued < $1
GROUP BY warehouse_id, product_id
ORDER BY warehouse_id, product_id`, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.WarehouseID, &b.ProductID, &b.Quantity); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpsertBalances writes every row in one statement keyed by
// (warehouse_id, product_id, balance_date).
func (s *PGStore) UpsertBalances(ctx context.Context, day time.Time, balances []Balance) error {
	if len(balances) == 0 {
		return nil
	}
	warehouses := make([]int64, len(balances))
	products := make([]int64, len(balances))
	quantities := make([]int64, len(balances))
	for i, b := range balances {
		warehouses[i] = b.WarehouseID
		products[i] = b.ProductID
		quantities[i] = b.Quantity
	}
	_, err := s.q.Exec(ctx, `INSERT INTO warehouse_stocks (warehouse_id, product_id, quantity, balance_date, created_at, updated_at)
SELECT u.warehouse_id, u.product_id, u.quantity, $1::date, NOW(), NOW()
FROM unnest($2::bigint[], $3::bigint[], $4::bigint[]) AS u(warehouse_id, product_id, quantity)
ON CONFLICT (warehouse_id, product_id, balance_date) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		day.Format(dayLayout), warehouses, products, quantities)
	return err
}

func (s *PGStore) WarehouseProducts(ctx context.Context, warehouseID int64, end time.Time, search string) ([]ProductStock, error) {
	rows, err := s.q.Query(ctx, `SELECT p.id, p.code, p.name, p.price, p.current_cost, COALESCE(SUM(m.quantity), 0)::bigint
FROM products p
LEFT JOIN stock_movements m ON m.product_id = p.id AND m.warehouse_id = $1 AND m.date_issued < $2
WHERE p.is_service = FALSE AND ($3 = '' OR p.name ILIKE '%' || $3 || '%' OR p.code ILIKE '%' || $3 || '%')
GROUP BY p.id
ORDER BY p.name`, warehouseID, end, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductStock
	for rows.Next() {
		var p ProductStock
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.CurrentCost, &p.Quantity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) WarehouseValue(ctx context.Context, warehouseID int64, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.q.QueryRow(ctx, `SELECT COALESCE(SUM(m.cost * m.quantity), 0)
FROM stock_movements m
JOIN products p ON p.id = m.product_id
WHERE p.is_service = FALSE AND m.warehouse_id = $1 AND m.date_issued < $2`, warehouseID, end).Scan(&total)
	return total, err
}

func (s *PGStore) History(ctx context.Context, productID int64, from, to time.Time) ([]HistoryLine, error) {
	rows, err := s.q.Query(ctx, `SELECT m.id, m.product_id, m.warehouse_id, COALESCE(m.transaction_id, 0), m.quantity, m.cost, m.price, m.date_issued, m.is_initial, m.transaction_type,
	COALESCE(t.invoice, ''), w.name
FROM stock_movements m
JOIN warehouses w ON w.id = m.warehouse_id
LEFT JOIN transactions t ON t.id = m.transaction_id
WHERE m.product_id = $1 AND m.date_issued >= $2 AND m.date_issued < $3
ORDER BY m.date_issued DESC, m.id DESC`, productID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryLine
	for rows.Next() {
		var h HistoryLine
		if err := rows.Scan(&h.ID, &h.ProductID, &h.WarehouseID, &h.TransactionID, &h.Quantity, &h.Cost, &h.Price, &h.DateIssued, &h.IsInitial, &h.TransactionType, &h.Invoice, &h.WarehouseName); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
