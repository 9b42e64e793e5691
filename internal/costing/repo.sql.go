package costing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	q db.Querier
}

// NewPGStore constructs PGStore.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

func (s *PGStore) InboundMovements(ctx context.Context, productID int64) ([]Inbound, error) {
	rows, err := s.q.Query(ctx, `SELECT quantity, cost FROM stock_movements
WHERE product_id=$1 AND quantity > 0 AND transaction_type <> 'Mutation'`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Inbound
	for rows.Next() {
		var in Inbound
		if err := rows.Scan(&in.Quantity, &in.Cost); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *PGStore) CurrentCost(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := s.q.QueryRow(ctx, `SELECT current_cost FROM products WHERE id=$1`, productID).Scan(&cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrProductNotFound
	}
	return cost, err
}

func (s *PGStore) UpdateCurrentCost(ctx context.Context, productID int64, cost decimal.Decimal) error {
	tag, err := s.q.Exec(ctx, `UPDATE products SET current_cost=$2, updated_at=NOW() WHERE id=$1`, productID, cost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
