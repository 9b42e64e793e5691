package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// PGStore implements Store on PostgreSQL. Pass the open transaction as q.
type PGStore struct {
	q db.Querier
}

// NewPGStore constructs PGStore.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

// likeStem escapes LIKE wildcards so dots and underscores in stems match
// literally.
func likeStem(stem string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(stem) + "%"
}

func (s *PGStore) LockScope(ctx context.Context, key string) error {
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

func (s *PGStore) ScopeInvoices(ctx context.Context, scope Scope, userID int64, stem string) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT invoice FROM %s WHERE user_id=$1 AND invoice LIKE $2`, scope.Table)
	args := []any{userID, likeStem(stem)}
	if len(scope.Types) > 0 {
		column := "transaction_type"
		if scope.Table == TableJournals {
			column = "journal_type"
		}
		query += fmt.Sprintf(` AND %s = ANY($3)`, column)
		args = append(args, scope.Types)
	}
	query += ` FOR UPDATE`
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var inv string
		if err := rows.Scan(&inv); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// LatestOrderInvoice compares invoices as text; the counter is zero padded so
// the highest string under one stem is the highest counter.
func (s *PGStore) LatestOrderInvoice(ctx context.Context, stem string) (string, error) {
	return s.latest(ctx, `SELECT MAX(invoice) FROM (
    SELECT invoice FROM journals WHERE invoice LIKE $1
    UNION ALL SELECT invoice FROM service_orders WHERE invoice LIKE $1
    UNION ALL SELECT invoice FROM transactions WHERE invoice LIKE $1
) AS scoped HAVING MAX(invoice) IS NOT NULL`, stem)
}

func (s *PGStore) InvoiceTaken(ctx context.Context, invoice string) (bool, error) {
	var taken bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journals WHERE invoice=$1)
    OR EXISTS (SELECT 1 FROM service_orders WHERE invoice=$1)
    OR EXISTS (SELECT 1 FROM transactions WHERE invoice=$1)`, invoice).Scan(&taken)
	return taken, err
}

func (s *PGStore) LatestOrderNumber(ctx context.Context, stem string) (string, error) {
	return s.latest(ctx, `SELECT order_number FROM service_orders WHERE order_number LIKE $1 ORDER BY id DESC LIMIT 1`, stem)
}

func (s *PGStore) OrderNumberTaken(ctx context.Context, orderNumber string) (bool, error) {
	var taken bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM service_orders WHERE order_number=$1)`, orderNumber).Scan(&taken)
	return taken, err
}

func (s *PGStore) latest(ctx context.Context, query, stem string) (string, error) {
	var value string
	err := s.q.QueryRow(ctx, query, likeStem(stem)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return value, err
}
