package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// PGStore implements Store and ReadStore on PostgreSQL.
type PGStore struct {
	q db.Querier
}

// NewPGStore constructs PGStore. Pass a pool for reads or the open
// transaction for postings.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

const accountColumns = `id, code, name, category, side, starting_balance, COALESCE(warehouse_id, 0), liquidity, is_primary_cash`

func scanAccount(row pgx.Row) (Account, error) {
	var acc Account
	var category, side, liquidity string
	if err := row.Scan(&acc.ID, &acc.Code, &acc.Name, &category, &side, &acc.StartingBalance, &acc.WarehouseID, &liquidity, &acc.IsPrimaryCash); err != nil {
		return Account{}, err
	}
	acc.Category = Category(category)
	acc.Side = Side(side)
	acc.Liquidity = Liquidity(liquidity)
	return acc, nil
}

func (s *PGStore) AccountsByID(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := s.q.Query(ctx, `SELECT `+accountColumns+` FROM chart_of_accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[acc.ID] = acc
	}
	return out, rows.Err()
}

func (s *PGStore) Account(ctx context.Context, id int64) (Account, error) {
	acc, err := scanAccount(s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM chart_of_accounts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return acc, err
}

func (s *PGStore) Accounts(ctx context.Context) ([]Account, error) {
	rows, err := s.q.Query(ctx, `SELECT `+accountColumns+` FROM chart_of_accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *PGStore) Warehouses(ctx context.Context) ([]WarehouseRef, error) {
	rows, err := s.q.Query(ctx, `SELECT id, code, name FROM warehouses ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WarehouseRef
	for rows.Next() {
		var w WarehouseRef
		if err := rows.Scan(&w.ID, &w.Code, &w.Name); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PGStore) InsertJournal(ctx context.Context, j Journal) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO journals (invoice, date_issued, description, journal_type, finance_type, warehouse_id, user_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
		j.Invoice, j.DateIssued, j.Description, string(j.Type), db.NullString(j.FinanceType), j.WarehouseID, j.UserID).Scan(&id)
	return id, err
}

func (s *PGStore) InsertEntries(ctx context.Context, journalID int64, entries []Entry) error {
	for _, e := range entries {
		if _, err := s.q.Exec(ctx, `INSERT INTO journal_entries (journal_id, chart_of_account_id, debit, credit) VALUES ($1,$2,$3,$4)`,
			journalID, e.AccountID, e.Debit, e.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) JournalByInvoice(ctx context.Context, invoice string) (Journal, error) {
	var j Journal
	var journalType string
	err := s.q.QueryRow(ctx, `SELECT id, invoice, date_issued, description, journal_type, COALESCE(finance_type, ''), warehouse_id, user_id
FROM journals WHERE invoice=$1`, invoice).Scan(&j.ID, &j.Invoice, &j.DateIssued, &j.Description, &journalType, &j.FinanceType, &j.WarehouseID, &j.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Journal{}, ErrJournalNotFound
	}
	if err != nil {
		return Journal{}, err
	}
	j.Type = JournalType(journalType)
	rows, err := s.q.Query(ctx, `SELECT id, journal_id, chart_of_account_id, debit, credit FROM journal_entries WHERE journal_id=$1 ORDER BY id`, j.ID)
	if err != nil {
		return Journal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.JournalID, &e.AccountID, &e.Debit, &e.Credit); err != nil {
			return Journal{}, err
		}
		j.Entries = append(j.Entries, e)
	}
	return j, rows.Err()
}

func (s *PGStore) DeleteJournalByInvoice(ctx context.Context, invoice string) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM journals WHERE invoice=$1`, invoice)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) UpdateJournalHeader(ctx context.Context, invoice string, dateIssued time.Time, description string) error {
	tag, err := s.q.Exec(ctx, `UPDATE journals SET date_issued=$2, description=$3, updated_at=NOW() WHERE invoice=$1`, invoice, dateIssued, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}

func (s *PGStore) RetargetEntries(ctx context.Context, journalID, fromAccountID, toAccountID int64) (int64, error) {
	tag, err := s.q.Exec(ctx, `UPDATE journal_entries SET chart_of_account_id=$3 WHERE journal_id=$1 AND chart_of_account_id=$2`, journalID, fromAccountID, toAccountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// rollupLockKey names the advisory lock shared by rollup writers and
// invalidating postings.
const rollupLockKey = "ledger:rollup"

// InvalidateRollups holds the rollup lock shared until the caller's
// transaction ends, so a running rollup cannot save rows this change makes
// stale.
func (s *PGStore) InvalidateRollups(ctx context.Context, day time.Time) error {
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock_shared(hashtext($1))`, rollupLockKey); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `DELETE FROM balance_rollups WHERE cutover >= $1::date`, day.Format(dayLayout))
	return err
}

// WithRollupLock needs a pool backed store; it opens its own transaction.
func (s *PGStore) WithRollupLock(ctx context.Context, fn func(context.Context, ReadStore) error) error {
	beginner, ok := s.q.(db.TxBeginner)
	if !ok {
		return errRollupInTx
	}
	return db.WithTx(ctx, beginner, pgx.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rollupLockKey); err != nil {
			return fmt.Errorf("ledger: rollup lock: %w", err)
		}
		return fn(ctx, NewPGStore(tx))
	})
}

func (s *PGStore) Totals(ctx context.Context, from, to time.Time) (map[int64]Totals, error) {
	rows, err := s.q.Query(ctx, `SELECT e.chart_of_account_id, COALESCE(SUM(e.debit), 0), COALESCE(SUM(e.credit), 0)
FROM journal_entries e
JOIN journals j ON j.id = e.journal_id
WHERE j.date_issued >= COALESCE($1, '-infinity'::timestamptz) AND j.date_issued < $2
GROUP BY e.chart_of_account_id`, db.NullTime(from), to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]Totals{}
	for rows.Next() {
		var id int64
		var t Totals
		if err := rows.Scan(&id, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, rows.Err()
}

func (s *PGStore) TotalsByWarehouse(ctx context.Context, from, to time.Time) (map[int64]map[int64]Totals, error) {
	rows, err := s.q.Query(ctx, `SELECT j.warehouse_id, e.chart_of_account_id, COALESCE(SUM(e.debit), 0), COALESCE(SUM(e.credit), 0)
FROM journal_entries e
JOIN journals j ON j.id = e.journal_id
WHERE j.date_issued >= $1 AND j.date_issued < $2
GROUP BY j.warehouse_id, e.chart_of_account_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]map[int64]Totals{}
	for rows.Next() {
		var warehouseID, accountID int64
		var t Totals
		if err := rows.Scan(&warehouseID, &accountID, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		if out[warehouseID] == nil {
			out[warehouseID] = map[int64]Totals{}
		}
		out[warehouseID][accountID] = t
	}
	return out, rows.Err()
}

func (s *PGStore) Entries(ctx context.Context, accountID int64, from, to time.Time) ([]EntryLine, error) {
	rows, err := s.q.Query(ctx, `SELECT j.id, j.invoice, j.date_issued, j.description, j.journal_type, j.warehouse_id, e.chart_of_account_id, e.debit, e.credit
FROM journal_entries e
JOIN journals j ON j.id = e.journal_id
WHERE e.chart_of_account_id=$1 AND j.date_issued >= $2 AND j.date_issued < $3
ORDER BY j.date_issued, j.id, e.id`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []EntryLine{}
	for rows.Next() {
		var line EntryLine
		var journalType string
		if err := rows.Scan(&line.JournalID, &line.Invoice, &line.DateIssued, &line.Description, &journalType, &line.WarehouseID, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		line.JournalType = JournalType(journalType)
		out = append(out, line)
	}
	return out, rows.Err()
}

func (s *PGStore) LatestRollup(ctx context.Context, day time.Time) (time.Time, map[int64]decimal.Decimal, bool, error) {
	var cutover time.Time
	err := s.q.QueryRow(ctx, `SELECT MAX(cutover) FROM balance_rollups WHERE cutover <= $1::date HAVING MAX(cutover) IS NOT NULL`, day.Format(dayLayout)).Scan(&cutover)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil, false, nil
	}
	if err != nil {
		return time.Time{}, nil, false, err
	}
	rows, err := s.q.Query(ctx, `SELECT chart_of_account_id, balance FROM balance_rollups WHERE cutover=$1`, cutover)
	if err != nil {
		return time.Time{}, nil, false, err
	}
	defer rows.Close()
	balances := map[int64]decimal.Decimal{}
	for rows.Next() {
		var id int64
		var bal decimal.Decimal
		if err := rows.Scan(&id, &bal); err != nil {
			return time.Time{}, nil, false, err
		}
		balances[id] = bal
	}
	if err := rows.Err(); err != nil {
		return time.Time{}, nil, false, err
	}
	return cutover, balances, true, nil
}

// SaveRollup upserts all balances in one statement so a cutover is either
// fully written or not at all.
func (s *PGStore) SaveRollup(ctx context.Context, cutover time.Time, balances map[int64]decimal.Decimal) error {
	ids := make([]int64, 0, len(balances))
	amounts := make([]string, 0, len(balances))
	for id, bal := range balances {
		ids = append(ids, id)
		amounts = append(amounts, bal.StringFixed(2))
	}
	_, err := s.q.Exec(ctx, `INSERT INTO balance_rollups (chart_of_account_id, cutover, balance, computed_at)
SELECT u.id, $1::date, u.amount::numeric, NOW()
FROM unnest($2::bigint[], $3::text[]) AS u(id, amount)
ON CONFLICT (chart_of_account_id, cutover) DO UPDATE SET balance=EXCLUDED.balance, computed_at=NOW()`,
		cutover.Format(dayLayout), ids, amounts)
	return err
}
