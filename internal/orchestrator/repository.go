package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/costing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sequencer"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// Repository provides PostgreSQL persistence for the orchestrator.
type Repository struct {
	pool  *pgxpool.Pool
	audit *shared.AuditLogger
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool, audit *shared.AuditLogger) *Repository {
	if audit == nil {
		audit = shared.NewAuditLogger()
	}
	return &Repository{pool: pool, audit: audit}
}

// WithTx executes the callback inside a read-committed transaction. Invoice
// scopes are serialised by advisory locks and products by row locks, so every
// read after a lock sees the latest committed state.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("orchestrator repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{queries: queries{q: tx, lock: true}, tx: tx, audit: r.audit})
	})
}

func (r *Repository) reader() queries {
	return queries{q: r.pool}
}

// OrderDetail loads an order with its transaction movements and journal.
func (r *Repository) OrderDetail(ctx context.Context, orderNumber string) (OrderDetail, error) {
	q := r.reader()
	order, err := q.OrderByNumber(ctx, orderNumber)
	if err != nil {
		return OrderDetail{}, err
	}
	detail := OrderDetail{Order: order}
	if order.Invoice == "" {
		return detail, nil
	}
	t, err := q.TransactionByInvoice(ctx, order.Invoice)
	switch {
	case err == nil:
		if t.Movements, err = q.movements(ctx, t.ID); err != nil {
			return OrderDetail{}, err
		}
		detail.Transaction = &t
	case !errors.Is(err, ErrTransactionNotFound):
		return OrderDetail{}, err
	}
	journal, err := ledger.NewPGStore(r.pool).JournalByInvoice(ctx, order.Invoice)
	switch {
	case err == nil:
		detail.Journal = &journal
	case !errors.Is(err, ledger.ErrJournalNotFound):
		return OrderDetail{}, err
	}
	return detail, nil
}

// ListOrders returns orders in the filter window and the count per status.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]ServiceOrder, map[string]int64, error) {
	return r.reader().listOrders(ctx, filter)
}

// TrackOrders finds orders by number or contact phone.
func (r *Repository) TrackOrders(ctx context.Context, search string) ([]ServiceOrder, error) {
	return r.reader().trackOrders(ctx, search)
}

// TechnicianRevenue aggregates completed orders per technician.
func (r *Repository) TechnicianRevenue(ctx context.Context, serviceFeeAccount int64, from, to time.Time) ([]TechnicianRevenue, error) {
	return r.reader().technicianRevenue(ctx, serviceFeeAccount, from, to)
}

type txRepository struct {
	queries
	tx    pgx.Tx
	audit *shared.AuditLogger
}

func (r *txRepository) Ledger() ledger.Store {
	return ledger.NewPGStore(r.tx)
}

func (r *txRepository) Stock() stock.Store {
	return stock.NewPGStore(r.tx)
}

func (r *txRepository) Costing() costing.Store {
	return costing.NewPGStore(r.tx)
}

func (r *txRepository) Invoices() sequencer.Store {
	return sequencer.NewPGStore(r.tx)
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return r.audit.Record(ctx, r.tx, log)
}
