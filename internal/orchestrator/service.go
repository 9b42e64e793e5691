// Package orchestrator composes the sequencer, stock ledger, costing engine and
// ledger engine into atomic business operations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/costing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sequencer"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	OrderDetail(ctx context.Context, orderNumber string) (OrderDetail, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]ServiceOrder, map[string]int64, error)
	TrackOrders(ctx context.Context, search string) ([]ServiceOrder, error)
	TechnicianRevenue(ctx context.Context, serviceFeeAccount int64, from, to time.Time) ([]TechnicianRevenue, error)
}

// TxRepository exposes every store bound to one unit of work.
type TxRepository interface {
	Ledger() ledger.Store
	Stock() stock.Store
	Costing() costing.Store
	Invoices() sequencer.Store

	ProductByID(ctx context.Context, id int64) (Product, error)
	UpdateInitCost(ctx context.Context, productID int64, cost decimal.Decimal) error
	WarehouseByID(ctx context.Context, id int64) (Warehouse, error)

	InsertTransaction(ctx context.Context, t Transaction) (int64, error)
	TransactionByInvoice(ctx context.Context, invoice string) (Transaction, error)
	MarkTransactionSold(ctx context.Context, id int64, paymentMethod string) error
	DeleteTransactionByInvoice(ctx context.Context, invoice string) (int64, error)
	InitialInvoices(ctx context.Context, productID, warehouseID int64) ([]string, error)
	TransactionProducts(ctx context.Context, transactionID int64) ([]int64, error)
	DeleteProductMovements(ctx context.Context, transactionID, productID int64) (int64, error)
	CountMovements(ctx context.Context, transactionID int64) (int64, error)
	TransactionTotals(ctx context.Context, transactionID int64) (MovementTotals, error)

	InsertFinance(ctx context.Context, f Finance) (int64, error)
	DeleteFinancesByInvoice(ctx context.Context, invoice string) (int64, error)

	FirstOrCreateContact(ctx context.Context, c Contact) (Contact, error)
	InsertOrder(ctx context.Context, o ServiceOrder) (int64, error)
	OrderByNumber(ctx context.Context, orderNumber string) (ServiceOrder, error)
	OrderByID(ctx context.Context, id int64) (ServiceOrder, error)
	OrderByInvoice(ctx context.Context, invoice string) (ServiceOrder, error)
	UpdateOrder(ctx context.Context, o ServiceOrder) error

	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached reports after committed postings.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Accounts are the system chart of account ids used by postings.
type Accounts struct {
	Inventory     int64
	ModalEquity   int64
	SalesRevenue  int64
	ServiceFee    int64
	COGS          int64
	SalesDiscount int64
	BankFee       int64
}

// DefaultAccounts returns the ids seeded with the standard chart of accounts.
func DefaultAccounts() Accounts {
	return Accounts{Inventory: 10, ModalEquity: 30, SalesRevenue: 16, ServiceFee: 17, COGS: 21, SalesDiscount: 44, BankFee: 43}
}

// Config groups service settings.
type Config struct {
	Accounts         Accounts
	CreditTermDays   int
	DefaultContactID int64
	Location         *time.Location
	Now              func() time.Time
}

// Dependencies are the engines composed by the service.
type Dependencies struct {
	Sequencer *sequencer.Sequencer
	Ledger    *ledger.Engine
	Stock     *stock.Ledger
	Costing   *costing.Engine
	Reports   Invalidator
}

// Service coordinates business operations.
type Service struct {
	repo       RepositoryPort
	seq        *sequencer.Sequencer
	ledger     *ledger.Engine
	stock      *stock.Ledger
	costing    *costing.Engine
	reports    Invalidator
	voider     *Voider
	accounts   Accounts
	creditDays int
	contactID  int64
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// NewService builds Service. Missing engines fall back to defaults in cfg's
// location.
func NewService(repo RepositoryPort, deps Dependencies, cfg Config, logger *slog.Logger) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Sequencer == nil {
		deps.Sequencer = sequencer.New(sequencer.Config{Location: loc, Now: now})
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.NewEngine(nil, loc)
	}
	if deps.Stock == nil {
		deps.Stock = stock.NewLedger(loc)
	}
	if deps.Costing == nil {
		deps.Costing = costing.NewEngine(nil)
	}
	if cfg.Accounts == (Accounts{}) {
		cfg.Accounts = DefaultAccounts()
	}
	if cfg.CreditTermDays <= 0 {
		cfg.CreditTermDays = 30
	}
	if cfg.DefaultContactID <= 0 {
		cfg.DefaultContactID = 1
	}
	return &Service{
		repo:       repo,
		seq:        deps.Sequencer,
		ledger:     deps.Ledger,
		stock:      deps.Stock,
		costing:    deps.Costing,
		reports:    deps.Reports,
		voider:     NewVoider(deps.Ledger, deps.Costing),
		accounts:   cfg.Accounts,
		creditDays: cfg.CreditTermDays,
		contactID:  cfg.DefaultContactID,
		loc:        loc,
		now:        now,
		logger:     logger,
	}
}

// execute runs fn in one unit of work, writes the audit row returned by fn in
// the same transaction and logs the committed operation. posted marks
// operations that touch the ledger so cached reports are dropped.
func (s *Service) execute(ctx context.Context, actor shared.Actor, action string, posted bool, fn func(context.Context, TxRepository) (shared.AuditLog, error)) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	var entry shared.AuditLog
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		log, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		log.ActorID = actor.UserID
		log.Action = action
		if log.At.IsZero() {
			log.At = s.now()
		}
		entry = log
		return tx.RecordAudit(ctx, log)
	})
	if db.IsUniqueViolation(err) {
		// Another writer committed the same invoice first.
		err = fmt.Errorf("%w: %v", sequencer.ErrInvoiceCollision, err)
	}
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("operation failed", slog.String("action", action), slog.Int64("user_id", actor.UserID), slog.Any("error", err))
		}
		return err
	}
	s.logger.Info(action,
		slog.String("invoice", entry.EntityID),
		slog.Int64("user_id", actor.UserID),
		slog.Int64("warehouse_id", actor.WarehouseID))
	if posted && s.reports != nil {
		if err := s.reports.Invalidate(ctx); err != nil {
			s.logger.Warn("report cache invalidation failed", slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) dateOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().In(s.loc)
	}
	return t
}

func (s *Service) contactOrDefault(id int64) int64 {
	if id <= 0 {
		return s.contactID
	}
	return id
}

// post writes a journal when the builder collected any line. Zero valued
// events such as stock at zero cost leave no journal behind.
func (s *Service) post(ctx context.Context, tx TxRepository, in ledger.PostingInput, b *ledger.Builder) (ledger.Journal, error) {
	in.Lines = b.Lines()
	if len(in.Lines) == 0 {
		return ledger.Journal{}, nil
	}
	return s.ledger.Post(ctx, tx.Ledger(), in)
}

func isDomainError(err error) bool {
	var de *shared.DomainError
	return errors.As(err, &de)
}

func note(prefix, text string) string {
	return prefix + ". Note: " + text
}

func qtyAmount(qty int64, unit decimal.Decimal) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(qty))
}
