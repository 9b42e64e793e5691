package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Category classifies an account. It replaces numeric id ranges.
type Category string

const (
	CategoryAsset     Category = "Asset"
	CategoryLiability Category = "Liability"
	CategoryEquity    Category = "Equity"
	CategoryRevenue   Category = "Revenue"
	CategoryCost      Category = "Cost"
	CategoryExpense   Category = "Expense"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAsset, CategoryLiability, CategoryEquity, CategoryRevenue, CategoryCost, CategoryExpense:
		return true
	}
	return false
}

// Side is the normal balance side of an account.
type Side string

const (
	SideDebit  Side = "D"
	SideCredit Side = "C"
)

// Liquidity marks cash and bank accounts.
type Liquidity string

const (
	LiquidityNone Liquidity = ""
	LiquidityCash Liquidity = "cash"
	LiquidityBank Liquidity = "bank"
)

// Account is a chart of account entry.
type Account struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Category        Category        `json:"category"`
	Side            Side            `json:"side"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	WarehouseID     int64           `json:"warehouse_id,omitempty"`
	Liquidity       Liquidity       `json:"liquidity,omitempty"`
	IsPrimaryCash   bool            `json:"is_primary_cash"`
}

// JournalType tags the business event behind a journal.
type JournalType string

const (
	JournalSales      JournalType = "Sales"
	JournalPurchase   JournalType = "Purchase"
	JournalAdjustment JournalType = "Adjustment"
	JournalReturn     JournalType = "Return"
	JournalMutation   JournalType = "Mutation"
	JournalOrder      JournalType = "Order"
	JournalMutasi     JournalType = "Mutasi"
)

// Journal is the header of a balanced set of entries.
type Journal struct {
	ID          int64       `json:"id"`
	Invoice     string      `json:"invoice"`
	DateIssued  time.Time   `json:"date_issued"`
	Description string      `json:"description"`
	Type        JournalType `json:"journal_type"`
	FinanceType string      `json:"finance_type,omitempty"`
	WarehouseID int64       `json:"warehouse_id"`
	UserID      int64       `json:"user_id"`
	Entries     []Entry     `json:"entries,omitempty"`
}

// Entry is one debit or credit line.
type Entry struct {
	ID        int64           `json:"id"`
	JournalID int64           `json:"journal_id"`
	AccountID int64           `json:"chart_of_account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// Line is an entry before it is posted.
type Line struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// PostingInput describes a journal to post.
type PostingInput struct {
	Invoice     string
	DateIssued  time.Time
	Description string
	Type        JournalType
	FinanceType string
	WarehouseID int64
	UserID      int64
	Lines       []Line
}

// Totals aggregates the debit and credit side of entries.
type Totals struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Add returns the element wise sum.
func (t Totals) Add(o Totals) Totals {
	return Totals{Debit: t.Debit.Add(o.Debit), Credit: t.Credit.Add(o.Credit)}
}

// EntryLine is an entry joined with its journal header.
type EntryLine struct {
	JournalID   int64           `json:"journal_id"`
	Invoice     string          `json:"invoice"`
	DateIssued  time.Time       `json:"date_issued"`
	Description string          `json:"description"`
	JournalType JournalType     `json:"journal_type"`
	WarehouseID int64           `json:"warehouse_id"`
	AccountID   int64           `json:"chart_of_account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

var (
	// ErrUnbalanced is returned when debit and credit totals differ.
	ErrUnbalanced = shared.Validation("journal entries are not balanced")
	// ErrEmptyJournal is returned for postings without non zero lines.
	ErrEmptyJournal = shared.Validation("journal requires at least one entry")
	// ErrAccountNotFound is returned when a line references an unknown account.
	ErrAccountNotFound = shared.NotFound("account")
	// ErrJournalNotFound is returned when no journal carries the invoice.
	ErrJournalNotFound = shared.NotFound("journal")
	errNilStore        = errors.New("ledger: store not initialised")
	errRollupInTx      = errors.New("ledger: rollup needs a pool backed store")
)

// Validate checks the posting before any store access. Amounts are compared
// at cent precision.
func (in PostingInput) Validate() error {
	if in.Invoice == "" {
		return shared.Validation("invoice is required")
	}
	if in.DateIssued.IsZero() {
		return shared.Validation("date_issued is required")
	}
	if in.Type == "" {
		return shared.Validation("journal type is required")
	}
	if len(in.Lines) == 0 {
		return ErrEmptyJournal
	}
	var totals Totals
	for _, line := range in.Lines {
		if line.AccountID <= 0 {
			return shared.Validation("entry account is required")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Validation("entry amounts must not be negative")
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return shared.Validation("entry cannot carry both debit and credit")
		}
		totals = totals.Add(Totals{Debit: line.Debit, Credit: line.Credit})
	}
	if !totals.Debit.Round(2).Equal(totals.Credit.Round(2)) {
		return ErrUnbalanced
	}
	if totals.Debit.IsZero() {
		return ErrEmptyJournal
	}
	return nil
}

// Balance applies signed totals to a base balance according to the side.
func Balance(side Side, base decimal.Decimal, t Totals) decimal.Decimal {
	if side == SideCredit {
		return base.Add(t.Credit).Sub(t.Debit)
	}
	return base.Add(t.Debit).Sub(t.Credit)
}

// Builder collects journal lines. Zero amounts are skipped and negative
// amounts are booked on the opposite side.
type Builder struct {
	lines []Line
}

// Debit adds a debit line.
func (b *Builder) Debit(accountID int64, amount decimal.Decimal) *Builder {
	switch {
	case amount.IsZero():
	case amount.IsNegative():
		b.lines = append(b.lines, Line{AccountID: accountID, Credit: amount.Neg()})
	default:
		b.lines = append(b.lines, Line{AccountID: accountID, Debit: amount})
	}
	return b
}

// Credit adds a credit line.
func (b *Builder) Credit(accountID int64, amount decimal.Decimal) *Builder {
	return b.Debit(accountID, amount.Neg())
}

// Pair adds a balanced debit/credit pair.
func (b *Builder) Pair(debitAccount, creditAccount int64, amount decimal.Decimal) *Builder {
	return b.Debit(debitAccount, amount).Credit(creditAccount, amount)
}

// Lines returns the collected lines.
func (b *Builder) Lines() []Line {
	return append([]Line(nil), b.lines...)
}
