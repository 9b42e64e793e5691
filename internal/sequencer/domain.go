package sequencer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Invoice prefixes.
const (
	PrefixSales        = "SO.BK"
	PrefixPurchase     = "PO.BK"
	PrefixAdjustment   = "AJ.BK"
	PrefixTransfer     = "TR.BK"
	PrefixCashMutation = "GR.BK"
	PrefixOrder        = "RO.BK"
)

// Table names a scope can read from.
const (
	TableTransactions = "transactions"
	TableJournals     = "journals"
)

const (
	invoiceDigits     = 7
	orderNumberDigits = 5
	dateLayout        = "02012006"
)

// ErrInvoiceCollision is returned when the optimistic order invoice loop runs
// out of attempts.
var ErrInvoiceCollision = shared.Conflict("invoice collision, please retry")

// ErrUnknownTable guards the table name interpolated into scope queries.
var ErrUnknownTable = errors.New("sequencer: unknown scope table")

// Scope selects the rows an invoice counter is derived from. Every scope is
// narrowed to invoices starting with PREFIX.DDMMYYYY.USERID.
type Scope struct {
	Prefix string
	Table  string
	Types  []string
}

// Key identifies the scope for the advisory lock.
func (s Scope) Key(day string, userID int64) string {
	return fmt.Sprintf("invoice:%s:%s:%s:%d", s.Table, s.Prefix, day, userID)
}

// Validate rejects tables outside the allow list.
func (s Scope) Validate() error {
	if s.Prefix == "" {
		return errors.New("sequencer: prefix required")
	}
	if s.Table != TableTransactions && s.Table != TableJournals {
		return ErrUnknownTable
	}
	return nil
}

// Predefined scopes.
var (
	SalesScope        = Scope{Prefix: PrefixSales, Table: TableTransactions, Types: []string{"Sales"}}
	PurchaseScope     = Scope{Prefix: PrefixPurchase, Table: TableTransactions, Types: []string{"Purchase"}}
	AdjustmentScope   = Scope{Prefix: PrefixAdjustment, Table: TableTransactions, Types: []string{"Adjustment", "Return"}}
	TransferScope     = Scope{Prefix: PrefixTransfer, Table: TableTransactions, Types: []string{"Mutation"}}
	CashMutationScope = Scope{Prefix: PrefixCashMutation, Table: TableJournals}
)

// Stem returns "PREFIX.DDMMYYYY.USERID." for the given day.
func Stem(prefix string, day time.Time, userID int64) string {
	return fmt.Sprintf("%s.%s.%d.", prefix, day.Format(dateLayout), userID)
}

// Format renders a complete invoice number.
func Format(prefix string, day time.Time, userID int64, n int64) string {
	return fmt.Sprintf("%s%0*d", Stem(prefix, day, userID), invoiceDigits, n)
}

// FormatOrderNumber renders ORDER-{warehouseCode}-DDMMYYYY-{userId}-NNNNN.
func FormatOrderNumber(warehouseCode string, day time.Time, userID int64, n int64) string {
	return fmt.Sprintf("%s%0*d", orderStem(warehouseCode, day, userID), orderNumberDigits, n)
}

func orderStem(warehouseCode string, day time.Time, userID int64) string {
	return fmt.Sprintf("ORDER-%s-%s-%d-", warehouseCode, day.Format(dateLayout), userID)
}

// Suffix parses the numeric counter after the last separator. Values without
// a numeric tail report false.
func Suffix(value string, sep string) (int64, bool) {
	idx := strings.LastIndex(value, sep)
	if idx < 0 || idx == len(value)-1 {
		return 0, false
	}
	n, err := strconv.ParseInt(value[idx+1:], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextNumber returns max suffix + 1 over existing, or 1 when none parse.
func NextNumber(existing []string) int64 {
	var max int64
	for _, inv := range existing {
		if n, ok := Suffix(inv, "."); ok && n > max {
			max = n
		}
	}
	return max + 1
}
