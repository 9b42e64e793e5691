package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/costing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

var invoicePattern = regexp.MustCompile(`^[A-Z]{2}\.[A-Z]{2}\.\d{8}\.\d+\.\d{7}$`)

// InvoiceKey is the business key shared by a journal, a transaction, its
// finance records and a service order.
type InvoiceKey string

// ParseInvoiceKey validates PREFIX.DDMMYYYY.USERID.NNNNNNN.
func ParseInvoiceKey(value string) (InvoiceKey, error) {
	value = strings.TrimSpace(value)
	if !invoicePattern.MatchString(value) {
		return "", shared.Validation("invalid invoice %q", value)
	}
	return InvoiceKey(value), nil
}

func (k InvoiceKey) String() string {
	return string(k)
}

// Prefix returns the two segment prefix, e.g. "RO.BK".
func (k InvoiceKey) Prefix() string {
	parts := strings.SplitN(string(k), ".", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// Voider removes everything that shares an invoice inside one unit of work.
type Voider struct {
	ledger  *ledger.Engine
	costing *costing.Engine
}

// NewVoider constructs a Voider.
func NewVoider(l *ledger.Engine, c *costing.Engine) *Voider {
	return &Voider{ledger: l, costing: c}
}

// Void deletes the finance records, the journal and the transaction of key.
// Movements go with their transaction, after which the cost of every affected
// product is recomputed.
func (v *Voider) Void(ctx context.Context, tx TxRepository, key InvoiceKey) (VoidResult, error) {
	invoice := key.String()
	res := VoidResult{Invoice: invoice}

	var products []int64
	t, err := tx.TransactionByInvoice(ctx, invoice)
	switch {
	case err == nil:
		if products, err = tx.TransactionProducts(ctx, t.ID); err != nil {
			return VoidResult{}, fmt.Errorf("orchestrator: transaction products: %w", err)
		}
	case errors.Is(err, ErrTransactionNotFound):
	default:
		return VoidResult{}, err
	}

	if res.Finances, err = tx.DeleteFinancesByInvoice(ctx, invoice); err != nil {
		return VoidResult{}, fmt.Errorf("orchestrator: delete finances: %w", err)
	}
	if res.Journals, err = v.ledger.Delete(ctx, tx.Ledger(), invoice); err != nil {
		return VoidResult{}, err
	}
	if res.Transactions, err = tx.DeleteTransactionByInvoice(ctx, invoice); err != nil {
		return VoidResult{}, fmt.Errorf("orchestrator: delete transaction: %w", err)
	}
	for _, productID := range products {
		if _, err := v.costing.Recompute(ctx, tx.Costing(), productID); err != nil {
			return VoidResult{}, err
		}
	}
	return res, nil
}

// VoidInvoice deletes every record sharing invoice. Invoices owned by a
// service order must be voided through the order.
func (s *Service) VoidInvoice(ctx context.Context, actor shared.Actor, invoice string) (VoidResult, error) {
	key, err := ParseInvoiceKey(invoice)
	if err != nil {
		return VoidResult{}, err
	}
	var res VoidResult
	err = s.execute(ctx, actor, "invoice.void", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		order, err := tx.OrderByInvoice(ctx, key.String())
		switch {
		case err == nil:
			return shared.AuditLog{}, shared.RuleViolation("invoice %s belongs to order %s, void the order instead", key, order.OrderNumber)
		case !errors.Is(err, ErrOrderNotFound):
			return shared.AuditLog{}, err
		}
		if res, err = s.voider.Void(ctx, tx, key); err != nil {
			return shared.AuditLog{}, err
		}
		if res.Journals+res.Transactions+res.Finances == 0 {
			return shared.AuditLog{}, shared.NotFound("invoice " + key.String())
		}
		return shared.AuditLog{Entity: "invoice", EntityID: key.String(), Meta: map[string]any{
			"journals": res.Journals, "finances": res.Finances, "transactions": res.Transactions,
		}}, nil
	})
	return res, err
}
