package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Requested payment methods.
const (
	MethodCash   = "cash"
	MethodCredit = "credit"
)

// PaymentInput settles a service order.
type PaymentInput struct {
	OrderNumber      string
	DateIssued       time.Time
	PaymentAccountID int64
	PaymentMethod    string
	ServiceFee       decimal.Decimal
	Discount         decimal.Decimal
	Note             string
}

// Validate checks the request.
func (in PaymentInput) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.OrderNumber) == "" {
		fields["order_number"] = "is required"
	}
	if in.DateIssued.IsZero() {
		fields["date_issued"] = "is required"
	}
	if in.PaymentAccountID <= 0 {
		fields["paymentAccountID"] = "is required"
	}
	if in.PaymentMethod != MethodCash && in.PaymentMethod != MethodCredit {
		fields["paymentMethod"] = "must be one of cash credit"
	}
	if in.ServiceFee.IsNegative() {
		fields["serviceFee"] = "must not be negative"
	}
	if in.Discount.IsNegative() {
		fields["discount"] = "must not be negative"
	}
	return fieldsError(fields)
}

func (in PaymentInput) storedMethod() string {
	if in.PaymentMethod == MethodCredit {
		return PaymentCredit
	}
	return PaymentCash
}

// PaymentResult reports a settled order.
type PaymentResult struct {
	Order   ServiceOrder   `json:"order"`
	Journal ledger.Journal `json:"journal"`
	Finance *Finance       `json:"finance,omitempty"`
}

// UpdatePaymentInput corrects the date, note or payment account of a paid
// order.
type UpdatePaymentInput struct {
	OrderNumber         string
	DateIssued          time.Time
	PaymentAccountID    int64
	OldPaymentAccountID int64
	Note                string
}

// MakePayment posts the sales journal of an order. Parts are sold at their
// recorded price and cost, the service fee is credited to its revenue account
// and the discount is debited to sales discount. A credit payment also opens a
// receivable whose bill amount keeps the negative-owed sign convention.
func (s *Service) MakePayment(ctx context.Context, actor shared.Actor, in PaymentInput) (PaymentResult, error) {
	if err := in.Validate(); err != nil {
		return PaymentResult{}, err
	}
	var res PaymentResult
	err := s.execute(ctx, actor, "order.payment", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		order, err := tx.OrderByNumber(ctx, in.OrderNumber)
		if err != nil {
			return shared.AuditLog{}, err
		}
		switch order.Status {
		case OrderCompleted:
			return shared.AuditLog{}, shared.RuleViolation("order %s is already paid", order.OrderNumber)
		case OrderCanceled:
			return shared.AuditLog{}, shared.RuleViolation("order %s is canceled", order.OrderNumber)
		}

		var t Transaction
		totals := MovementTotals{Price: decimal.Zero, Cost: decimal.Zero}
		if order.Invoice != "" {
			t, err = tx.TransactionByInvoice(ctx, order.Invoice)
			switch {
			case err == nil:
				if totals, err = tx.TransactionTotals(ctx, t.ID); err != nil {
					return shared.AuditLog{}, fmt.Errorf("orchestrator: transaction totals: %w", err)
				}
			case !errors.Is(err, ErrTransactionNotFound):
				return shared.AuditLog{}, err
			}
		}
		if t.ID == 0 && !in.ServiceFee.IsPositive() && !in.Discount.IsPositive() {
			return shared.AuditLog{}, shared.RuleViolation("order %s has nothing to pay", order.OrderNumber)
		}
		if order.Invoice == "" {
			if order.Invoice, err = s.seq.NextOrderInvoice(ctx, tx.Invoices(), actor); err != nil {
				return shared.AuditLog{}, err
			}
		}

		// Part movements are outbound, so both totals are negative.
		b := &ledger.Builder{}
		if t.ID != 0 {
			b.Debit(in.PaymentAccountID, totals.Price.Neg()).
				Credit(s.accounts.SalesRevenue, totals.Price.Neg()).
				Credit(s.accounts.Inventory, totals.Cost.Neg()).
				Debit(s.accounts.COGS, totals.Cost.Neg())
		}
		b.Credit(s.accounts.ServiceFee, in.ServiceFee).Debit(in.PaymentAccountID, in.ServiceFee)
		b.Credit(in.PaymentAccountID, in.Discount).Debit(s.accounts.SalesDiscount, in.Discount)

		financeType := ""
		if in.PaymentMethod == MethodCredit {
			financeType = FinanceReceivable
		}
		res.Journal, err = s.ledger.Post(ctx, tx.Ledger(), ledger.PostingInput{
			Invoice:     order.Invoice,
			DateIssued:  in.DateIssued,
			Description: note("Pembayaran Service Order "+order.OrderNumber, in.Note),
			Type:        ledger.JournalSales,
			FinanceType: financeType,
			WarehouseID: order.WarehouseID,
			UserID:      actor.UserID,
			Lines:       b.Lines(),
		})
		if err != nil {
			return shared.AuditLog{}, err
		}

		if in.PaymentMethod == MethodCredit {
			finance := Finance{
				DateIssued:    in.DateIssued,
				DueDate:       in.DateIssued.AddDate(0, 0, s.creditDays),
				Invoice:       order.Invoice,
				Description:   "Pembayaran Service Order " + order.OrderNumber,
				BillAmount:    totals.Price.Neg().Add(in.ServiceFee).Sub(in.Discount),
				PaymentAmount: decimal.Zero,
				Status:        FinanceUnpaid,
				FinanceType:   FinanceReceivable,
				ContactID:     s.contactOrDefault(order.ContactID),
				UserID:        actor.UserID,
				JournalID:     res.Journal.ID,
			}
			if finance.ID, err = tx.InsertFinance(ctx, finance); err != nil {
				return shared.AuditLog{}, fmt.Errorf("orchestrator: insert finance: %w", err)
			}
			res.Finance = &finance
		}

		if t.ID != 0 {
			if err := tx.MarkTransactionSold(ctx, t.ID, in.storedMethod()); err != nil {
				return shared.AuditLog{}, fmt.Errorf("orchestrator: update transaction: %w", err)
			}
		}
		order.Status = OrderCompleted
		order.PaymentMethod = in.storedMethod()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: update order: %w", err)
		}
		res.Order = order
		return shared.AuditLog{Entity: "service_order", EntityID: order.Invoice, Meta: map[string]any{
			"order_number": order.OrderNumber, "method": order.PaymentMethod,
			"service_fee": in.ServiceFee.StringFixed(2), "discount": in.Discount.StringFixed(2),
		}}, nil
	})
	return res, err
}

// UpdatePayment rewrites the payment journal date and note. The payment
// account is moved from the old to the new account unless the order was paid
// on credit.
func (s *Service) UpdatePayment(ctx context.Context, actor shared.Actor, in UpdatePaymentInput) (ledger.Journal, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.OrderNumber) == "" {
		fields["order_number"] = "is required"
	}
	if in.DateIssued.IsZero() {
		fields["date_issued"] = "is required"
	}
	if in.PaymentAccountID > 0 && in.OldPaymentAccountID <= 0 {
		fields["oldPaymentAccountID"] = "is required"
	}
	if err := fieldsError(fields); err != nil {
		return ledger.Journal{}, err
	}
	var journal ledger.Journal
	err := s.execute(ctx, actor, "order.update_payment", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		order, err := tx.OrderByNumber(ctx, in.OrderNumber)
		if err != nil {
			return shared.AuditLog{}, err
		}
		if order.Invoice == "" {
			return shared.AuditLog{}, shared.RuleViolation("order %s has no payment", order.OrderNumber)
		}
		from, to := in.OldPaymentAccountID, in.PaymentAccountID
		if order.PaymentMethod == PaymentCredit {
			from, to = 0, 0
		}
		journal, err = s.ledger.Amend(ctx, tx.Ledger(), order.Invoice, in.DateIssued,
			note("Pembayaran Service Order "+order.OrderNumber, in.Note), from, to)
		if err != nil {
			return shared.AuditLog{}, err
		}
		return shared.AuditLog{Entity: "journal", EntityID: order.Invoice, Meta: map[string]any{
			"order_number": order.OrderNumber, "from_account": from, "to_account": to,
		}}, nil
	})
	return journal, err
}

// VoidOrder deletes the journal, finance records and transaction sharing the
// order invoice, then marks the order Canceled and Unpaid.
func (s *Service) VoidOrder(ctx context.Context, actor shared.Actor, orderNumber string) (ServiceOrder, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return ServiceOrder{}, shared.ValidationFields(map[string]string{"order_number": "is required"})
	}
	var order ServiceOrder
	err := s.execute(ctx, actor, "order.void", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		var err error
		if order, err = tx.OrderByNumber(ctx, orderNumber); err != nil {
			return shared.AuditLog{}, err
		}
		var voided VoidResult
		if order.Invoice != "" {
			if voided, err = s.voider.Void(ctx, tx, InvoiceKey(order.Invoice)); err != nil {
				return shared.AuditLog{}, err
			}
		}
		order.Status = OrderCanceled
		order.PaymentMethod = PaymentUnpaid
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: update order: %w", err)
		}
		return shared.AuditLog{Entity: "service_order", EntityID: order.OrderNumber, Meta: map[string]any{
			"invoice": order.Invoice, "journals": voided.Journals, "transactions": voided.Transactions, "finances": voided.Finances,
		}}, nil
	})
	return order, err
}
