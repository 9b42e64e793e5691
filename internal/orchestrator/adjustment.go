package orchestrator

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/sequencer"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// AdjustStock records an initial stock or an in/out adjustment. Initial stock
// is a singleton per product and warehouse: the previous initial set is torn
// down before the replacement is written.
func (s *Service) AdjustStock(ctx context.Context, actor shared.Actor, in AdjustmentInput) (AdjustmentResult, error) {
	if err := in.Validate(); err != nil {
		return AdjustmentResult{}, err
	}
	var res AdjustmentResult
	err := s.execute(ctx, actor, "stock.adjust", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		product, err := tx.ProductByID(ctx, in.ProductID)
		if err != nil {
			return shared.AuditLog{}, err
		}
		if _, err := tx.WarehouseByID(ctx, in.WarehouseID); err != nil {
			return shared.AuditLog{}, err
		}
		if in.IsInitial {
			previous, err := tx.InitialInvoices(ctx, product.ID, in.WarehouseID)
			if err != nil {
				return shared.AuditLog{}, fmt.Errorf("orchestrator: initial invoices: %w", err)
			}
			for _, invoice := range previous {
				if _, err := s.voider.Void(ctx, tx, InvoiceKey(invoice)); err != nil {
					return shared.AuditLog{}, err
				}
			}
		}

		invoice, err := s.seq.Next(ctx, tx.Invoices(), sequencer.AdjustmentScope, actor)
		if err != nil {
			return shared.AuditLog{}, err
		}
		date := s.dateOrNow(in.DateIssued)
		txID, err := tx.InsertTransaction(ctx, Transaction{
			Invoice:     invoice,
			DateIssued:  date,
			Type:        TransactionAdjustment,
			Status:      StatusActive,
			ContactID:   s.contactOrDefault(in.ContactID),
			WarehouseID: in.WarehouseID,
			UserID:      actor.UserID,
		})
		if err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: insert transaction: %w", err)
		}

		amount := qtyAmount(in.Quantity, in.Cost)
		quantity := in.Quantity
		b := &ledger.Builder{}
		switch {
		case in.IsInitial:
			b.Pair(s.accounts.Inventory, s.accounts.ModalEquity, amount)
			if err := tx.UpdateInitCost(ctx, product.ID, in.Cost); err != nil {
				return shared.AuditLog{}, fmt.Errorf("orchestrator: update init cost: %w", err)
			}
		case in.AdjustmentType == AdjustIn:
			b.Pair(s.accounts.Inventory, in.AccountID, amount)
		default:
			b.Pair(in.AccountID, s.accounts.Inventory, amount)
			quantity = -quantity
		}
		if _, err := s.post(ctx, tx, ledger.PostingInput{
			Invoice:     invoice,
			DateIssued:  date,
			Description: note("Penyesuaian Stok", in.Description),
			Type:        ledger.JournalAdjustment,
			WarehouseID: in.WarehouseID,
			UserID:      actor.UserID,
		}, b); err != nil {
			return shared.AuditLog{}, err
		}

		if _, err := s.stock.Record(ctx, tx.Stock(), stock.Movement{
			ProductID:       product.ID,
			WarehouseID:     in.WarehouseID,
			TransactionID:   txID,
			Quantity:        quantity,
			Cost:            in.Cost,
			DateIssued:      date,
			IsInitial:       in.IsInitial,
			TransactionType: string(TransactionAdjustment),
		}); err != nil {
			return shared.AuditLog{}, err
		}

		cost, err := s.costing.Recompute(ctx, tx.Costing(), product.ID)
		if err != nil {
			return shared.AuditLog{}, err
		}
		res = AdjustmentResult{Invoice: invoice, ProductID: product.ID, WarehouseID: in.WarehouseID, NewCost: cost.Cost}
		return shared.AuditLog{Entity: "transaction", EntityID: invoice, Meta: map[string]any{
			"product_id": product.ID, "quantity": quantity, "initial": in.IsInitial,
		}}, nil
	})
	return res, err
}

// ReverseStock returns goods. A sales reversal brings stock back in and
// reverses revenue and cost of goods sold; any other reversal sends stock out
// against the given account.
func (s *Service) ReverseStock(ctx context.Context, actor shared.Actor, in ReversalInput) (AdjustmentResult, error) {
	if err := in.Validate(); err != nil {
		return AdjustmentResult{}, err
	}
	var res AdjustmentResult
	err := s.execute(ctx, actor, "stock.reverse", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		product, err := tx.ProductByID(ctx, in.ProductID)
		if err != nil {
			return shared.AuditLog{}, err
		}
		if _, err := tx.WarehouseByID(ctx, in.WarehouseID); err != nil {
			return shared.AuditLog{}, err
		}
		invoice, err := s.seq.Next(ctx, tx.Invoices(), sequencer.AdjustmentScope, actor)
		if err != nil {
			return shared.AuditLog{}, err
		}
		txID, err := tx.InsertTransaction(ctx, Transaction{
			Invoice:     invoice,
			DateIssued:  in.DateIssued,
			Type:        TransactionReturn,
			Status:      StatusActive,
			ContactID:   s.contactOrDefault(in.ContactID),
			WarehouseID: in.WarehouseID,
			UserID:      actor.UserID,
		})
		if err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: insert transaction: %w", err)
		}

		costAmount := qtyAmount(in.Quantity, in.Cost)
		quantity := -in.Quantity
		b := &ledger.Builder{}
		if in.IsSales() {
			priceAmount := qtyAmount(in.Quantity, in.Price)
			b.Credit(in.AccountID, priceAmount).
				Debit(s.accounts.SalesRevenue, priceAmount).
				Debit(s.accounts.Inventory, costAmount).
				Credit(s.accounts.COGS, costAmount)
			quantity = in.Quantity
		} else {
			b.Pair(in.AccountID, s.accounts.Inventory, costAmount)
		}
		if _, err := s.post(ctx, tx, ledger.PostingInput{
			Invoice:     invoice,
			DateIssued:  in.DateIssued,
			Description: note("Retur Stok "+product.Name, in.Description),
			Type:        ledger.JournalReturn,
			WarehouseID: in.WarehouseID,
			UserID:      actor.UserID,
		}, b); err != nil {
			return shared.AuditLog{}, err
		}

		if _, err := s.stock.Record(ctx, tx.Stock(), stock.Movement{
			ProductID:       product.ID,
			WarehouseID:     in.WarehouseID,
			TransactionID:   txID,
			Quantity:        quantity,
			Cost:            in.Cost,
			Price:           in.Price,
			DateIssued:      in.DateIssued,
			TransactionType: string(TransactionReturn),
		}); err != nil {
			return shared.AuditLog{}, err
		}
		cost, err := s.costing.Recompute(ctx, tx.Costing(), product.ID)
		if err != nil {
			return shared.AuditLog{}, err
		}
		res = AdjustmentResult{Invoice: invoice, ProductID: product.ID, WarehouseID: in.WarehouseID, NewCost: cost.Cost}
		return shared.AuditLog{Entity: "transaction", EntityID: invoice, Meta: map[string]any{
			"product_id": product.ID, "quantity": quantity, "sales": in.IsSales(),
		}}, nil
	})
	return res, err
}
