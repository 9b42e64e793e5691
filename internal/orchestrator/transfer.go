package orchestrator

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/backoffice/internal/sequencer"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// TransferResult reports a warehouse transfer.
type TransferResult struct {
	Invoice   string `json:"invoice"`
	Movements int    `json:"movements"`
}

// TransferItems moves cart items from one warehouse to another. Both legs carry
// the product's current cost and price, so no journal is written and the cost
// is not recomputed.
func (s *Service) TransferItems(ctx context.Context, actor shared.Actor, in TransferInput) (TransferResult, error) {
	if err := in.Validate(); err != nil {
		return TransferResult{}, err
	}
	var res TransferResult
	err := s.execute(ctx, actor, "stock.transfer", false, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		for _, id := range []int64{in.From, in.To} {
			if _, err := tx.WarehouseByID(ctx, id); err != nil {
				return shared.AuditLog{}, err
			}
		}
		invoice, err := s.seq.Next(ctx, tx.Invoices(), sequencer.TransferScope, actor)
		if err != nil {
			return shared.AuditLog{}, err
		}
		txID, err := tx.InsertTransaction(ctx, Transaction{
			Invoice:     invoice,
			DateIssued:  in.DateIssued,
			Type:        TransactionMutation,
			Status:      StatusConfirmed,
			ContactID:   s.contactID,
			WarehouseID: in.From,
			UserID:      actor.UserID,
		})
		if err != nil {
			return shared.AuditLog{}, fmt.Errorf("orchestrator: insert transaction: %w", err)
		}
		res.Invoice = invoice
		for _, item := range in.Cart {
			product, err := tx.ProductByID(ctx, item.ProductID)
			if err != nil {
				return shared.AuditLog{}, err
			}
			legs := []struct {
				warehouse int64
				qty       int64
			}{{in.From, -item.Quantity}, {in.To, item.Quantity}}
			for _, leg := range legs {
				if _, err := s.stock.Record(ctx, tx.Stock(), stock.Movement{
					ProductID:       product.ID,
					WarehouseID:     leg.warehouse,
					TransactionID:   txID,
					Quantity:        leg.qty,
					Cost:            product.CurrentCost,
					Price:           product.Price,
					DateIssued:      in.DateIssued,
					TransactionType: stock.TypeMutation,
				}); err != nil {
					return shared.AuditLog{}, err
				}
				res.Movements++
			}
		}
		return shared.AuditLog{Entity: "transaction", EntityID: invoice, Meta: map[string]any{
			"from": in.From, "to": in.To, "items": len(in.Cart),
		}}, nil
	})
	return res, err
}
