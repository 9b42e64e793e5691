package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/sequencer"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
)

// RecordPurchase brings cart items in at their purchase cost, credits the
// payment account and recomputes the cost of every product bought.
func (s *Service) RecordPurchase(ctx context.Context, actor shared.Actor, in TradeInput) (TradeResult, error) {
	if err := in.Validate(); err != nil {
		return TradeResult{}, err
	}
	var res TradeResult
	err := s.execute(ctx, actor, "trade.purchase", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		header, err := s.openTrade(ctx, tx, actor, sequencer.PurchaseScope, TransactionPurchase, in)
		if err != nil {
			return shared.AuditLog{}, err
		}
		total := decimal.Zero
		seen := map[int64]bool{}
		for _, item := range in.Cart {
			if _, err := tx.ProductByID(ctx, item.ProductID); err != nil {
				return shared.AuditLog{}, err
			}
			if _, err := s.stock.Record(ctx, tx.Stock(), stock.Movement{
				ProductID:       item.ProductID,
				WarehouseID:     header.WarehouseID,
				TransactionID:   header.ID,
				Quantity:        item.Quantity,
				Cost:            item.Cost,
				DateIssued:      header.DateIssued,
				TransactionType: string(TransactionPurchase),
			}); err != nil {
				return shared.AuditLog{}, err
			}
			total = total.Add(qtyAmount(item.Quantity, item.Cost))
			seen[item.ProductID] = true
		}
		b := (&ledger.Builder{}).Pair(s.accounts.Inventory, in.AccountID, total)
		journal, err := s.post(ctx, tx, ledger.PostingInput{
			Invoice:     header.Invoice,
			DateIssued:  header.DateIssued,
			Description: note("Pembelian Barang", in.Description),
			Type:        ledger.JournalPurchase,
			WarehouseID: header.WarehouseID,
			UserID:      actor.UserID,
		}, b)
		if err != nil {
			return shared.AuditLog{}, err
		}
		for _, item := range in.Cart {
			if !seen[item.ProductID] {
				continue
			}
			delete(seen, item.ProductID)
			if _, err := s.costing.Recompute(ctx, tx.Costing(), item.ProductID); err != nil {
				return shared.AuditLog{}, err
			}
		}
		res = TradeResult{Invoice: header.Invoice, Total: total, Journal: journal}
		return shared.AuditLog{Entity: "transaction", EntityID: header.Invoice, Meta: map[string]any{"total": total.StringFixed(2)}}, nil
	})
	return res, err
}

// RecordSale sends cart items out at the current cost with the given price,
// books revenue against the payment account and moves the cost to COGS.
func (s *Service) RecordSale(ctx context.Context, actor shared.Actor, in TradeInput) (TradeResult, error) {
	if err := in.Validate(); err != nil {
		return TradeResult{}, err
	}
	var res TradeResult
	err := s.execute(ctx, actor, "trade.sale", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		header, err := s.openTrade(ctx, tx, actor, sequencer.SalesScope, TransactionSales, in)
		if err != nil {
			return shared.AuditLog{}, err
		}
		revenue, cogs := decimal.Zero, decimal.Zero
		for _, item := range in.Cart {
			product, err := tx.ProductByID(ctx, item.ProductID)
			if err != nil {
				return shared.AuditLog{}, err
			}
			price := item.Price
			if price.IsZero() {
				price = product.Price
			}
			revenue = revenue.Add(qtyAmount(item.Quantity, price))
			if product.IsService {
				continue
			}
			if _, err := s.stock.Record(ctx, tx.Stock(), stock.Movement{
				ProductID:       product.ID,
				WarehouseID:     header.WarehouseID,
				TransactionID:   header.ID,
				Quantity:        -item.Quantity,
				Cost:            product.CurrentCost,
				Price:           price,
				DateIssued:      header.DateIssued,
				TransactionType: string(TransactionSales),
			}); err != nil {
				return shared.AuditLog{}, err
			}
			cogs = cogs.Add(qtyAmount(item.Quantity, product.CurrentCost))
		}
		b := (&ledger.Builder{}).
			Pair(in.AccountID, s.accounts.SalesRevenue, revenue).
			Pair(s.accounts.COGS, s.accounts.Inventory, cogs)
		journal, err := s.post(ctx, tx, ledger.PostingInput{
			Invoice:     header.Invoice,
			DateIssued:  header.DateIssued,
			Description: note("Penjualan Barang", in.Description),
			Type:        ledger.JournalSales,
			WarehouseID: header.WarehouseID,
			UserID:      actor.UserID,
		}, b)
		if err != nil {
			return shared.AuditLog{}, err
		}
		res = TradeResult{Invoice: header.Invoice, Total: revenue, Journal: journal}
		return shared.AuditLog{Entity: "transaction", EntityID: header.Invoice, Meta: map[string]any{"total": revenue.StringFixed(2)}}, nil
	})
	return res, err
}

func (s *Service) openTrade(ctx context.Context, tx TxRepository, actor shared.Actor, scope sequencer.Scope, kind TransactionType, in TradeInput) (Transaction, error) {
	warehouseID := in.WarehouseID
	if warehouseID <= 0 {
		warehouseID = actor.WarehouseID
	}
	if _, err := tx.WarehouseByID(ctx, warehouseID); err != nil {
		return Transaction{}, err
	}
	invoice, err := s.seq.Next(ctx, tx.Invoices(), scope, actor)
	if err != nil {
		return Transaction{}, err
	}
	t := Transaction{
		Invoice:     invoice,
		DateIssued:  s.dateOrNow(in.DateIssued),
		Type:        kind,
		Status:      StatusActive,
		ContactID:   s.contactOrDefault(in.ContactID),
		WarehouseID: warehouseID,
		UserID:      actor.UserID,
	}
	if t.ID, err = tx.InsertTransaction(ctx, t); err != nil {
		return Transaction{}, fmt.Errorf("orchestrator: insert transaction: %w", err)
	}
	return t, nil
}
