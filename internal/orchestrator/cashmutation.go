package orchestrator

import (
	"context"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/sequencer"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// CashMutation moves money from the credit account to the debit account. An
// admin fee is charged to the bank fee account from the same credit account.
func (s *Service) CashMutation(ctx context.Context, actor shared.Actor, in CashMutationInput) (ledger.Journal, error) {
	if err := in.Validate(); err != nil {
		return ledger.Journal{}, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "Mutasi Kas"
	}
	var journal ledger.Journal
	err := s.execute(ctx, actor, "cash.mutation", true, func(ctx context.Context, tx TxRepository) (shared.AuditLog, error) {
		invoice, err := s.seq.Next(ctx, tx.Invoices(), sequencer.CashMutationScope, actor)
		if err != nil {
			return shared.AuditLog{}, err
		}
		b := (&ledger.Builder{}).
			Pair(in.DebitAccountID, in.CreditAccountID, in.Amount).
			Pair(s.accounts.BankFee, in.CreditAccountID, in.AdminFee)
		journal, err = s.post(ctx, tx, ledger.PostingInput{
			Invoice:     invoice,
			DateIssued:  s.dateOrNow(in.DateIssued),
			Description: description,
			Type:        ledger.JournalMutasi,
			WarehouseID: actor.WarehouseID,
			UserID:      actor.UserID,
		}, b)
		if err != nil {
			return shared.AuditLog{}, err
		}
		return shared.AuditLog{Entity: "journal", EntityID: invoice, Meta: map[string]any{
			"amount": in.Amount.StringFixed(2), "admin_fee": in.AdminFee.StringFixed(2),
		}}, nil
	})
	return journal, err
}
