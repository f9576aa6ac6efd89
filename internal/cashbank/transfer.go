package cashbank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransferInput carries the editable fields of a draft transfer.
type TransferInput struct {
	Date           time.Time
	CashBankFromID int64
	TypeFromID     int64
	CashBankToID   int64
	TypeToID       int64
	Currency       string
	Cash           decimal.Decimal
	PartyID        *int64
	Reference      string
	Description    string
	DocumentIDs    []int64
}

// CreateTransfer stores a draft transfer.
func (s *Service) CreateTransfer(ctx context.Context, input TransferInput) (Transfer, error) {
	var out Transfer
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		tr := Transfer{CompanyID: s.settings.Company.ID, State: StateDraft}
		if err := t.applyTransfer(ctx, &tr, input); err != nil {
			return err
		}
		created, err := t.tx.CreateTransfer(ctx, tr)
		if err != nil {
			return err
		}
		if err := t.tx.SetTransferDocuments(ctx, created.ID, uniqueIDs(input.DocumentIDs)); err != nil {
			return err
		}
		if created.Documents, err = t.tx.TransferDocuments(ctx, created.ID); err != nil {
			return err
		}
		t.record(EntityTransfer, created.ID, "transfer.create", nil)
		out = created
		return nil
	})
	return out, err
}

// UpdateTransfer rewrites a draft transfer.
func (s *Service) UpdateTransfer(ctx context.Context, id int64, input TransferInput) (Transfer, error) {
	var out Transfer
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		tr, err := t.tx.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		if tr.State != StateDraft {
			return ErrNotDraft
		}
		if err := t.applyTransfer(ctx, &tr, input); err != nil {
			return err
		}
		if err := t.tx.UpdateTransfer(ctx, tr); err != nil {
			return err
		}
		if err := t.tx.SetTransferDocuments(ctx, tr.ID, uniqueIDs(input.DocumentIDs)); err != nil {
			return err
		}
		if tr.Documents, err = t.tx.TransferDocuments(ctx, tr.ID); err != nil {
			return err
		}
		t.record(EntityTransfer, tr.ID, "transfer.update", nil)
		out = tr
		return nil
	})
	return out, err
}

func (t *txn) applyTransfer(ctx context.Context, tr *Transfer, input TransferInput) error {
	if input.CashBankFromID == input.CashBankToID {
		return ErrSameCashBank
	}
	for _, leg := range []struct {
		cashBankID, typeID int64
		direction          Direction
	}{
		{input.CashBankFromID, input.TypeFromID, DirectionOut},
		{input.CashBankToID, input.TypeToID, DirectionIn},
	} {
		if _, err := t.tx.GetCashBank(ctx, leg.cashBankID); err != nil {
			return err
		}
		typ, err := t.tx.GetReceiptType(ctx, leg.typeID)
		if err != nil {
			return err
		}
		if typ.CashBankID != leg.cashBankID {
			return ErrTypeMismatch
		}
		if typ.Direction != leg.direction {
			return ErrTransferDirection
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = t.settings.Company.Currency
	}
	tr.Date = input.Date
	if tr.Date.IsZero() {
		tr.Date = t.today()
	}
	tr.CashBankFromID = input.CashBankFromID
	tr.TypeFromID = input.TypeFromID
	tr.CashBankToID = input.CashBankToID
	tr.TypeToID = input.TypeToID
	tr.Currency = currency
	tr.Cash = input.Cash
	tr.PartyID = input.PartyID
	tr.Reference = input.Reference
	tr.Description = input.Description
	docs, err := t.tx.GetDocuments(ctx, uniqueIDs(input.DocumentIDs))
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := t.checkConvertible(ctx, tr.CashBankFromID, doc, 0); err != nil {
			return err
		}
	}
	return nil
}

// GetTransfer loads a transfer with its documents.
func (s *Service) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	var out Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		if tr.Documents, err = tx.TransferDocuments(ctx, id); err != nil {
			return err
		}
		out = tr
		return nil
	})
	return out, err
}

// ListTransfers returns transfer headers of the company, newest first.
func (s *Service) ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error) {
	var out []Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListTransfers(ctx, s.settings.Company.ID, filter)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

// TransferableDocuments lists documents held in cashBankID that a transfer may move.
func (s *Service) TransferableDocuments(ctx context.Context, cashBankID int64) ([]Document, error) {
	return s.ListDocuments(ctx, DocumentFilter{HolderCashBankID: cashBankID, WithoutConvert: true})
}

// ConfirmTransfers creates and confirms both legs of every transfer.
func (s *Service) ConfirmTransfers(ctx context.Context, ids []int64) error {
	if s.settings.TransferAccountID == 0 {
		return ErrTransferAccount
	}
	return s.transition(ctx, EntityTransfer, "confirm", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.confirmTransfer(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// PostTransfers posts both legs.
func (s *Service) PostTransfers(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityTransfer, "post", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.driveLegs(ctx, id, StatePosted, t.postReceipt); err != nil {
				return err
			}
		}
		return nil
	})
}

// CancelTransfers cancels both legs. Documents stay with the incoming leg.
func (s *Service) CancelTransfers(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityTransfer, "cancel", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.driveLegs(ctx, id, StateCancel, t.cancelReceipt); err != nil {
				return err
			}
		}
		return nil
	})
}

// DraftTransfers removes both legs of cancelled transfers.
func (s *Service) DraftTransfers(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityTransfer, "draft", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.draftTransfer(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteTransfers removes transfers, cascading confirmed ones through cancel and draft.
func (s *Service) DeleteTransfers(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityTransfer, "delete", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.deleteTransfer(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *txn) loadTransfer(ctx context.Context, id int64, to State) (Transfer, error) {
	tr, err := t.tx.GetTransfer(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if !allowed(tr.State, to) {
		return Transfer{}, transitionError(EntityTransfer, tr.ID, tr.State, to)
	}
	if tr.Documents, err = t.tx.TransferDocuments(ctx, id); err != nil {
		return Transfer{}, err
	}
	return tr, nil
}

func (t *txn) confirmTransfer(ctx context.Context, id int64) error {
	tr, err := t.loadTransfer(ctx, id, StateConfirmed)
	if err != nil {
		return err
	}
	if !tr.Total().IsPositive() {
		return ErrTotalNotPositive
	}
	typeFrom, err := t.tx.GetReceiptType(ctx, tr.TypeFromID)
	if err != nil {
		return err
	}
	typeTo, err := t.tx.GetReceiptType(ctx, tr.TypeToID)
	if err != nil {
		return err
	}
	if (typeFrom.PartyRequired || typeTo.PartyRequired) && tr.PartyID == nil {
		return ErrPartyRequired
	}
	for _, doc := range tr.Documents {
		if err := t.checkConvertible(ctx, tr.CashBankFromID, doc, 0); err != nil {
			return err
		}
	}
	account, err := t.ledger.GetAccount(ctx, t.settings.TransferAccountID)
	if err != nil {
		return err
	}
	var lineParty *int64
	if account.PartyRequired {
		lineParty = t.settings.Company.PartyID
	}

	from, err := t.createLeg(ctx, tr, tr.CashBankFromID, typeFrom, account.ID, lineParty)
	if err != nil {
		return err
	}
	to, err := t.createLeg(ctx, tr, tr.CashBankToID, typeTo, account.ID, lineParty)
	if err != nil {
		return err
	}
	tr.ReceiptFromID = &from.ID
	tr.ReceiptToID = &to.ID
	tr.State = StateConfirmed
	if err := t.tx.UpdateTransfer(ctx, tr); err != nil {
		return err
	}
	t.record(EntityTransfer, tr.ID, "transfer.confirm", map[string]any{
		"receipt_from": from.ID,
		"receipt_to":   to.ID,
	})
	return nil
}

// createLeg stores one side of the transfer and confirms it.
func (t *txn) createLeg(ctx context.Context, tr Transfer, cashBankID int64, typ ReceiptType, accountID int64, party *int64) (Receipt, error) {
	leg, err := t.tx.CreateReceipt(ctx, Receipt{
		CompanyID:   tr.CompanyID,
		CashBankID:  cashBankID,
		TypeID:      typ.ID,
		Currency:    tr.Currency,
		Date:        tr.Date,
		Reference:   tr.Reference,
		Description: tr.Description,
		PartyID:     tr.PartyID,
		Cash:        tr.Cash,
		State:       StateDraft,
		TransferID:  &tr.ID,
	})
	if err != nil {
		return Receipt{}, err
	}
	if _, err := t.tx.ReplaceLines(ctx, leg.ID, []Line{{
		Amount:      tr.Total(),
		AccountID:   accountID,
		PartyID:     party,
		Description: tr.Description,
	}}); err != nil {
		return Receipt{}, err
	}
	for _, doc := range tr.Documents {
		if err := t.tx.AddMembership(ctx, leg.ID, doc.ID); err != nil {
			return Receipt{}, err
		}
	}
	return t.confirmReceipt(ctx, leg.ID, true)
}

func (t *txn) driveLegs(ctx context.Context, id int64, to State, step func(context.Context, int64, bool) error) error {
	tr, err := t.loadTransfer(ctx, id, to)
	if err != nil {
		return err
	}
	for _, leg := range []*int64{tr.ReceiptFromID, tr.ReceiptToID} {
		if leg == nil {
			continue
		}
		if err := step(ctx, *leg, true); err != nil {
			return err
		}
	}
	tr.State = to
	if err := t.tx.UpdateTransfer(ctx, tr); err != nil {
		return err
	}
	t.record(EntityTransfer, tr.ID, "transfer."+transitionName(to), nil)
	return nil
}

// draftTransfer unwinds receipt_to before receipt_from so documents return
// to the holder they had before the transfer.
func (t *txn) draftTransfer(ctx context.Context, id int64) error {
	tr, err := t.loadTransfer(ctx, id, StateDraft)
	if err != nil {
		return err
	}
	for _, leg := range []*int64{tr.ReceiptToID, tr.ReceiptFromID} {
		if leg == nil {
			continue
		}
		r, err := t.tx.GetReceipt(ctx, *leg)
		if err != nil {
			return err
		}
		if r.State == StateCancel {
			if err := t.draftReceipt(ctx, r.ID, true); err != nil {
				return err
			}
		}
		if err := t.deleteReceipt(ctx, r.ID, true); err != nil {
			return err
		}
	}
	tr.ReceiptFromID = nil
	tr.ReceiptToID = nil
	tr.State = StateDraft
	if err := t.tx.UpdateTransfer(ctx, tr); err != nil {
		return err
	}
	t.record(EntityTransfer, tr.ID, "transfer.draft", nil)
	return nil
}

func (t *txn) deleteTransfer(ctx context.Context, id int64) error {
	tr, err := t.tx.GetTransfer(ctx, id)
	if err != nil {
		return err
	}
	switch tr.State {
	case StatePosted:
		return fmt.Errorf("%w (transfer %d is posted)", ErrLegsNotCancel, tr.ID)
	case StateConfirmed:
		if err := t.driveLegs(ctx, id, StateCancel, t.cancelReceipt); err != nil {
			return err
		}
		fallthrough
	case StateCancel:
		if err := t.checkLegsCancelled(ctx, id); err != nil {
			return err
		}
		if err := t.draftTransfer(ctx, id); err != nil {
			return err
		}
	}
	if err := t.tx.DeleteTransfer(ctx, id); err != nil {
		return err
	}
	t.record(EntityTransfer, id, "transfer.delete", nil)
	return nil
}

func (t *txn) checkLegsCancelled(ctx context.Context, id int64) error {
	tr, err := t.tx.GetTransfer(ctx, id)
	if err != nil {
		return err
	}
	for _, leg := range []*int64{tr.ReceiptFromID, tr.ReceiptToID} {
		if leg == nil {
			continue
		}
		r, err := t.tx.GetReceipt(ctx, *leg)
		if err != nil {
			return err
		}
		if r.State != StateCancel {
			return fmt.Errorf("%w (receipt %d is %s)", ErrLegsNotCancel, r.ID, r.State)
		}
	}
	return nil
}

func transitionName(s State) string {
	switch s {
	case StateConfirmed:
		return "confirm"
	case StatePosted:
		return "post"
	default:
		return string(s)
	}
}
