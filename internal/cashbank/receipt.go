package cashbank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbank/internal/invoice"
)

// ReceiptInput carries the editable fields of a draft receipt.
type ReceiptInput struct {
	CashBankID    int64
	TypeID        int64
	Currency      string
	Date          time.Time
	Reference     string
	Description   string
	PartyID       *int64
	BankAccountID *int64
	Cash          decimal.Decimal
	Lines         []LineInput
	DocumentIDs   []int64
}

// LineInput is one line of a ReceiptInput.
type LineInput struct {
	Amount      decimal.Decimal
	AccountID   int64
	PartyID     *int64
	InvoiceID   *int64
	Description string
}

// CreateReceipt stores a draft receipt and takes custody of its documents.
func (s *Service) CreateReceipt(ctx context.Context, input ReceiptInput) (Receipt, error) {
	var out Receipt
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		header := Receipt{CompanyID: s.settings.Company.ID, State: StateDraft}
		typ, err := t.applyInput(ctx, &header, input)
		if err != nil {
			return err
		}
		created, err := t.tx.CreateReceipt(ctx, header)
		if err != nil {
			return err
		}
		r, err := t.saveChildren(ctx, created, typ, input)
		if err != nil {
			return err
		}
		t.record(EntityReceipt, r.ID, "receipt.create", map[string]any{"cash_bank_id": r.CashBankID})
		out = r
		return nil
	})
	return out, err
}

// UpdateReceipt rewrites a draft receipt, its lines and its document set.
func (s *Service) UpdateReceipt(ctx context.Context, id int64, input ReceiptInput) (Receipt, error) {
	var out Receipt
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		current, err := t.tx.GetReceipt(ctx, id)
		if err != nil {
			return err
		}
		if current.State != StateDraft {
			return ErrNotDraft
		}
		if current.TransferID != nil {
			return ErrTransferOwned
		}
		typ, err := t.applyInput(ctx, &current, input)
		if err != nil {
			return err
		}
		if err := t.tx.UpdateReceipt(ctx, current); err != nil {
			return err
		}
		r, err := t.saveChildren(ctx, current, typ, input)
		if err != nil {
			return err
		}
		t.record(EntityReceipt, r.ID, "receipt.update", nil)
		out = r
		return nil
	})
	return out, err
}

func (t *txn) applyInput(ctx context.Context, r *Receipt, input ReceiptInput) (ReceiptType, error) {
	cb, err := t.tx.GetCashBank(ctx, input.CashBankID)
	if err != nil {
		return ReceiptType{}, err
	}
	typ, err := t.tx.GetReceiptType(ctx, input.TypeID)
	if err != nil {
		return ReceiptType{}, err
	}
	if typ.CashBankID != cb.ID {
		return ReceiptType{}, ErrTypeMismatch
	}
	if !typ.Active {
		return ReceiptType{}, ErrTypeInactive
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = t.settings.Company.Currency
	}
	date := input.Date
	if date.IsZero() {
		date = t.today()
	}
	r.CashBankID = cb.ID
	r.TypeID = typ.ID
	r.Currency = currency
	r.Date = date
	r.Reference = input.Reference
	r.Description = input.Description
	r.PartyID = input.PartyID
	r.BankAccountID = nil
	if typ.BankAccount {
		r.BankAccountID = input.BankAccountID
	}
	r.Cash = input.Cash
	return typ, nil
}

func (t *txn) saveChildren(ctx context.Context, r Receipt, typ ReceiptType, input ReceiptInput) (Receipt, error) {
	lines := make([]Line, 0, len(input.Lines))
	for idx, in := range input.Lines {
		line := Line{
			Amount:      in.Amount,
			AccountID:   in.AccountID,
			PartyID:     in.PartyID,
			InvoiceID:   in.InvoiceID,
			Description: in.Description,
		}
		if err := validateLine(line); err != nil {
			return Receipt{}, fmt.Errorf("line %d: %w", idx+1, err)
		}
		// an invoice line without a party takes the invoice's party.
		if line.InvoiceID != nil && line.PartyID == nil {
			inv, err := t.invoices.Get(ctx, *line.InvoiceID)
			if err != nil {
				return Receipt{}, fmt.Errorf("line %d: %w", idx+1, err)
			}
			line.PartyID = &inv.PartyID
		}
		lines = append(lines, line)
	}
	saved, err := t.tx.ReplaceLines(ctx, r.ID, lines)
	if err != nil {
		return Receipt{}, err
	}
	docs, err := t.syncDocuments(ctx, r, typ.Direction, input.DocumentIDs)
	if err != nil {
		return Receipt{}, err
	}
	r.Lines = saved
	r.Documents = docs
	return r, nil
}

// GetReceipt loads a receipt with lines and documents.
func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	var out Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := loadReceipt(ctx, tx, id)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// ListReceipts returns receipt headers of the company.
func (s *Service) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error) {
	var out []Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListReceipts(ctx, s.settings.Company.ID, filter)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

// AvailableDocuments lists documents the receipt may take into custody.
func (s *Service) AvailableDocuments(ctx context.Context, receiptID int64) ([]Document, error) {
	var out []Document
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		r, err := t.tx.GetReceipt(ctx, receiptID)
		if err != nil {
			return err
		}
		typ, err := t.tx.GetReceiptType(ctx, r.TypeID)
		if err != nil {
			return err
		}
		docs, err := t.tx.ListDocuments(ctx, DocumentFilter{WithoutConvert: true})
		if err != nil {
			return err
		}
		for _, doc := range docs {
			var unavailable *DocumentUnavailableError
			err := t.checkAvailable(ctx, r, typ.Direction, doc)
			switch {
			case err == nil:
				out = append(out, doc)
			case errors.As(err, &unavailable):
			default:
				return err
			}
		}
		return nil
	})
	return out, err
}

// ConfirmReceipts moves draft receipts to confirmed, creating their moves.
func (s *Service) ConfirmReceipts(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityReceipt, "confirm", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if _, err := t.confirmReceipt(ctx, id, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// PostReceipts reconciles invoice lines and posts the moves.
func (s *Service) PostReceipts(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityReceipt, "post", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.postReceipt(ctx, id, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// CancelReceipts deletes the moves of confirmed receipts.
func (s *Service) CancelReceipts(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityReceipt, "cancel", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.cancelReceipt(ctx, id, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// DraftReceipts reopens cancelled receipts and returns their documents.
func (s *Service) DraftReceipts(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityReceipt, "draft", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.draftReceipt(ctx, id, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteReceipts removes draft receipts after rolling back custody.
func (s *Service) DeleteReceipts(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityReceipt, "delete", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			if err := t.deleteReceipt(ctx, id, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// PostConfirmed posts every confirmed receipt of a cash bank dated up to until.
func (s *Service) PostConfirmed(ctx context.Context, cashBankID int64, until time.Time) (int, error) {
	posted := 0
	err := s.transition(ctx, EntityReceipt, "post", func(ctx context.Context, t *txn) error {
		posted = 0
		rows, err := t.tx.ListReceipts(ctx, s.settings.Company.ID, ReceiptFilter{
			CashBankID: cashBankID,
			State:      StateConfirmed,
			DateTo:     &until,
		})
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.TransferID != nil {
				continue
			}
			if err := t.postReceipt(ctx, r.ID, false); err != nil {
				return err
			}
			posted++
		}
		return nil
	})
	return posted, err
}

// CopyReceipt clones a receipt into a fresh draft dated today.
func (s *Service) CopyReceipt(ctx context.Context, id int64) (Receipt, error) {
	var out Receipt
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		src, err := loadReceipt(ctx, t.tx, id)
		if err != nil {
			return err
		}
		copied, err := t.tx.CreateReceipt(ctx, Receipt{
			CompanyID:     src.CompanyID,
			CashBankID:    src.CashBankID,
			TypeID:        src.TypeID,
			Currency:      src.Currency,
			Date:          t.today(),
			PartyID:       src.PartyID,
			BankAccountID: src.BankAccountID,
			Cash:          src.Cash,
			State:         StateDraft,
		})
		if err != nil {
			return err
		}
		lines := make([]Line, 0, len(src.Lines))
		for _, line := range src.Lines {
			lines = append(lines, Line{
				Amount:      line.Amount,
				AccountID:   line.AccountID,
				PartyID:     line.PartyID,
				Description: line.Description,
			})
		}
		saved, err := t.tx.ReplaceLines(ctx, copied.ID, lines)
		if err != nil {
			return err
		}
		copied.Lines = saved
		t.record(EntityReceipt, copied.ID, "receipt.copy", map[string]any{"source": src.ID})
		out = copied
		return nil
	})
	return out, err
}

func loadReceipt(ctx context.Context, tx TxRepository, id int64) (Receipt, error) {
	r, err := tx.GetReceipt(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	if r.Lines, err = tx.ReceiptLines(ctx, id); err != nil {
		return Receipt{}, err
	}
	if r.Documents, err = tx.ReceiptDocuments(ctx, id); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

func (t *txn) loadForTransition(ctx context.Context, id int64, to State, fromTransfer bool) (Receipt, ReceiptType, error) {
	r, err := loadReceipt(ctx, t.tx, id)
	if err != nil {
		return Receipt{}, ReceiptType{}, err
	}
	if !allowed(r.State, to) {
		return Receipt{}, ReceiptType{}, transitionError(EntityReceipt, r.ID, r.State, to)
	}
	if r.TransferID != nil && !fromTransfer {
		return Receipt{}, ReceiptType{}, fmt.Errorf("%w (receipt %d)", ErrTransferOwned, r.ID)
	}
	typ, err := t.tx.GetReceiptType(ctx, r.TypeID)
	if err != nil {
		return Receipt{}, ReceiptType{}, err
	}
	return r, typ, nil
}

func (t *txn) validate(stage Stage, r Receipt, typ ReceiptType) error {
	return t.policy.Validate(ValidationContext{
		Stage:         stage,
		Receipt:       r,
		Type:          typ,
		Today:         t.today(),
		AllowedMonths: t.settings.AllowedMonths,
	})
}

func (t *txn) confirmReceipt(ctx context.Context, id int64, fromTransfer bool) (Receipt, error) {
	r, typ, err := t.loadForTransition(ctx, id, StateConfirmed, fromTransfer)
	if err != nil {
		return Receipt{}, err
	}
	if err := t.validate(StageConfirm, r, typ); err != nil {
		return Receipt{}, err
	}
	if err := t.attach(ctx, r, typ.Direction, r.DocumentIDs()); err != nil {
		return Receipt{}, err
	}
	for _, line := range r.Lines {
		if line.InvoiceID == nil {
			continue
		}
		if _, err := t.checkInvoice(ctx, r, line); err != nil {
			return Receipt{}, err
		}
	}
	cb, err := t.tx.GetCashBank(ctx, r.CashBankID)
	if err != nil {
		return Receipt{}, err
	}
	move, err := t.createMove(ctx, r, typ, cb)
	if err != nil {
		return Receipt{}, err
	}
	// move line 0 is the cash side, the rest follow the receipt lines.
	for idx, line := range r.Lines {
		moveLineID := move.Lines[idx+1].ID
		if err := t.tx.UpdateLineMove(ctx, line.ID, &moveLineID); err != nil {
			return Receipt{}, err
		}
		r.Lines[idx].MoveLineID = &moveLineID
	}
	r.MoveID = &move.ID
	if r.Number == "" {
		number, err := t.sequences.Next(ctx, typ.SequenceID)
		if err != nil {
			return Receipt{}, err
		}
		r.Number = number
	}
	r.State = StateConfirmed
	if err := t.tx.UpdateReceipt(ctx, r); err != nil {
		return Receipt{}, err
	}
	t.record(EntityReceipt, r.ID, "receipt.confirm", map[string]any{"number": r.Number, "move_id": move.ID})
	return r, nil
}

func (t *txn) postReceipt(ctx context.Context, id int64, fromTransfer bool) error {
	r, typ, err := t.loadForTransition(ctx, id, StatePosted, fromTransfer)
	if err != nil {
		return err
	}
	if err := t.validate(StagePost, r, typ); err != nil {
		return err
	}
	for _, line := range r.Lines {
		if line.InvoiceID == nil {
			continue
		}
		if err := t.reconcileLine(ctx, r, line); err != nil {
			return err
		}
	}
	if r.MoveID != nil {
		if err := t.ledger.PostMoves(ctx, []int64{*r.MoveID}); err != nil {
			return err
		}
	}
	r.State = StatePosted
	if err := t.tx.UpdateReceipt(ctx, r); err != nil {
		return err
	}
	t.record(EntityReceipt, r.ID, "receipt.post", nil)
	return nil
}

func (t *txn) cancelReceipt(ctx context.Context, id int64, fromTransfer bool) error {
	r, _, err := t.loadForTransition(ctx, id, StateCancel, fromTransfer)
	if err != nil {
		return err
	}
	var drop []int64
	for _, line := range r.Lines {
		if line.InvoiceID != nil {
			inv, err := t.invoices.Get(ctx, *line.InvoiceID)
			if err != nil {
				return err
			}
			if inv.State != invoice.StatePosted {
				drop = append(drop, line.ID)
				continue
			}
		}
		if line.MoveLineID != nil {
			if err := t.tx.UpdateLineMove(ctx, line.ID, nil); err != nil {
				return err
			}
		}
	}
	if err := t.tx.DeleteLines(ctx, drop); err != nil {
		return err
	}
	moveID := r.MoveID
	r.MoveID = nil
	r.State = StateCancel
	if err := t.tx.UpdateReceipt(ctx, r); err != nil {
		return err
	}
	if moveID != nil {
		if err := t.ledger.DeleteMoves(ctx, []int64{*moveID}); err != nil {
			return err
		}
	}
	t.record(EntityReceipt, r.ID, "receipt.cancel", map[string]any{"dropped_lines": len(drop)})
	return nil
}

func (t *txn) draftReceipt(ctx context.Context, id int64, fromTransfer bool) error {
	r, _, err := t.loadForTransition(ctx, id, StateDraft, fromTransfer)
	if err != nil {
		return err
	}
	if err := t.revert(ctx, r, r.Documents); err != nil {
		return err
	}
	r.State = StateDraft
	if err := t.tx.UpdateReceipt(ctx, r); err != nil {
		return err
	}
	t.record(EntityReceipt, r.ID, "receipt.draft", nil)
	return nil
}

func (t *txn) deleteReceipt(ctx context.Context, id int64, fromTransfer bool) error {
	r, err := loadReceipt(ctx, t.tx, id)
	if err != nil {
		return err
	}
	if r.State != StateDraft {
		return fmt.Errorf("%w (receipt %d is %s)", ErrNotDraft, r.ID, r.State)
	}
	if r.TransferID != nil && !fromTransfer {
		return fmt.Errorf("%w (receipt %d)", ErrTransferOwned, r.ID)
	}
	if err := t.revert(ctx, r, r.Documents); err != nil {
		return err
	}
	if err := t.tx.DeleteReceipt(ctx, r.ID); err != nil {
		return err
	}
	t.record(EntityReceipt, r.ID, "receipt.delete", map[string]any{"number": r.Number})
	return nil
}

var transitions = map[State][]State{
	StateDraft:     {StateConfirmed},
	StateConfirmed: {StatePosted, StateCancel},
	StateCancel:    {StateDraft},
}

func allowed(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
