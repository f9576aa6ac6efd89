package cashbank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CreateCashBank registers a cash drawer or bank account. The ledger account
// may back a single cash bank only.
func (s *Service) CreateCashBank(ctx context.Context, cb CashBank) (CashBank, error) {
	cb.Name = strings.TrimSpace(cb.Name)
	if cb.Name == "" {
		return CashBank{}, fmt.Errorf("%w: name required", ErrInvariant)
	}
	if cb.Kind != KindCash && cb.Kind != KindBank {
		return CashBank{}, fmt.Errorf("%w: kind must be cash or bank", ErrInvariant)
	}
	if cb.Kind == KindCash {
		cb.BankAccountID = nil
	}
	cb.CompanyID = s.settings.Company.ID
	var out CashBank
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		if _, err := t.ledger.GetAccount(ctx, cb.AccountID); err != nil {
			return err
		}
		if _, exists, err := t.tx.CashBankByAccount(ctx, cb.AccountID); err != nil {
			return err
		} else if exists {
			return ErrAccountInUse
		}
		created, err := t.tx.CreateCashBank(ctx, cb)
		if err != nil {
			return err
		}
		for _, rt := range cb.ReceiptTypes {
			rt.CashBankID = created.ID
			saved, err := t.createReceiptType(ctx, rt)
			if err != nil {
				return err
			}
			created.ReceiptTypes = append(created.ReceiptTypes, saved)
		}
		t.record(EntityCashBank, created.ID, "cash_bank.create", map[string]any{"account_id": created.AccountID})
		out = created
		return nil
	})
	return out, err
}

// GetCashBank loads a cash bank with its receipt types.
func (s *Service) GetCashBank(ctx context.Context, id int64) (CashBank, error) {
	var out CashBank
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cb, err := tx.GetCashBank(ctx, id)
		if err != nil {
			return err
		}
		if cb.ReceiptTypes, err = tx.ListReceiptTypes(ctx, id); err != nil {
			return err
		}
		out = cb
		return nil
	})
	return out, err
}

// ListCashBanks lists the cash banks of the company.
func (s *Service) ListCashBanks(ctx context.Context) ([]CashBank, error) {
	var out []CashBank
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListCashBanks(ctx, s.settings.Company.ID)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

// CreateReceiptType adds a receipt type to a cash bank.
func (s *Service) CreateReceiptType(ctx context.Context, rt ReceiptType) (ReceiptType, error) {
	var out ReceiptType
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		if _, err := t.tx.GetCashBank(ctx, rt.CashBankID); err != nil {
			return err
		}
		saved, err := t.createReceiptType(ctx, rt)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	return out, err
}

func (t *txn) createReceiptType(ctx context.Context, rt ReceiptType) (ReceiptType, error) {
	rt.Name = strings.TrimSpace(rt.Name)
	if rt.Name == "" {
		return ReceiptType{}, fmt.Errorf("%w: receipt type name required", ErrInvariant)
	}
	if rt.Direction != DirectionIn && rt.Direction != DirectionOut {
		return ReceiptType{}, fmt.Errorf("%w: receipt type direction must be in or out", ErrInvariant)
	}
	if rt.SequenceID == 0 {
		return ReceiptType{}, fmt.Errorf("%w: receipt type sequence required", ErrInvariant)
	}
	if !rt.BankAccount {
		rt.BankAccountRequired = false
	}
	return t.tx.CreateReceiptType(ctx, rt)
}

// CreateDocumentType adds a document type.
func (s *Service) CreateDocumentType(ctx context.Context, dt DocumentType) (DocumentType, error) {
	dt.Name = strings.TrimSpace(dt.Name)
	if dt.Name == "" {
		return DocumentType{}, fmt.Errorf("%w: document type name required", ErrInvariant)
	}
	var out DocumentType
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		saved, err := t.tx.CreateDocumentType(ctx, dt)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	return out, err
}

// ListDocumentTypes lists every document type.
func (s *Service) ListDocumentTypes(ctx context.Context) ([]DocumentType, error) {
	var out []DocumentType
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListDocumentTypes(ctx)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

// DocumentInput carries the editable fields of a document.
type DocumentInput struct {
	TypeID    int64
	Amount    decimal.Decimal
	Date      *time.Time
	PartyID   *int64
	Reference string
	Entity    string
}

func (in DocumentInput) apply(doc *Document) error {
	if !in.Amount.IsPositive() {
		return ErrDocumentAmount
	}
	doc.TypeID = in.TypeID
	doc.Amount = in.Amount
	doc.Date = in.Date
	doc.PartyID = in.PartyID
	doc.Reference = in.Reference
	doc.Entity = in.Entity
	return nil
}

// CreateDocument registers a document without a custodian.
func (s *Service) CreateDocument(ctx context.Context, input DocumentInput) (Document, error) {
	var doc Document
	if err := input.apply(&doc); err != nil {
		return Document{}, err
	}
	var out Document
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		dt, err := t.tx.GetDocumentType(ctx, doc.TypeID)
		if err != nil {
			return err
		}
		if !dt.Active {
			return fmt.Errorf("%w: document type is inactive", ErrInvariant)
		}
		created, err := t.tx.CreateDocument(ctx, doc)
		if err != nil {
			return err
		}
		t.record(EntityDocument, created.ID, "document.create", map[string]any{"amount": created.Amount.String()})
		out = created
		return nil
	})
	return out, err
}

// UpdateDocument edits a document that no receipt holds.
func (s *Service) UpdateDocument(ctx context.Context, id int64, input DocumentInput) (Document, error) {
	var out Document
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		doc, err := t.heldCheck(ctx, id)
		if err != nil {
			return err
		}
		if err := input.apply(&doc); err != nil {
			return err
		}
		if _, err := t.tx.GetDocumentType(ctx, doc.TypeID); err != nil {
			return err
		}
		if err := t.tx.UpdateDocument(ctx, doc); err != nil {
			return err
		}
		t.record(EntityDocument, doc.ID, "document.update", nil)
		out = doc
		return nil
	})
	return out, err
}

// DeleteDocument removes a document that no receipt holds.
func (s *Service) DeleteDocument(ctx context.Context, id int64) error {
	return s.run(ctx, func(ctx context.Context, t *txn) error {
		if _, err := t.heldCheck(ctx, id); err != nil {
			return err
		}
		if err := t.tx.DeleteDocument(ctx, id); err != nil {
			return err
		}
		t.record(EntityDocument, id, "document.delete", nil)
		return nil
	})
}

// GetDocument loads one document.
func (s *Service) GetDocument(ctx context.Context, id int64) (Document, error) {
	var out Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		docs, err := tx.GetDocuments(ctx, []int64{id})
		if err != nil {
			return err
		}
		out = docs[0]
		return nil
	})
	return out, err
}

// ListDocuments lists documents matching filter.
func (s *Service) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var out []Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListDocuments(ctx, filter)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

func (t *txn) heldCheck(ctx context.Context, id int64) (Document, error) {
	docs, err := t.tx.GetDocuments(ctx, []int64{id})
	if err != nil {
		return Document{}, err
	}
	doc := docs[0]
	if doc.LastReceiptID != nil || doc.ConvertionID != nil {
		return Document{}, ErrDocumentHeld
	}
	return doc, nil
}
