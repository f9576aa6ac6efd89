package cashbank

import (
	"context"
	"fmt"
	"time"
)

// ConvertionInput carries the editable fields of a draft convertion.
type ConvertionInput struct {
	CashBankID  int64
	Date        time.Time
	Description string
	DocumentIDs []int64
}

// CreateConvertion stores a draft convertion.
func (s *Service) CreateConvertion(ctx context.Context, input ConvertionInput) (Convertion, error) {
	var out Convertion
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		c := Convertion{CompanyID: s.settings.Company.ID, State: StateDraft}
		if err := t.applyConvertion(ctx, &c, input); err != nil {
			return err
		}
		created, err := t.tx.CreateConvertion(ctx, c)
		if err != nil {
			return err
		}
		if err := t.tx.SetConvertionDocuments(ctx, created.ID, uniqueIDs(input.DocumentIDs)); err != nil {
			return err
		}
		if created.Documents, err = t.tx.ConvertionDocuments(ctx, created.ID); err != nil {
			return err
		}
		t.record(EntityConvertion, created.ID, "convertion.create", nil)
		out = created
		return nil
	})
	return out, err
}

// UpdateConvertion rewrites a draft convertion.
func (s *Service) UpdateConvertion(ctx context.Context, id int64, input ConvertionInput) (Convertion, error) {
	var out Convertion
	err := s.run(ctx, func(ctx context.Context, t *txn) error {
		c, err := t.tx.GetConvertion(ctx, id)
		if err != nil {
			return err
		}
		if c.State != StateDraft {
			return ErrNotDraft
		}
		if err := t.applyConvertion(ctx, &c, input); err != nil {
			return err
		}
		if err := t.tx.UpdateConvertion(ctx, c); err != nil {
			return err
		}
		if err := t.tx.SetConvertionDocuments(ctx, c.ID, uniqueIDs(input.DocumentIDs)); err != nil {
			return err
		}
		if c.Documents, err = t.tx.ConvertionDocuments(ctx, c.ID); err != nil {
			return err
		}
		t.record(EntityConvertion, c.ID, "convertion.update", nil)
		out = c
		return nil
	})
	return out, err
}

func (t *txn) applyConvertion(ctx context.Context, c *Convertion, input ConvertionInput) error {
	cb, err := t.tx.GetCashBank(ctx, input.CashBankID)
	if err != nil {
		return err
	}
	if cb.Kind != KindCash {
		return ErrConvertionCashOnly
	}
	c.CashBankID = cb.ID
	c.Date = input.Date
	if c.Date.IsZero() {
		c.Date = t.today()
	}
	c.Description = input.Description
	docs, err := t.tx.GetDocuments(ctx, uniqueIDs(input.DocumentIDs))
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := t.checkConvertible(ctx, cb.ID, doc, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// checkConvertible requires a document held by a receipt of cashBankID and not converted
// by another convertion.
func (t *txn) checkConvertible(ctx context.Context, cashBankID int64, doc Document, convertionID int64) error {
	unavailable := func(reason string) error {
		return &DocumentUnavailableError{DocumentID: doc.ID, HolderID: doc.LastReceiptID, Reason: reason}
	}
	if doc.ConvertionID != nil && *doc.ConvertionID != convertionID {
		return unavailable("document was converted")
	}
	if doc.LastReceiptID == nil {
		return unavailable("document has no holder")
	}
	holder, err := t.tx.GetReceipt(ctx, *doc.LastReceiptID)
	if err != nil {
		return err
	}
	if holder.CashBankID != cashBankID {
		return unavailable("held by another cash bank")
	}
	return nil
}

// GetConvertion loads a convertion with its documents.
func (s *Service) GetConvertion(ctx context.Context, id int64) (Convertion, error) {
	var out Convertion
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetConvertion(ctx, id)
		if err != nil {
			return err
		}
		if c.Documents, err = tx.ConvertionDocuments(ctx, id); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// ListConvertions returns convertion headers of the company, newest first.
func (s *Service) ListConvertions(ctx context.Context, filter ConvertionFilter) ([]Convertion, error) {
	var out []Convertion
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListConvertions(ctx, s.settings.Company.ID, filter)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

// ConvertibleDocuments lists documents a convertion on cashBankID may take.
func (s *Service) ConvertibleDocuments(ctx context.Context, cashBankID int64) ([]Document, error) {
	return s.ListDocuments(ctx, DocumentFilter{HolderCashBankID: cashBankID, WithoutConvert: true})
}

// ConfirmConvertions marks the documents as converted and numbers the convertions.
func (s *Service) ConfirmConvertions(ctx context.Context, ids []int64) error {
	if s.settings.ConvertionSequenceID == 0 {
		return ErrConvertionSequence
	}
	return s.transition(ctx, EntityConvertion, "confirm", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			c, err := t.loadConvertion(ctx, id, StateConfirmed)
			if err != nil {
				return err
			}
			locked, err := t.tx.GetDocuments(ctx, documentIDs(c.Documents))
			if err != nil {
				return err
			}
			for _, doc := range locked {
				if err := t.checkConvertible(ctx, c.CashBankID, doc, c.ID); err != nil {
					return err
				}
				if err := t.tx.SetDocumentConvertion(ctx, doc.ID, &c.ID); err != nil {
					return err
				}
			}
			if c.Number == "" {
				if c.Number, err = t.sequences.Next(ctx, s.settings.ConvertionSequenceID); err != nil {
					return err
				}
			}
			c.State = StateConfirmed
			if err := t.tx.UpdateConvertion(ctx, c); err != nil {
				return err
			}
			t.record(EntityConvertion, c.ID, "convertion.confirm", map[string]any{"number": c.Number})
		}
		return nil
	})
}

// CancelConvertions cancels confirmed convertions. Documents keep their marks.
func (s *Service) CancelConvertions(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityConvertion, "cancel", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			c, err := t.loadConvertion(ctx, id, StateCancel)
			if err != nil {
				return err
			}
			c.State = StateCancel
			if err := t.tx.UpdateConvertion(ctx, c); err != nil {
				return err
			}
			t.record(EntityConvertion, c.ID, "convertion.cancel", nil)
		}
		return nil
	})
}

// DraftConvertions reopens cancelled convertions and clears the document marks.
func (s *Service) DraftConvertions(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityConvertion, "draft", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			c, err := t.loadConvertion(ctx, id, StateDraft)
			if err != nil {
				return err
			}
			for _, doc := range c.Documents {
				if doc.ConvertionID == nil || *doc.ConvertionID != c.ID {
					continue
				}
				if err := t.tx.SetDocumentConvertion(ctx, doc.ID, nil); err != nil {
					return err
				}
			}
			c.State = StateDraft
			if err := t.tx.UpdateConvertion(ctx, c); err != nil {
				return err
			}
			t.record(EntityConvertion, c.ID, "convertion.draft", nil)
		}
		return nil
	})
}

// DeleteConvertions removes draft convertions.
func (s *Service) DeleteConvertions(ctx context.Context, ids []int64) error {
	return s.transition(ctx, EntityConvertion, "delete", func(ctx context.Context, t *txn) error {
		for _, id := range ids {
			c, err := t.tx.GetConvertion(ctx, id)
			if err != nil {
				return err
			}
			if c.State != StateDraft {
				return fmt.Errorf("%w (convertion %d is %s)", ErrNotDraft, c.ID, c.State)
			}
			if err := t.tx.DeleteConvertion(ctx, c.ID); err != nil {
				return err
			}
			t.record(EntityConvertion, c.ID, "convertion.delete", nil)
		}
		return nil
	})
}

var convertionTransitions = map[State][]State{
	StateDraft:     {StateConfirmed},
	StateConfirmed: {StateCancel},
	StateCancel:    {StateDraft},
}

func (t *txn) loadConvertion(ctx context.Context, id int64, to State) (Convertion, error) {
	c, err := t.tx.GetConvertion(ctx, id)
	if err != nil {
		return Convertion{}, err
	}
	ok := false
	for _, next := range convertionTransitions[c.State] {
		ok = ok || next == to
	}
	if !ok {
		return Convertion{}, transitionError(EntityConvertion, c.ID, c.State, to)
	}
	if c.Documents, err = t.tx.ConvertionDocuments(ctx, id); err != nil {
		return Convertion{}, err
	}
	return c, nil
}
