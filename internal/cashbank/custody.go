package cashbank

import (
	"context"
)

// checkAvailable enforces the attachment domain of a document for receipt r.
// When r already holds the document the domain is checked against the
// custodian r took it from.
func (t *txn) checkAvailable(ctx context.Context, r Receipt, dir Direction, doc Document) error {
	holderID := doc.LastReceiptID
	if doc.HeldBy(r.ID) {
		previous, err := t.tx.LatestHolder(ctx, doc.ID, r.ID)
		if err != nil {
			return err
		}
		holderID = previous
	}
	unavailable := func(reason string) error {
		return &DocumentUnavailableError{
			DocumentID: doc.ID,
			ReceiptID:  r.ID,
			Direction:  dir,
			HolderID:   holderID,
			Reason:     reason,
		}
	}
	if doc.ConvertionID != nil {
		return unavailable("document was converted")
	}
	if holderID == nil {
		if dir == DirectionIn {
			return nil
		}
		return unavailable("out receipts only take documents already in custody")
	}
	holder, err := t.tx.GetReceipt(ctx, *holderID)
	if err != nil {
		return err
	}
	holderType, err := t.tx.GetReceiptType(ctx, holder.TypeID)
	if err != nil {
		return err
	}
	switch dir {
	case DirectionIn:
		if holderType.Direction == DirectionOut {
			return nil
		}
		return unavailable("held by an in receipt")
	case DirectionOut:
		if holderType.Direction == DirectionIn && (holder.State == StateConfirmed || holder.State == StatePosted) {
			return nil
		}
		return unavailable("holder is not a confirmed in receipt")
	}
	return unavailable("unknown direction")
}

// attach makes r the custodian of every document in ids.
func (t *txn) attach(ctx context.Context, r Receipt, dir Direction, ids []int64) error {
	docs, err := t.tx.GetDocuments(ctx, uniqueIDs(ids))
	if err != nil {
		return err
	}
	var moved []int64
	for _, doc := range docs {
		if err := t.checkAvailable(ctx, r, dir, doc); err != nil {
			return err
		}
		if err := t.tx.AddMembership(ctx, r.ID, doc.ID); err != nil {
			return err
		}
		if doc.HeldBy(r.ID) {
			continue
		}
		if err := t.tx.TakeCustody(ctx, r.ID, doc.ID); err != nil {
			return err
		}
		holder := r.ID
		if err := t.tx.SetDocumentReceipt(ctx, doc.ID, &holder); err != nil {
			return err
		}
		moved = append(moved, doc.ID)
	}
	if len(moved) > 0 && r.TransferID == nil {
		t.record(EntityReceipt, r.ID, "document.custody.attach", map[string]any{"documents": moved})
	}
	return nil
}

// revert releases the custody r took over docs and hands every document it
// still holds back to its previous custodian. Documents held elsewhere keep
// their holder.
func (t *txn) revert(ctx context.Context, r Receipt, docs []Document) error {
	var returned []int64
	for _, doc := range docs {
		if err := t.tx.ReleaseCustody(ctx, r.ID, doc.ID); err != nil {
			return err
		}
		if !doc.HeldBy(r.ID) {
			continue
		}
		previous, err := t.tx.LatestHolder(ctx, doc.ID, r.ID)
		if err != nil {
			return err
		}
		if err := t.tx.SetDocumentReceipt(ctx, doc.ID, previous); err != nil {
			return err
		}
		returned = append(returned, doc.ID)
		meta := map[string]any{"from_receipt": r.ID}
		if previous != nil {
			meta["to_receipt"] = *previous
		}
		t.record(EntityDocument, doc.ID, "document.custody.revert", meta)
	}
	if len(returned) > 0 {
		t.record(EntityReceipt, r.ID, "document.custody.revert", map[string]any{"documents": returned})
	}
	return nil
}

// syncDocuments replaces the document set of a draft receipt.
func (t *txn) syncDocuments(ctx context.Context, r Receipt, dir Direction, ids []int64) ([]Document, error) {
	current, err := t.tx.ReceiptDocuments(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	keep := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	var removed []Document
	for _, doc := range current {
		if _, ok := keep[doc.ID]; !ok {
			removed = append(removed, doc)
		}
	}
	if err := t.revert(ctx, r, removed); err != nil {
		return nil, err
	}
	for _, doc := range removed {
		if err := t.tx.RemoveMembership(ctx, r.ID, doc.ID); err != nil {
			return nil, err
		}
	}
	if err := t.attach(ctx, r, dir, ids); err != nil {
		return nil, err
	}
	return t.tx.ReceiptDocuments(ctx, r.ID)
}
