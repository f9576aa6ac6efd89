package cashbank

import (
	"errors"
	"fmt"
)

// Error kinds. Every validation error of the package wraps exactly one of them.
var (
	ErrInvariant  = errors.New("cashbank: invariant violated")
	ErrStateGuard = errors.New("cashbank: transition not allowed")
	ErrBalance    = errors.New("cashbank: balance mismatch")
	ErrCustody    = errors.New("cashbank: document custody")
	ErrNotFound   = errors.New("cashbank: not found")
)

var (
	ErrCashBankNotFound     = fmt.Errorf("%w: cash bank", ErrNotFound)
	ErrReceiptTypeNotFound  = fmt.Errorf("%w: receipt type", ErrNotFound)
	ErrDocumentTypeNotFound = fmt.Errorf("%w: document type", ErrNotFound)
	ErrDocumentNotFound     = fmt.Errorf("%w: document", ErrNotFound)
	ErrReceiptNotFound      = fmt.Errorf("%w: receipt", ErrNotFound)
	ErrConvertionNotFound   = fmt.Errorf("%w: convertion", ErrNotFound)
	ErrTransferNotFound     = fmt.Errorf("%w: transfer", ErrNotFound)

	ErrAccountInUse        = fmt.Errorf("%w: account already bound to another cash bank", ErrInvariant)
	ErrTypeMismatch        = fmt.Errorf("%w: receipt type does not belong to cash bank", ErrInvariant)
	ErrTypeInactive        = fmt.Errorf("%w: receipt type is inactive", ErrInvariant)
	ErrDocumentAmount      = fmt.Errorf("%w: document amount must be positive", ErrInvariant)
	ErrLineAmountZero      = fmt.Errorf("%w: line amount cannot be zero", ErrInvariant)
	ErrLineAccountRequired = fmt.Errorf("%w: line account required", ErrInvariant)
	ErrNoLines             = fmt.Errorf("%w: receipt has no lines", ErrInvariant)
	ErrPartyRequired       = fmt.Errorf("%w: party required", ErrInvariant)
	ErrBankAccountRequired = fmt.Errorf("%w: bank account required", ErrInvariant)
	ErrDateNotAllowed      = fmt.Errorf("%w: date outside the allowed months", ErrInvariant)
	ErrInvoiceMismatch     = fmt.Errorf("%w: invoice does not match line", ErrInvariant)
	ErrInvoiceNotPosted    = fmt.Errorf("%w: invoice is not posted", ErrInvariant)
	ErrCurrencyRequired    = fmt.Errorf("%w: currency required", ErrInvariant)
	ErrSameCashBank        = fmt.Errorf("%w: transfer needs two different cash banks", ErrInvariant)
	ErrTransferDirection   = fmt.Errorf("%w: transfer types must be out then in", ErrInvariant)
	ErrTransferAccount     = fmt.Errorf("%w: transfer account not configured", ErrInvariant)
	ErrConvertionSequence  = fmt.Errorf("%w: convertion sequence not configured", ErrInvariant)
	ErrConvertionCashOnly  = fmt.Errorf("%w: convertions need a cash kind cash bank", ErrInvariant)

	ErrDiffNotZero      = fmt.Errorf("%w: lines do not match total", ErrBalance)
	ErrTotalNotPositive = fmt.Errorf("%w: total must be positive", ErrBalance)
	ErrNegativeTotal    = fmt.Errorf("%w: total cannot be negative", ErrBalance)
	ErrNegativeCash     = fmt.Errorf("%w: cash cannot be negative", ErrBalance)

	ErrNotDraft      = fmt.Errorf("%w: only draft records can be changed", ErrStateGuard)
	ErrTransferOwned = fmt.Errorf("%w: receipt belongs to a transfer", ErrStateGuard)
	ErrLegsNotCancel = fmt.Errorf("%w: transfer receipts must be cancelled", ErrStateGuard)

	ErrDocumentHeld = fmt.Errorf("%w: document is held by a receipt", ErrCustody)
)

// TransitionError reports a rejected workflow edge.
type TransitionError struct {
	Entity string
	ID     int64
	From   State
	To     State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cashbank: %s %d cannot go from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// Unwrap exposes the state guard kind.
func (e *TransitionError) Unwrap() error { return ErrStateGuard }

// DocumentUnavailableError names a document that cannot join a set.
type DocumentUnavailableError struct {
	DocumentID int64
	ReceiptID  int64
	Direction  Direction
	HolderID   *int64
	Reason     string
}

func (e *DocumentUnavailableError) Error() string {
	holder := "none"
	if e.HolderID != nil {
		holder = fmt.Sprintf("%d", *e.HolderID)
	}
	return fmt.Sprintf("cashbank: document %d unavailable for %s receipt %d (holder %s): %s",
		e.DocumentID, e.Direction, e.ReceiptID, holder, e.Reason)
}

// Unwrap exposes the custody kind.
func (e *DocumentUnavailableError) Unwrap() error { return ErrCustody }

// InvoiceAmountError is raised when a line pays more than its invoice owes.
type InvoiceAmountError struct {
	InvoiceID int64
	Number    string
	Amount    string
	ToPay     string
}

func (e *InvoiceAmountError) Error() string {
	return fmt.Sprintf("cashbank: amount %s exceeds %s left to pay on invoice %s", e.Amount, e.ToPay, e.Number)
}

// Unwrap exposes the balance kind.
func (e *InvoiceAmountError) Unwrap() error { return ErrBalance }

func transitionError(entity string, id int64, from, to State) error {
	return &TransitionError{Entity: entity, ID: id, From: from, To: to}
}
