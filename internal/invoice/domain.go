package invoice

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes supplier (in) from customer (out) invoices.
type Kind string

const (
	KindIn  Kind = "in"
	KindOut Kind = "out"
)

// State enumerates invoice statuses.
type State string

const (
	StateDraft     State = "draft"
	StatePosted    State = "posted"
	StatePaid      State = "paid"
	StateCancelled State = "cancelled"
)

// Invoice is the payment-facing view of an invoice.
type Invoice struct {
	ID           int64
	CompanyID    int64
	Kind         Kind
	Number       string
	Reference    string
	PartyID      int64
	AccountID    int64
	Currency     string
	CurrencyDate time.Time
	State        State
	Total        decimal.Decimal
	Paid         decimal.Decimal
	MoveID       *int64
}

// AmountToPay is the open balance in invoice currency.
func (i Invoice) AmountToPay() decimal.Decimal {
	if i.State == StatePaid || i.State == StateCancelled {
		return decimal.Zero
	}
	return i.Total.Sub(i.Paid)
}

// OpenLine is an unreconciled ledger line taking part in the invoice settlement.
type OpenLine struct {
	MoveLineID int64
	Balance    decimal.Decimal
}

var (
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("invoice: not found")
	// ErrInvoiceNotPosted indicates the invoice cannot take payments.
	ErrInvoiceNotPosted = errors.New("invoice: not posted")
	// ErrPaymentExceedsBalance indicates an overpayment.
	ErrPaymentExceedsBalance = errors.New("invoice: payment exceeds amount to pay")
)
