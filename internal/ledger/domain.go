package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// MoveState enumerates move lifecycle values.
type MoveState string

const (
	MoveStateDraft  MoveState = "draft"
	MoveStatePosted MoveState = "posted"
)

// Account is the ledger view of a chart of accounts entry.
type Account struct {
	ID            int64
	CompanyID     int64
	Code          string
	Name          string
	PartyRequired bool
	Reconcile     bool
	Closed        bool
}

// Period represents a fiscal period window.
type Period struct {
	ID        int64
	CompanyID int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
}

// Contains reports whether date falls inside the period window.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Origin tags a move with the record that requested it.
type Origin struct {
	Model string
	ID    int64
}

func (o Origin) String() string {
	return fmt.Sprintf("%s,%d", o.Model, o.ID)
}

// SourceID derives the deterministic source reference of an origin.
func (o Origin) SourceID() uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(o.String()))
}

// Move is a journal entry.
type Move struct {
	ID          int64
	CompanyID   int64
	PeriodID    int64
	JournalID   int64
	Date        time.Time
	Origin      Origin
	SourceID    uuid.UUID
	Description string
	State       MoveState
	CreatedAt   time.Time
	PostedAt    *time.Time
	Lines       []MoveLine
}

// MoveLine stores the debit or credit of one account.
type MoveLine struct {
	ID                   int64
	MoveID               int64
	AccountID            int64
	PartyID              *int64
	Description          string
	Debit                decimal.Decimal
	Credit               decimal.Decimal
	SecondCurrency       string
	AmountSecondCurrency *decimal.Decimal
	ReconciliationID     *int64
}

// Balance returns debit minus credit.
func (l MoveLine) Balance() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}

// MoveInput groups the fields required to create a move.
type MoveInput struct {
	CompanyID   int64
	PeriodID    int64
	JournalID   int64
	Date        time.Time
	Origin      Origin
	Description string
	Lines       []MoveLine
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: move lines must balance")
	// ErrNoLines indicates an empty move.
	ErrNoLines = errors.New("ledger: move requires lines")
	// ErrPeriodNotFound indicates no period covers the date.
	ErrPeriodNotFound = errors.New("ledger: no period found for date")
	// ErrPeriodClosed indicates the period no longer accepts moves.
	ErrPeriodClosed = errors.New("ledger: period is not open")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountClosed indicates the account no longer accepts lines.
	ErrAccountClosed = errors.New("ledger: account closed")
	// ErrMoveNotFound indicates a missing move.
	ErrMoveNotFound = errors.New("ledger: move not found")
	// ErrMovePosted indicates a posted move cannot be changed.
	ErrMovePosted = errors.New("ledger: move already posted")
	// ErrSourceAlreadyLinked indicates the origin already owns a move.
	ErrSourceAlreadyLinked = errors.New("ledger: origin already has a move")
	// ErrReconcileUnbalanced indicates reconciled lines do not net to zero.
	ErrReconcileUnbalanced = errors.New("ledger: reconciled lines must balance")
	// ErrAlreadyReconciled indicates a line already belongs to a reconciliation.
	ErrAlreadyReconciled = errors.New("ledger: line already reconciled")
)

// Validate ensures the move input meets minimum criteria.
func (in MoveInput) Validate() error {
	if in.PeriodID == 0 {
		return errors.New("ledger: period required")
	}
	if in.JournalID == 0 {
		return errors.New("ledger: journal required")
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	if in.Origin.Model == "" {
		return errors.New("ledger: origin required")
	}
	return nil
}
