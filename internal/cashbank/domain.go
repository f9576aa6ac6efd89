package cashbank

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tells a cash drawer from a bank account.
type Kind string

const (
	KindCash Kind = "cash"
	KindBank Kind = "bank"
)

// Direction is the flow of a receipt type.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// State enumerates workflow states shared by receipts, transfers and convertions.
// Convertions never reach StatePosted.
type State string

const (
	StateDraft     State = "draft"
	StateConfirmed State = "confirmed"
	StatePosted    State = "posted"
	StateCancel    State = "cancel"
)

// Audit entities.
const (
	EntityReceipt    = "cash_bank.receipt"
	EntityDocument   = "cash_bank.document"
	EntityConvertion = "cash_bank.convertion"
	EntityTransfer   = "cash_bank.transfer"
	EntityCashBank   = "cash_bank"
)

// CashBank is a cash drawer or bank account bound to one ledger account.
type CashBank struct {
	ID            int64         `json:"id"`
	CompanyID     int64         `json:"company_id"`
	Name          string        `json:"name"`
	Kind          Kind          `json:"kind"`
	JournalID     int64         `json:"journal_id"`
	AccountID     int64         `json:"account_id"`
	BankAccountID *int64        `json:"bank_account_id,omitempty"`
	ReceiptTypes  []ReceiptType `json:"receipt_types,omitempty"`
}

// ReceiptType scopes a CashBank to a direction and a number sequence.
type ReceiptType struct {
	ID                  int64     `json:"id"`
	CashBankID          int64     `json:"cash_bank_id"`
	Name                string    `json:"name"`
	Direction           Direction `json:"direction"`
	SequenceID          int64     `json:"sequence_id"`
	PartyRequired       bool      `json:"party_required"`
	BankAccount         bool      `json:"bank_account"`
	BankAccountRequired bool      `json:"bank_account_required"`
	Active              bool      `json:"active"`
}

// DocumentType classifies documents (cheque, draft, voucher).
type DocumentType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// Document is a third-party payment instrument not yet realized as cash.
type Document struct {
	ID            int64           `json:"id"`
	TypeID        int64           `json:"type_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          *time.Time      `json:"date,omitempty"`
	PartyID       *int64          `json:"party_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Entity        string          `json:"entity,omitempty"`
	LastReceiptID *int64          `json:"last_receipt_id,omitempty"`
	ConvertionID  *int64          `json:"convertion_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HeldBy reports whether receipt id is the current custodian.
func (d Document) HeldBy(id int64) bool {
	return d.LastReceiptID != nil && *d.LastReceiptID == id
}

// Line is one ledger-facing entry of a receipt.
type Line struct {
	ID          int64           `json:"id"`
	ReceiptID   int64           `json:"receipt_id"`
	Sequence    int             `json:"sequence"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   int64           `json:"account_id"`
	PartyID     *int64          `json:"party_id,omitempty"`
	InvoiceID   *int64          `json:"invoice_id,omitempty"`
	Description string          `json:"description,omitempty"`
	MoveLineID  *int64          `json:"move_line_id,omitempty"`
}

// Receipt is a single cash/bank transaction balancing cash and documents against lines.
type Receipt struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	CashBankID    int64           `json:"cash_bank_id"`
	TypeID        int64           `json:"type_id"`
	Currency      string          `json:"currency"`
	Date          time.Time       `json:"date"`
	Number        string          `json:"number,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Description   string          `json:"description,omitempty"`
	PartyID       *int64          `json:"party_id,omitempty"`
	BankAccountID *int64          `json:"bank_account_id,omitempty"`
	Cash          decimal.Decimal `json:"cash"`
	State         State           `json:"state"`
	MoveID        *int64          `json:"move_id,omitempty"`
	TransferID    *int64          `json:"transfer_id,omitempty"`
	Lines         []Line          `json:"lines"`
	Documents     []Document      `json:"documents"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TotalDocuments sums the attached document amounts.
func (r Receipt) TotalDocuments() decimal.Decimal {
	total := decimal.Zero
	for _, doc := range r.Documents {
		total = total.Add(doc.Amount)
	}
	return total
}

// TotalLines sums the signed line amounts.
func (r Receipt) TotalLines() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

// Total is cash plus documents.
func (r Receipt) Total() decimal.Decimal {
	return r.Cash.Add(r.TotalDocuments())
}

// Diff is lines minus total; zero when the receipt balances.
func (r Receipt) Diff() decimal.Decimal {
	return r.TotalLines().Sub(r.Total())
}

// DocumentIDs lists the attached document ids.
func (r Receipt) DocumentIDs() []int64 {
	return documentIDs(r.Documents)
}

// Convertion marks a batch of documents as converted to cash.
type Convertion struct {
	ID          int64      `json:"id"`
	CompanyID   int64      `json:"company_id"`
	CashBankID  int64      `json:"cash_bank_id"`
	Date        time.Time  `json:"date"`
	Number      string     `json:"number,omitempty"`
	Description string     `json:"description,omitempty"`
	State       State      `json:"state"`
	Documents   []Document `json:"documents"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Transfer moves cash and documents between two CashBanks through a pair of receipts.
type Transfer struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	Date           time.Time       `json:"date"`
	CashBankFromID int64           `json:"cash_bank_from_id"`
	TypeFromID     int64           `json:"type_from_id"`
	CashBankToID   int64           `json:"cash_bank_to_id"`
	TypeToID       int64           `json:"type_to_id"`
	Currency       string          `json:"currency"`
	Cash           decimal.Decimal `json:"cash"`
	PartyID        *int64          `json:"party_id,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Description    string          `json:"description,omitempty"`
	State          State           `json:"state"`
	ReceiptFromID  *int64          `json:"receipt_from_id,omitempty"`
	ReceiptToID    *int64          `json:"receipt_to_id,omitempty"`
	Documents      []Document      `json:"documents"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TotalDocuments sums the transferred document amounts.
func (t Transfer) TotalDocuments() decimal.Decimal {
	total := decimal.Zero
	for _, doc := range t.Documents {
		total = total.Add(doc.Amount)
	}
	return total
}

// Total is cash plus documents.
func (t Transfer) Total() decimal.Decimal {
	return t.Cash.Add(t.TotalDocuments())
}

// Company carries the company context of every operation.
type Company struct {
	ID       int64
	Currency string
	Digits   int32
	PartyID  *int64
	Language string
}

// Settings is the explicit configuration value object of the module.
type Settings struct {
	Policy               string
	TransferAccountID    int64
	ConvertionSequenceID int64
	AllowedMonths        int
	Company              Company
}

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	CashBankID int64
	State      State
	DateTo     *time.Time
	Limit      int
	Offset     int
}

// TransferFilter narrows transfer listings. CashBankID matches either side.
type TransferFilter struct {
	CashBankID int64
	State      State
	Limit      int
	Offset     int
}

// ConvertionFilter narrows convertion listings.
type ConvertionFilter struct {
	CashBankID int64
	State      State
	Limit      int
	Offset     int
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	IDs              []int64
	HolderCashBankID int64
	WithoutHolder    bool
	WithoutConvert   bool
}

func documentIDs(docs []Document) []int64 {
	ids := make([]int64, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids
}
