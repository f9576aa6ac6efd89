package cashbank

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbank/internal/currency"
	"github.com/odyssey-erp/cashbank/internal/invoice"
	"github.com/odyssey-erp/cashbank/internal/ledger"
	"github.com/odyssey-erp/cashbank/internal/sequence"
)

const (
	companyID         int64 = 1
	accountCashA      int64 = 1001
	accountBankB      int64 = 1002
	accountRevenue    int64 = 4001
	accountReceivable int64 = 1201
	accountPayable    int64 = 2101
	accountTransfer   int64 = 1999
	partyCustomer     int64 = 7
	companyParty      int64 = 99
)

var fixtureToday = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memoryStore
	audit    *recordingAudit
	observer *countingObserver
	svc      *Service

	cashA, bankB           CashBank
	cashAIn, cashAOut      ReceiptType
	bankBIn, bankBOut      ReceiptType
	cheque                 DocumentType
	receiptSeq, convertSeq int64
}

func newFixture(t *testing.T, mutate ...func(*Settings)) *fixture {
	t.Helper()
	ctx := context.Background()
	store := newMemoryStore()
	st := store.st
	st.periods[1] = ledger.Period{
		ID: 1, CompanyID: companyID, Code: "2024",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:    ledger.PeriodStatusOpen,
	}
	for _, acc := range []ledger.Account{
		{ID: accountCashA, CompanyID: companyID, Code: "1001", Name: "Petty cash"},
		{ID: accountBankB, CompanyID: companyID, Code: "1002", Name: "Bank"},
		{ID: accountRevenue, CompanyID: companyID, Code: "4001", Name: "Revenue"},
		{ID: accountReceivable, CompanyID: companyID, Code: "1201", Name: "Receivable", PartyRequired: true, Reconcile: true},
		{ID: accountPayable, CompanyID: companyID, Code: "2101", Name: "Payable", PartyRequired: true, Reconcile: true},
		{ID: accountTransfer, CompanyID: companyID, Code: "1999", Name: "Transfers in transit", PartyRequired: true},
	} {
		st.accounts[acc.ID] = acc
	}
	sequences := memorySequences{m: store}
	receiptSeq, err := sequences.Create(ctx, sequence.Sequence{Name: "receipts", Prefix: "REC-", Padding: 4, Step: 1, NextNumber: 1})
	require.NoError(t, err)
	convertSeq, err := sequences.Create(ctx, sequence.Sequence{Name: "convertions", Prefix: "CNV-", Padding: 3, Step: 1, NextNumber: 1})
	require.NoError(t, err)

	party := companyParty
	settings := Settings{
		Policy:               PolicyCanonical,
		TransferAccountID:    accountTransfer,
		ConvertionSequenceID: convertSeq.ID,
		AllowedMonths:        3,
		Company: Company{
			ID:       companyID,
			Currency: "USD",
			Digits:   2,
			PartyID:  &party,
			Language: "en",
		},
	}
	for _, fn := range mutate {
		fn(&settings)
	}

	audit := &recordingAudit{}
	observer := &countingObserver{}
	rates := currency.NewService(staticRates{"EUR": decimal.RequireFromString("0.5")}, nil, time.Hour, "USD")
	svc, err := NewService(Deps{
		Repo:      store,
		Ledger:    ledger.NewService(memoryLedger{m: store}, nil),
		Sequences: sequence.NewService(sequences),
		Currency:  rates,
		Invoices:  invoice.NewService(memoryInvoices{m: store}),
		Audit:     audit,
		Observer:  observer,
	}, settings)
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return fixtureToday.Add(10 * time.Hour) })

	f := &fixture{t: t, ctx: ctx, store: store, audit: audit, observer: observer, svc: svc,
		receiptSeq: receiptSeq.ID, convertSeq: convertSeq.ID}

	f.cashA, err = svc.CreateCashBank(ctx, CashBank{
		Name: "Front desk", Kind: KindCash, JournalID: 1, AccountID: accountCashA,
		ReceiptTypes: []ReceiptType{
			{Name: "Cash in", Direction: DirectionIn, SequenceID: receiptSeq.ID, Active: true},
			{Name: "Cash out", Direction: DirectionOut, SequenceID: receiptSeq.ID, Active: true},
		},
	})
	require.NoError(t, err)
	f.cashAIn, f.cashAOut = f.cashA.ReceiptTypes[0], f.cashA.ReceiptTypes[1]

	f.bankB, err = svc.CreateCashBank(ctx, CashBank{
		Name: "Main bank", Kind: KindBank, JournalID: 2, AccountID: accountBankB,
		ReceiptTypes: []ReceiptType{
			{Name: "Deposit", Direction: DirectionIn, SequenceID: receiptSeq.ID, Active: true},
			{Name: "Withdrawal", Direction: DirectionOut, SequenceID: receiptSeq.ID, Active: true},
		},
	})
	require.NoError(t, err)
	f.bankBIn, f.bankBOut = f.bankB.ReceiptTypes[0], f.bankB.ReceiptTypes[1]

	f.cheque, err = svc.CreateDocumentType(ctx, DocumentType{Name: "Cheque", Active: true})
	require.NoError(t, err)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) document(amount string) Document {
	f.t.Helper()
	doc, err := f.svc.CreateDocument(f.ctx, DocumentInput{TypeID: f.cheque.ID, Amount: dec(amount), Reference: "CHQ " + amount})
	require.NoError(f.t, err)
	return doc
}

func (f *fixture) receipt(typ ReceiptType, cash string, lines []LineInput, docs ...Document) Receipt {
	f.t.Helper()
	r, err := f.svc.CreateReceipt(f.ctx, f.receiptInput(typ, cash, lines, docs...))
	require.NoError(f.t, err)
	return r
}

func (f *fixture) receiptInput(typ ReceiptType, cash string, lines []LineInput, docs ...Document) ReceiptInput {
	return ReceiptInput{
		CashBankID:  typ.CashBankID,
		TypeID:      typ.ID,
		Date:        fixtureToday,
		Description: "Counter sale",
		Reference:   "T-1",
		Cash:        dec(cash),
		Lines:       lines,
		DocumentIDs: documentIDs(docs),
	}
}

func revenueLine(amount string) []LineInput {
	return []LineInput{{Amount: dec(amount), AccountID: accountRevenue, Description: "sale"}}
}

func (f *fixture) reload(id int64) Receipt {
	f.t.Helper()
	r, err := f.svc.GetReceipt(f.ctx, id)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) holder(docID int64) *int64 {
	return f.store.st.documents[docID].LastReceiptID
}

func (f *fixture) requireHolder(docID int64, want *int64) {
	f.t.Helper()
	got := f.holder(docID)
	if want == nil {
		require.Nil(f.t, got, "document %d", docID)
		return
	}
	require.NotNil(f.t, got, "document %d", docID)
	require.Equal(f.t, *want, *got, "document %d", docID)
}

func (f *fixture) move(id int64) ledger.Move {
	f.t.Helper()
	mv, ok := f.store.st.moves[id]
	require.True(f.t, ok, "move %d", id)
	lines := make([]ledger.MoveLine, 0, len(mv.Lines))
	for _, line := range mv.Lines {
		lines = append(lines, f.store.st.moveLines[line.ID])
	}
	mv.Lines = lines
	return mv
}

func ptr(v int64) *int64 { return &v }
