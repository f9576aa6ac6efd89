package cashbank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbank/internal/ledger"
)

func TestCashBankAccountIsUnique(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCashBank(f.ctx, CashBank{Name: "Second till", Kind: KindCash, JournalID: 1, AccountID: accountCashA})
	require.ErrorIs(t, err, ErrAccountInUse)

	_, err = f.svc.CreateCashBank(f.ctx, CashBank{Name: "Ghost", Kind: KindCash, JournalID: 1, AccountID: 424242})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	banks, err := f.svc.ListCashBanks(f.ctx)
	require.NoError(t, err)
	assert.Len(t, banks, 2)
}

func TestGetCashBankIncludesReceiptTypes(t *testing.T) {
	f := newFixture(t)
	cb, err := f.svc.GetCashBank(f.ctx, f.bankB.ID)
	require.NoError(t, err)
	require.Len(t, cb.ReceiptTypes, 2)
	assert.Equal(t, DirectionIn, cb.ReceiptTypes[0].Direction)
	assert.Equal(t, DirectionOut, cb.ReceiptTypes[1].Direction)

	_, err = f.svc.GetCashBank(f.ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInactiveReceiptTypeRejected(t *testing.T) {
	f := newFixture(t)
	typ, err := f.svc.CreateReceiptType(f.ctx, ReceiptType{
		CashBankID: f.cashA.ID, Name: "Legacy", Direction: DirectionIn, SequenceID: f.receiptSeq,
	})
	require.NoError(t, err)
	_, err = f.svc.CreateReceipt(f.ctx, f.receiptInput(typ, "10", revenueLine("10")))
	assert.ErrorIs(t, err, ErrTypeInactive)
}

func TestInactiveDocumentTypeRejected(t *testing.T) {
	f := newFixture(t)
	dt, err := f.svc.CreateDocumentType(f.ctx, DocumentType{Name: "Voucher"})
	require.NoError(t, err)
	_, err = f.svc.CreateDocument(f.ctx, DocumentInput{TypeID: dt.ID, Amount: dec("5")})
	assert.ErrorIs(t, err, ErrInvariant)

	types, err := f.svc.ListDocumentTypes(f.ctx)
	require.NoError(t, err)
	assert.Len(t, types, 2)
}
