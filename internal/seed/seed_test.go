package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbank/internal/cashbank"
)

const fixture = `
document_types:
  - name: Cheque
    description: Third-party cheque
  - name: Voucher
    inactive: true
cash_banks:
  - name: Main Cash
    kind: cash
    journal_id: 1
    account_id: 1001
    receipt_types:
      - name: Cash In
        direction: in
        sequence_id: 10
        party_required: true
      - name: Cash Out
        direction: out
        sequence_id: 11
  - name: Bank BCA
    kind: bank
    journal_id: 2
    account_id: 1002
    bank_account_id: 7
`

type memoryRegistry struct {
	banks []cashbank.CashBank
	rts   []cashbank.ReceiptType
	types []cashbank.DocumentType
}

func (m *memoryRegistry) ListCashBanks(context.Context) ([]cashbank.CashBank, error) {
	return m.banks, nil
}

func (m *memoryRegistry) CreateCashBank(_ context.Context, cb cashbank.CashBank) (cashbank.CashBank, error) {
	cb.ID = int64(len(m.banks) + 1)
	m.banks = append(m.banks, cb)
	return cb, nil
}

func (m *memoryRegistry) CreateReceiptType(_ context.Context, rt cashbank.ReceiptType) (cashbank.ReceiptType, error) {
	rt.ID = int64(len(m.rts) + 1)
	m.rts = append(m.rts, rt)
	return rt, nil
}

func (m *memoryRegistry) ListDocumentTypes(context.Context) ([]cashbank.DocumentType, error) {
	return m.types, nil
}

func (m *memoryRegistry) CreateDocumentType(_ context.Context, dt cashbank.DocumentType) (cashbank.DocumentType, error) {
	dt.ID = int64(len(m.types) + 1)
	m.types = append(m.types, dt)
	return dt, nil
}

func TestLoadCreatesFixtures(t *testing.T) {
	f, err := Parse(strings.NewReader(fixture))
	require.NoError(t, err)

	reg := &memoryRegistry{}
	report, err := Load(context.Background(), reg, f)
	require.NoError(t, err)

	assert.Equal(t, 2, report.DocumentTypes)
	assert.Equal(t, 2, report.CashBanks)
	assert.Equal(t, 2, report.ReceiptTypes)
	assert.False(t, reg.types[1].Active)
	require.NotNil(t, reg.banks[1].BankAccountID)
	assert.Equal(t, int64(7), *reg.banks[1].BankAccountID)
	assert.Equal(t, int64(1), reg.rts[0].CashBankID)
	assert.Equal(t, cashbank.DirectionOut, reg.rts[1].Direction)
	assert.True(t, reg.rts[0].PartyRequired)
}

func TestLoadSkipsExisting(t *testing.T) {
	f, err := Parse(strings.NewReader(fixture))
	require.NoError(t, err)

	reg := &memoryRegistry{
		banks: []cashbank.CashBank{{ID: 1, Name: "main cash"}},
		types: []cashbank.DocumentType{{ID: 1, Name: "CHEQUE"}},
	}
	report, err := Load(context.Background(), reg, f)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentTypes)
	assert.Equal(t, 1, report.CashBanks)
	assert.Equal(t, 0, report.ReceiptTypes)
	assert.ElementsMatch(t, []string{"document type Cheque", "cash bank Main Cash"}, report.Skipped)
}

func TestParseRejectsBadFixtures(t *testing.T) {
	_, err := Parse(strings.NewReader("cash_banks:\n  - name: X\n    kind: vault\n"))
	assert.ErrorContains(t, err, "unknown kind")

	_, err = Parse(strings.NewReader("cash_banks:\n  - name: X\n    kind: cash\n    receipt_types:\n      - name: Y\n        direction: sideways\n"))
	assert.ErrorContains(t, err, "unknown direction")

	_, err = Parse(strings.NewReader("cash_bank:\n  - name: X\n"))
	assert.Error(t, err)

	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.CashBanks)
}
