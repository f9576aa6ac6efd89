package cashbankhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbank/internal/cashbank"
	"github.com/odyssey-erp/cashbank/internal/ledger"
	"github.com/odyssey-erp/cashbank/internal/shared"
)

type stubService struct {
	cashBankService

	createReceiptFn   func(ctx context.Context, in cashbank.ReceiptInput) (cashbank.Receipt, error)
	getReceiptFn      func(ctx context.Context, id int64) (cashbank.Receipt, error)
	listReceiptsFn    func(ctx context.Context, filter cashbank.ReceiptFilter) ([]cashbank.Receipt, error)
	confirmReceiptsFn func(ctx context.Context, ids []int64) error
	createTransferFn  func(ctx context.Context, in cashbank.TransferInput) (cashbank.Transfer, error)
	listTransfersFn   func(ctx context.Context, filter cashbank.TransferFilter) ([]cashbank.Transfer, error)
	listConvertionsFn func(ctx context.Context, filter cashbank.ConvertionFilter) ([]cashbank.Convertion, error)
}

func (s *stubService) CreateReceipt(ctx context.Context, in cashbank.ReceiptInput) (cashbank.Receipt, error) {
	return s.createReceiptFn(ctx, in)
}

func (s *stubService) GetReceipt(ctx context.Context, id int64) (cashbank.Receipt, error) {
	return s.getReceiptFn(ctx, id)
}

func (s *stubService) ListReceipts(ctx context.Context, filter cashbank.ReceiptFilter) ([]cashbank.Receipt, error) {
	return s.listReceiptsFn(ctx, filter)
}

func (s *stubService) ConfirmReceipts(ctx context.Context, ids []int64) error {
	return s.confirmReceiptsFn(ctx, ids)
}

func (s *stubService) PostReceipts(context.Context, []int64) error   { return nil }
func (s *stubService) CancelReceipts(context.Context, []int64) error { return nil }
func (s *stubService) DraftReceipts(context.Context, []int64) error  { return nil }
func (s *stubService) DeleteReceipts(context.Context, []int64) error { return nil }

func (s *stubService) CreateTransfer(ctx context.Context, in cashbank.TransferInput) (cashbank.Transfer, error) {
	return s.createTransferFn(ctx, in)
}

func (s *stubService) ListTransfers(ctx context.Context, filter cashbank.TransferFilter) ([]cashbank.Transfer, error) {
	return s.listTransfersFn(ctx, filter)
}

func (s *stubService) ListConvertions(ctx context.Context, filter cashbank.ConvertionFilter) ([]cashbank.Convertion, error) {
	return s.listConvertionsFn(ctx, filter)
}

type memoryIdempotency struct {
	seen    map[string]bool
	deleted []string
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.seen[module+"/"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key, module string) error {
	delete(m.seen, module+"/"+key)
	m.deleted = append(m.deleted, module+"/"+key)
	return nil
}

func newTestRouter(svc cashBankService, idem idempotencyStore) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc, idem)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateReceiptMapsBodyAndReturnsTotals(t *testing.T) {
	var captured cashbank.ReceiptInput
	svc := &stubService{
		createReceiptFn: func(_ context.Context, in cashbank.ReceiptInput) (cashbank.Receipt, error) {
			captured = in
			return cashbank.Receipt{
				ID:    12,
				Cash:  in.Cash,
				State: cashbank.StateDraft,
				Lines: []cashbank.Line{{Amount: decimal.NewFromInt(100), AccountID: 4001}},
				Documents: []cashbank.Document{
					{ID: 3, Amount: decimal.NewFromInt(60)},
				},
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	rr := do(t, router, http.MethodPost, "/receipts", `{
		"cash_bank_id": 1, "type_id": 2, "date": "2024-03-15", "cash": "40",
		"lines": [{"amount": "100", "account_id": 4001}],
		"document_ids": [3]
	}`)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(1), captured.CashBankID)
	assert.Equal(t, "2024-03-15", captured.Date.Format("2006-01-02"))
	assert.Equal(t, []int64{3}, captured.DocumentIDs)
	require.Len(t, captured.Lines, 1)
	assert.True(t, captured.Lines[0].Amount.Equal(decimal.NewFromInt(100)))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "100", body["total"])
	assert.Equal(t, "60", body["total_documents"])
	assert.Equal(t, "0", body["diff"])
}

func TestCreateReceiptValidatesBody(t *testing.T) {
	router := newTestRouter(&stubService{}, nil)

	rr := do(t, router, http.MethodPost, "/receipts", `{"type_id": 2}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/receipts", `{"cash_bank_id": 1, "type_id": 2, "lines": [{"amount": "5"}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateTransferRejectsSameCashBank(t *testing.T) {
	router := newTestRouter(&stubService{}, nil)
	rr := do(t, router, http.MethodPost, "/transfers", `{
		"cash_bank_from_id": 1, "type_from_id": 2, "cash_bank_to_id": 1, "type_to_id": 3
	}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{cashbank.ErrReceiptNotFound, http.StatusNotFound},
		{&cashbank.TransitionError{Entity: cashbank.EntityReceipt, ID: 1, From: cashbank.StateDraft, To: cashbank.StatePosted}, http.StatusConflict},
		{&cashbank.DocumentUnavailableError{DocumentID: 4, Reason: "held"}, http.StatusConflict},
		{cashbank.ErrDiffNotZero, http.StatusUnprocessableEntity},
		{&cashbank.InvoiceAmountError{Number: "INV-1", Amount: "10.00", ToPay: "5.00"}, http.StatusUnprocessableEntity},
		{cashbank.ErrPartyRequired, http.StatusUnprocessableEntity},
		{fmt.Errorf("confirm: %w", ledger.ErrPeriodClosed), http.StatusUnprocessableEntity},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			svc := &stubService{
				getReceiptFn: func(context.Context, int64) (cashbank.Receipt, error) {
					return cashbank.Receipt{}, tc.err
				},
			}
			rr := do(t, newTestRouter(svc, nil), http.MethodGet, "/receipts/9", "")
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestBatchActionHonoursIdempotencyKey(t *testing.T) {
	calls := 0
	svc := &stubService{
		confirmReceiptsFn: func(_ context.Context, ids []int64) error {
			calls++
			assert.Equal(t, []int64{1, 2}, ids)
			return nil
		},
	}
	idem := &memoryIdempotency{}
	router := newTestRouter(svc, idem)

	rr := do(t, router, http.MethodPost, "/receipts/actions/confirm", `{"ids":[1,2]}`, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodPost, "/receipts/actions/confirm", `{"ids":[1,2]}`, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, 1, calls)
}

func TestBatchActionReleasesKeyOnFailure(t *testing.T) {
	svc := &stubService{
		confirmReceiptsFn: func(context.Context, []int64) error { return cashbank.ErrDiffNotZero },
	}
	idem := &memoryIdempotency{}
	router := newTestRouter(svc, idem)

	rr := do(t, router, http.MethodPost, "/receipts/actions/confirm", `{"ids":[5]}`, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, []string{cashbank.EntityReceipt + ".confirm/k1"}, idem.deleted)
}

func TestBatchActionRejectsUnknownActionAndEmptyIDs(t *testing.T) {
	router := newTestRouter(&stubService{}, nil)

	rr := do(t, router, http.MethodPost, "/receipts/actions/explode", `{"ids":[1]}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodPost, "/receipts/actions/post", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListReceiptsPaginates(t *testing.T) {
	var captured cashbank.ReceiptFilter
	svc := &stubService{
		listReceiptsFn: func(_ context.Context, filter cashbank.ReceiptFilter) ([]cashbank.Receipt, error) {
			captured = filter
			return []cashbank.Receipt{{ID: 1}}, nil
		},
	}
	rr := do(t, newTestRouter(svc, nil), http.MethodGet, "/receipts?page=3&per_page=10&state=confirmed&cash_bank_id=4", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 10, captured.Limit)
	assert.Equal(t, 20, captured.Offset)
	assert.Equal(t, cashbank.StateConfirmed, captured.State)
	assert.Equal(t, int64(4), captured.CashBankID)

	rr = do(t, newTestRouter(svc, nil), http.MethodGet, "/receipts?cash_bank_id=x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListTransfersAndConvertions(t *testing.T) {
	var transfers cashbank.TransferFilter
	var convertions cashbank.ConvertionFilter
	svc := &stubService{
		listTransfersFn: func(_ context.Context, filter cashbank.TransferFilter) ([]cashbank.Transfer, error) {
			transfers = filter
			return []cashbank.Transfer{{ID: 5, State: cashbank.StatePosted}}, nil
		},
		listConvertionsFn: func(_ context.Context, filter cashbank.ConvertionFilter) ([]cashbank.Convertion, error) {
			convertions = filter
			return nil, nil
		},
	}
	router := newTestRouter(svc, nil)

	rr := do(t, router, http.MethodGet, "/transfers?page=2&per_page=5&state=posted&cash_bank_id=7", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, cashbank.TransferFilter{CashBankID: 7, State: cashbank.StatePosted, Limit: 5, Offset: 5}, transfers)
	var body struct {
		Data []cashbank.Transfer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(5), body.Data[0].ID)

	rr = do(t, router, http.MethodGet, "/convertions?cash_bank_id=3", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, cashbank.ConvertionFilter{CashBankID: 3, Limit: 20}, convertions)
	assert.Contains(t, rr.Body.String(), `"data":[]`)

	rr = do(t, router, http.MethodGet, "/convertions?cash_bank_id=x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
