package cashbankhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbank/internal/cashbank"
	"github.com/odyssey-erp/cashbank/internal/invoice"
	"github.com/odyssey-erp/cashbank/internal/ledger"
	"github.com/odyssey-erp/cashbank/internal/platform/httpx"
	"github.com/odyssey-erp/cashbank/internal/shared"
)

type cashBankService interface {
	CreateCashBank(ctx context.Context, cb cashbank.CashBank) (cashbank.CashBank, error)
	GetCashBank(ctx context.Context, id int64) (cashbank.CashBank, error)
	ListCashBanks(ctx context.Context) ([]cashbank.CashBank, error)
	CreateReceiptType(ctx context.Context, rt cashbank.ReceiptType) (cashbank.ReceiptType, error)
	CreateDocumentType(ctx context.Context, dt cashbank.DocumentType) (cashbank.DocumentType, error)
	ListDocumentTypes(ctx context.Context) ([]cashbank.DocumentType, error)

	CreateDocument(ctx context.Context, in cashbank.DocumentInput) (cashbank.Document, error)
	UpdateDocument(ctx context.Context, id int64, in cashbank.DocumentInput) (cashbank.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	GetDocument(ctx context.Context, id int64) (cashbank.Document, error)
	ListDocuments(ctx context.Context, filter cashbank.DocumentFilter) ([]cashbank.Document, error)
	TransferableDocuments(ctx context.Context, cashBankID int64) ([]cashbank.Document, error)
	ConvertibleDocuments(ctx context.Context, cashBankID int64) ([]cashbank.Document, error)

	CreateReceipt(ctx context.Context, in cashbank.ReceiptInput) (cashbank.Receipt, error)
	UpdateReceipt(ctx context.Context, id int64, in cashbank.ReceiptInput) (cashbank.Receipt, error)
	GetReceipt(ctx context.Context, id int64) (cashbank.Receipt, error)
	ListReceipts(ctx context.Context, filter cashbank.ReceiptFilter) ([]cashbank.Receipt, error)
	CopyReceipt(ctx context.Context, id int64) (cashbank.Receipt, error)
	AvailableDocuments(ctx context.Context, receiptID int64) ([]cashbank.Document, error)
	ConfirmReceipts(ctx context.Context, ids []int64) error
	PostReceipts(ctx context.Context, ids []int64) error
	CancelReceipts(ctx context.Context, ids []int64) error
	DraftReceipts(ctx context.Context, ids []int64) error
	DeleteReceipts(ctx context.Context, ids []int64) error

	CreateTransfer(ctx context.Context, in cashbank.TransferInput) (cashbank.Transfer, error)
	UpdateTransfer(ctx context.Context, id int64, in cashbank.TransferInput) (cashbank.Transfer, error)
	GetTransfer(ctx context.Context, id int64) (cashbank.Transfer, error)
	ListTransfers(ctx context.Context, filter cashbank.TransferFilter) ([]cashbank.Transfer, error)
	ConfirmTransfers(ctx context.Context, ids []int64) error
	PostTransfers(ctx context.Context, ids []int64) error
	CancelTransfers(ctx context.Context, ids []int64) error
	DraftTransfers(ctx context.Context, ids []int64) error
	DeleteTransfers(ctx context.Context, ids []int64) error

	CreateConvertion(ctx context.Context, in cashbank.ConvertionInput) (cashbank.Convertion, error)
	UpdateConvertion(ctx context.Context, id int64, in cashbank.ConvertionInput) (cashbank.Convertion, error)
	GetConvertion(ctx context.Context, id int64) (cashbank.Convertion, error)
	ListConvertions(ctx context.Context, filter cashbank.ConvertionFilter) ([]cashbank.Convertion, error)
	ConfirmConvertions(ctx context.Context, ids []int64) error
	CancelConvertions(ctx context.Context, ids []int64) error
	DraftConvertions(ctx context.Context, ids []int64) error
	DeleteConvertions(ctx context.Context, ids []int64) error
}

type idempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler exposes the cash/bank JSON API.
type Handler struct {
	logger      *slog.Logger
	service     cashBankService
	idempotency idempotencyStore
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance. idem may be nil.
func NewHandler(logger *slog.Logger, service cashBankService, idem idempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idem,
		validator:   validator.New(),
	}
}

// MountRoutes registers cash/bank routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/cash-banks", func(r chi.Router) {
		r.Get("/", h.listCashBanks)
		r.Post("/", h.createCashBank)
		r.Get("/{id}", h.getCashBank)
		r.Post("/{id}/receipt-types", h.createReceiptType)
		r.Get("/{id}/transferable-documents", h.transferableDocuments)
		r.Get("/{id}/convertible-documents", h.convertibleDocuments)
	})
	r.Route("/document-types", func(r chi.Router) {
		r.Get("/", h.listDocumentTypes)
		r.Post("/", h.createDocumentType)
	})
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.listDocuments)
		r.Post("/", h.createDocument)
		r.Get("/{id}", h.getDocument)
		r.Put("/{id}", h.updateDocument)
		r.Delete("/{id}", h.deleteDocument)
	})
	r.Route("/receipts", func(r chi.Router) {
		r.Get("/", h.listReceipts)
		r.Post("/", h.createReceipt)
		r.Get("/{id}", h.getReceipt)
		r.Put("/{id}", h.updateReceipt)
		r.Post("/{id}/copy", h.copyReceipt)
		r.Get("/{id}/available-documents", h.availableDocuments)
		r.Post("/actions/{action}", h.batch(cashbank.EntityReceipt, map[string]batchFn{
			"confirm": h.service.ConfirmReceipts,
			"post":    h.service.PostReceipts,
			"cancel":  h.service.CancelReceipts,
			"draft":   h.service.DraftReceipts,
			"delete":  h.service.DeleteReceipts,
		}))
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.listTransfers)
		r.Post("/", h.createTransfer)
		r.Get("/{id}", h.getTransfer)
		r.Put("/{id}", h.updateTransfer)
		r.Post("/actions/{action}", h.batch(cashbank.EntityTransfer, map[string]batchFn{
			"confirm": h.service.ConfirmTransfers,
			"post":    h.service.PostTransfers,
			"cancel":  h.service.CancelTransfers,
			"draft":   h.service.DraftTransfers,
			"delete":  h.service.DeleteTransfers,
		}))
	})
	r.Route("/convertions", func(r chi.Router) {
		r.Get("/", h.listConvertions)
		r.Post("/", h.createConvertion)
		r.Get("/{id}", h.getConvertion)
		r.Put("/{id}", h.updateConvertion)
		r.Post("/actions/{action}", h.batch(cashbank.EntityConvertion, map[string]batchFn{
			"confirm": h.service.ConfirmConvertions,
			"cancel":  h.service.CancelConvertions,
			"draft":   h.service.DraftConvertions,
			"delete":  h.service.DeleteConvertions,
		}))
	})
}

type batchFn func(ctx context.Context, ids []int64) error

type batchRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

// batch runs a workflow action over a set of ids, honouring Idempotency-Key.
func (h *Handler) batch(entity string, actions map[string]batchFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := chi.URLParam(r, "action")
		fn, ok := actions[action]
		if !ok {
			httpx.Problem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("unknown action %q", action))
			return
		}
		var req batchRequest
		if !h.decode(w, r, &req) {
			return
		}
		ctx := r.Context()
		key := r.Header.Get("Idempotency-Key")
		module := entity + "." + action
		if key != "" && h.idempotency != nil {
			if err := h.idempotency.CheckAndInsert(ctx, key, module); err != nil {
				h.respondError(w, r, err)
				return
			}
		}
		if err := fn(ctx, req.IDs); err != nil {
			if key != "" && h.idempotency != nil {
				_ = h.idempotency.Delete(ctx, key, module)
			}
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"action": action, "ids": req.IDs})
	}
}

// --- cash banks

type receiptTypeRequest struct {
	Name                string `json:"name" validate:"required"`
	Direction           string `json:"direction" validate:"required,oneof=in out"`
	SequenceID          int64  `json:"sequence_id" validate:"required,gt=0"`
	PartyRequired       bool   `json:"party_required"`
	BankAccount         bool   `json:"bank_account"`
	BankAccountRequired bool   `json:"bank_account_required"`
	Active              *bool  `json:"active"`
}

func (req receiptTypeRequest) toDomain(cashBankID int64) cashbank.ReceiptType {
	active := req.Active == nil || *req.Active
	return cashbank.ReceiptType{
		CashBankID:          cashBankID,
		Name:                req.Name,
		Direction:           cashbank.Direction(req.Direction),
		SequenceID:          req.SequenceID,
		PartyRequired:       req.PartyRequired,
		BankAccount:         req.BankAccount,
		BankAccountRequired: req.BankAccountRequired,
		Active:              active,
	}
}

type cashBankRequest struct {
	Name          string               `json:"name" validate:"required"`
	Kind          string               `json:"kind" validate:"required,oneof=cash bank"`
	JournalID     int64                `json:"journal_id" validate:"required,gt=0"`
	AccountID     int64                `json:"account_id" validate:"required,gt=0"`
	BankAccountID *int64               `json:"bank_account_id"`
	ReceiptTypes  []receiptTypeRequest `json:"receipt_types" validate:"dive"`
}

func (h *Handler) listCashBanks(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListCashBanks(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) createCashBank(w http.ResponseWriter, r *http.Request) {
	var req cashBankRequest
	if !h.decode(w, r, &req) {
		return
	}
	cb := cashbank.CashBank{
		Name:          req.Name,
		Kind:          cashbank.Kind(req.Kind),
		JournalID:     req.JournalID,
		AccountID:     req.AccountID,
		BankAccountID: req.BankAccountID,
	}
	for _, rt := range req.ReceiptTypes {
		cb.ReceiptTypes = append(cb.ReceiptTypes, rt.toDomain(0))
	}
	created, err := h.service.CreateCashBank(r.Context(), cb)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getCashBank(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	cb, err := h.service.GetCashBank(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cb)
}

func (h *Handler) createReceiptType(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req receiptTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreateReceiptType(r.Context(), req.toDomain(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) transferableDocuments(w http.ResponseWriter, r *http.Request) {
	h.documentsFor(w, r, h.service.TransferableDocuments)
}

func (h *Handler) convertibleDocuments(w http.ResponseWriter, r *http.Request) {
	h.documentsFor(w, r, h.service.ConvertibleDocuments)
}

func (h *Handler) availableDocuments(w http.ResponseWriter, r *http.Request) {
	h.documentsFor(w, r, h.service.AvailableDocuments)
}

func (h *Handler) documentsFor(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) ([]cashbank.Document, error)) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	docs, err := fn(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

// --- document types and documents

type documentTypeRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (h *Handler) listDocumentTypes(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListDocumentTypes(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) createDocumentType(w http.ResponseWriter, r *http.Request) {
	var req documentTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreateDocumentType(r.Context(), cashbank.DocumentType{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active == nil || *req.Active,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type documentRequest struct {
	TypeID    int64           `json:"type_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	PartyID   *int64          `json:"party_id"`
	Reference string          `json:"reference"`
	Entity    string          `json:"entity"`
}

func (req documentRequest) toInput() cashbank.DocumentInput {
	in := cashbank.DocumentInput{
		TypeID:    req.TypeID,
		Amount:    req.Amount,
		PartyID:   req.PartyID,
		Reference: req.Reference,
		Entity:    req.Entity,
	}
	if req.Date != "" {
		date, _ := time.Parse(time.DateOnly, req.Date)
		in.Date = &date
	}
	return in
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	filter := cashbank.DocumentFilter{
		WithoutHolder:  r.URL.Query().Get("free") == "true",
		WithoutConvert: r.URL.Query().Get("converted") == "false",
	}
	if raw := r.URL.Query().Get("cash_bank_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid cash_bank_id")
			return
		}
		filter.HolderCashBankID = id
	}
	rows, err := h.service.ListDocuments(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.CreateDocument(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req documentRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.UpdateDocument(r.Context(), id, req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDocument(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- receipts

type lineRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	PartyID     *int64          `json:"party_id"`
	InvoiceID   *int64          `json:"invoice_id"`
	Description string          `json:"description"`
}

type receiptRequest struct {
	CashBankID    int64           `json:"cash_bank_id" validate:"required,gt=0"`
	TypeID        int64           `json:"type_id" validate:"required,gt=0"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
	PartyID       *int64          `json:"party_id"`
	BankAccountID *int64          `json:"bank_account_id"`
	Cash          decimal.Decimal `json:"cash"`
	Lines         []lineRequest   `json:"lines" validate:"dive"`
	DocumentIDs   []int64         `json:"document_ids" validate:"dive,gt=0"`
}

func (req receiptRequest) toInput() cashbank.ReceiptInput {
	in := cashbank.ReceiptInput{
		CashBankID:    req.CashBankID,
		TypeID:        req.TypeID,
		Currency:      req.Currency,
		Date:          parseDate(req.Date),
		Reference:     req.Reference,
		Description:   req.Description,
		PartyID:       req.PartyID,
		BankAccountID: req.BankAccountID,
		Cash:          req.Cash,
		DocumentIDs:   req.DocumentIDs,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, cashbank.LineInput{
			Amount:      line.Amount,
			AccountID:   line.AccountID,
			PartyID:     line.PartyID,
			InvoiceID:   line.InvoiceID,
			Description: line.Description,
		})
	}
	return in
}

type receiptResponse struct {
	cashbank.Receipt
	TotalDocuments decimal.Decimal `json:"total_documents"`
	TotalLines     decimal.Decimal `json:"total_lines"`
	Total          decimal.Decimal `json:"total"`
	Diff           decimal.Decimal `json:"diff"`
}

func newReceiptResponse(rc cashbank.Receipt) receiptResponse {
	return receiptResponse{
		Receipt:        rc,
		TotalDocuments: rc.TotalDocuments(),
		TotalLines:     rc.TotalLines(),
		Total:          rc.Total(),
		Diff:           rc.Diff(),
	}
}

// listQuery holds the paging and filters shared by the list endpoints.
type listQuery struct {
	page, perPage int
	cashBankID    int64
	state         cashbank.State
}

func (q listQuery) offset() int { return (q.page - 1) * q.perPage }

func (h *Handler) parseList(w http.ResponseWriter, r *http.Request) (listQuery, bool) {
	values := r.URL.Query()
	page, _ := strconv.Atoi(values.Get("page"))
	perPage, _ := strconv.Atoi(values.Get("per_page"))
	q := listQuery{state: cashbank.State(values.Get("state"))}
	q.page, q.perPage = shared.NormalizePage(page, perPage)
	if raw := values.Get("cash_bank_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid cash_bank_id")
			return listQuery{}, false
		}
		q.cashBankID = id
	}
	return q, true
}

func respondPage[T any](w http.ResponseWriter, q listQuery, rows []T) {
	if rows == nil {
		rows = []T{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": shared.NewPagination(q.page, q.perPage, len(rows)),
	})
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseList(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ListReceipts(r.Context(), cashbank.ReceiptFilter{
		CashBankID: q.cashBankID,
		State:      q.state,
		Limit:      q.perPage,
		Offset:     q.offset(),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondPage(w, q, rows)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseList(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ListTransfers(r.Context(), cashbank.TransferFilter{
		CashBankID: q.cashBankID,
		State:      q.state,
		Limit:      q.perPage,
		Offset:     q.offset(),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondPage(w, q, rows)
}

func (h *Handler) listConvertions(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseList(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ListConvertions(r.Context(), cashbank.ConvertionFilter{
		CashBankID: q.cashBankID,
		State:      q.state,
		Limit:      q.perPage,
		Offset:     q.offset(),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondPage(w, q, rows)
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	rc, err := h.service.CreateReceipt(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newReceiptResponse(rc))
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	rc, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newReceiptResponse(rc))
}

func (h *Handler) updateReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req receiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	rc, err := h.service.UpdateReceipt(r.Context(), id, req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newReceiptResponse(rc))
}

func (h *Handler) copyReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	rc, err := h.service.CopyReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newReceiptResponse(rc))
}

// --- transfers

type transferRequest struct {
	Date           string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	CashBankFromID int64           `json:"cash_bank_from_id" validate:"required,gt=0"`
	TypeFromID     int64           `json:"type_from_id" validate:"required,gt=0"`
	CashBankToID   int64           `json:"cash_bank_to_id" validate:"required,gt=0,nefield=CashBankFromID"`
	TypeToID       int64           `json:"type_to_id" validate:"required,gt=0"`
	Currency       string          `json:"currency" validate:"omitempty,len=3"`
	Cash           decimal.Decimal `json:"cash"`
	PartyID        *int64          `json:"party_id"`
	Reference      string          `json:"reference"`
	Description    string          `json:"description"`
	DocumentIDs    []int64         `json:"document_ids" validate:"dive,gt=0"`
}

func (req transferRequest) toInput() cashbank.TransferInput {
	return cashbank.TransferInput{
		Date:           parseDate(req.Date),
		CashBankFromID: req.CashBankFromID,
		TypeFromID:     req.TypeFromID,
		CashBankToID:   req.CashBankToID,
		TypeToID:       req.TypeToID,
		Currency:       req.Currency,
		Cash:           req.Cash,
		PartyID:        req.PartyID,
		Reference:      req.Reference,
		Description:    req.Description,
		DocumentIDs:    req.DocumentIDs,
	}
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	tr, err := h.service.CreateTransfer(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tr)
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	tr, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) updateTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	tr, err := h.service.UpdateTransfer(r.Context(), id, req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

// --- convertions

type convertionRequest struct {
	CashBankID  int64   `json:"cash_bank_id" validate:"required,gt=0"`
	Date        string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string  `json:"description"`
	DocumentIDs []int64 `json:"document_ids" validate:"dive,gt=0"`
}

func (req convertionRequest) toInput() cashbank.ConvertionInput {
	return cashbank.ConvertionInput{
		CashBankID:  req.CashBankID,
		Date:        parseDate(req.Date),
		Description: req.Description,
		DocumentIDs: req.DocumentIDs,
	}
}

func (h *Handler) createConvertion(w http.ResponseWriter, r *http.Request) {
	var req convertionRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.CreateConvertion(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) getConvertion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	c, err := h.service.GetConvertion(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) updateConvertion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req convertionRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.UpdateConvertion(r.Context(), id, req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// --- helpers

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	date, _ := time.Parse(time.DateOnly, raw)
	return date
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("cashbank request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Problem(w, status, title, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, cashbank.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict, "Duplicate Request"
	case errors.Is(err, cashbank.ErrStateGuard):
		return http.StatusConflict, "Transition Not Allowed"
	case errors.Is(err, cashbank.ErrCustody):
		return http.StatusConflict, "Document Unavailable"
	case errors.Is(err, cashbank.ErrBalance):
		return http.StatusUnprocessableEntity, "Balance Mismatch"
	case errors.Is(err, cashbank.ErrInvariant):
		return http.StatusUnprocessableEntity, "Validation Failed"
	case errors.Is(err, ledger.ErrPeriodNotFound), errors.Is(err, ledger.ErrPeriodClosed),
		errors.Is(err, ledger.ErrAccountClosed), errors.Is(err, ledger.ErrUnbalanced),
		errors.Is(err, ledger.ErrMovePosted), errors.Is(err, invoice.ErrPaymentExceedsBalance):
		return http.StatusUnprocessableEntity, "Ledger Rejected"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
