package cashbank

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbank/internal/currency"
	"github.com/odyssey-erp/cashbank/internal/invoice"
	"github.com/odyssey-erp/cashbank/internal/ledger"
	"github.com/odyssey-erp/cashbank/internal/sequence"
	"github.com/odyssey-erp/cashbank/internal/shared"
)

type membership struct {
	id         int64
	receiptID  int64
	documentID int64
	// custody is zero once released.
	custody int64
}

type payment struct {
	invoiceID  int64
	moveLineID int64
	amount     decimal.Decimal
}

// memState is everything the store holds; WithTx snapshots it.
type memState struct {
	nextID         int64
	cashBanks      map[int64]CashBank
	receiptTypes   map[int64]ReceiptType
	documentTypes  map[int64]DocumentType
	documents      map[int64]Document
	memberships    []membership
	receipts       map[int64]Receipt
	lines          map[int64]Line
	convertions    map[int64]Convertion
	convertionDocs map[int64][]int64
	transfers      map[int64]Transfer
	transferDocs   map[int64][]int64

	periods         map[int64]ledger.Period
	accounts        map[int64]ledger.Account
	moves           map[int64]ledger.Move
	moveLines       map[int64]ledger.MoveLine
	reconciliations int64
	sequences       map[int64]sequence.Sequence
	invoices        map[int64]invoice.Invoice
	invoiceLines    map[int64][]int64
	payments        []payment
}

func newMemState() *memState {
	return &memState{
		cashBanks:      map[int64]CashBank{},
		receiptTypes:   map[int64]ReceiptType{},
		documentTypes:  map[int64]DocumentType{},
		documents:      map[int64]Document{},
		receipts:       map[int64]Receipt{},
		lines:          map[int64]Line{},
		convertions:    map[int64]Convertion{},
		convertionDocs: map[int64][]int64{},
		transfers:      map[int64]Transfer{},
		transferDocs:   map[int64][]int64{},
		periods:        map[int64]ledger.Period{},
		accounts:       map[int64]ledger.Account{},
		moves:          map[int64]ledger.Move{},
		moveLines:      map[int64]ledger.MoveLine{},
		sequences:      map[int64]sequence.Sequence{},
		invoices:       map[int64]invoice.Invoice{},
		invoiceLines:   map[int64][]int64{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneSlices(in map[int64][]int64) map[int64][]int64 {
	out := make(map[int64][]int64, len(in))
	for k, v := range in {
		out[k] = append([]int64(nil), v...)
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		nextID:          s.nextID,
		cashBanks:       cloneMap(s.cashBanks),
		receiptTypes:    cloneMap(s.receiptTypes),
		documentTypes:   cloneMap(s.documentTypes),
		documents:       cloneMap(s.documents),
		memberships:     append([]membership(nil), s.memberships...),
		receipts:        cloneMap(s.receipts),
		lines:           cloneMap(s.lines),
		convertions:     cloneMap(s.convertions),
		convertionDocs:  cloneSlices(s.convertionDocs),
		transfers:       cloneMap(s.transfers),
		transferDocs:    cloneSlices(s.transferDocs),
		periods:         cloneMap(s.periods),
		accounts:        cloneMap(s.accounts),
		moves:           cloneMap(s.moves),
		moveLines:       cloneMap(s.moveLines),
		reconciliations: s.reconciliations,
		sequences:       cloneMap(s.sequences),
		invoices:        cloneMap(s.invoices),
		invoiceLines:    cloneSlices(s.invoiceLines),
		payments:        append([]payment(nil), s.payments...),
	}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// memoryStore implements the cash/bank repository and the repositories of
// the ledger, invoice, sequence and currency collaborators over one state.
type memoryStore struct {
	mu    sync.Mutex
	st    *memState
	depth int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{st: newMemState()}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.depth > 0 {
		return fn(ctx, m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.st.clone()
	m.depth++
	err := fn(ctx, m)
	m.depth--
	if err != nil {
		m.st = snapshot
	}
	return err
}

// --- registry

func (m *memoryStore) CreateCashBank(_ context.Context, cb CashBank) (CashBank, error) {
	for _, existing := range m.st.cashBanks {
		if existing.AccountID == cb.AccountID {
			return CashBank{}, ErrAccountInUse
		}
	}
	cb.ID = m.st.id()
	cb.ReceiptTypes = nil
	m.st.cashBanks[cb.ID] = cb
	return cb, nil
}

func (m *memoryStore) GetCashBank(_ context.Context, id int64) (CashBank, error) {
	cb, ok := m.st.cashBanks[id]
	if !ok {
		return CashBank{}, ErrCashBankNotFound
	}
	return cb, nil
}

func (m *memoryStore) ListCashBanks(_ context.Context, companyID int64) ([]CashBank, error) {
	var out []CashBank
	for _, cb := range m.st.cashBanks {
		if cb.CompanyID == companyID {
			out = append(out, cb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) CashBankByAccount(_ context.Context, accountID int64) (CashBank, bool, error) {
	for _, cb := range m.st.cashBanks {
		if cb.AccountID == accountID {
			return cb, true, nil
		}
	}
	return CashBank{}, false, nil
}

func (m *memoryStore) CreateReceiptType(_ context.Context, rt ReceiptType) (ReceiptType, error) {
	rt.ID = m.st.id()
	m.st.receiptTypes[rt.ID] = rt
	return rt, nil
}

func (m *memoryStore) GetReceiptType(_ context.Context, id int64) (ReceiptType, error) {
	rt, ok := m.st.receiptTypes[id]
	if !ok {
		return ReceiptType{}, ErrReceiptTypeNotFound
	}
	return rt, nil
}

func (m *memoryStore) ListReceiptTypes(_ context.Context, cashBankID int64) ([]ReceiptType, error) {
	var out []ReceiptType
	for _, rt := range m.st.receiptTypes {
		if rt.CashBankID == cashBankID {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) CreateDocumentType(_ context.Context, dt DocumentType) (DocumentType, error) {
	dt.ID = m.st.id()
	m.st.documentTypes[dt.ID] = dt
	return dt, nil
}

func (m *memoryStore) GetDocumentType(_ context.Context, id int64) (DocumentType, error) {
	dt, ok := m.st.documentTypes[id]
	if !ok {
		return DocumentType{}, ErrDocumentTypeNotFound
	}
	return dt, nil
}

func (m *memoryStore) ListDocumentTypes(_ context.Context) ([]DocumentType, error) {
	var out []DocumentType
	for _, dt := range m.st.documentTypes {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- documents

func (m *memoryStore) CreateDocument(_ context.Context, doc Document) (Document, error) {
	doc.ID = m.st.id()
	m.st.documents[doc.ID] = doc
	return doc, nil
}

func (m *memoryStore) UpdateDocument(_ context.Context, doc Document) error {
	if _, ok := m.st.documents[doc.ID]; !ok {
		return ErrDocumentNotFound
	}
	m.st.documents[doc.ID] = doc
	return nil
}

func (m *memoryStore) DeleteDocument(_ context.Context, id int64) error {
	if _, ok := m.st.documents[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(m.st.documents, id)
	kept := m.st.memberships[:0:0]
	for _, mb := range m.st.memberships {
		if mb.documentID != id {
			kept = append(kept, mb)
		}
	}
	m.st.memberships = kept
	return nil
}

func (m *memoryStore) GetDocuments(_ context.Context, ids []int64) ([]Document, error) {
	out := make([]Document, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		doc, ok := m.st.documents[id]
		if !ok {
			return nil, ErrDocumentNotFound
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) ListDocuments(_ context.Context, filter DocumentFilter) ([]Document, error) {
	var out []Document
	for _, doc := range m.st.documents {
		if len(filter.IDs) > 0 && !containsID(filter.IDs, doc.ID) {
			continue
		}
		if filter.WithoutHolder && doc.LastReceiptID != nil {
			continue
		}
		if filter.WithoutConvert && doc.ConvertionID != nil {
			continue
		}
		if filter.HolderCashBankID != 0 {
			if doc.LastReceiptID == nil || m.st.receipts[*doc.LastReceiptID].CashBankID != filter.HolderCashBankID {
				continue
			}
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) SetDocumentReceipt(_ context.Context, documentID int64, receiptID *int64) error {
	doc := m.st.documents[documentID]
	doc.LastReceiptID = copyID(receiptID)
	m.st.documents[documentID] = doc
	return nil
}

func (m *memoryStore) SetDocumentConvertion(_ context.Context, documentID int64, convertionID *int64) error {
	doc := m.st.documents[documentID]
	doc.ConvertionID = copyID(convertionID)
	m.st.documents[documentID] = doc
	return nil
}

func (m *memoryStore) AddMembership(_ context.Context, receiptID, documentID int64) error {
	for _, mb := range m.st.memberships {
		if mb.receiptID == receiptID && mb.documentID == documentID {
			return nil
		}
	}
	m.st.memberships = append(m.st.memberships, membership{id: m.st.id(), receiptID: receiptID, documentID: documentID})
	return nil
}

func (m *memoryStore) RemoveMembership(_ context.Context, receiptID, documentID int64) error {
	kept := m.st.memberships[:0:0]
	for _, mb := range m.st.memberships {
		if mb.receiptID == receiptID && mb.documentID == documentID {
			continue
		}
		kept = append(kept, mb)
	}
	m.st.memberships = kept
	return nil
}

func (m *memoryStore) TakeCustody(_ context.Context, receiptID, documentID int64) error {
	for i, mb := range m.st.memberships {
		if mb.receiptID == receiptID && mb.documentID == documentID {
			m.st.memberships[i].custody = m.st.id()
		}
	}
	return nil
}

func (m *memoryStore) ReleaseCustody(_ context.Context, receiptID, documentID int64) error {
	for i, mb := range m.st.memberships {
		if mb.receiptID == receiptID && mb.documentID == documentID {
			m.st.memberships[i].custody = 0
		}
	}
	return nil
}

func (m *memoryStore) LatestHolder(_ context.Context, documentID, excludeReceiptID int64) (*int64, error) {
	var latest *membership
	for i := range m.st.memberships {
		mb := m.st.memberships[i]
		if mb.documentID != documentID || mb.receiptID == excludeReceiptID || mb.custody == 0 {
			continue
		}
		if latest == nil || mb.custody > latest.custody {
			latest = &mb
		}
	}
	if latest == nil {
		return nil, nil
	}
	id := latest.receiptID
	return &id, nil
}

func (m *memoryStore) ReceiptDocuments(_ context.Context, receiptID int64) ([]Document, error) {
	var out []Document
	for _, mb := range m.st.memberships {
		if mb.receiptID == receiptID {
			out = append(out, m.st.documents[mb.documentID])
		}
	}
	return out, nil
}

// --- receipts

func (m *memoryStore) CreateReceipt(_ context.Context, r Receipt) (Receipt, error) {
	r.ID = m.st.id()
	r.Lines, r.Documents = nil, nil
	r.TransferID = copyID(r.TransferID)
	m.st.receipts[r.ID] = r
	return r, nil
}

func (m *memoryStore) UpdateReceipt(_ context.Context, r Receipt) error {
	if _, ok := m.st.receipts[r.ID]; !ok {
		return ErrReceiptNotFound
	}
	r.Lines, r.Documents = nil, nil
	r.MoveID = copyID(r.MoveID)
	r.TransferID = copyID(r.TransferID)
	m.st.receipts[r.ID] = r
	return nil
}

func (m *memoryStore) GetReceipt(_ context.Context, id int64) (Receipt, error) {
	r, ok := m.st.receipts[id]
	if !ok {
		return Receipt{}, ErrReceiptNotFound
	}
	return r, nil
}

func (m *memoryStore) ListReceipts(_ context.Context, companyID int64, filter ReceiptFilter) ([]Receipt, error) {
	var out []Receipt
	for _, r := range m.st.receipts {
		if r.CompanyID != companyID {
			continue
		}
		if filter.CashBankID != 0 && r.CashBankID != filter.CashBankID {
			continue
		}
		if filter.State != "" && r.State != filter.State {
			continue
		}
		if filter.DateTo != nil && r.Date.After(*filter.DateTo) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) DeleteReceipt(_ context.Context, id int64) error {
	if _, ok := m.st.receipts[id]; !ok {
		return ErrReceiptNotFound
	}
	for _, doc := range m.st.documents {
		if doc.HeldBy(id) {
			return errors.New("memory: document still held by deleted receipt")
		}
	}
	delete(m.st.receipts, id)
	for lineID, line := range m.st.lines {
		if line.ReceiptID == id {
			delete(m.st.lines, lineID)
		}
	}
	kept := m.st.memberships[:0:0]
	for _, mb := range m.st.memberships {
		if mb.receiptID != id {
			kept = append(kept, mb)
		}
	}
	m.st.memberships = kept
	for tid, tr := range m.st.transfers {
		if tr.ReceiptFromID != nil && *tr.ReceiptFromID == id {
			tr.ReceiptFromID = nil
		}
		if tr.ReceiptToID != nil && *tr.ReceiptToID == id {
			tr.ReceiptToID = nil
		}
		m.st.transfers[tid] = tr
	}
	return nil
}

func (m *memoryStore) ReplaceLines(_ context.Context, receiptID int64, lines []Line) ([]Line, error) {
	for id, line := range m.st.lines {
		if line.ReceiptID == receiptID {
			delete(m.st.lines, id)
		}
	}
	out := make([]Line, 0, len(lines))
	for idx, line := range lines {
		if line.Amount.IsZero() {
			return nil, errors.New("memory: chk_receipt_line_amount")
		}
		line.ID = m.st.id()
		line.ReceiptID = receiptID
		line.Sequence = idx + 1
		line.MoveLineID = nil
		m.st.lines[line.ID] = line
		out = append(out, line)
	}
	return out, nil
}

func (m *memoryStore) ReceiptLines(_ context.Context, receiptID int64) ([]Line, error) {
	var out []Line
	for _, line := range m.st.lines {
		if line.ReceiptID == receiptID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *memoryStore) UpdateLineMove(_ context.Context, lineID int64, moveLineID *int64) error {
	line := m.st.lines[lineID]
	line.MoveLineID = copyID(moveLineID)
	m.st.lines[lineID] = line
	return nil
}

func (m *memoryStore) DeleteLines(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(m.st.lines, id)
	}
	return nil
}

// --- convertions

func (m *memoryStore) CreateConvertion(_ context.Context, c Convertion) (Convertion, error) {
	c.ID = m.st.id()
	c.Documents = nil
	m.st.convertions[c.ID] = c
	return c, nil
}

func (m *memoryStore) UpdateConvertion(_ context.Context, c Convertion) error {
	if _, ok := m.st.convertions[c.ID]; !ok {
		return ErrConvertionNotFound
	}
	c.Documents = nil
	m.st.convertions[c.ID] = c
	return nil
}

func (m *memoryStore) GetConvertion(_ context.Context, id int64) (Convertion, error) {
	c, ok := m.st.convertions[id]
	if !ok {
		return Convertion{}, ErrConvertionNotFound
	}
	return c, nil
}

func (m *memoryStore) ListConvertions(_ context.Context, companyID int64, filter ConvertionFilter) ([]Convertion, error) {
	var out []Convertion
	for _, c := range m.st.convertions {
		if c.CompanyID != companyID {
			continue
		}
		if filter.CashBankID != 0 && c.CashBankID != filter.CashBankID {
			continue
		}
		if filter.State != "" && c.State != filter.State {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return pageOf(out, filter.Limit, filter.Offset), nil
}

func (m *memoryStore) DeleteConvertion(_ context.Context, id int64) error {
	if _, ok := m.st.convertions[id]; !ok {
		return ErrConvertionNotFound
	}
	delete(m.st.convertions, id)
	delete(m.st.convertionDocs, id)
	return nil
}

func (m *memoryStore) SetConvertionDocuments(_ context.Context, id int64, documentIDs []int64) error {
	m.st.convertionDocs[id] = append([]int64(nil), documentIDs...)
	return nil
}

func (m *memoryStore) ConvertionDocuments(ctx context.Context, id int64) ([]Document, error) {
	return m.GetDocuments(ctx, m.st.convertionDocs[id])
}

// --- transfers

func (m *memoryStore) CreateTransfer(_ context.Context, t Transfer) (Transfer, error) {
	t.ID = m.st.id()
	t.Documents = nil
	m.st.transfers[t.ID] = t
	return t, nil
}

func (m *memoryStore) UpdateTransfer(_ context.Context, t Transfer) error {
	if _, ok := m.st.transfers[t.ID]; !ok {
		return ErrTransferNotFound
	}
	t.Documents = nil
	t.ReceiptFromID = copyID(t.ReceiptFromID)
	t.ReceiptToID = copyID(t.ReceiptToID)
	m.st.transfers[t.ID] = t
	return nil
}

func (m *memoryStore) GetTransfer(_ context.Context, id int64) (Transfer, error) {
	t, ok := m.st.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (m *memoryStore) ListTransfers(_ context.Context, companyID int64, filter TransferFilter) ([]Transfer, error) {
	var out []Transfer
	for _, t := range m.st.transfers {
		if t.CompanyID != companyID {
			continue
		}
		if filter.CashBankID != 0 && t.CashBankFromID != filter.CashBankID && t.CashBankToID != filter.CashBankID {
			continue
		}
		if filter.State != "" && t.State != filter.State {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return pageOf(out, filter.Limit, filter.Offset), nil
}

func pageOf[T any](rows []T, limit, offset int) []T {
	if limit <= 0 {
		return rows
	}
	if offset >= len(rows) {
		return nil
	}
	return rows[offset:min(offset+limit, len(rows))]
}

func (m *memoryStore) DeleteTransfer(_ context.Context, id int64) error {
	if _, ok := m.st.transfers[id]; !ok {
		return ErrTransferNotFound
	}
	delete(m.st.transfers, id)
	delete(m.st.transferDocs, id)
	for rid, r := range m.st.receipts {
		if r.TransferID != nil && *r.TransferID == id {
			r.TransferID = nil
			m.st.receipts[rid] = r
		}
	}
	return nil
}

func (m *memoryStore) SetTransferDocuments(_ context.Context, id int64, documentIDs []int64) error {
	m.st.transferDocs[id] = append([]int64(nil), documentIDs...)
	return nil
}

func (m *memoryStore) TransferDocuments(ctx context.Context, id int64) ([]Document, error) {
	return m.GetDocuments(ctx, m.st.transferDocs[id])
}

// --- ledger repository

type memoryLedger struct{ m *memoryStore }

func (l memoryLedger) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return fn(ctx, l)
}

func (l memoryLedger) FindPeriodByDate(_ context.Context, companyID int64, date time.Time) (ledger.Period, error) {
	for _, p := range l.m.st.periods {
		if p.CompanyID == companyID && p.Contains(date) {
			return p, nil
		}
	}
	return ledger.Period{}, ledger.ErrPeriodNotFound
}

func (l memoryLedger) GetPeriod(_ context.Context, id int64) (ledger.Period, error) {
	p, ok := l.m.st.periods[id]
	if !ok {
		return ledger.Period{}, ledger.ErrPeriodNotFound
	}
	return p, nil
}

func (l memoryLedger) GetAccount(_ context.Context, id int64) (ledger.Account, error) {
	a, ok := l.m.st.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (l memoryLedger) InsertMove(_ context.Context, in ledger.MoveInput, sourceID uuid.UUID) (ledger.Move, error) {
	for _, mv := range l.m.st.moves {
		if mv.SourceID == sourceID {
			return ledger.Move{}, ledger.ErrSourceConflict
		}
	}
	mv := ledger.Move{
		ID:          l.m.st.id(),
		CompanyID:   in.CompanyID,
		PeriodID:    in.PeriodID,
		JournalID:   in.JournalID,
		Date:        in.Date,
		Origin:      in.Origin,
		SourceID:    sourceID,
		Description: in.Description,
		State:       ledger.MoveStateDraft,
	}
	l.m.st.moves[mv.ID] = mv
	return mv, nil
}

func (l memoryLedger) InsertMoveLines(_ context.Context, moveID int64, lines []ledger.MoveLine) ([]ledger.MoveLine, error) {
	out := make([]ledger.MoveLine, 0, len(lines))
	for _, line := range lines {
		line.ID = l.m.st.id()
		line.MoveID = moveID
		l.m.st.moveLines[line.ID] = line
		out = append(out, line)
	}
	mv := l.m.st.moves[moveID]
	mv.Lines = out
	l.m.st.moves[moveID] = mv
	return out, nil
}

func (l memoryLedger) GetMove(_ context.Context, id int64) (ledger.Move, error) {
	mv, ok := l.m.st.moves[id]
	if !ok {
		return ledger.Move{}, ledger.ErrMoveNotFound
	}
	lines := make([]ledger.MoveLine, 0, len(mv.Lines))
	for _, line := range mv.Lines {
		lines = append(lines, l.m.st.moveLines[line.ID])
	}
	mv.Lines = lines
	return mv, nil
}

func (l memoryLedger) GetMoveLines(_ context.Context, ids []int64) ([]ledger.MoveLine, error) {
	var out []ledger.MoveLine
	for _, id := range ids {
		if line, ok := l.m.st.moveLines[id]; ok {
			out = append(out, line)
		}
	}
	return out, nil
}

func (l memoryLedger) UpdateMoveState(_ context.Context, id int64, state ledger.MoveState, at time.Time) error {
	mv := l.m.st.moves[id]
	mv.State = state
	mv.PostedAt = &at
	l.m.st.moves[id] = mv
	return nil
}

func (l memoryLedger) DeleteMove(_ context.Context, id int64) error {
	for _, line := range l.m.st.moves[id].Lines {
		delete(l.m.st.moveLines, line.ID)
	}
	delete(l.m.st.moves, id)
	return nil
}

func (l memoryLedger) InsertReconciliation(_ context.Context, lineIDs []int64) (int64, error) {
	l.m.st.reconciliations++
	id := l.m.st.reconciliations
	for _, lineID := range lineIDs {
		line := l.m.st.moveLines[lineID]
		rec := id
		line.ReconciliationID = &rec
		l.m.st.moveLines[lineID] = line
	}
	return id, nil
}

// --- invoice repository

type memoryInvoices struct{ m *memoryStore }

func (r memoryInvoices) Get(_ context.Context, id int64) (invoice.Invoice, error) {
	inv, ok := r.m.st.invoices[id]
	if !ok {
		return invoice.Invoice{}, invoice.ErrInvoiceNotFound
	}
	return inv, nil
}

func (r memoryInvoices) openLines(ids []int64) []invoice.OpenLine {
	var out []invoice.OpenLine
	for _, id := range ids {
		line, ok := r.m.st.moveLines[id]
		if !ok || line.ReconciliationID != nil {
			continue
		}
		out = append(out, invoice.OpenLine{MoveLineID: id, Balance: line.Balance()})
	}
	return out
}

func (r memoryInvoices) LinesToPay(_ context.Context, id int64) ([]invoice.OpenLine, error) {
	return r.openLines(r.m.st.invoiceLines[id]), nil
}

func (r memoryInvoices) PaymentLines(_ context.Context, id int64) ([]invoice.OpenLine, error) {
	var ids []int64
	for _, p := range r.m.st.payments {
		if p.invoiceID == id {
			ids = append(ids, p.moveLineID)
		}
	}
	return r.openLines(ids), nil
}

func (r memoryInvoices) AddPaymentLine(_ context.Context, id, moveLineID int64, amount decimal.Decimal) error {
	r.m.st.payments = append(r.m.st.payments, payment{invoiceID: id, moveLineID: moveLineID, amount: amount})
	inv := r.m.st.invoices[id]
	inv.Paid = inv.Paid.Add(amount)
	r.m.st.invoices[id] = inv
	return nil
}

func (r memoryInvoices) UpdateState(_ context.Context, id int64, state invoice.State) error {
	inv := r.m.st.invoices[id]
	inv.State = state
	r.m.st.invoices[id] = inv
	return nil
}

// --- sequence and currency repositories

type memorySequences struct{ m *memoryStore }

func (r memorySequences) Advance(_ context.Context, id int64) (sequence.Sequence, int64, error) {
	seq, ok := r.m.st.sequences[id]
	if !ok {
		return sequence.Sequence{}, 0, sequence.ErrSequenceNotFound
	}
	n := seq.NextNumber
	seq.NextNumber += int64(seq.Step)
	r.m.st.sequences[id] = seq
	return seq, n, nil
}

func (r memorySequences) Create(_ context.Context, seq sequence.Sequence) (sequence.Sequence, error) {
	seq.ID = r.m.st.id()
	r.m.st.sequences[seq.ID] = seq
	return seq, nil
}

type staticRates map[string]decimal.Decimal

func (r staticRates) RateOn(_ context.Context, cur string, _ time.Time) (decimal.Decimal, error) {
	rate, ok := r[cur]
	if !ok {
		return decimal.Zero, currency.ErrRateNotFound
	}
	return rate, nil
}

// --- audit and metrics

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions(entity string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, log := range a.logs {
		if log.Entity == entity {
			out = append(out, log.Action)
		}
	}
	return out
}

type countingObserver struct {
	counts map[string]int
}

func (o *countingObserver) ObserveTransition(entity, transition, outcome string) {
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[entity+"."+transition+"."+outcome]++
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
