package cashbank

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cashbank/internal/platform/db"
)

// TxRepository exposes transactional persistence operations.
type TxRepository interface {
	CreateCashBank(ctx context.Context, cb CashBank) (CashBank, error)
	GetCashBank(ctx context.Context, id int64) (CashBank, error)
	ListCashBanks(ctx context.Context, companyID int64) ([]CashBank, error)
	CashBankByAccount(ctx context.Context, accountID int64) (CashBank, bool, error)
	CreateReceiptType(ctx context.Context, rt ReceiptType) (ReceiptType, error)
	GetReceiptType(ctx context.Context, id int64) (ReceiptType, error)
	ListReceiptTypes(ctx context.Context, cashBankID int64) ([]ReceiptType, error)
	CreateDocumentType(ctx context.Context, dt DocumentType) (DocumentType, error)
	GetDocumentType(ctx context.Context, id int64) (DocumentType, error)
	ListDocumentTypes(ctx context.Context) ([]DocumentType, error)

	CreateDocument(ctx context.Context, doc Document) (Document, error)
	UpdateDocument(ctx context.Context, doc Document) error
	DeleteDocument(ctx context.Context, id int64) error
	GetDocuments(ctx context.Context, ids []int64) ([]Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	SetDocumentReceipt(ctx context.Context, documentID int64, receiptID *int64) error
	SetDocumentConvertion(ctx context.Context, documentID int64, convertionID *int64) error

	AddMembership(ctx context.Context, receiptID, documentID int64) error
	RemoveMembership(ctx context.Context, receiptID, documentID int64) error
	TakeCustody(ctx context.Context, receiptID, documentID int64) error
	ReleaseCustody(ctx context.Context, receiptID, documentID int64) error
	// LatestHolder returns the receipt other than excludeReceiptID that most
	// recently took custody of the document and has not released it.
	LatestHolder(ctx context.Context, documentID, excludeReceiptID int64) (*int64, error)
	ReceiptDocuments(ctx context.Context, receiptID int64) ([]Document, error)

	CreateReceipt(ctx context.Context, r Receipt) (Receipt, error)
	UpdateReceipt(ctx context.Context, r Receipt) error
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	ListReceipts(ctx context.Context, companyID int64, filter ReceiptFilter) ([]Receipt, error)
	DeleteReceipt(ctx context.Context, id int64) error
	ReplaceLines(ctx context.Context, receiptID int64, lines []Line) ([]Line, error)
	ReceiptLines(ctx context.Context, receiptID int64) ([]Line, error)
	UpdateLineMove(ctx context.Context, lineID int64, moveLineID *int64) error
	DeleteLines(ctx context.Context, ids []int64) error

	CreateConvertion(ctx context.Context, c Convertion) (Convertion, error)
	UpdateConvertion(ctx context.Context, c Convertion) error
	GetConvertion(ctx context.Context, id int64) (Convertion, error)
	ListConvertions(ctx context.Context, companyID int64, filter ConvertionFilter) ([]Convertion, error)
	DeleteConvertion(ctx context.Context, id int64) error
	SetConvertionDocuments(ctx context.Context, id int64, documentIDs []int64) error
	ConvertionDocuments(ctx context.Context, id int64) ([]Document, error)

	CreateTransfer(ctx context.Context, t Transfer) (Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) error
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListTransfers(ctx context.Context, companyID int64, filter TransferFilter) ([]Transfer, error)
	DeleteTransfer(ctx context.Context, id int64) error
	SetTransferDocuments(ctx context.Context, id int64, documentIDs []int64) error
	TransferDocuments(ctx context.Context, id int64) ([]Document, error)
}

// Repository implements RepositoryPort on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new cash/bank repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps operations inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// --- registry

const cashBankColumns = `id, company_id, name, kind, journal_id, account_id, bank_account_id`

func scanCashBank(row pgx.Row) (CashBank, error) {
	var cb CashBank
	err := row.Scan(&cb.ID, &cb.CompanyID, &cb.Name, &cb.Kind, &cb.JournalID, &cb.AccountID, &cb.BankAccountID)
	return cb, err
}

func (r *txRepository) CreateCashBank(ctx context.Context, cb CashBank) (CashBank, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO cash_banks (company_id, name, kind, journal_id, account_id, bank_account_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+cashBankColumns,
		cb.CompanyID, cb.Name, cb.Kind, cb.JournalID, cb.AccountID, cb.BankAccountID)
	created, err := scanCashBank(row)
	if isUniqueViolation(err, "uq_cash_banks_account") {
		return CashBank{}, ErrAccountInUse
	}
	return created, err
}

func (r *txRepository) GetCashBank(ctx context.Context, id int64) (CashBank, error) {
	cb, err := scanCashBank(r.tx.QueryRow(ctx, `SELECT `+cashBankColumns+` FROM cash_banks WHERE id=$1`, id))
	if err != nil {
		return CashBank{}, notFound(err, ErrCashBankNotFound)
	}
	return cb, nil
}

func (r *txRepository) ListCashBanks(ctx context.Context, companyID int64) ([]CashBank, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+cashBankColumns+` FROM cash_banks WHERE company_id=$1 ORDER BY name, id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CashBank
	for rows.Next() {
		cb, err := scanCashBank(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cb)
	}
	return out, rows.Err()
}

func (r *txRepository) CashBankByAccount(ctx context.Context, accountID int64) (CashBank, bool, error) {
	cb, err := scanCashBank(r.tx.QueryRow(ctx, `SELECT `+cashBankColumns+` FROM cash_banks WHERE account_id=$1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return CashBank{}, false, nil
	}
	if err != nil {
		return CashBank{}, false, err
	}
	return cb, true, nil
}

const receiptTypeColumns = `id, cash_bank_id, name, direction, sequence_id, party_required, bank_account, bank_account_required, active`

func scanReceiptType(row pgx.Row) (ReceiptType, error) {
	var rt ReceiptType
	err := row.Scan(&rt.ID, &rt.CashBankID, &rt.Name, &rt.Direction, &rt.SequenceID,
		&rt.PartyRequired, &rt.BankAccount, &rt.BankAccountRequired, &rt.Active)
	return rt, err
}

func (r *txRepository) CreateReceiptType(ctx context.Context, rt ReceiptType) (ReceiptType, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO receipt_types (cash_bank_id, name, direction, sequence_id, party_required, bank_account, bank_account_required, active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+receiptTypeColumns,
		rt.CashBankID, rt.Name, rt.Direction, rt.SequenceID, rt.PartyRequired, rt.BankAccount, rt.BankAccountRequired, rt.Active)
	return scanReceiptType(row)
}

func (r *txRepository) GetReceiptType(ctx context.Context, id int64) (ReceiptType, error) {
	rt, err := scanReceiptType(r.tx.QueryRow(ctx, `SELECT `+receiptTypeColumns+` FROM receipt_types WHERE id=$1`, id))
	if err != nil {
		return ReceiptType{}, notFound(err, ErrReceiptTypeNotFound)
	}
	return rt, nil
}

func (r *txRepository) ListReceiptTypes(ctx context.Context, cashBankID int64) ([]ReceiptType, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+receiptTypeColumns+` FROM receipt_types WHERE cash_bank_id=$1 ORDER BY id`, cashBankID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReceiptType
	for rows.Next() {
		rt, err := scanReceiptType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *txRepository) CreateDocumentType(ctx context.Context, dt DocumentType) (DocumentType, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO document_types (name, description, active) VALUES ($1,$2,$3) RETURNING id`,
		dt.Name, dt.Description, dt.Active).Scan(&dt.ID)
	return dt, err
}

func (r *txRepository) GetDocumentType(ctx context.Context, id int64) (DocumentType, error) {
	var dt DocumentType
	err := r.tx.QueryRow(ctx, `SELECT id, name, description, active FROM document_types WHERE id=$1`, id).
		Scan(&dt.ID, &dt.Name, &dt.Description, &dt.Active)
	if err != nil {
		return DocumentType{}, notFound(err, ErrDocumentTypeNotFound)
	}
	return dt, nil
}

func (r *txRepository) ListDocumentTypes(ctx context.Context) ([]DocumentType, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, description, active FROM document_types ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DocumentType
	for rows.Next() {
		var dt DocumentType
		if err := rows.Scan(&dt.ID, &dt.Name, &dt.Description, &dt.Active); err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}

// --- documents

const documentColumns = `d.id, d.type_id, d.amount, d.date, d.party_id, d.reference, d.entity, d.last_receipt_id, d.convertion_id, d.created_at, d.updated_at`

func collectDocuments(rows pgx.Rows, err error) ([]Document, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.TypeID, &doc.Amount, &doc.Date, &doc.PartyID, &doc.Reference,
			&doc.Entity, &doc.LastReceiptID, &doc.ConvertionID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *txRepository) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO documents (type_id, amount, date, party_id, reference, entity)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		doc.TypeID, doc.Amount, doc.Date, doc.PartyID, doc.Reference, doc.Entity).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	return doc, err
}

func (r *txRepository) UpdateDocument(ctx context.Context, doc Document) error {
	tag, err := r.tx.Exec(ctx, `UPDATE documents SET type_id=$2, amount=$3, date=$4, party_id=$5, reference=$6, entity=$7, updated_at=NOW() WHERE id=$1`,
		doc.ID, doc.TypeID, doc.Amount, doc.Date, doc.PartyID, doc.Reference, doc.Entity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *txRepository) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// GetDocuments locks the rows so concurrent custody changes serialize.
func (r *txRepository) GetDocuments(ctx context.Context, ids []int64) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := collectDocuments(r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id = ANY($1) ORDER BY d.id FOR UPDATE`, ids))
	if err != nil {
		return nil, err
	}
	if len(docs) != len(uniqueIDs(ids)) {
		return nil, ErrDocumentNotFound
	}
	return docs, nil
}

func (r *txRepository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if len(filter.IDs) > 0 {
		add("d.id = ANY($%d)", filter.IDs)
	}
	if filter.HolderCashBankID != 0 {
		add("d.last_receipt_id IN (SELECT id FROM receipts WHERE cash_bank_id=$%d)", filter.HolderCashBankID)
	}
	if filter.WithoutHolder {
		where = append(where, "d.last_receipt_id IS NULL")
	}
	if filter.WithoutConvert {
		where = append(where, "d.convertion_id IS NULL")
	}
	query := `SELECT ` + documentColumns + ` FROM documents d`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return collectDocuments(r.tx.Query(ctx, query+" ORDER BY d.id", args...))
}

func (r *txRepository) SetDocumentReceipt(ctx context.Context, documentID int64, receiptID *int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET last_receipt_id=$2, updated_at=NOW() WHERE id=$1`, documentID, receiptID)
	return err
}

func (r *txRepository) SetDocumentConvertion(ctx context.Context, documentID int64, convertionID *int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET convertion_id=$2, updated_at=NOW() WHERE id=$1`, documentID, convertionID)
	return err
}

func (r *txRepository) AddMembership(ctx context.Context, receiptID, documentID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO receipt_documents (receipt_id, document_id) VALUES ($1,$2)
ON CONFLICT (receipt_id, document_id) DO NOTHING`, receiptID, documentID)
	return err
}

func (r *txRepository) RemoveMembership(ctx context.Context, receiptID, documentID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM receipt_documents WHERE receipt_id=$1 AND document_id=$2`, receiptID, documentID)
	return err
}

func (r *txRepository) TakeCustody(ctx context.Context, receiptID, documentID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE receipt_documents
SET custody_seq = nextval('receipt_documents_custody_seq')
WHERE receipt_id=$1 AND document_id=$2`, receiptID, documentID)
	return err
}

func (r *txRepository) ReleaseCustody(ctx context.Context, receiptID, documentID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE receipt_documents SET custody_seq = NULL WHERE receipt_id=$1 AND document_id=$2`, receiptID, documentID)
	return err
}

func (r *txRepository) LatestHolder(ctx context.Context, documentID, excludeReceiptID int64) (*int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT receipt_id FROM receipt_documents
WHERE document_id=$1 AND receipt_id<>$2 AND custody_seq IS NOT NULL
ORDER BY custody_seq DESC LIMIT 1`, documentID, excludeReceiptID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *txRepository) ReceiptDocuments(ctx context.Context, receiptID int64) ([]Document, error) {
	return collectDocuments(r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents d
JOIN receipt_documents rd ON rd.document_id = d.id WHERE rd.receipt_id=$1 ORDER BY rd.id`, receiptID))
}

// --- receipts

const receiptColumns = `id, company_id, cash_bank_id, type_id, currency, date, COALESCE(number, ''), reference, description,
party_id, bank_account_id, cash, state, move_id, transfer_id, created_at, updated_at`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.CompanyID, &rc.CashBankID, &rc.TypeID, &rc.Currency, &rc.Date, &rc.Number,
		&rc.Reference, &rc.Description, &rc.PartyID, &rc.BankAccountID, &rc.Cash, &rc.State,
		&rc.MoveID, &rc.TransferID, &rc.CreatedAt, &rc.UpdatedAt)
	return rc, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *txRepository) CreateReceipt(ctx context.Context, rc Receipt) (Receipt, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO receipts (company_id, cash_bank_id, type_id, currency, date, number, reference, description,
party_id, bank_account_id, cash, state, transfer_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING `+receiptColumns,
		rc.CompanyID, rc.CashBankID, rc.TypeID, rc.Currency, rc.Date, nullable(rc.Number), rc.Reference, rc.Description,
		rc.PartyID, rc.BankAccountID, rc.Cash, rc.State, rc.TransferID)
	return scanReceipt(row)
}

func (r *txRepository) UpdateReceipt(ctx context.Context, rc Receipt) error {
	tag, err := r.tx.Exec(ctx, `UPDATE receipts SET cash_bank_id=$2, type_id=$3, currency=$4, date=$5, number=$6, reference=$7,
description=$8, party_id=$9, bank_account_id=$10, cash=$11, state=$12, move_id=$13, transfer_id=$14, updated_at=NOW()
WHERE id=$1`,
		rc.ID, rc.CashBankID, rc.TypeID, rc.Currency, rc.Date, nullable(rc.Number), rc.Reference, rc.Description,
		rc.PartyID, rc.BankAccountID, rc.Cash, rc.State, rc.MoveID, rc.TransferID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

func (r *txRepository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	rc, err := scanReceipt(r.tx.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Receipt{}, notFound(err, ErrReceiptNotFound)
	}
	return rc, nil
}

func (r *txRepository) ListReceipts(ctx context.Context, companyID int64, filter ReceiptFilter) ([]Receipt, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CashBankID != 0 {
		add("cash_bank_id=$%d", filter.CashBankID)
	}
	if filter.State != "" {
		add("state=$%d", filter.State)
	}
	if filter.DateTo != nil {
		add("date<=$%d", *filter.DateTo)
	}
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE ` + strings.Join(where, " AND ") + ` ORDER BY date, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *txRepository) DeleteReceipt(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM receipts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, receiptID int64, lines []Line) ([]Line, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM receipt_lines WHERE receipt_id=$1`, receiptID); err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(lines))
	for idx, line := range lines {
		line.ReceiptID = receiptID
		line.Sequence = idx + 1
		err := r.tx.QueryRow(ctx, `INSERT INTO receipt_lines (receipt_id, seq, amount, account_id, party_id, invoice_id, description)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			receiptID, line.Sequence, line.Amount, line.AccountID, line.PartyID, line.InvoiceID, line.Description).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepository) ReceiptLines(ctx context.Context, receiptID int64) ([]Line, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, receipt_id, seq, amount, account_id, party_id, invoice_id, description, move_line_id
FROM receipt_lines WHERE receipt_id=$1 ORDER BY seq, id`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.ReceiptID, &line.Sequence, &line.Amount, &line.AccountID,
			&line.PartyID, &line.InvoiceID, &line.Description, &line.MoveLineID); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (r *txRepository) UpdateLineMove(ctx context.Context, lineID int64, moveLineID *int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE receipt_lines SET move_line_id=$2 WHERE id=$1`, lineID, moveLineID)
	return err
}

func (r *txRepository) DeleteLines(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM receipt_lines WHERE id = ANY($1)`, ids)
	return err
}

// --- convertions

const convertionColumns = `id, company_id, cash_bank_id, date, COALESCE(number, ''), description, state, created_at, updated_at`

func (r *txRepository) CreateConvertion(ctx context.Context, c Convertion) (Convertion, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO convertions (company_id, cash_bank_id, date, description, state)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		c.CompanyID, c.CashBankID, c.Date, c.Description, c.State).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *txRepository) UpdateConvertion(ctx context.Context, c Convertion) error {
	tag, err := r.tx.Exec(ctx, `UPDATE convertions SET cash_bank_id=$2, date=$3, number=$4, description=$5, state=$6, updated_at=NOW() WHERE id=$1`,
		c.ID, c.CashBankID, c.Date, nullable(c.Number), c.Description, c.State)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConvertionNotFound
	}
	return nil
}

func scanConvertion(row pgx.Row) (Convertion, error) {
	var c Convertion
	err := row.Scan(&c.ID, &c.CompanyID, &c.CashBankID, &c.Date, &c.Number, &c.Description, &c.State, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *txRepository) GetConvertion(ctx context.Context, id int64) (Convertion, error) {
	c, err := scanConvertion(r.tx.QueryRow(ctx, `SELECT `+convertionColumns+` FROM convertions WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Convertion{}, notFound(err, ErrConvertionNotFound)
	}
	return c, nil
}

func (r *txRepository) ListConvertions(ctx context.Context, companyID int64, filter ConvertionFilter) ([]Convertion, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CashBankID != 0 {
		add("cash_bank_id=$%d", filter.CashBankID)
	}
	if filter.State != "" {
		add("state=$%d", filter.State)
	}
	query := `SELECT ` + convertionColumns + ` FROM convertions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY date DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Convertion
	for rows.Next() {
		c, err := scanConvertion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) DeleteConvertion(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM convertions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConvertionNotFound
	}
	return nil
}

func (r *txRepository) SetConvertionDocuments(ctx context.Context, id int64, documentIDs []int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM convertion_documents WHERE convertion_id=$1`, id); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO convertion_documents (convertion_id, document_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, id, documentIDs)
	return err
}

func (r *txRepository) ConvertionDocuments(ctx context.Context, id int64) ([]Document, error) {
	return collectDocuments(r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents d
JOIN convertion_documents cd ON cd.document_id = d.id WHERE cd.convertion_id=$1 ORDER BY d.id`, id))
}

// --- transfers

const transferColumns = `id, company_id, date, cash_bank_from_id, type_from_id, cash_bank_to_id, type_to_id, currency, cash,
party_id, reference, description, state, receipt_from_id, receipt_to_id, created_at, updated_at`

func (r *txRepository) CreateTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO transfers (company_id, date, cash_bank_from_id, type_from_id, cash_bank_to_id, type_to_id,
currency, cash, party_id, reference, description, state)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at, updated_at`,
		t.CompanyID, t.Date, t.CashBankFromID, t.TypeFromID, t.CashBankToID, t.TypeToID,
		t.Currency, t.Cash, t.PartyID, t.Reference, t.Description, t.State).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *txRepository) UpdateTransfer(ctx context.Context, t Transfer) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transfers SET date=$2, cash_bank_from_id=$3, type_from_id=$4, cash_bank_to_id=$5, type_to_id=$6,
currency=$7, cash=$8, party_id=$9, reference=$10, description=$11, state=$12, receipt_from_id=$13, receipt_to_id=$14, updated_at=NOW()
WHERE id=$1`,
		t.ID, t.Date, t.CashBankFromID, t.TypeFromID, t.CashBankToID, t.TypeToID, t.Currency, t.Cash,
		t.PartyID, t.Reference, t.Description, t.State, t.ReceiptFromID, t.ReceiptToID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.CompanyID, &t.Date, &t.CashBankFromID, &t.TypeFromID, &t.CashBankToID, &t.TypeToID,
		&t.Currency, &t.Cash, &t.PartyID, &t.Reference, &t.Description, &t.State,
		&t.ReceiptFromID, &t.ReceiptToID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *txRepository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	t, err := scanTransfer(r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Transfer{}, notFound(err, ErrTransferNotFound)
	}
	return t, nil
}

func (r *txRepository) ListTransfers(ctx context.Context, companyID int64, filter TransferFilter) ([]Transfer, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CashBankID != 0 {
		add("(cash_bank_from_id=$%[1]d OR cash_bank_to_id=$%[1]d)", filter.CashBankID)
	}
	if filter.State != "" {
		add("state=$%d", filter.State)
	}
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE ` + strings.Join(where, " AND ") + ` ORDER BY date DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) DeleteTransfer(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM transfers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (r *txRepository) SetTransferDocuments(ctx context.Context, id int64, documentIDs []int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM transfer_documents WHERE transfer_id=$1`, id); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO transfer_documents (transfer_id, document_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, id, documentIDs)
	return err
}

func (r *txRepository) TransferDocuments(ctx context.Context, id int64) ([]Document, error) {
	return collectDocuments(r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents d
JOIN transfer_documents td ON td.document_id = d.id WHERE td.transfer_id=$1 ORDER BY d.id`, id))
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
