package invoice

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbank/internal/platform/db"
)

// Repository persists invoices and their payment lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads an invoice and the sum of its payments.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT i.id, i.company_id, i.kind, i.number, i.reference, i.party_id, i.account_id, i.currency, i.currency_date, i.state, i.total,
COALESCE((SELECT SUM(p.amount) FROM invoice_payment_lines p WHERE p.invoice_id = i.id), 0), i.move_id
FROM invoices i WHERE i.id=$1`, id).
		Scan(&inv.ID, &inv.CompanyID, &inv.Kind, &inv.Number, &inv.Reference, &inv.PartyID, &inv.AccountID, &inv.Currency, &inv.CurrencyDate, &inv.State, &inv.Total, &inv.Paid, &inv.MoveID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

// LinesToPay returns the unreconciled receivable/payable lines of the invoice move.
func (r *Repository) LinesToPay(ctx context.Context, id int64) ([]OpenLine, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT l.id, l.debit - l.credit FROM move_lines l
JOIN invoices i ON i.move_id = l.move_id AND i.account_id = l.account_id
WHERE i.id=$1 AND l.reconciliation_id IS NULL ORDER BY l.id`, id)
	if err != nil {
		return nil, err
	}
	return scanOpenLines(rows)
}

// PaymentLines returns unreconciled lines registered as payments.
func (r *Repository) PaymentLines(ctx context.Context, id int64) ([]OpenLine, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT l.id, l.debit - l.credit FROM move_lines l
JOIN invoice_payment_lines p ON p.move_line_id = l.id
WHERE p.invoice_id=$1 AND l.reconciliation_id IS NULL ORDER BY l.id`, id)
	if err != nil {
		return nil, err
	}
	return scanOpenLines(rows)
}

// AddPaymentLine links a move line as payment.
func (r *Repository) AddPaymentLine(ctx context.Context, id, moveLineID int64, amount decimal.Decimal) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO invoice_payment_lines (invoice_id, move_line_id, amount) VALUES ($1,$2,$3)`, id, moveLineID, amount)
	return err
}

// UpdateState changes the invoice state.
func (r *Repository) UpdateState(ctx context.Context, id int64, state State) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE invoices SET state=$2 WHERE id=$1`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func scanOpenLines(rows pgx.Rows) ([]OpenLine, error) {
	defer rows.Close()
	var lines []OpenLine
	for rows.Next() {
		var l OpenLine
		if err := rows.Scan(&l.MoveLineID, &l.Balance); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
