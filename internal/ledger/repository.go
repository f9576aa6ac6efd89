package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cashbank/internal/platform/db"
)

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	FindPeriodByDate(ctx context.Context, companyID int64, date time.Time) (Period, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	InsertMove(ctx context.Context, in MoveInput, sourceID uuid.UUID) (Move, error)
	InsertMoveLines(ctx context.Context, moveID int64, lines []MoveLine) ([]MoveLine, error)
	GetMove(ctx context.Context, id int64) (Move, error)
	GetMoveLines(ctx context.Context, ids []int64) ([]MoveLine, error)
	UpdateMoveState(ctx context.Context, id int64, state MoveState, at time.Time) error
	DeleteMove(ctx context.Context, id int64) error
	InsertReconciliation(ctx context.Context, lineIDs []int64) (int64, error)
}

// ErrSourceConflict indicates the source reference already exists.
var ErrSourceConflict = errors.New("ledger: source conflict")

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction, joining one already bound to ctx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) FindPeriodByDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	var p Period
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, start_date, end_date, status
FROM periods WHERE company_id=$1 AND start_date <= $2 AND end_date >= $2
ORDER BY start_date DESC LIMIT 1`, companyID, date).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.StartDate, &p.EndDate, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *txRepository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, start_date, end_date, status
FROM periods WHERE id=$1 FOR SHARE`, id).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.StartDate, &p.EndDate, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, name, party_required, reconcile, closed
FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.PartyRequired, &a.Reconcile, &a.Closed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *txRepository) InsertMove(ctx context.Context, in MoveInput, sourceID uuid.UUID) (Move, error) {
	move := Move{
		CompanyID:   in.CompanyID,
		PeriodID:    in.PeriodID,
		JournalID:   in.JournalID,
		Date:        in.Date,
		Origin:      in.Origin,
		SourceID:    sourceID,
		Description: in.Description,
		State:       MoveStateDraft,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO moves (company_id, period_id, journal_id, date, origin_model, origin_id, source_id, description, state)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'draft') RETURNING id, created_at`,
		in.CompanyID, in.PeriodID, in.JournalID, in.Date, in.Origin.Model, in.Origin.ID, sourceID, in.Description).
		Scan(&move.ID, &move.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_moves_source" {
			return Move{}, ErrSourceConflict
		}
		return Move{}, err
	}
	return move, nil
}

func (r *txRepository) InsertMoveLines(ctx context.Context, moveID int64, lines []MoveLine) ([]MoveLine, error) {
	out := make([]MoveLine, 0, len(lines))
	for _, line := range lines {
		line.MoveID = moveID
		var secondCurrency *string
		if line.SecondCurrency != "" {
			secondCurrency = &line.SecondCurrency
		}
		err := r.tx.QueryRow(ctx, `INSERT INTO move_lines (move_id, account_id, party_id, description, debit, credit, second_currency, amount_second_currency)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			moveID, line.AccountID, line.PartyID, line.Description, line.Debit, line.Credit, secondCurrency, line.AmountSecondCurrency).
			Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepository) GetMove(ctx context.Context, id int64) (Move, error) {
	var m Move
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, period_id, journal_id, date, origin_model, origin_id, source_id, description, state, created_at, posted_at
FROM moves WHERE id=$1`, id).
		Scan(&m.ID, &m.CompanyID, &m.PeriodID, &m.JournalID, &m.Date, &m.Origin.Model, &m.Origin.ID, &m.SourceID, &m.Description, &m.State, &m.CreatedAt, &m.PostedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Move{}, ErrMoveNotFound
	}
	if err != nil {
		return Move{}, err
	}
	rows, err := r.tx.Query(ctx, lineSelect+` WHERE move_id=$1 ORDER BY id`, id)
	if err != nil {
		return Move{}, err
	}
	m.Lines, err = scanLines(rows)
	return m, err
}

func (r *txRepository) GetMoveLines(ctx context.Context, ids []int64) ([]MoveLine, error) {
	rows, err := r.tx.Query(ctx, lineSelect+` WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

func (r *txRepository) UpdateMoveState(ctx context.Context, id int64, state MoveState, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE moves SET state=$2, posted_at=$3 WHERE id=$1`, id, state, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMoveNotFound
	}
	return nil
}

func (r *txRepository) DeleteMove(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM moves WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMoveNotFound
	}
	return nil
}

func (r *txRepository) InsertReconciliation(ctx context.Context, lineIDs []int64) (int64, error) {
	var id int64
	if err := r.tx.QueryRow(ctx, `INSERT INTO reconciliations DEFAULT VALUES RETURNING id`).Scan(&id); err != nil {
		return 0, err
	}
	if _, err := r.tx.Exec(ctx, `UPDATE move_lines SET reconciliation_id=$1 WHERE id = ANY($2)`, id, lineIDs); err != nil {
		return 0, err
	}
	return id, nil
}

const lineSelect = `SELECT id, move_id, account_id, party_id, description, debit, credit, COALESCE(second_currency, ''), amount_second_currency, reconciliation_id FROM move_lines`

func scanLines(rows pgx.Rows) ([]MoveLine, error) {
	defer rows.Close()
	var lines []MoveLine
	for rows.Next() {
		var l MoveLine
		if err := rows.Scan(&l.ID, &l.MoveID, &l.AccountID, &l.PartyID, &l.Description, &l.Debit, &l.Credit, &l.SecondCurrency, &l.AmountSecondCurrency, &l.ReconciliationID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
