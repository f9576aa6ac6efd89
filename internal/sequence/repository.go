package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cashbank/internal/platform/db"
)

// PgRepository stores sequences in Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Advance bumps next_number in place so concurrent callers never share a number.
func (r *PgRepository) Advance(ctx context.Context, id int64) (Sequence, int64, error) {
	var seq Sequence
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `UPDATE sequences SET next_number = next_number + step WHERE id=$1
RETURNING id, name, prefix, suffix, padding, step, next_number`, id).
		Scan(&seq.ID, &seq.Name, &seq.Prefix, &seq.Suffix, &seq.Padding, &seq.Step, &seq.NextNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sequence{}, 0, ErrSequenceNotFound
	}
	if err != nil {
		return Sequence{}, 0, err
	}
	return seq, seq.NextNumber - int64(seq.Step), nil
}

// Create inserts a sequence.
func (r *PgRepository) Create(ctx context.Context, seq Sequence) (Sequence, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO sequences (name, prefix, suffix, padding, step, next_number)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, seq.Name, seq.Prefix, seq.Suffix, seq.Padding, seq.Step, seq.NextNumber).Scan(&seq.ID)
	return seq, err
}
