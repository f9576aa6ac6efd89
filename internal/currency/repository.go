package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbank/internal/platform/db"
)

// PgRepository reads currency_rates.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// RateOn returns the latest rate dated on or before date.
func (r *PgRepository) RateOn(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT rate FROM currency_rates WHERE currency=$1 AND date <= $2 ORDER BY date DESC LIMIT 1`, currency, date).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: %s on %s", ErrRateNotFound, currency, date.Format(time.DateOnly))
	}
	return rate, err
}

// UpsertRate stores a rate for a date.
func (r *PgRepository) UpsertRate(ctx context.Context, currency string, date time.Time, rate decimal.Decimal) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO currency_rates (currency, date, rate) VALUES ($1,$2,$3)
ON CONFLICT (currency, date) DO UPDATE SET rate = EXCLUDED.rate`, currency, date, rate)
	return err
}
