package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/cashbank/internal/cashbank"
	"github.com/odyssey-erp/cashbank/internal/currency"
	"github.com/odyssey-erp/cashbank/internal/invoice"
	"github.com/odyssey-erp/cashbank/internal/ledger"
	"github.com/odyssey-erp/cashbank/internal/sequence"
	"github.com/odyssey-erp/cashbank/internal/shared"
)

// NewCashBankService assembles the cash/bank service over Postgres. redisClient
// may be nil to disable the rate cache.
func NewCashBankService(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, observer cashbank.TransitionObserver) (*cashbank.Service, error) {
	settings := cfg.Settings()
	auditLogger := shared.NewAuditLogger(pool)

	rates := currency.NewService(currency.NewRepository(pool), redisClient, cfg.RateCacheTTL, settings.Company.Currency).
		WithDigits(settings.Company.Currency, settings.Company.Digits)

	return cashbank.NewService(cashbank.Deps{
		Repo:      cashbank.NewRepository(pool),
		Ledger:    ledger.NewService(ledger.NewRepository(pool), auditLogger),
		Sequences: sequence.NewService(sequence.NewRepository(pool)),
		Currency:  rates,
		Invoices:  invoice.NewService(invoice.NewRepository(pool)),
		Audit:     auditLogger,
		Observer:  observer,
	}, settings)
}
