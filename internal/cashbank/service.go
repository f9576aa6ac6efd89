package cashbank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbank/internal/invoice"
	"github.com/odyssey-erp/cashbank/internal/ledger"
	"github.com/odyssey-erp/cashbank/internal/shared"
)

// LedgerPort is the journal collaborator.
type LedgerPort interface {
	FindPeriod(ctx context.Context, companyID int64, date time.Time) (ledger.Period, error)
	GetAccount(ctx context.Context, id int64) (ledger.Account, error)
	CreateMove(ctx context.Context, input ledger.MoveInput) (ledger.Move, error)
	PostMoves(ctx context.Context, ids []int64) error
	DeleteMoves(ctx context.Context, ids []int64) error
	Reconcile(ctx context.Context, lineIDs []int64) (int64, error)
}

// SequencePort hands out permanent numbers.
type SequencePort interface {
	Next(ctx context.Context, id int64) (string, error)
}

// CurrencyPort converts amounts between currencies.
type CurrencyPort interface {
	Convert(ctx context.Context, from, to string, amount decimal.Decimal, date time.Time) (decimal.Decimal, error)
	Digits(currency string) int32
}

// InvoicePort exposes the settlement primitives of invoices.
type InvoicePort interface {
	Get(ctx context.Context, id int64) (invoice.Invoice, error)
	ReconcileLinesForAmount(ctx context.Context, id int64, amount decimal.Decimal) ([]int64, decimal.Decimal, error)
	AddPaymentLine(ctx context.Context, id, moveLineID int64, amount decimal.Decimal) error
}

// AuditPort records events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TransitionObserver counts workflow transitions.
type TransitionObserver interface {
	ObserveTransition(entity, transition, outcome string)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Deps groups the collaborators of the service.
type Deps struct {
	Repo      RepositoryPort
	Ledger    LedgerPort
	Sequences SequencePort
	Currency  CurrencyPort
	Invoices  InvoicePort
	Audit     AuditPort
	Observer  TransitionObserver
}

// Service orchestrates receipts, document custody, transfers and convertions.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	sequences SequencePort
	currency  CurrencyPort
	invoices  InvoicePort
	audit     AuditPort
	observer  TransitionObserver
	settings  Settings
	policy    Policy
	now       func() time.Time
}

// NewService constructs the cash/bank service.
func NewService(deps Deps, settings Settings) (*Service, error) {
	if deps.Repo == nil || deps.Ledger == nil || deps.Sequences == nil || deps.Currency == nil || deps.Invoices == nil {
		return nil, errors.New("cashbank: missing dependency")
	}
	if settings.Company.ID == 0 || settings.Company.Currency == "" {
		return nil, errors.New("cashbank: company context required")
	}
	policy, err := PolicyFor(settings.Policy)
	if err != nil {
		return nil, err
	}
	if settings.Company.Digits == 0 {
		settings.Company.Digits = 2
	}
	return &Service{
		repo:      deps.Repo,
		ledger:    deps.Ledger,
		sequences: deps.Sequences,
		currency:  deps.Currency,
		invoices:  deps.Invoices,
		audit:     deps.Audit,
		observer:  deps.Observer,
		settings:  settings,
		policy:    policy,
		now:       time.Now,
	}, nil
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Settings returns the configuration the service runs with.
func (s *Service) Settings() Settings {
	return s.settings
}

// txn carries the state of one database transaction.
type txn struct {
	*Service
	tx     TxRepository
	events []shared.AuditLog
}

func (t *txn) record(entity string, id int64, action string, meta map[string]any) {
	t.events = append(t.events, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       t.now(),
	})
}

// run executes fn in one transaction. Audit events are written before commit
// so a failed write rolls the whole batch back.
func (s *Service) run(ctx context.Context, fn func(context.Context, *txn) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t := &txn{Service: s, tx: tx}
		if err := fn(ctx, t); err != nil {
			return err
		}
		if s.audit == nil {
			return nil
		}
		for _, event := range t.events {
			if err := s.audit.Record(ctx, event); err != nil {
				return fmt.Errorf("cashbank: audit %s: %w", event.Action, err)
			}
		}
		return nil
	})
}

// transition runs a batch transition and reports its outcome.
func (s *Service) transition(ctx context.Context, entity, name string, fn func(context.Context, *txn) error) error {
	err := s.run(ctx, fn)
	if s.observer != nil {
		outcome := "ok"
		if err != nil {
			outcome = errorKind(err)
		}
		s.observer.ObserveTransition(entity, name, outcome)
	}
	return err
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStateGuard):
		return "state_guard"
	case errors.Is(err, ErrBalance):
		return "balance"
	case errors.Is(err, ErrCustody):
		return "custody"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	default:
		return "error"
	}
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(s.settings.Company.Digits)
}
