package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// RepositoryPort defines data access methods for invoices.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Invoice, error)
	LinesToPay(ctx context.Context, id int64) ([]OpenLine, error)
	PaymentLines(ctx context.Context, id int64) ([]OpenLine, error)
	AddPaymentLine(ctx context.Context, id, moveLineID int64, amount decimal.Decimal) error
	UpdateState(ctx context.Context, id int64, state State) error
}

// Service exposes the settlement primitives used by payment flows.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get loads an invoice with its paid amount.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	if id == 0 {
		return Invoice{}, errors.New("invoice: id required")
	}
	return s.repo.Get(ctx, id)
}

// ReconcileLinesForAmount returns the open lines settling the invoice and the
// remainder left once amount (company currency, signed like the invoice lines) is applied.
func (s *Service) ReconcileLinesForAmount(ctx context.Context, id int64, amount decimal.Decimal) ([]int64, decimal.Decimal, error) {
	toPay, err := s.repo.LinesToPay(ctx, id)
	if err != nil {
		return nil, decimal.Zero, err
	}
	payments, err := s.repo.PaymentLines(ctx, id)
	if err != nil {
		return nil, decimal.Zero, err
	}
	ids := make([]int64, 0, len(toPay)+len(payments))
	total := decimal.Zero
	for _, group := range [][]OpenLine{toPay, payments} {
		for _, line := range group {
			ids = append(ids, line.MoveLineID)
			total = total.Add(line.Balance)
		}
	}
	return ids, total.Sub(amount), nil
}

// AddPaymentLine registers a move line as payment of amount (invoice currency).
// The invoice turns paid once nothing is left to pay.
func (s *Service) AddPaymentLine(ctx context.Context, id, moveLineID int64, amount decimal.Decimal) error {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if inv.State != StatePosted {
		return fmt.Errorf("%w: %s", ErrInvoiceNotPosted, inv.Number)
	}
	amount = amount.Abs()
	if amount.GreaterThan(inv.AmountToPay()) {
		return fmt.Errorf("%w: %s", ErrPaymentExceedsBalance, inv.Number)
	}
	if err := s.repo.AddPaymentLine(ctx, id, moveLineID, amount); err != nil {
		return err
	}
	if !inv.AmountToPay().Sub(amount).IsPositive() {
		return s.repo.UpdateState(ctx, id, StatePaid)
	}
	return nil
}
