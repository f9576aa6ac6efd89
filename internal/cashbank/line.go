package cashbank

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbank/internal/invoice"
	"github.com/odyssey-erp/cashbank/internal/ledger"
)

func validateLine(line Line) error {
	if line.Amount.IsZero() {
		return ErrLineAmountZero
	}
	if line.AccountID == 0 {
		return ErrLineAccountRequired
	}
	return nil
}

// side splits a signed amount into debit and credit.
func side(amount decimal.Decimal, debitWhenPositive bool) (decimal.Decimal, decimal.Decimal) {
	if amount.IsPositive() == debitWhenPositive {
		return amount.Abs(), decimal.Zero
	}
	return decimal.Zero, amount.Abs()
}

func joinDescription(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " / ")
}

// toCompany converts a receipt amount at the receipt date.
func (t *txn) toCompany(ctx context.Context, r Receipt, amount decimal.Decimal) (decimal.Decimal, error) {
	converted, err := t.currency.Convert(ctx, r.Currency, t.settings.Company.Currency, amount, r.Date)
	if err != nil {
		return decimal.Zero, err
	}
	return t.round(converted), nil
}

func (t *txn) secondCurrency(r Receipt, amount decimal.Decimal, debit bool) (string, *decimal.Decimal) {
	if r.Currency == t.settings.Company.Currency {
		return "", nil
	}
	signed := amount.Abs()
	if !debit {
		signed = signed.Neg()
	}
	return r.Currency, &signed
}

func (t *txn) partyFor(ctx context.Context, accountID int64, party *int64) (*int64, error) {
	if party == nil {
		return nil, nil
	}
	account, err := t.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.PartyRequired {
		return nil, nil
	}
	return party, nil
}

// cashMoveLine is the cash/bank side: in receipts debit the account for positive totals.
func (t *txn) cashMoveLine(ctx context.Context, r Receipt, typ ReceiptType, cb CashBank) (ledger.MoveLine, error) {
	amount, err := t.toCompany(ctx, r, r.Total())
	if err != nil {
		return ledger.MoveLine{}, err
	}
	debit, credit := side(amount, typ.Direction == DirectionIn)
	currency, second := t.secondCurrency(r, r.Total(), debit.IsPositive())
	party, err := t.partyFor(ctx, cb.AccountID, r.PartyID)
	if err != nil {
		return ledger.MoveLine{}, err
	}
	return ledger.MoveLine{
		AccountID:            cb.AccountID,
		PartyID:              party,
		Description:          joinDescription(r.Description, r.Reference),
		Debit:                debit,
		Credit:               credit,
		SecondCurrency:       currency,
		AmountSecondCurrency: second,
	}, nil
}

// lineMoveLine mirrors the cash side: in receipts credit positive line amounts.
func (t *txn) lineMoveLine(ctx context.Context, r Receipt, typ ReceiptType, line Line) (ledger.MoveLine, error) {
	amount, err := t.toCompany(ctx, r, line.Amount)
	if err != nil {
		return ledger.MoveLine{}, err
	}
	debit, credit := side(amount, typ.Direction == DirectionOut)
	currency, second := t.secondCurrency(r, line.Amount, debit.IsPositive())
	party, err := t.partyFor(ctx, line.AccountID, line.PartyID)
	if err != nil {
		return ledger.MoveLine{}, err
	}
	return ledger.MoveLine{
		AccountID:            line.AccountID,
		PartyID:              party,
		Description:          line.Description,
		Debit:                debit,
		Credit:               credit,
		SecondCurrency:       currency,
		AmountSecondCurrency: second,
	}, nil
}

func (t *txn) createMove(ctx context.Context, r Receipt, typ ReceiptType, cb CashBank) (ledger.Move, error) {
	period, err := t.ledger.FindPeriod(ctx, t.settings.Company.ID, r.Date)
	if err != nil {
		return ledger.Move{}, err
	}
	cashLine, err := t.cashMoveLine(ctx, r, typ, cb)
	if err != nil {
		return ledger.Move{}, err
	}
	lines := []ledger.MoveLine{cashLine}
	for _, line := range r.Lines {
		ml, err := t.lineMoveLine(ctx, r, typ, line)
		if err != nil {
			return ledger.Move{}, err
		}
		lines = append(lines, ml)
	}
	return t.ledger.CreateMove(ctx, ledger.MoveInput{
		CompanyID:   t.settings.Company.ID,
		PeriodID:    period.ID,
		JournalID:   cb.JournalID,
		Date:        r.Date,
		Origin:      ledger.Origin{Model: EntityReceipt, ID: r.ID},
		Description: r.Description,
		Lines:       lines,
	})
}

// checkInvoice ensures a line fits its invoice and does not overpay it.
func (t *txn) checkInvoice(ctx context.Context, r Receipt, line Line) (invoice.Invoice, error) {
	inv, err := t.invoices.Get(ctx, *line.InvoiceID)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if inv.State != invoice.StatePosted {
		return invoice.Invoice{}, fmt.Errorf("%w (%s)", ErrInvoiceNotPosted, inv.Number)
	}
	if inv.CompanyID != t.settings.Company.ID || inv.AccountID != line.AccountID {
		return invoice.Invoice{}, fmt.Errorf("%w (%s)", ErrInvoiceMismatch, inv.Number)
	}
	if line.PartyID != nil && *line.PartyID != inv.PartyID {
		return invoice.Invoice{}, fmt.Errorf("%w (%s)", ErrInvoiceMismatch, inv.Number)
	}
	toPay, err := t.currency.Convert(ctx, inv.Currency, r.Currency, inv.AmountToPay(), inv.CurrencyDate)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if line.Amount.Abs().GreaterThan(toPay.Abs()) {
		digits := t.currency.Digits(r.Currency)
		lang := t.settings.Company.Language
		return invoice.Invoice{}, &InvoiceAmountError{
			InvoiceID: inv.ID,
			Number:    inv.Number,
			Amount:    FormatAmount(lang, line.Amount, digits),
			ToPay:     FormatAmount(lang, toPay, digits),
		}
	}
	return inv, nil
}

// reconcileLine registers the produced move line as an invoice payment and
// reconciles once the invoice is settled.
func (t *txn) reconcileLine(ctx context.Context, r Receipt, line Line) error {
	inv, err := t.checkInvoice(ctx, r, line)
	if err != nil {
		return err
	}
	if line.MoveLineID == nil {
		return fmt.Errorf("cashbank: line %d has no move line", line.ID)
	}
	inCompany, err := t.currency.Convert(ctx, r.Currency, t.settings.Company.Currency, line.Amount, inv.CurrencyDate)
	if err != nil {
		return err
	}
	amount := t.round(inCompany).Abs()
	if inv.Kind == invoice.KindIn {
		amount = amount.Neg()
	}
	lineIDs, remainder, err := t.invoices.ReconcileLinesForAmount(ctx, inv.ID, amount)
	if err != nil {
		return err
	}
	payment, err := t.currency.Convert(ctx, r.Currency, inv.Currency, line.Amount, inv.CurrencyDate)
	if err != nil {
		return err
	}
	if err := t.invoices.AddPaymentLine(ctx, inv.ID, *line.MoveLineID, payment); err != nil {
		return err
	}
	if remainder.IsZero() {
		if _, err := t.ledger.Reconcile(ctx, append(lineIDs, *line.MoveLineID)); err != nil {
			return err
		}
	}
	return nil
}
