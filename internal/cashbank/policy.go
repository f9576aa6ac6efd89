package cashbank

import (
	"fmt"
	"time"
)

// Policy names.
const (
	PolicyCanonical = "canonical"
	PolicyBalanced  = "balanced"
	PolicyTotal     = "total"
)

// Stage is the transition a receipt is validated for.
type Stage string

// Validation stages.
const (
	StageConfirm Stage = "confirm"
	StagePost    Stage = "post"
)

// ValidationContext is what a rule sees when a receipt is confirmed or posted.
type ValidationContext struct {
	Stage         Stage
	Receipt       Receipt
	Type          ReceiptType
	Today         time.Time
	AllowedMonths int
}

// Rule checks one aspect of a receipt.
type Rule func(ValidationContext) error

// Policy validates a receipt before it leaves draft.
type Policy interface {
	Name() string
	Validate(vc ValidationContext) error
}

// RuleSet applies its rules in order and stops on the first failure.
type RuleSet struct {
	name  string
	rules []Rule
}

// Name returns the configured key of the set.
func (s RuleSet) Name() string { return s.name }

// Validate runs the rules.
func (s RuleSet) Validate(vc ValidationContext) error {
	for _, rule := range s.rules {
		if err := rule(vc); err != nil {
			return err
		}
	}
	return nil
}

// PolicyFor resolves a policy by name. An empty name selects canonical.
func PolicyFor(name string) (Policy, error) {
	switch name {
	case "", PolicyCanonical:
		return RuleSet{name: PolicyCanonical, rules: []Rule{
			requireLines, requireZeroDiff, requireNonNegativeTotal, requireNonNegativeCash,
			requirePositiveDocuments, requireParty, requireBankAccount, requireAllowedMonth,
		}}, nil
	case PolicyBalanced:
		return RuleSet{name: PolicyBalanced, rules: []Rule{requireLines, requireZeroDiff, requireParty}}, nil
	case PolicyTotal:
		return RuleSet{name: PolicyTotal, rules: []Rule{requirePositiveTotal, requireParty}}, nil
	default:
		return nil, fmt.Errorf("cashbank: unknown policy %q", name)
	}
}

func requireLines(vc ValidationContext) error {
	if len(vc.Receipt.Lines) == 0 {
		return ErrNoLines
	}
	return nil
}

func requireZeroDiff(vc ValidationContext) error {
	if !vc.Receipt.Diff().IsZero() {
		return fmt.Errorf("%w (diff %s)", ErrDiffNotZero, vc.Receipt.Diff().String())
	}
	return nil
}

func requireNonNegativeTotal(vc ValidationContext) error {
	if vc.Receipt.Total().IsNegative() {
		return ErrNegativeTotal
	}
	return nil
}

func requirePositiveTotal(vc ValidationContext) error {
	if !vc.Receipt.Total().IsPositive() {
		return ErrTotalNotPositive
	}
	return nil
}

func requireNonNegativeCash(vc ValidationContext) error {
	if vc.Receipt.Cash.IsNegative() {
		return ErrNegativeCash
	}
	return nil
}

func requirePositiveDocuments(vc ValidationContext) error {
	for _, doc := range vc.Receipt.Documents {
		if !doc.Amount.IsPositive() {
			return fmt.Errorf("%w (document %d)", ErrDocumentAmount, doc.ID)
		}
	}
	return nil
}

func requireParty(vc ValidationContext) error {
	if vc.Type.PartyRequired && vc.Receipt.PartyID == nil {
		return ErrPartyRequired
	}
	return nil
}

func requireBankAccount(vc ValidationContext) error {
	if vc.Type.BankAccount && vc.Type.BankAccountRequired && vc.Receipt.BankAccountID == nil {
		return ErrBankAccountRequired
	}
	return nil
}

// requireAllowedMonth accepts dates in the current month or the months-1 before it.
// Posting a confirmed receipt does not re-check its date.
func requireAllowedMonth(vc ValidationContext) error {
	if vc.AllowedMonths <= 0 || vc.Stage == StagePost {
		return nil
	}
	date := monthIndex(vc.Receipt.Date)
	today := monthIndex(vc.Today)
	if date > today || today-date >= vc.AllowedMonths {
		return fmt.Errorf("%w (%s)", ErrDateNotAllowed, vc.Receipt.Date.Format("2006-01"))
	}
	return nil
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}
