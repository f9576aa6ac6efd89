// Package seed loads cash/bank registry fixtures from YAML.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/cashbank/internal/cashbank"
)

// File is the YAML fixture layout.
type File struct {
	DocumentTypes []DocumentType `yaml:"document_types"`
	CashBanks     []CashBank     `yaml:"cash_banks"`
}

// DocumentType fixture.
type DocumentType struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Inactive    bool   `yaml:"inactive"`
}

// CashBank fixture with its receipt types.
type CashBank struct {
	Name          string        `yaml:"name"`
	Kind          string        `yaml:"kind"`
	JournalID     int64         `yaml:"journal_id"`
	AccountID     int64         `yaml:"account_id"`
	BankAccountID *int64        `yaml:"bank_account_id"`
	ReceiptTypes  []ReceiptType `yaml:"receipt_types"`
}

// ReceiptType fixture.
type ReceiptType struct {
	Name                string `yaml:"name"`
	Direction           string `yaml:"direction"`
	SequenceID          int64  `yaml:"sequence_id"`
	PartyRequired       bool   `yaml:"party_required"`
	BankAccount         bool   `yaml:"bank_account"`
	BankAccountRequired bool   `yaml:"bank_account_required"`
	Inactive            bool   `yaml:"inactive"`
}

// Registry is the subset of the cash/bank service the loader writes through.
type Registry interface {
	ListCashBanks(ctx context.Context) ([]cashbank.CashBank, error)
	CreateCashBank(ctx context.Context, cb cashbank.CashBank) (cashbank.CashBank, error)
	CreateReceiptType(ctx context.Context, rt cashbank.ReceiptType) (cashbank.ReceiptType, error)
	ListDocumentTypes(ctx context.Context) ([]cashbank.DocumentType, error)
	CreateDocumentType(ctx context.Context, dt cashbank.DocumentType) (cashbank.DocumentType, error)
}

// Report summarises what a load created.
type Report struct {
	DocumentTypes int
	CashBanks     int
	ReceiptTypes  int
	Skipped       []string
}

// Parse decodes a fixture file, rejecting unknown keys.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("seed: decode: %w", err)
	}
	for i, cb := range f.CashBanks {
		if cb.Name == "" {
			return File{}, fmt.Errorf("seed: cash_banks[%d]: name required", i)
		}
		switch cashbank.Kind(cb.Kind) {
		case cashbank.KindCash, cashbank.KindBank:
		default:
			return File{}, fmt.Errorf("seed: cash bank %s: unknown kind %q", cb.Name, cb.Kind)
		}
		for _, rt := range cb.ReceiptTypes {
			switch cashbank.Direction(rt.Direction) {
			case cashbank.DirectionIn, cashbank.DirectionOut:
			default:
				return File{}, fmt.Errorf("seed: receipt type %s/%s: unknown direction %q", cb.Name, rt.Name, rt.Direction)
			}
		}
	}
	return f, nil
}

// Load creates the fixtures that do not exist yet. Cash banks and document
// types are matched by name, case-insensitively.
func Load(ctx context.Context, reg Registry, f File) (Report, error) {
	var report Report

	existingTypes, err := reg.ListDocumentTypes(ctx)
	if err != nil {
		return report, err
	}
	typeNames := make(map[string]struct{}, len(existingTypes))
	for _, dt := range existingTypes {
		typeNames[strings.ToLower(dt.Name)] = struct{}{}
	}
	for _, dt := range f.DocumentTypes {
		if _, ok := typeNames[strings.ToLower(dt.Name)]; ok {
			report.Skipped = append(report.Skipped, "document type "+dt.Name)
			continue
		}
		if _, err := reg.CreateDocumentType(ctx, cashbank.DocumentType{
			Name:        dt.Name,
			Description: dt.Description,
			Active:      !dt.Inactive,
		}); err != nil {
			return report, fmt.Errorf("seed: document type %s: %w", dt.Name, err)
		}
		typeNames[strings.ToLower(dt.Name)] = struct{}{}
		report.DocumentTypes++
	}

	existingBanks, err := reg.ListCashBanks(ctx)
	if err != nil {
		return report, err
	}
	bankNames := make(map[string]struct{}, len(existingBanks))
	for _, cb := range existingBanks {
		bankNames[strings.ToLower(cb.Name)] = struct{}{}
	}
	for _, cb := range f.CashBanks {
		if _, ok := bankNames[strings.ToLower(cb.Name)]; ok {
			report.Skipped = append(report.Skipped, "cash bank "+cb.Name)
			continue
		}
		created, err := reg.CreateCashBank(ctx, cashbank.CashBank{
			Name:          cb.Name,
			Kind:          cashbank.Kind(cb.Kind),
			JournalID:     cb.JournalID,
			AccountID:     cb.AccountID,
			BankAccountID: cb.BankAccountID,
		})
		if err != nil {
			return report, fmt.Errorf("seed: cash bank %s: %w", cb.Name, err)
		}
		report.CashBanks++
		for _, rt := range cb.ReceiptTypes {
			if _, err := reg.CreateReceiptType(ctx, cashbank.ReceiptType{
				CashBankID:          created.ID,
				Name:                rt.Name,
				Direction:           cashbank.Direction(rt.Direction),
				SequenceID:          rt.SequenceID,
				PartyRequired:       rt.PartyRequired,
				BankAccount:         rt.BankAccount,
				BankAccountRequired: rt.BankAccountRequired,
				Active:              !rt.Inactive,
			}); err != nil {
				return report, fmt.Errorf("seed: receipt type %s/%s: %w", cb.Name, rt.Name, err)
			}
			report.ReceiptTypes++
		}
	}
	return report, nil
}
