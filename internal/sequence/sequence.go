// Package sequence hands out formatted, monotonic document numbers.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSequenceNotFound indicates a missing sequence.
var ErrSequenceNotFound = errors.New("sequence: not found")

// Sequence describes how numbers are rendered.
// Prefix and suffix may carry ${year}, ${month} and ${day} placeholders.
type Sequence struct {
	ID         int64
	Name       string
	Prefix     string
	Suffix     string
	Padding    int
	Step       int
	NextNumber int64
}

// Format renders number n for the given date.
func (s Sequence) Format(n int64, date time.Time) string {
	digits := fmt.Sprintf("%d", n)
	if s.Padding > len(digits) {
		digits = strings.Repeat("0", s.Padding-len(digits)) + digits
	}
	return expand(s.Prefix, date) + digits + expand(s.Suffix, date)
}

func expand(pattern string, date time.Time) string {
	if !strings.Contains(pattern, "${") {
		return pattern
	}
	return strings.NewReplacer(
		"${year}", date.Format("2006"),
		"${month}", date.Format("01"),
		"${day}", date.Format("02"),
	).Replace(pattern)
}

// Repository reserves numbers.
type Repository interface {
	// Advance returns the sequence and the number reserved for the caller.
	Advance(ctx context.Context, id int64) (Sequence, int64, error)
	Create(ctx context.Context, seq Sequence) (Sequence, error)
}

// Service issues numbers.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the sequence service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Next reserves and formats the next number of sequence id.
func (s *Service) Next(ctx context.Context, id int64) (string, error) {
	if id == 0 {
		return "", errors.New("sequence: id required")
	}
	seq, n, err := s.repo.Advance(ctx, id)
	if err != nil {
		return "", err
	}
	return seq.Format(n, s.now()), nil
}

// Create registers a new sequence.
func (s *Service) Create(ctx context.Context, seq Sequence) (Sequence, error) {
	if strings.TrimSpace(seq.Name) == "" {
		return Sequence{}, errors.New("sequence: name required")
	}
	if seq.Step <= 0 {
		seq.Step = 1
	}
	if seq.NextNumber <= 0 {
		seq.NextNumber = 1
	}
	return s.repo.Create(ctx, seq)
}
