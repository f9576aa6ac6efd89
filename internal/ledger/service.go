package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbank/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service creates, posts, deletes and reconciles moves.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// FindPeriod resolves the open period of a company covering date.
func (s *Service) FindPeriod(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.FindPeriodByDate(ctx, companyID, date)
		if err != nil {
			return err
		}
		if p.Status != PeriodStatusOpen {
			return fmt.Errorf("%w: %s", ErrPeriodClosed, p.Code)
		}
		period = p
		return nil
	})
	return period, err
}

// GetAccount loads an account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	return account, err
}

// CreateMove validates and stores a draft move with its lines.
func (s *Service) CreateMove(ctx context.Context, input MoveInput) (Move, error) {
	if err := input.Validate(); err != nil {
		return Move{}, err
	}
	var move Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriod(ctx, input.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return ErrPeriodClosed
		}
		if !period.Contains(input.Date) {
			return fmt.Errorf("ledger: date %s outside period %s", input.Date.Format(time.DateOnly), period.Code)
		}
		for _, line := range input.Lines {
			account, err := tx.GetAccount(ctx, line.AccountID)
			if err != nil {
				return err
			}
			if account.Closed {
				return fmt.Errorf("%w: %s", ErrAccountClosed, account.Code)
			}
		}
		inserted, err := tx.InsertMove(ctx, input, input.Origin.SourceID())
		if err != nil {
			if errors.Is(err, ErrSourceConflict) {
				return ErrSourceAlreadyLinked
			}
			return err
		}
		lines, err := tx.InsertMoveLines(ctx, inserted.ID, input.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		move = inserted
		return s.record(ctx, "move.create", move.ID, map[string]any{
			"origin": move.Origin.String(),
			"lines":  len(move.Lines),
		})
	})
	if err != nil {
		return Move{}, err
	}
	return move, nil
}

// GetMove loads a move with its lines.
func (s *Service) GetMove(ctx context.Context, id int64) (Move, error) {
	var move Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMove(ctx, id)
		if err != nil {
			return err
		}
		move = m
		return nil
	})
	return move, err
}

// PostMoves marks draft moves as posted. Already posted moves are skipped.
func (s *Service) PostMoves(ctx context.Context, ids []int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range ids {
			move, err := tx.GetMove(ctx, id)
			if err != nil {
				return err
			}
			if move.State == MoveStatePosted {
				continue
			}
			if err := tx.UpdateMoveState(ctx, id, MoveStatePosted, s.now()); err != nil {
				return err
			}
			if err := s.record(ctx, "move.post", id, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteMoves removes draft moves and their lines.
func (s *Service) DeleteMoves(ctx context.Context, ids []int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range ids {
			move, err := tx.GetMove(ctx, id)
			if err != nil {
				return err
			}
			if move.State == MoveStatePosted {
				return fmt.Errorf("%w: move %d", ErrMovePosted, id)
			}
			if err := tx.DeleteMove(ctx, id); err != nil {
				return err
			}
			if err := s.record(ctx, "move.delete", id, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reconcile groups lines whose balances net to zero.
func (s *Service) Reconcile(ctx context.Context, lineIDs []int64) (int64, error) {
	if len(lineIDs) == 0 {
		return 0, errors.New("ledger: reconcile requires lines")
	}
	var reconciliationID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, err := tx.GetMoveLines(ctx, lineIDs)
		if err != nil {
			return err
		}
		if len(lines) != len(lineIDs) {
			return fmt.Errorf("ledger: reconcile found %d of %d lines", len(lines), len(lineIDs))
		}
		total := decimal.Zero
		for _, line := range lines {
			if line.ReconciliationID != nil {
				return fmt.Errorf("%w: line %d", ErrAlreadyReconciled, line.ID)
			}
			total = total.Add(line.Balance())
		}
		if !total.IsZero() {
			return ErrReconcileUnbalanced
		}
		id, err := tx.InsertReconciliation(ctx, lineIDs)
		if err != nil {
			return err
		}
		reconciliationID = id
		return s.record(ctx, "move_line.reconcile", reconciliationID, map[string]any{"lines": lineIDs})
	})
	if err != nil {
		return 0, err
	}
	return reconciliationID, nil
}

// record writes an audit entry inside the caller's transaction.
func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "move",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
