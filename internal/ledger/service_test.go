package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbank/internal/shared"
)

type memoryLedger struct {
	periods  map[int64]Period
	accounts map[int64]Account
	moves    map[int64]*Move
	sources  map[uuid.UUID]int64
	nextID   int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		periods: map[int64]Period{
			1: {ID: 1, CompanyID: 1, Code: "2024-03", StartDate: day(2024, 3, 1), EndDate: day(2024, 3, 31), Status: PeriodStatusOpen},
			2: {ID: 2, CompanyID: 1, Code: "2024-02", StartDate: day(2024, 2, 1), EndDate: day(2024, 2, 29), Status: PeriodStatusClosed},
		},
		accounts: map[int64]Account{
			10: {ID: 10, CompanyID: 1, Code: "1100", Name: "Cash"},
			20: {ID: 20, CompanyID: 1, Code: "4000", Name: "Revenue"},
			30: {ID: 30, CompanyID: 1, Code: "1200", Name: "Receivable", PartyRequired: true, Reconcile: true},
			40: {ID: 40, CompanyID: 1, Code: "9999", Name: "Old", Closed: true},
		},
		moves:   map[int64]*Move{},
		sources: map[uuid.UUID]int64{},
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryLedger) FindPeriodByDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	for _, p := range m.periods {
		if p.CompanyID == companyID && p.Contains(date) {
			return p, nil
		}
	}
	return Period{}, ErrPeriodNotFound
}

func (m *memoryLedger) GetPeriod(ctx context.Context, id int64) (Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (m *memoryLedger) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryLedger) InsertMove(ctx context.Context, in MoveInput, sourceID uuid.UUID) (Move, error) {
	if _, ok := m.sources[sourceID]; ok {
		return Move{}, ErrSourceConflict
	}
	m.nextID++
	move := &Move{ID: m.nextID, CompanyID: in.CompanyID, PeriodID: in.PeriodID, JournalID: in.JournalID, Date: in.Date, Origin: in.Origin, SourceID: sourceID, State: MoveStateDraft}
	m.moves[move.ID] = move
	m.sources[sourceID] = move.ID
	return *move, nil
}

func (m *memoryLedger) InsertMoveLines(ctx context.Context, moveID int64, lines []MoveLine) ([]MoveLine, error) {
	move := m.moves[moveID]
	for _, line := range lines {
		m.nextID++
		line.ID = m.nextID
		line.MoveID = moveID
		move.Lines = append(move.Lines, line)
	}
	return move.Lines, nil
}

func (m *memoryLedger) GetMove(ctx context.Context, id int64) (Move, error) {
	move, ok := m.moves[id]
	if !ok {
		return Move{}, ErrMoveNotFound
	}
	return *move, nil
}

func (m *memoryLedger) GetMoveLines(ctx context.Context, ids []int64) ([]MoveLine, error) {
	var out []MoveLine
	for _, id := range ids {
		for _, move := range m.moves {
			for _, line := range move.Lines {
				if line.ID == id {
					out = append(out, line)
				}
			}
		}
	}
	return out, nil
}

func (m *memoryLedger) UpdateMoveState(ctx context.Context, id int64, state MoveState, at time.Time) error {
	move, ok := m.moves[id]
	if !ok {
		return ErrMoveNotFound
	}
	move.State = state
	move.PostedAt = &at
	return nil
}

func (m *memoryLedger) DeleteMove(ctx context.Context, id int64) error {
	move, ok := m.moves[id]
	if !ok {
		return ErrMoveNotFound
	}
	delete(m.sources, move.SourceID)
	delete(m.moves, id)
	return nil
}

func (m *memoryLedger) InsertReconciliation(ctx context.Context, lineIDs []int64) (int64, error) {
	m.nextID++
	rec := m.nextID
	for _, move := range m.moves {
		for i := range move.Lines {
			for _, id := range lineIDs {
				if move.Lines[i].ID == id {
					move.Lines[i].ReconciliationID = &rec
				}
			}
		}
	}
	return rec, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
	err  error
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func receiptMove(amount string) MoveInput {
	value := decimal.RequireFromString(amount)
	return MoveInput{
		CompanyID: 1,
		PeriodID:  1,
		JournalID: 1,
		Date:      day(2024, 3, 5),
		Origin:    Origin{Model: "cash_bank.receipt", ID: 7},
		Lines: []MoveLine{
			{AccountID: 10, Debit: value},
			{AccountID: 20, Credit: value},
		},
	}
}

func TestCreateMoveStoresDraftWithDeterministicSource(t *testing.T) {
	repo := newMemoryLedger()
	audit := &recordingAudit{}
	svc := NewService(repo, audit)

	move, err := svc.CreateMove(context.Background(), receiptMove("100.00"))
	require.NoError(t, err)
	require.Equal(t, MoveStateDraft, move.State)
	require.Len(t, move.Lines, 2)
	require.Equal(t, Origin{Model: "cash_bank.receipt", ID: 7}.SourceID(), move.SourceID)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "move.create", audit.logs[0].Action)

	_, err = svc.CreateMove(context.Background(), receiptMove("100.00"))
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
}

func TestAuditFailureFailsTheOperation(t *testing.T) {
	repo := newMemoryLedger()
	audit := &recordingAudit{}
	svc := NewService(repo, audit)
	move, err := svc.CreateMove(context.Background(), receiptMove("100.00"))
	require.NoError(t, err)

	audit.err = errors.New("audit store down")
	require.ErrorContains(t, svc.PostMoves(context.Background(), []int64{move.ID}), "audit store down")
	require.Len(t, audit.logs, 1)
}

func TestCreateMoveRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemoryLedger(), nil)

	unbalanced := receiptMove("100.00")
	unbalanced.Lines[1].Credit = decimal.RequireFromString("99.99")
	_, err := svc.CreateMove(context.Background(), unbalanced)
	require.ErrorIs(t, err, ErrUnbalanced)

	closedPeriod := receiptMove("10")
	closedPeriod.PeriodID = 2
	closedPeriod.Date = day(2024, 2, 10)
	_, err = svc.CreateMove(context.Background(), closedPeriod)
	require.ErrorIs(t, err, ErrPeriodClosed)

	outside := receiptMove("10")
	outside.Date = day(2024, 4, 1)
	_, err = svc.CreateMove(context.Background(), outside)
	require.Error(t, err)

	closedAccount := receiptMove("10")
	closedAccount.Lines[1].AccountID = 40
	_, err = svc.CreateMove(context.Background(), closedAccount)
	require.ErrorIs(t, err, ErrAccountClosed)

	_, err = svc.CreateMove(context.Background(), MoveInput{PeriodID: 1, JournalID: 1, Origin: Origin{Model: "x", ID: 1}})
	require.ErrorIs(t, err, ErrNoLines)
}

func TestFindPeriodRequiresOpenPeriod(t *testing.T) {
	svc := NewService(newMemoryLedger(), nil)

	period, err := svc.FindPeriod(context.Background(), 1, day(2024, 3, 15))
	require.NoError(t, err)
	require.Equal(t, int64(1), period.ID)

	_, err = svc.FindPeriod(context.Background(), 1, day(2024, 2, 15))
	require.ErrorIs(t, err, ErrPeriodClosed)

	_, err = svc.FindPeriod(context.Background(), 1, day(2025, 1, 1))
	require.ErrorIs(t, err, ErrPeriodNotFound)
}

func TestPostAndDeleteMoves(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return day(2024, 3, 6) })

	first, err := svc.CreateMove(context.Background(), receiptMove("50"))
	require.NoError(t, err)
	secondInput := receiptMove("25")
	secondInput.Origin.ID = 8
	second, err := svc.CreateMove(context.Background(), secondInput)
	require.NoError(t, err)

	require.NoError(t, svc.PostMoves(context.Background(), []int64{first.ID}))
	require.Equal(t, MoveStatePosted, repo.moves[first.ID].State)

	err = svc.DeleteMoves(context.Background(), []int64{first.ID})
	require.True(t, errors.Is(err, ErrMovePosted))

	require.NoError(t, svc.DeleteMoves(context.Background(), []int64{second.ID}))
	_, err = svc.GetMove(context.Background(), second.ID)
	require.ErrorIs(t, err, ErrMoveNotFound)
}

func TestReconcileRequiresZeroBalance(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, nil)

	move, err := svc.CreateMove(context.Background(), receiptMove("80"))
	require.NoError(t, err)

	_, err = svc.Reconcile(context.Background(), []int64{move.Lines[0].ID})
	require.ErrorIs(t, err, ErrReconcileUnbalanced)

	id, err := svc.Reconcile(context.Background(), []int64{move.Lines[0].ID, move.Lines[1].ID})
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = svc.Reconcile(context.Background(), []int64{move.Lines[0].ID, move.Lines[1].ID})
	require.ErrorIs(t, err, ErrAlreadyReconciled)
}
