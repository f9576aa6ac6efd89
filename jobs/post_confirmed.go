package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cashbank/internal/cashbank"
	jobmetrics "github.com/odyssey-erp/cashbank/internal/jobs"
)

const (
	// TaskPostConfirmed posts confirmed receipts up to a date.
	TaskPostConfirmed = "cashbank:post-confirmed"
)

// PostConfirmedPayload scopes the posting run. CashBankID "all" covers every
// cash bank; an empty Until means today.
type PostConfirmedPayload struct {
	CashBankID string `json:"cash_bank_id"`
	Until      string `json:"until"`
}

// ReceiptPoster describes the cash/bank operations the job needs.
type ReceiptPoster interface {
	ListCashBanks(ctx context.Context) ([]cashbank.CashBank, error)
	PostConfirmed(ctx context.Context, cashBankID int64, until time.Time) (int, error)
}

// PostConfirmedJob posts the confirmed receipts of one or every cash bank.
type PostConfirmedJob struct {
	Service ReceiptPoster
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPostConfirmedJob constructs the job handler.
func NewPostConfirmedJob(service ReceiptPoster, logger *slog.Logger, metrics *jobmetrics.Metrics) *PostConfirmedJob {
	return &PostConfirmedJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewPostConfirmedTask creates an Asynq task for posting confirmed receipts.
func NewPostConfirmedTask(cashBankID, until string) (*asynq.Task, error) {
	if cashBankID == "" {
		cashBankID = "all"
	}
	body, err := json.Marshal(PostConfirmedPayload{CashBankID: cashBankID, Until: until})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPostConfirmed, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the posting run. Each cash bank posts in its own transaction.
func (j *PostConfirmedJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("post confirmed: dependencies not configured")
	}
	var payload PostConfirmedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPostConfirmed)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	until, err := j.resolveUntil(payload.Until)
	if err != nil {
		resultErr = err
		j.log().Error("resolve until", slog.String("until", payload.Until), slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	ids, err := j.resolveCashBanks(ctx, payload.CashBankID)
	if err != nil {
		resultErr = err
		j.log().Error("resolve cash banks", slog.String("cash_bank", payload.CashBankID), slog.Any("error", err))
		return resultErr
	}

	start := j.now()
	total := 0
	for _, id := range ids {
		posted, err := j.Service.PostConfirmed(ctx, id, until)
		if err != nil {
			resultErr = err
			j.log().Error("post confirmed receipts", slog.Int64("cash_bank_id", id), slog.Any("error", err))
			return resultErr
		}
		j.metrics().AddPosted(strconv.FormatInt(id, 10), posted)
		total += posted
	}
	j.log().Info("posted confirmed receipts",
		slog.String("until", until.Format(time.DateOnly)),
		slog.Int("cash_banks", len(ids)),
		slog.Int("receipts", total),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *PostConfirmedJob) resolveUntil(raw string) (time.Time, error) {
	if raw == "" {
		now := j.now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(time.DateOnly, raw)
}

func (j *PostConfirmedJob) resolveCashBanks(ctx context.Context, raw string) ([]int64, error) {
	if raw == "" || raw == "all" {
		banks, err := j.Service.ListCashBanks(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(banks))
		for _, cb := range banks {
			ids = append(ids, cb.ID)
		}
		return ids, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cash bank id %s", raw)
	}
	if id <= 0 {
		return nil, fmt.Errorf("cash bank id must be positive")
	}
	return []int64{id}, nil
}

func (j *PostConfirmedJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PostConfirmedJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPostConfirmed))
	}
	return slog.Default().With(slog.String("job", TaskPostConfirmed))
}

func (j *PostConfirmedJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *PostConfirmedJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
