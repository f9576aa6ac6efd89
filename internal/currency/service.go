// Package currency converts amounts between currencies using dated rates.
package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ErrRateNotFound indicates no rate is effective on the requested date.
var ErrRateNotFound = errors.New("currency: no rate found")

// Repository looks up rates expressed against the company currency.
type Repository interface {
	// RateOn returns the latest rate dated on or before date.
	RateOn(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error)
}

// Service converts amounts, caching rates in Redis.
type Service struct {
	repo   Repository
	client *redis.Client
	ttl    time.Duration
	base   string
	digits map[string]int32
	group  singleflight.Group
}

// NewService constructs the conversion service. client may be nil to disable caching.
func NewService(repo Repository, client *redis.Client, ttl time.Duration, base string) *Service {
	return &Service{
		repo:   repo,
		client: client,
		ttl:    ttl,
		base:   strings.ToUpper(base),
		digits: map[string]int32{},
	}
}

// WithDigits sets the rounding precision of a currency. Unknown currencies round to 2 places.
func (s *Service) WithDigits(currency string, digits int32) *Service {
	s.digits[strings.ToUpper(currency)] = digits
	return s
}

// Digits returns the rounding precision of a currency.
func (s *Service) Digits(currency string) int32 {
	if d, ok := s.digits[strings.ToUpper(currency)]; ok {
		return d
	}
	return 2
}

// Convert turns amount in from into to using the rates effective on date.
func (s *Service) Convert(ctx context.Context, from, to string, amount decimal.Decimal, date time.Time) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to || amount.IsZero() {
		return amount, nil
	}
	fromRate, err := s.rate(ctx, from, date)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := s.rate(ctx, to, date)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(toRate).Div(fromRate).Round(s.Digits(to)), nil
}

func (s *Service) rate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	if currency == s.base {
		return decimal.NewFromInt(1), nil
	}
	key := rateKey(currency, date)
	if s.client != nil {
		cached, err := s.client.Get(ctx, key).Result()
		if err == nil {
			if rate, perr := decimal.NewFromString(cached); perr == nil {
				return rate, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return decimal.Zero, fmt.Errorf("currency: cache get: %w", err)
		}
	}
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		rate, err := s.repo.RateOn(ctx, currency, date)
		if err != nil {
			return nil, err
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("currency: invalid rate %s for %s", rate, currency)
		}
		if s.client != nil {
			_ = s.client.Set(ctx, key, rate.String(), s.ttl).Err()
		}
		return rate, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return value.(decimal.Decimal), nil
}

// Invalidate drops the cached rates of a currency, used after importing rates.
func (s *Service) Invalidate(ctx context.Context, currency string) error {
	if s.client == nil {
		return nil
	}
	pattern := fmt.Sprintf("currency:rate:%s:*", strings.ToUpper(currency))
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func rateKey(currency string, date time.Time) string {
	return strings.Join([]string{"currency", "rate", currency, date.Format(time.DateOnly)}, ":")
}
