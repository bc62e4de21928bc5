package utils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrDailyLimitExceeded is returned when a send would exceed the daily quota.
var ErrDailyLimitExceeded = errors.New("daily mail limit exceeded")

// RecipientCounter reports how many recipients a user has sent to since a point in time.
type RecipientCounter interface {
	RecipientsSentSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// SendQuota enforces a rolling 24h recipient limit per user, counting every
// recipient of every sent email the way the relay bills them.
type SendQuota struct {
	limit   int
	counter RecipientCounter
	now     func() time.Time
}

// NewSendQuota returns a quota of limit recipients per day. A limit <= 0 disables it.
func NewSendQuota(limit int, counter RecipientCounter) *SendQuota {
	return &SendQuota{limit: limit, counter: counter, now: time.Now}
}

// Limit returns the configured daily limit, 0 when disabled.
func (q *SendQuota) Limit() int {
	if q == nil || q.limit <= 0 {
		return 0
	}
	return q.limit
}

// Used returns how many recipients the user has sent to in the last 24 hours.
func (q *SendQuota) Used(ctx context.Context, userID int64) (int, error) {
	if q == nil || q.counter == nil {
		return 0, nil
	}
	used, err := q.counter.RecipientsSentSince(ctx, userID, q.now().Add(-24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("failed to get daily mail count: %w", err)
	}
	return used, nil
}

// Remaining returns how many recipients the user may still send to today.
func (q *SendQuota) Remaining(ctx context.Context, userID int64) (int, error) {
	if q == nil || q.limit <= 0 {
		return math.MaxInt, nil
	}
	used, err := q.Used(ctx, userID)
	if err != nil {
		return 0, err
	}
	if used >= q.limit {
		return 0, nil
	}
	return q.limit - used, nil
}

// Check fails with ErrDailyLimitExceeded when sending to n more recipients
// would go over the limit.
func (q *SendQuota) Check(ctx context.Context, userID int64, n int) error {
	remaining, err := q.Remaining(ctx, userID)
	if err != nil {
		return err
	}
	if n > remaining {
		return ErrDailyLimitExceeded
	}
	return nil
}
