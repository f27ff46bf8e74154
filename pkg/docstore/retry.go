package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds a transactional operation: how many times a conflicting
// transaction is re-run, the initial backoff between runs (doubling each time),
// and the overall deadline.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Timeout     time.Duration
}

// DefaultRetryPolicy returns 4 attempts, 25ms base backoff and a 5s deadline.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseBackoff: 25 * time.Millisecond,
		Timeout:     5 * time.Second,
	}
}

// Run calls fn until it succeeds, fails with an error other than ErrConflict,
// or the attempts are exhausted. It reports how many attempts were made.
//
// When the deadline expires the returned error wraps both ErrUnavailable and
// context.DeadlineExceeded.
func (p RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	base := p.BaseBackoff
	if base <= 0 {
		base = time.Millisecond
	}

	backoff := retry.NewExponential(base)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(uint64(maxAttempts-1), backoff)

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if errors.Is(err, ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})

	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrUnavailable) {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return attempts, err
}
