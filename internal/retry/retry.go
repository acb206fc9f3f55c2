// Package retry implements the bounded retry policy used by the external
// lookup clients.  The attempt limit is explicit and exhausted retries
// surface the last error; callers translate exhaustion into their own
// sentinel handling.
package retry

import (
	"context"
	"time"

	"github.com/openmedi/medirec/pkg/errors"
)

// DefaultMaxAttempts bounds lookup retries against the resolver and
// normalizer services.
const DefaultMaxAttempts = 5

// Policy describes a bounded retry loop with exponential backoff.
type Policy struct {
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; each further attempt
	// doubles it.  Zero disables waiting, which keeps tests fast.
	BaseDelay time.Duration
}

// DefaultPolicy is the lookup-client policy: five attempts, 1s base delay
// (1s, 2s, 4s, 8s between attempts).
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: time.Second}
}

// Permanent wraps an error to stop the retry loop immediately.  Input
// validation failures are permanent: retrying cannot fix an empty name.
type Permanent struct {
	Err error
}

func (p Permanent) Error() string { return p.Err.Error() }

func (p Permanent) Unwrap() error { return p.Err }

// Do runs fn up to p.MaxAttempts times, backing off between attempts, and
// returns the last error once the budget is spent.  A Permanent error or a
// cancelled context aborts the loop at once.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && p.BaseDelay > 0 {
			delay := p.BaseDelay << uint(attempt-2)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "retry aborted")
			case <-time.After(delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCodeTimeout, "retry aborted")
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if perm, ok := err.(Permanent); ok {
			return perm.Err
		}
		lastErr = err
	}
	return lastErr
}
