package autoextract

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// lockRetries is how many times an operation on a locked file is attempted.
const lockRetries = 3

// Backoff paces retries of operations on locked files.
type Backoff struct {
	Attempts int
	MinSleep time.Duration
	MaxSleep time.Duration
}

// DefaultBackoff tries three times, sleeping 200ms then 400ms.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: lockRetries,
		MinSleep: 200 * time.Millisecond,
		MaxSleep: 2 * time.Second,
	}
}

// policy doubles the sleep from MinSleep up to MaxSleep and stops after
// Attempts tries. It is stateful, so every Call gets a fresh one.
func (b Backoff) policy() backoff.BackOff {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	opts := []backoff.ExponentialBackOffOpts{
		backoff.WithInitialInterval(b.MinSleep),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	}
	if b.MaxSleep > 0 {
		opts = append(opts, backoff.WithMaxInterval(b.MaxSleep))
	}
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(opts...), uint64(attempts-1))
}

// Call runs fn until it succeeds, fails with an error retry rejects, or the
// attempts run out. The last error is returned.
func (b Backoff) Call(fn func() error, retry func(error) bool) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !retry(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b.policy())
}

// retryLocked retries fn while it fails because a file is locked.
func (b Backoff) retryLocked(fn func() error) error {
	return b.Call(fn, func(err error) bool {
		return isLockedError(err) || IsErrorType(err, ErrFileLocked)
	})
}
