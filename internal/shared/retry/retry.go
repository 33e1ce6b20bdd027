// Package retry provides exponential backoff with jitter for transport
// hand-off. The delay for attempt n is base * 2^(n-1) * jitter[0.5,1.5],
// capped at Cap. The operation runs 1 + MaxRetries times in total.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// PermanentError wraps errors that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is marked as non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Config provides retry configuration.
type Config struct {
	MaxRetries int           // retries after the initial attempt
	Base       time.Duration // first backoff delay
	Cap        time.Duration // upper bound on any single delay
}

// DefaultConfig returns sensible defaults for transport retries.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, Base: 100 * time.Millisecond, Cap: 5 * time.Second}
}

// Delay computes the backoff before retry attempt n (1-based) using the
// supplied jitter factor, which must lie in [0.5, 1.5].
func Delay(cfg Config, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(cfg.Base) * float64(uint64(1)<<uint(attempt-1)) * jitter
	if cfg.Cap > 0 && d > float64(cfg.Cap) {
		return cfg.Cap
	}
	return time.Duration(d)
}

func randomJitter() float64 {
	randMu.Lock()
	defer randMu.Unlock()
	return 0.5 + randSource.Float64()
}

// Do executes fn with exponential backoff. It stops early on permanent
// errors and on context cancellation.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.Base <= 0 {
		cfg.Base = 100 * time.Millisecond
	}
	if cfg.Cap <= 0 {
		cfg.Cap = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	attempts := 1 + cfg.MaxRetries
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(Delay(cfg, attempt, randomJitter()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", attempts, lastErr)
}
