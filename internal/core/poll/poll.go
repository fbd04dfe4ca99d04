// Package poll implements a bounded retry-until-ready policy for slow,
// eventually-consistent provider operations (address assignment,
// power-state transitions).
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the condition did not hold before the
// configured deadline.
var ErrTimeout = errors.New("timed out waiting for condition")

// Config bounds a poll loop. Both fields must be positive; Defaults fill
// in zero values.
type Config struct {
	// Interval is the fixed delay between condition checks.
	Interval time.Duration

	// Timeout is the maximum elapsed time before giving up.
	Timeout time.Duration
}

// withDefaults returns the config with zero values replaced.
func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	return c
}

// Until repeatedly calls fn at the configured interval until it reports
// done, fails, or the deadline passes. The first check happens
// immediately. A deadline overrun returns an error wrapping ErrTimeout;
// context cancellation returns the context's error.
func Until(ctx context.Context, cfg Config, fn func(ctx context.Context) (done bool, err error)) error {
	cfg = cfg.withDefaults()

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case <-time.After(cfg.Interval):
		}
	}
}
