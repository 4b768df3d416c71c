package pumpfun

import (
	"context"
	"errors"
	"time"
)

// Session is an external feed connection that must be released after use.
type Session interface {
	Open(ctx context.Context) error
	Close() error
}

// WithSession opens s, runs fn and closes s on every return path,
// including cancellation of ctx and a panic inside fn.
func WithSession(ctx context.Context, s Session, fn func(ctx context.Context) error) (err error) {
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(ctx)
}

const (
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// backoff returns the reconnect delay for the given attempt: 1s, 2s, 4s ... capped at maxDelay.
func backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		return maxDelay
	}
	d := baseDelay << uint(attempt)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
