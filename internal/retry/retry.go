// Package retry runs outbound calls with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the number of attempts and the wait between them.
type Policy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Network is used for plain HTTP calls (Telegram, downloads).
var Network = Policy{Attempts: 3, InitialInterval: 120 * time.Millisecond, MaxInterval: 2 * time.Second}

// Document is used for optimistic read-modify-write cycles on the catalog document.
var Document = Policy{Attempts: 4, InitialInterval: 200 * time.Millisecond, MaxInterval: 3 * time.Second}

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the context is done
// or the attempts are exhausted. The last error is returned.
func Do(ctx context.Context, p Policy, op func() error) error {
	return DoNotify(ctx, p, op, nil)
}

// DoNotify is Do with a callback invoked before every wait.
func DoNotify(ctx context.Context, p Policy, op func() error, notify func(err error, wait time.Duration)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0 // bounded by attempts only

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
	return backoff.RetryNotify(op, b, notify)
}
