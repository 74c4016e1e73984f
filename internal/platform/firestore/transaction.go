package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc may run more than once when Firestore retries on contention. It must keep its effects
// inside tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

type TxOption func(*txSettings)

type txSettings struct {
	attempts int
	timeout  time.Duration
}

func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTxTimeout caps the transaction including retries. A tighter caller deadline still wins.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// RunTransaction runs fn in a read-write transaction. An error returned by fn comes back as is,
// so domain errors raised inside the callback survive the round trip.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	if fn == nil {
		return WrapError("transaction", errors.New("transaction function is nil"))
	}
	settings := txSettings{attempts: 5, timeout: 15 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, settings.timeout)
	defer cancel()

	var callbackErr error
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		callbackErr = fn(ctx, tx)
		return callbackErr
	}, firestore.MaxAttempts(settings.attempts))
	switch {
	case err == nil:
		return nil
	case callbackErr != nil && errors.Is(err, callbackErr):
		return callbackErr
	default:
		return WrapError("transaction", err)
	}
}
