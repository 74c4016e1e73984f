package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/crumbline/orders-api/internal/repositories"
)

// idempotencyGuard collapses retried creation requests onto the order the first attempt stored.
// The lookup here only short-circuits the common sequential retry; the repository insert claims
// the key atomically and settles concurrent duplicates.
type idempotencyGuard struct {
	orders repositories.OrderRepository
	newKey func() string
}

// resolveKey validates a client supplied key or generates one. A generated key cannot
// deduplicate a retry whose client never learned it.
func (g idempotencyGuard) resolveKey(raw string) (string, bool, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return g.newKey(), true, nil
	}
	if len(key) > maxIdempotencyKeyLen {
		return "", false, fmt.Errorf("%w: idempotencyKey exceeds %d characters", ErrOrderInvalidInput, maxIdempotencyKeyLen)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return "", false, fmt.Errorf("%w: idempotencyKey contains control characters", ErrOrderInvalidInput)
		}
	}
	return key, false, nil
}

// lookup finds an order already created with key, preferring one owned by userID and falling back
// to a key-only match.
func (g idempotencyGuard) lookup(ctx context.Context, key, userID string) (Order, bool, error) {
	if userID != "" {
		order, found, err := g.find(ctx, key, userID)
		if err != nil || found {
			return order, found, err
		}
	}
	return g.find(ctx, key, "")
}

func (g idempotencyGuard) find(ctx context.Context, key, userID string) (Order, bool, error) {
	order, err := g.orders.FindByIdempotencyKey(ctx, key, userID)
	if err == nil {
		return order, true, nil
	}
	if isRepositoryNotFound(err) {
		return Order{}, false, nil
	}
	return Order{}, false, err
}
