package repositories

import (
	"context"

	domain "github.com/crumbline/orders-api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// MutateFunc receives the current order and edits it in place. Returning an error leaves the
// stored document untouched.
type MutateFunc func(order *domain.Order) error

// OrderRepository persists order documents and provides the query helpers used by the read path.
type OrderRepository interface {
	// Insert stores a new order and claims its idempotency key atomically. When the key is
	// already claimed the existing order is returned with inserted=false.
	Insert(ctx context.Context, order domain.Order) (stored domain.Order, inserted bool, err error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByIdempotencyKey returns the order created with the key. A non-empty userID narrows
	// the match to orders owned by that user.
	FindByIdempotencyKey(ctx context.Context, key string, userID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// Mutate runs a read-modify-write of a single order atomically and returns the stored result.
	Mutate(ctx context.Context, orderID string, fn MutateFunc) (domain.Order, error)
}

// OrderListFilter narrows order listings. Results are ordered by creation time, newest first.
type OrderListFilter struct {
	UserID     string
	Statuses   []domain.OrderStatus
	Pagination domain.Pagination
}
