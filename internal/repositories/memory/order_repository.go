// Package memory provides process-local repository implementations used by tests and by local
// runs without a Firestore project.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domain "github.com/crumbline/orders-api/internal/domain"
	"github.com/crumbline/orders-api/internal/platform/pagination"
	"github.com/crumbline/orders-api/internal/repositories"
)

// OrderRepository keeps orders in a map guarded by a mutex. Every method works on deep copies, so
// Mutate behaves like a per-document transaction.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	keys   map[string]string
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository returns an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]domain.Order),
		keys:   make(map[string]string),
	}
}

// Insert stores the order unless its idempotency key is already claimed.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, false, err
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, false, conflict("memory: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if key := strings.TrimSpace(order.IdempotencyKey); key != "" {
		if existingID, ok := r.keys[key]; ok {
			return r.orders[existingID].Clone(), false, nil
		}
	}
	if _, exists := r.orders[id]; exists {
		return domain.Order{}, false, conflict("memory: order %s already exists", id)
	}

	stored := order.Clone()
	r.orders[id] = stored
	if key := strings.TrimSpace(order.IdempotencyKey); key != "" {
		r.keys[key] = id
	}
	return stored.Clone(), true, nil
}

// FindByID returns the order or a not-found error.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("memory: order %s not found", orderID)
	}
	return order.Clone(), nil
}

// FindByIdempotencyKey returns the order that claimed key, optionally requiring ownership by userID.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string, userID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.keys[strings.TrimSpace(key)]
	if !ok {
		return domain.Order{}, notFound("memory: no order for idempotency key")
	}
	order := r.orders[id]
	if userID = strings.TrimSpace(userID); userID != "" && order.UserID != userID {
		return domain.Order{}, notFound("memory: no order for idempotency key and user")
	}
	return order.Clone(), nil
}

// List returns orders newest first, filtered by owner and status.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if err := ctx.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize, pagination.DefaultPageSize, pagination.DefaultMaxPageSize)

	statuses := make(map[domain.OrderStatus]struct{}, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses[status] = struct{}{}
	}

	r.mu.Lock()
	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[order.Status]; !ok {
				continue
			}
		}
		matched = append(matched, order.Clone())
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return newerFirst(matched[i], matched[j]) })

	start := 0
	if !cursor.IsZero() {
		start = sort.Search(len(matched), func(i int) bool {
			return newerFirst(domain.Order{ID: cursor.ID, CreatedAt: cursor.CreatedAt}, matched[i])
		})
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	page := domain.CursorPage[domain.Order]{Items: matched[start:end]}
	if end < len(matched) {
		last := matched[end-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// Mutate applies fn to a copy of the stored order and commits the copy only when fn succeeds.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.MutateFunc) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("memory: order %s not found", orderID)
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return domain.Order{}, err
	}
	working.ID = current.ID
	r.orders[current.ID] = working.Clone()
	return working, nil
}

// Len reports the number of stored orders.
func (r *OrderRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func newerFirst(a, b domain.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
