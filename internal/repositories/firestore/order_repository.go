package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/crumbline/orders-api/internal/domain"
	pfirestore "github.com/crumbline/orders-api/internal/platform/firestore"
	"github.com/crumbline/orders-api/internal/platform/pagination"
	"github.com/crumbline/orders-api/internal/repositories"
)

const (
	ordersCollection               = "orders"
	orderIdempotencyKeysCollection = "orderIdempotencyKeys"
)

type idempotencyKeyDocument struct {
	OrderID   string    `firestore:"orderId"`
	UserID    string    `firestore:"userId,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository persists orders in Firestore. Creation claims the idempotency key in a
// registry document inside the same transaction, and every mutation is a transactional
// read-modify-write.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[domain.Order]
	keys     *pfirestore.Collection[idempotencyKeyDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection(provider, ordersCollection, pfirestore.Codec[domain.Order]{Encode: encodeOrder, Decode: decodeOrder}),
		keys:     pfirestore.NewCollection(provider, orderIdempotencyKeysCollection, pfirestore.Codec[idempotencyKeyDocument]{}),
	}, nil
}

// Insert creates the order document and its key registry entry atomically. When another request
// already claimed the key, the order it created is returned with inserted=false.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, bool, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, false, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Order{}, false, pfirestore.WrapError("orders.insert", errors.New("order id is required"))
	}
	key := strings.TrimSpace(order.IdempotencyKey)

	var (
		result   domain.Order
		inserted bool
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.Ref(ctx, orderID)
		if err != nil {
			return err
		}
		payload, err := r.orders.Encode(order)
		if err != nil {
			return err
		}
		if key == "" {
			if err := tx.Create(orderRef, payload); err != nil {
				return pfirestore.WrapError("orders.insert", err)
			}
			result, inserted = order, true
			return nil
		}

		keyRef, claim, err := r.keys.ReadTx(ctx, tx, keyDocumentID(key))
		var repoErr repositories.RepositoryError
		switch {
		case err == nil:
			_, existing, err := r.orders.ReadTx(ctx, tx, claim.Data.OrderID)
			if err != nil {
				return err
			}
			result, inserted = existing.Data, false
			return nil
		case errors.As(err, &repoErr) && repoErr.IsNotFound():
		default:
			return err
		}

		if err := tx.Create(orderRef, payload); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		if err := tx.Create(keyRef, idempotencyKeyDocument{
			OrderID:   orderID,
			UserID:    order.UserID,
			CreatedAt: order.CreatedAt.UTC(),
		}); err != nil {
			return pfirestore.WrapError("orderIdempotencyKeys.create", err)
		}
		result, inserted = order, true
		return nil
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if key != "" && errors.As(err, &repoErr) && repoErr.IsConflict() {
			existing, findErr := r.FindByIdempotencyKey(ctx, key, "")
			if findErr == nil {
				return existing, false, nil
			}
		}
		return domain.Order{}, false, err
	}
	return result, inserted, nil
}

// FindByID returns the order stored under orderID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data, nil
}

// FindByIdempotencyKey queries orders by their idempotency key, optionally scoped to userID.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string, userID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	key = strings.TrimSpace(key)
	userID = strings.TrimSpace(userID)
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("idempotencyKey", "==", key)
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		return q.Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFound("orders.findByIdempotencyKey", "no order for idempotency key")
	}
	return docs[0].Data, nil
}

// List returns orders newest first. Filtering by owner and status together needs a composite index
// on (userId, status, createdAt desc).
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize, pagination.DefaultPageSize, pagination.DefaultMaxPageSize)

	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		switch len(statuses) {
		case 0:
		case 1:
			q = q.Where("status", "==", statuses[0])
		default:
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, doc.Data)
	}
	if len(docs) > pageSize {
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// Mutate reads the order, applies fn, and writes the result inside one transaction. Firestore
// retries the whole callback on contention, so fn always sees the latest committed state.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.MutateFunc) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutate function is required")
	}
	orderID = strings.TrimSpace(orderID)

	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.orders.ReadTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		working := doc.Data
		if err := fn(&working); err != nil {
			return err
		}
		working.ID = doc.ID

		payload, err := r.orders.Encode(working)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, payload); err != nil {
			return pfirestore.WrapError("orders.set", err)
		}
		result = working
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// Ping performs a cheap read used by readiness probes.
func (r *OrderRepository) Ping(ctx context.Context) error {
	_, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Select().Limit(1)
	})
	return err
}

func keyDocumentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
