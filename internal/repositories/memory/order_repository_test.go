package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/crumbline/orders-api/internal/domain"
	"github.com/crumbline/orders-api/internal/repositories"
)

func seedOrder(id, userID, key string, status domain.OrderStatus, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:             id,
		UserID:         userID,
		IdempotencyKey: key,
		Status:         status,
		Total:          1000,
		BalanceDue:     1000,
		Items:          []domain.OrderItem{{ProductID: "cake-1", Name: "Cake", UnitPrice: 1000, Quantity: 1}},
		CreatedAt:      createdAt,
	}
}

func TestOrderRepositoryInsertClaimsIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	now := time.Now().UTC()

	stored, inserted, err := repo.Insert(ctx, seedOrder("ord_1", "user-1", "k1", domain.OrderStatusPending, now))
	if err != nil || !inserted {
		t.Fatalf("expected first insert to succeed, inserted=%v err=%v", inserted, err)
	}
	if stored.ID != "ord_1" {
		t.Fatalf("unexpected stored id %s", stored.ID)
	}

	existing, inserted, err := repo.Insert(ctx, seedOrder("ord_2", "user-1", "k1", domain.OrderStatusPending, now))
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted || existing.ID != "ord_1" {
		t.Fatalf("expected existing order ord_1, got %s inserted=%v", existing.ID, inserted)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected one stored order, got %d", repo.Len())
	}
}

func TestOrderRepositoryFindByIdempotencyKeyScopesUser(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	if _, _, err := repo.Insert(ctx, seedOrder("ord_1", "user-1", "k1", domain.OrderStatusPending, time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if order, err := repo.FindByIdempotencyKey(ctx, "k1", "user-1"); err != nil || order.ID != "ord_1" {
		t.Fatalf("expected scoped match, got %v %v", order.ID, err)
	}
	if order, err := repo.FindByIdempotencyKey(ctx, "k1", ""); err != nil || order.ID != "ord_1" {
		t.Fatalf("expected key-only match, got %v %v", order.ID, err)
	}

	_, err := repo.FindByIdempotencyKey(ctx, "k1", "user-2")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestOrderRepositoryMutateCommitsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	if _, _, err := repo.Insert(ctx, seedOrder("ord_1", "user-1", "k1", domain.OrderStatusPending, time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	boom := errors.New("boom")
	_, err := repo.Mutate(ctx, "ord_1", func(order *domain.Order) error {
		order.Status = domain.OrderStatusCancelled
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	order, _ := repo.FindByID(ctx, "ord_1")
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected failed mutation to leave status untouched, got %s", order.Status)
	}

	updated, err := repo.Mutate(ctx, "ord_1", func(order *domain.Order) error {
		order.Status = domain.OrderStatusApproved
		order.ID = "tampered"
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if updated.Status != domain.OrderStatusApproved || updated.ID != "ord_1" {
		t.Fatalf("unexpected result %+v", updated)
	}

	_, err = repo.Mutate(ctx, "missing", func(*domain.Order) error { return nil })
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	if _, _, err := repo.Insert(ctx, seedOrder("ord_1", "user-1", "k1", domain.OrderStatusPending, time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	order, _ := repo.FindByID(ctx, "ord_1")
	order.Items[0].Name = "changed"

	again, _ := repo.FindByID(ctx, "ord_1")
	if again.Items[0].Name != "Cake" {
		t.Fatalf("expected stored order isolated from caller mutation")
	}
}

func TestOrderRepositoryListPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		status := domain.OrderStatusPending
		if i%2 == 1 {
			status = domain.OrderStatusReady
		}
		order := seedOrder(fmt.Sprintf("ord_%d", i), "user-1", fmt.Sprintf("k%d", i), status, base.Add(time.Duration(i)*time.Hour))
		if _, _, err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, _, err := repo.Insert(ctx, seedOrder("ord_other", "user-2", "kx", domain.OrderStatusPending, base)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	filter := repositories.OrderListFilter{UserID: "user-1", Pagination: domain.Pagination{PageSize: 2}}
	var ids []string
	for page := 0; page < 5; page++ {
		result, err := repo.List(ctx, filter)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, order := range result.Items {
			ids = append(ids, order.ID)
		}
		if result.NextPageToken == "" {
			break
		}
		filter.Pagination.PageToken = result.NextPageToken
	}
	want := []string{"ord_4", "ord_3", "ord_2", "ord_1", "ord_0"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}

	result, err := repo.List(ctx, repositories.OrderListFilter{Statuses: []domain.OrderStatus{domain.OrderStatusReady}})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(result.Items) != 2 || result.Items[0].ID != "ord_3" || result.Items[1].ID != "ord_1" {
		t.Fatalf("unexpected status filter result %+v", result.Items)
	}
}
