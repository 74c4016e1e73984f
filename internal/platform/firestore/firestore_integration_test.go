//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/crumbline/orders-api/internal/platform/firestore"
	"github.com/crumbline/orders-api/internal/platform/firestore/firestoretest"
)

type counterDoc struct {
	Label string `firestore:"label"`
	Count int    `firestore:"count"`
}

func TestCollectionAgainstEmulator(t *testing.T) {
	cfg := firestoretest.Start(t, "orders-test")

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo := pfirestore.NewCollection[counterDoc](provider, "counters", pfirestore.Codec[counterDoc]{})

	if _, err := repo.Set(ctx, "c-1", counterDoc{Label: "alpha", Count: 1}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	doc, err := repo.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.ID != "c-1" || doc.Data.Label != "alpha" || doc.Data.Count != 1 {
		t.Fatalf("unexpected document: %#v", doc)
	}
	if doc.UpdateTime.IsZero() {
		t.Fatalf("expected update time to be set")
	}

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("label", "==", "alpha")
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	_, err = repo.Get(ctx, "missing")
	type notFound interface{ IsNotFound() bool }
	var cls notFound
	if !errors.As(err, &cls) || !cls.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, current, err := repo.ReadTx(ctx, tx, "c-1")
		if err != nil {
			return err
		}
		current.Data.Count++
		return tx.Set(ref, current.Data)
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	doc, err = repo.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("get after transaction failed: %v", err)
	}
	if doc.Data.Count != 2 {
		t.Fatalf("expected count=2 after txn, got %d", doc.Data.Count)
	}

	sentinel := errors.New("stop")
	if err := provider.RunTransaction(ctx, func(context.Context, *firestore.Transaction) error {
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error to pass through, got %v", err)
	}

	cancelCtx, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := provider.RunTransaction(cancelCtx, func(context.Context, *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}
