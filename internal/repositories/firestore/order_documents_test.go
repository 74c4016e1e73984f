package firestore

import (
	"testing"
	"time"

	domain "github.com/crumbline/orders-api/internal/domain"
)

func TestEncodeOrderNormalisesTimesAndNestedDetails(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	created := time.Date(2025, time.March, 3, 18, 0, 0, 0, loc)
	pickup := created.Add(48 * time.Hour)

	payload, err := encodeOrder(domain.Order{
		ID:            "ord_1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Payments: []domain.PaymentTransaction{{
			ID:             "pay_1",
			Amount:         2500,
			Method:         domain.PaymentMethodCashApp,
			Date:           created,
			ConfirmationID: "ABC123",
			CashAppDetails: &domain.CashAppDetails{Cashtag: "$ada"},
		}},
		PickupInfo: &domain.PickupInfo{Date: &pickup, TimeSlot: "morning"},
		CreatedAt:  created,
		UpdatedAt:  created,
	})
	if err != nil {
		t.Fatalf("encodeOrder: %v", err)
	}
	doc, ok := payload.(orderDocument)
	if !ok {
		t.Fatalf("expected orderDocument, got %T", payload)
	}
	if doc.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected createdAt in UTC, got %s", doc.CreatedAt.Location())
	}
	if doc.Status != "pending" || doc.PaymentStatus != "pending" {
		t.Fatalf("unexpected statuses %s/%s", doc.Status, doc.PaymentStatus)
	}
	if len(doc.Payments) != 1 || doc.Payments[0].Method != "cash-app" || doc.Payments[0].CashAppDetails.Cashtag != "$ada" {
		t.Fatalf("unexpected payments %+v", doc.Payments)
	}
	if doc.PickupInfo == nil || !doc.PickupInfo.Date.Equal(pickup) || doc.PickupInfo.Date.Location() != time.UTC {
		t.Fatalf("unexpected pickup info %+v", doc.PickupInfo)
	}
	if doc.DeliveryInfo != nil {
		t.Fatalf("expected nil delivery info")
	}
	if doc.StatusHistory == nil || doc.Items == nil {
		t.Fatalf("expected empty arrays rather than nil so Firestore stores [] fields")
	}
}

func TestKeyDocumentIDIsStable(t *testing.T) {
	a := keyDocumentID("k1")
	if a != keyDocumentID("k1") || a == keyDocumentID("k2") || len(a) != 64 {
		t.Fatalf("unexpected key document id %q", a)
	}
}
