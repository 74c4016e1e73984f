package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	cases := map[string]OrderStatus{
		"pending":     OrderStatusPending,
		" Approved ":  OrderStatusApproved,
		"picked_up":   OrderStatusPickedUp,
		"PickedUp":    OrderStatusPickedUp,
		"canceled":    OrderStatusCancelled,
		"cancelled":   OrderStatusCancelled,
		"completed":   OrderStatusCompleted,
		"out-for-run": "",
		"":            "",
	}
	for raw, want := range cases {
		got, ok := ParseOrderStatus(raw)
		require.Equal(t, want != "", ok, raw)
		require.Equal(t, want, got, raw)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, status := range OrderStatuses() {
		want := status == OrderStatusCompleted || status == OrderStatusCancelled
		require.Equal(t, want, status.Terminal(), string(status))
	}
}

func TestOrderStatusesReturnsCopy(t *testing.T) {
	statuses := OrderStatuses()
	statuses[0] = "mutated"
	require.Equal(t, OrderStatusPending, OrderStatuses()[0])
}

func TestParsePaymentMethodAliases(t *testing.T) {
	for raw, want := range map[string]PaymentMethod{
		"card":        PaymentMethodCreditCard,
		"credit_card": PaymentMethodCreditCard,
		"CashApp":     PaymentMethodCashApp,
		"cash":        PaymentMethodCash,
	} {
		got, ok := ParsePaymentMethod(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got)
	}
	_, ok := ParsePaymentMethod("cheque")
	require.False(t, ok)

	_, ok = ParsePaymentStatus("settled")
	require.False(t, ok)
	_, ok = ParseDeliveryMethod("drone")
	require.False(t, ok)
}

func TestBalanceDueNeverNegative(t *testing.T) {
	require.Equal(t, int64(1500), BalanceDue(4000, 2500))
	require.Zero(t, BalanceDue(4000, 4000))
	require.Zero(t, BalanceDue(4000, 4500))
}

func TestPrincipalAnonymous(t *testing.T) {
	require.True(t, Principal{}.Anonymous())
	require.True(t, Principal{UID: "  ", Role: RoleCustomer}.Anonymous())
	require.False(t, Principal{UID: "cust-1", Role: RoleCustomer}.Anonymous())
}

func TestOrderCloneIsDeep(t *testing.T) {
	pickup := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	original := Order{
		ID:            "ord_1",
		Items:         []OrderItem{{ProductID: "sourdough", Quantity: 2, Customization: map[string]any{"slice": true}}},
		StatusHistory: []StatusHistoryEntry{{Status: OrderStatusPending}},
		Payments: []PaymentTransaction{{
			ID:             "pay_1",
			Amount:         1200,
			CashAppDetails: &CashAppDetails{Cashtag: "$crumb"},
			CardDetails:    &CardDetails{Last4: "4242"},
		}},
		PickupInfo: &PickupInfo{Date: &pickup, TimeSlot: "09:00-10:00"},
	}

	clone := original.Clone()
	clone.Items[0].Customization["slice"] = false
	clone.StatusHistory[0].Status = OrderStatusCancelled
	clone.Payments[0].CashAppDetails.Cashtag = "$other"
	clone.Payments[0].CardDetails.Last4 = "0000"
	*clone.PickupInfo.Date = pickup.Add(time.Hour)
	clone.PickupInfo.TimeSlot = "late"

	require.Equal(t, true, original.Items[0].Customization["slice"])
	require.Equal(t, OrderStatusPending, original.StatusHistory[0].Status)
	require.Equal(t, "$crumb", original.Payments[0].CashAppDetails.Cashtag)
	require.Equal(t, "4242", original.Payments[0].CardDetails.Last4)
	require.Equal(t, pickup, *original.PickupInfo.Date)
	require.Equal(t, "09:00-10:00", original.PickupInfo.TimeSlot)
	require.Nil(t, clone.DeliveryInfo)
}
