package services

import "testing"

func TestOrderPolicyPredicates(t *testing.T) {
	order := Order{ID: "ord_1", UserID: customer.UID}
	guestOrder := Order{ID: "ord_2"}

	cases := []struct {
		name string
		got  bool
		want bool
	}{
		{"owner reads", CanReadOrder(order, customer), true},
		{"stranger reads", CanReadOrder(order, otherCustomer), false},
		{"staff reads", CanReadOrder(order, staffMember), true},
		{"admin reads", CanReadOrder(order, adminUser), true},
		{"guest reads guest order", CanReadOrder(guestOrder, anonymous), false},
		{"customer updates status", CanUpdateStatus(customer), false},
		{"staff updates status", CanUpdateStatus(staffMember), true},
		{"owner records payment", CanRecordPayment(order, customer), true},
		{"staff records payment", CanRecordPayment(order, staffMember), false},
		{"admin records payment", CanRecordPayment(order, adminUser), true},
		{"staff sets payment status", CanSetPaymentStatus(staffMember), true},
		{"customer sets payment status", CanSetPaymentStatus(customer), false},
		{"admin lists all", CanListAll(adminUser), true},
		{"staff lists all", CanListAll(staffMember), false},
		{"own history", CanReadHistoryOf(customer, ""), true},
		{"own history explicit", CanReadHistoryOf(customer, customer.UID), true},
		{"other history", CanReadHistoryOf(customer, otherCustomer.UID), false},
		{"admin other history", CanReadHistoryOf(adminUser, otherCustomer.UID), true},
		{"anonymous history", CanReadHistoryOf(anonymous, ""), false},
		{"role without uid", IsAdmin(Principal{Role: adminUser.Role}), false},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, tc.got, tc.want)
		}
	}
}
