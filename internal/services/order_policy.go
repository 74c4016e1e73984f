package services

import (
	"fmt"
	"strings"

	domain "github.com/crumbline/orders-api/internal/domain"
)

// IsOwner reports whether principal owns order. Guest orders have no owner.
func IsOwner(order Order, principal Principal) bool {
	uid := strings.TrimSpace(principal.UID)
	return uid != "" && order.UserID == uid
}

// IsStaff reports whether the principal is a staff member.
func IsStaff(principal Principal) bool {
	return !principal.Anonymous() && principal.Role == domain.RoleStaff
}

// IsAdmin reports whether the principal is an administrator.
func IsAdmin(principal Principal) bool {
	return !principal.Anonymous() && principal.Role == domain.RoleAdmin
}

// CanReadOrder allows the owner, staff, and administrators.
func CanReadOrder(order Order, principal Principal) bool {
	return IsOwner(order, principal) || IsStaff(principal) || IsAdmin(principal)
}

// CanUpdateStatus allows staff and administrators. Owners use Cancel instead.
func CanUpdateStatus(principal Principal) bool {
	return IsStaff(principal) || IsAdmin(principal)
}

// CanRecordPayment allows the owner and administrators.
func CanRecordPayment(order Order, principal Principal) bool {
	return IsOwner(order, principal) || IsAdmin(principal)
}

// CanSetPaymentStatus allows staff and administrators.
func CanSetPaymentStatus(principal Principal) bool {
	return IsStaff(principal) || IsAdmin(principal)
}

// CanListAll allows administrators only.
func CanListAll(principal Principal) bool {
	return IsAdmin(principal)
}

// CanReadHistoryOf allows any authenticated principal to read their own history and
// administrators to read anyone's.
func CanReadHistoryOf(principal Principal, targetUserID string) bool {
	if principal.Anonymous() {
		return false
	}
	target := strings.TrimSpace(targetUserID)
	return target == "" || target == principal.UID || IsAdmin(principal)
}

var (
	ownerCancellable = map[OrderStatus]bool{
		domain.OrderStatusPending:  true,
		domain.OrderStatusApproved: true,
	}
	adminNonCancellable = map[OrderStatus]bool{
		domain.OrderStatusDelivered: true,
		domain.OrderStatusPickedUp:  true,
		domain.OrderStatusCompleted: true,
	}
)

// checkCancel returns ErrOrderForbidden for callers who may never cancel the order and
// ErrOrderInvalidState when the current status blocks their cancellation.
func checkCancel(order Order, principal Principal) error {
	admin := IsAdmin(principal)
	owner := IsOwner(order, principal)
	if !admin && !owner {
		return fmt.Errorf("%w: only the order owner or an administrator may cancel", ErrOrderForbidden)
	}
	if order.Status == domain.OrderStatusCancelled {
		return fmt.Errorf("%w: order is already cancelled", ErrOrderInvalidState)
	}
	if admin {
		if adminNonCancellable[order.Status] {
			return fmt.Errorf("%w: order in status %s cannot be cancelled", ErrOrderInvalidState, order.Status)
		}
		return nil
	}
	if !ownerCancellable[order.Status] {
		return fmt.Errorf("%w: order in status %s can no longer be cancelled by the customer", ErrOrderInvalidState, order.Status)
	}
	return nil
}

func requireAuthenticated(principal Principal) error {
	if principal.Anonymous() {
		return fmt.Errorf("%w: authentication required", ErrOrderUnauthenticated)
	}
	return nil
}
