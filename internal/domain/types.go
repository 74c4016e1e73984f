package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role identifies the authorisation tier of a principal.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated actor performing an operation.
type Principal struct {
	UID  string
	Role Role
}

// Anonymous reports whether the principal carries no identity (guest checkout).
func (p Principal) Anonymous() bool {
	return strings.TrimSpace(p.UID) == ""
}

// OrderStatus enumerates fulfilment states of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusApproved   OrderStatus = "approved"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusReady      OrderStatus = "ready"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusPickedUp   OrderStatus = "picked-up"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusApproved,
	OrderStatusProcessing,
	OrderStatusReady,
	OrderStatusDelivered,
	OrderStatusPickedUp,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// OrderStatuses returns every known order status in nominal lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

// ParseOrderStatus normalises raw input into a known order status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if candidate == "picked_up" || candidate == "pickedup" {
		candidate = OrderStatusPickedUp
	}
	if candidate == "canceled" {
		candidate = OrderStatusCancelled
	}
	if candidate.Valid() {
		return candidate, true
	}
	return "", false
}

// Valid reports whether the status is part of the enumeration.
func (s OrderStatus) Valid() bool {
	for _, known := range orderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are permitted from the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentStatus enumerates ledger states of an order.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ParsePaymentStatus normalises raw input into a known payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	candidate := PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch candidate {
	case PaymentStatusUnpaid, PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusRefunded:
		return candidate, true
	}
	return "", false
}

// PaymentMethod enumerates supported payment channels.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit-card"
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodCashApp    PaymentMethod = "cash-app"
)

// ParsePaymentMethod normalises raw input into a known payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	candidate := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch candidate {
	case "credit_card", "card":
		candidate = PaymentMethodCreditCard
	case "cash_app", "cashapp":
		candidate = PaymentMethodCashApp
	}
	switch candidate {
	case PaymentMethodCreditCard, PaymentMethodCash, PaymentMethodCashApp:
		return candidate, true
	}
	return "", false
}

// DeliveryMethod describes how the order reaches the customer.
type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "delivery"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

// ParseDeliveryMethod normalises raw input into a known delivery method.
func ParseDeliveryMethod(raw string) (DeliveryMethod, bool) {
	candidate := DeliveryMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch candidate {
	case DeliveryMethodDelivery, DeliveryMethodPickup:
		return candidate, true
	}
	return "", false
}

// Order is the aggregate root persisted as one document per order.
type Order struct {
	ID                   string
	UserID               string
	Items                []OrderItem
	Subtotal             int64
	Tax                  int64
	Total                int64
	Status               OrderStatus
	PaymentStatus        PaymentStatus
	AmountPaid           int64
	BalanceDue           int64
	StatusHistory        []StatusHistoryEntry
	PaymentStatusHistory []PaymentStatusHistoryEntry
	Payments             []PaymentTransaction
	IdempotencyKey       string
	CustomerInfo         CustomerInfo
	DeliveryMethod       DeliveryMethod
	DeliveryInfo         *DeliveryInfo
	PickupInfo           *PickupInfo
	IsCustomOrder        bool
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OrderItem is an immutable line item captured at creation.
type OrderItem struct {
	ProductID     string
	Name          string
	UnitPrice     int64
	Quantity      int
	Customization map[string]any
}

// CustomerInfo holds contact details for the order.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// Address is a postal address used for deliveries.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
}

// DeliveryInfo captures delivery instructions.
type DeliveryInfo struct {
	Address      Address
	Date         *time.Time
	Instructions string
}

// PickupInfo captures in-store pickup details.
type PickupInfo struct {
	Date     *time.Time
	TimeSlot string
	Location string
}

// StatusHistoryEntry records a single order status change.
type StatusHistoryEntry struct {
	Status    OrderStatus
	Timestamp time.Time
	Note      string
	UpdatedBy string
}

// PaymentStatusHistoryEntry records a single payment status change.
type PaymentStatusHistoryEntry struct {
	Status    PaymentStatus
	Timestamp time.Time
	Note      string
	UpdatedBy string
}

// PaymentTransaction is one ledger entry.
type PaymentTransaction struct {
	ID             string
	Amount         int64
	Method         PaymentMethod
	Date           time.Time
	ConfirmationID string
	CashAppDetails *CashAppDetails
	CardDetails    *CardDetails
	Notes          string
	RecordedBy     string
	CreatedAt      time.Time
	LastUpdated    time.Time
}

// CashAppDetails holds peer-payment metadata asserted by the payer.
type CashAppDetails struct {
	Cashtag        string
	ConfirmationID string
}

// CardDetails holds masked card metadata. Full card numbers are never stored.
type CardDetails struct {
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// BalanceDue returns the outstanding balance for the given total and paid amount.
func BalanceDue(total, amountPaid int64) int64 {
	if due := total - amountPaid; due > 0 {
		return due
	}
	return 0
}

// Clone returns a deep copy so callers can mutate without aliasing slices or maps.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = make([]OrderItem, len(o.Items))
		for i, item := range o.Items {
			item.Customization = cloneAnyMap(item.Customization)
			out.Items[i] = item
		}
	}
	if o.StatusHistory != nil {
		out.StatusHistory = append([]StatusHistoryEntry(nil), o.StatusHistory...)
	}
	if o.PaymentStatusHistory != nil {
		out.PaymentStatusHistory = append([]PaymentStatusHistoryEntry(nil), o.PaymentStatusHistory...)
	}
	if o.Payments != nil {
		out.Payments = make([]PaymentTransaction, len(o.Payments))
		for i, payment := range o.Payments {
			out.Payments[i] = payment.Clone()
		}
	}
	if o.DeliveryInfo != nil {
		info := *o.DeliveryInfo
		info.Date = cloneTime(o.DeliveryInfo.Date)
		out.DeliveryInfo = &info
	}
	if o.PickupInfo != nil {
		info := *o.PickupInfo
		info.Date = cloneTime(o.PickupInfo.Date)
		out.PickupInfo = &info
	}
	return out
}

// Clone returns a deep copy of the transaction.
func (p PaymentTransaction) Clone() PaymentTransaction {
	out := p
	if p.CashAppDetails != nil {
		details := *p.CashAppDetails
		out.CashAppDetails = &details
	}
	if p.CardDetails != nil {
		details := *p.CardDetails
		out.CardDetails = &details
	}
	return out
}

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
