package services

import (
	"context"
	"time"

	domain "github.com/crumbline/orders-api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Principal          = domain.Principal
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	PaymentTransaction = domain.PaymentTransaction
	CustomerInfo       = domain.CustomerInfo
	DeliveryInfo       = domain.DeliveryInfo
	PickupInfo         = domain.PickupInfo
	CashAppDetails     = domain.CashAppDetails
	CardDetails        = domain.CardDetails
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService covers the order lifecycle: idempotent creation, the read path, status changes,
// cancellation, and the payment ledger. Every call carries the acting principal and is authorised
// before any order data is returned or changed.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID string, principal Principal) (Order, error)
	ListMyOrders(ctx context.Context, query ListMyOrdersQuery) (domain.CursorPage[Order], error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error)

	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)

	RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (PaymentResult, error)
	ProcessCashAppPayment(ctx context.Context, cmd CashAppPaymentCommand) (PaymentResult, error)
	SetPaymentStatus(ctx context.Context, cmd SetPaymentStatusCommand) (Order, error)

	// DrainEvents blocks until pending notifications are published or ctx ends.
	DrainEvents(ctx context.Context) error
}

// SystemService exposes operational metadata such as health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CreateOrderCommand carries a new order. Principal may be anonymous for guest checkout.
type CreateOrderCommand struct {
	Principal      Principal
	IdempotencyKey string
	Items          []OrderItem
	Subtotal       int64
	Tax            int64
	Total          int64
	CustomerInfo   CustomerInfo
	DeliveryMethod string
	DeliveryInfo   *DeliveryInfo
	PickupInfo     *PickupInfo
	IsCustomOrder  bool
	Notes          string
}

// CreateOrderResult reports the stored order and whether this call created it. Created is false
// when the idempotency key matched an earlier request.
type CreateOrderResult struct {
	Order   Order
	Created bool
}

// ListMyOrdersQuery lists one customer's orders. TargetUserID is honoured for administrators only.
type ListMyOrdersQuery struct {
	Principal    Principal
	TargetUserID string
	Pagination   Pagination
}

// ListOrdersQuery lists every order, optionally narrowed to some statuses.
type ListOrdersQuery struct {
	Principal  Principal
	Statuses   []string
	Pagination Pagination
}

// UpdateStatusCommand moves an order to Status.
type UpdateStatusCommand struct {
	OrderID   string
	Status    string
	Note      string
	Principal Principal
}

// CancelOrderCommand cancels an order with an optional reason.
type CancelOrderCommand struct {
	OrderID   string
	Reason    string
	Principal Principal
}

// PaymentInput describes a payment asserted by the caller. A zero Date means now.
type PaymentInput struct {
	Amount         int64
	Method         string
	Date           time.Time
	ConfirmationID string
	CashAppDetails *CashAppDetails
	CardDetails    *CardDetails
	Notes          string
}

// RecordPaymentCommand appends a payment to an order's ledger.
type RecordPaymentCommand struct {
	OrderID   string
	Payment   PaymentInput
	Principal Principal
}

// CashAppPaymentCommand records a peer-payment confirmation. Amount zero pays the outstanding
// balance. Principal may be anonymous for guest orders.
type CashAppPaymentCommand struct {
	OrderID        string
	Amount         int64
	ConfirmationID string
	Notes          string
	Principal      Principal
}

// PaymentResult carries the updated order and the affected ledger entry. Deduplicated is true
// when a repeated confirmation id corrected an existing entry instead of adding one.
type PaymentResult struct {
	Order        Order
	Payment      PaymentTransaction
	Deduplicated bool
}

// SetPaymentStatusCommand records staff verification of an order's payments.
type SetPaymentStatusCommand struct {
	OrderID   string
	Status    string
	Note      string
	Principal Principal
}
