package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/crumbline/orders-api/internal/domain"
	"github.com/crumbline/orders-api/internal/platform/pagination"
	"github.com/crumbline/orders-api/internal/platform/textutil"
	"github.com/crumbline/orders-api/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentRecorded = "order.payment.recorded"

	orderIDPrefix        = "ord_"
	paymentIDPrefix      = "pay_"
	generatedKeyPrefix   = "gen_"
	guestActor           = "guest"
	maxIdempotencyKeyLen = 255
	maxNoteLength        = 1000
	maxItemsPerOrder     = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the principal lacks permission for the operation.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderUnauthenticated indicates the operation requires an authenticated principal.
	ErrOrderUnauthenticated = errors.New("order: unauthenticated")
	// ErrOrderConflict indicates the request conflicts with the current state of the order.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderInvalidState indicates the order's status forbids the change. It matches ErrOrderConflict.
	ErrOrderInvalidState = fmt.Errorf("%w: invalid status transition", ErrOrderConflict)
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: store unavailable")
)

// OrderEventPublisher publishes order domain events for downstream consumers such as the
// confirmation mailer.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	UserID         string         `json:"userId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders             repositories.OrderRepository
	Clock              func() time.Time
	IDGenerator        func() string
	Events             OrderEventPublisher
	Meter              metric.Meter
	Logger             func(ctx context.Context, event string, fields map[string]any)
	DefaultPageSize    int
	MaxPageSize        int
	GuestOrdersEnabled bool
	// EventTimeout bounds each notification publish. EventBuffer caps events waiting to be
	// published; further events are dropped and logged.
	EventTimeout time.Duration
	EventBuffer  int
}

type orderService struct {
	orders          repositories.OrderRepository
	guard           idempotencyGuard
	clock           func() time.Time
	newID           func() string
	events          *eventDispatcher
	metrics         orderMetrics
	logger          func(context.Context, string, map[string]any)
	defaultPageSize int
	maxPageSize     int
	allowGuests     bool
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	defaultPageSize := deps.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = pagination.DefaultPageSize
	}
	maxPageSize := deps.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = pagination.DefaultMaxPageSize
	}

	svc := &orderService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:           idGen,
		events:          newEventDispatcher(deps.Events, deps.EventTimeout, deps.EventBuffer, logger),
		logger:          logger,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		allowGuests:     deps.GuestOrdersEnabled,
	}
	svc.guard = idempotencyGuard{orders: deps.Orders, newKey: func() string { return generatedKeyPrefix + idGen() }}
	svc.metrics = newOrderMetrics(deps.Meter, func(name string, err error) {
		logger(context.Background(), "order.metrics.register.failed", map[string]any{"instrument": name, "error": err.Error()})
	})
	return svc, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	principal := cmd.Principal
	if principal.Anonymous() && !s.allowGuests {
		return CreateOrderResult{}, fmt.Errorf("%w: guest checkout is disabled", ErrOrderUnauthenticated)
	}

	now := s.now()
	draft, err := s.buildOrder(cmd, now)
	if err != nil {
		return CreateOrderResult{}, err
	}

	key, generated, err := s.guard.resolveKey(cmd.IdempotencyKey)
	if err != nil {
		return CreateOrderResult{}, err
	}
	draft.IdempotencyKey = key

	if !generated {
		existing, found, err := s.guard.lookup(ctx, key, draft.UserID)
		if err != nil {
			return CreateOrderResult{}, s.mapRepositoryError(err)
		}
		if found {
			s.metrics.duplicate(ctx, "lookup")
			s.logger(ctx, "order.create.duplicate", map[string]any{"orderId": existing.ID, "source": "lookup"})
			return CreateOrderResult{Order: existing, Created: false}, nil
		}
	}

	draft.ID = orderIDPrefix + s.newID()
	stored, inserted, err := s.orders.Insert(ctx, draft)
	if err != nil {
		return CreateOrderResult{}, s.mapRepositoryError(err)
	}
	if !inserted {
		s.metrics.duplicate(ctx, "insert")
		s.logger(ctx, "order.create.duplicate", map[string]any{"orderId": stored.ID, "source": "insert"})
		return CreateOrderResult{Order: stored, Created: false}, nil
	}

	s.metrics.created(ctx, stored)
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       stored.ID,
		UserID:        stored.UserID,
		CurrentStatus: string(stored.Status),
		ActorID:       actorID(principal),
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":          stored.Total,
			"deliveryMethod": string(stored.DeliveryMethod),
			"customerEmail":  stored.CustomerInfo.Email,
			"isCustomOrder":  stored.IsCustomOrder,
		},
	})
	return CreateOrderResult{Order: stored, Created: true}, nil
}

func (s *orderService) buildOrder(cmd CreateOrderCommand, now time.Time) (Order, error) {
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) > maxItemsPerOrder {
		return Order{}, fmt.Errorf("%w: at most %d items are allowed", ErrOrderInvalidInput, maxItemsPerOrder)
	}
	items := make([]OrderItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return Order{}, fmt.Errorf("%w: items[%d].productId is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: items[%d].quantity must be positive", ErrOrderInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return Order{}, fmt.Errorf("%w: items[%d].unitPrice must not be negative", ErrOrderInvalidInput, i)
		}
		cleaned := OrderItem{
			ProductID: productID,
			Name:      textutil.SanitizeText(item.Name, 200),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
		if len(item.Customization) > 0 {
			if custom, ok := textutil.SanitizeAny(item.Customization, maxNoteLength).(map[string]any); ok {
				cleaned.Customization = custom
			}
		}
		items = append(items, cleaned)
	}

	if cmd.Subtotal < 0 || cmd.Tax < 0 || cmd.Total < 0 {
		return Order{}, fmt.Errorf("%w: subtotal, tax and total must not be negative", ErrOrderInvalidInput)
	}
	if cmd.Total == 0 {
		return Order{}, fmt.Errorf("%w: total is required", ErrOrderInvalidInput)
	}

	customer := CustomerInfo{
		Name:  textutil.SanitizeText(cmd.CustomerInfo.Name, 200),
		Email: strings.TrimSpace(cmd.CustomerInfo.Email),
		Phone: strings.TrimSpace(cmd.CustomerInfo.Phone),
	}
	if customer.Name == "" {
		return Order{}, fmt.Errorf("%w: customerInfo.name is required", ErrOrderInvalidInput)
	}
	if customer.Email == "" {
		return Order{}, fmt.Errorf("%w: customerInfo.email is required", ErrOrderInvalidInput)
	}
	if _, err := mail.ParseAddress(customer.Email); err != nil {
		return Order{}, fmt.Errorf("%w: customerInfo.email is invalid", ErrOrderInvalidInput)
	}

	method, ok := domain.ParseDeliveryMethod(cmd.DeliveryMethod)
	if !ok {
		return Order{}, fmt.Errorf("%w: deliveryMethod must be delivery or pickup", ErrOrderInvalidInput)
	}

	order := Order{
		UserID:         strings.TrimSpace(cmd.Principal.UID),
		Items:          items,
		Subtotal:       cmd.Subtotal,
		Tax:            cmd.Tax,
		Total:          cmd.Total,
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusUnpaid,
		AmountPaid:     0,
		BalanceDue:     domain.BalanceDue(cmd.Total, 0),
		Payments:       []PaymentTransaction{},
		CustomerInfo:   customer,
		DeliveryMethod: method,
		IsCustomOrder:  cmd.IsCustomOrder,
		Notes:          textutil.SanitizeText(cmd.Notes, maxNoteLength),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch method {
	case domain.DeliveryMethodDelivery:
		info := cmd.DeliveryInfo
		if info == nil {
			return Order{}, fmt.Errorf("%w: deliveryInfo is required for delivery orders", ErrOrderInvalidInput)
		}
		addr := info.Address
		addr.Line1 = strings.TrimSpace(addr.Line1)
		addr.Line2 = strings.TrimSpace(addr.Line2)
		addr.City = strings.TrimSpace(addr.City)
		addr.State = strings.TrimSpace(addr.State)
		addr.PostalCode = strings.TrimSpace(addr.PostalCode)
		if addr.Line1 == "" || addr.City == "" || addr.PostalCode == "" {
			return Order{}, fmt.Errorf("%w: deliveryInfo.address requires line1, city and postalCode", ErrOrderInvalidInput)
		}
		order.DeliveryInfo = &DeliveryInfo{
			Address:      addr,
			Date:         utcPtr(info.Date),
			Instructions: textutil.SanitizeText(info.Instructions, maxNoteLength),
		}
	case domain.DeliveryMethodPickup:
		info := cmd.PickupInfo
		if info == nil {
			return Order{}, fmt.Errorf("%w: pickupInfo is required for pickup orders", ErrOrderInvalidInput)
		}
		order.PickupInfo = &PickupInfo{
			Date:     utcPtr(info.Date),
			TimeSlot: strings.TrimSpace(info.TimeSlot),
			Location: strings.TrimSpace(info.Location),
		}
	}

	actor := actorID(cmd.Principal)
	order.StatusHistory = []domain.StatusHistoryEntry{{
		Status:    domain.OrderStatusPending,
		Timestamp: now,
		Note:      "Order created",
		UpdatedBy: actor,
	}}
	order.PaymentStatusHistory = []domain.PaymentStatusHistoryEntry{{
		Status:    domain.PaymentStatusUnpaid,
		Timestamp: now,
		Note:      "Order created",
		UpdatedBy: actor,
	}}
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, principal Principal) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := requireAuthenticated(principal); err != nil {
		return Order{}, err
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !CanReadOrder(order, principal) {
		return Order{}, fmt.Errorf("%w: order %s is not visible to this user", ErrOrderForbidden, orderID)
	}
	return order, nil
}

func (s *orderService) ListMyOrders(ctx context.Context, query ListMyOrdersQuery) (domain.CursorPage[Order], error) {
	if err := requireAuthenticated(query.Principal); err != nil {
		return domain.CursorPage[Order]{}, err
	}
	target := strings.TrimSpace(query.TargetUserID)
	if !CanReadHistoryOf(query.Principal, target) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: only administrators may read another user's orders", ErrOrderForbidden)
	}
	if target == "" {
		target = query.Principal.UID
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     target,
		Pagination: s.normalisePagination(query.Pagination),
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error) {
	if err := requireAuthenticated(query.Principal); err != nil {
		return domain.CursorPage[Order]{}, err
	}
	if !CanListAll(query.Principal) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: listing all orders requires an administrator", ErrOrderForbidden)
	}

	statuses := make([]OrderStatus, 0, len(query.Statuses))
	seen := make(map[OrderStatus]bool, len(query.Statuses))
	for _, raw := range query.Statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		if !seen[status] {
			seen[status] = true
			statuses = append(statuses, status)
		}
	}
	if len(statuses) > 10 {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: at most 10 statuses may be combined", ErrOrderInvalidInput)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		Statuses:   statuses,
		Pagination: s.normalisePagination(query.Pagination),
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) normalisePagination(p Pagination) Pagination {
	return Pagination{
		PageSize:  pagination.Clamp(p.PageSize, s.defaultPageSize, s.maxPageSize),
		PageToken: strings.TrimSpace(p.PageToken),
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextPaymentID() string {
	return paymentIDPrefix + s.newID()
}

// publishEvent queues a best-effort notification; failures are logged by the dispatcher.
func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	s.events.enqueue(ctx, event)
}

// DrainEvents waits until queued notifications have been handed to the publisher.
func (s *orderService) DrainEvents(ctx context.Context) error {
	return s.events.drain(ctx)
}

func actorID(principal Principal) string {
	if uid := strings.TrimSpace(principal.UID); uid != "" {
		return uid
	}
	return guestActor
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.UTC()
	return &value
}
