package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/crumbline/orders-api/internal/domain"
	"github.com/crumbline/orders-api/internal/platform/textutil"
	"github.com/crumbline/orders-api/internal/repositories"
)

// UpdateStatus applies a staff or admin status change. Only terminal statuses block a
// transition; any non-terminal status may move to any other status, including backwards.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	if err := requireAuthenticated(cmd.Principal); err != nil {
		return Order{}, err
	}
	if !CanUpdateStatus(cmd.Principal) {
		return Order{}, fmt.Errorf("%w: only staff or administrators may change order status", ErrOrderForbidden)
	}

	note := textutil.SanitizeText(cmd.Note, maxNoteLength)
	if note == "" {
		note = fmt.Sprintf("Status changed to %s", target)
	}

	var previous OrderStatus
	order, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		previous = order.Status
		if order.Status.Terminal() {
			return fmt.Errorf("%w: order is %s", ErrOrderInvalidState, order.Status)
		}
		s.applyStatus(order, target, note, cmd.Principal)
		return nil
	})
	if err != nil {
		return Order{}, s.mapMutationError(err)
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId":   order.ID,
		"from":      string(previous),
		"to":        string(target),
		"actorId":   cmd.Principal.UID,
		"actorRole": string(cmd.Principal.Role),
	})
	s.publishStatusChanged(ctx, order, previous, cmd.Principal, note)
	return order, nil
}

// Cancel moves the order to cancelled under the narrower cancellation rules: the owner while
// pending or approved, an administrator until the order has been handed over.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := requireAuthenticated(cmd.Principal); err != nil {
		return Order{}, err
	}

	note := textutil.SanitizeText(cmd.Reason, maxNoteLength)
	if note == "" {
		note = "Order cancelled"
	}

	var previous OrderStatus
	order, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		previous = order.Status
		if err := checkCancel(*order, cmd.Principal); err != nil {
			return err
		}
		s.applyStatus(order, domain.OrderStatusCancelled, note, cmd.Principal)
		return nil
	})
	if err != nil {
		return Order{}, s.mapMutationError(err)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"actorId": cmd.Principal.UID,
	})
	s.publishStatusChanged(ctx, order, previous, cmd.Principal, note)
	return order, nil
}

func (s *orderService) applyStatus(order *Order, target OrderStatus, note string, principal Principal) {
	now := s.now()
	order.Status = target
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:    target,
		Timestamp: now,
		Note:      note,
		UpdatedBy: actorID(principal),
	})
	order.UpdatedAt = now
}

func (s *orderService) publishStatusChanged(ctx context.Context, order Order, previous OrderStatus, principal Principal, note string) {
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actorID(principal),
		OccurredAt:     order.UpdatedAt,
		Metadata: map[string]any{
			"note":          note,
			"customerEmail": order.CustomerInfo.Email,
		},
	})
}

// mapMutationError keeps service errors raised inside a mutation intact and classifies store errors.
func (s *orderService) mapMutationError(err error) error {
	for _, sentinel := range []error{
		ErrOrderInvalidInput,
		ErrOrderForbidden,
		ErrOrderUnauthenticated,
		ErrOrderConflict,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return s.mapRepositoryError(err)
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
