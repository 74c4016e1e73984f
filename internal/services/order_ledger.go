package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	domain "github.com/crumbline/orders-api/internal/domain"
	"github.com/crumbline/orders-api/internal/platform/textutil"
)

const maxConfirmationIDLen = 128

var confirmationFolder = cases.Fold()

// RecordPayment appends a payment to the ledger and recomputes the derived balance. The only
// automatic payment status change is unpaid to pending on the first positive amount; partial and
// paid are set by staff through SetPaymentStatus once the payment has been verified.
func (s *orderService) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (PaymentResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := requireAuthenticated(cmd.Principal); err != nil {
		return PaymentResult{}, err
	}
	input, err := s.normalisePayment(cmd.Payment)
	if err != nil {
		return PaymentResult{}, err
	}

	var recorded PaymentTransaction
	order, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		if !CanRecordPayment(*order, cmd.Principal) {
			return fmt.Errorf("%w: only the order owner or an administrator may record payments", ErrOrderForbidden)
		}
		if input.Method == domain.PaymentMethodCashApp && input.ConfirmationID != "" {
			if idx := findCashAppPayment(order.Payments, input.ConfirmationID); idx >= 0 {
				return fmt.Errorf("%w: cash-app confirmation %s is already recorded", ErrOrderConflict, input.ConfirmationID)
			}
		}
		recorded = s.appendPayment(order, input, cmd.Principal)
		return nil
	})
	if err != nil {
		return PaymentResult{}, s.mapMutationError(err)
	}

	s.afterPayment(ctx, order, recorded, cmd.Principal)
	return PaymentResult{Order: order, Payment: recorded}, nil
}

// ProcessCashAppPayment records a peer-payment confirmation submitted by the payer or on their
// behalf. A confirmation id already present on the order, compared case-insensitively, corrects
// that entry in place and leaves the balance alone. Amount zero pays the balance due as read
// before the correction check.
func (s *orderService) ProcessCashAppPayment(ctx context.Context, cmd CashAppPaymentCommand) (PaymentResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	confirmationID := strings.TrimSpace(cmd.ConfirmationID)
	if confirmationID == "" {
		return PaymentResult{}, fmt.Errorf("%w: confirmationId is required", ErrOrderInvalidInput)
	}
	if len(confirmationID) > maxConfirmationIDLen {
		return PaymentResult{}, fmt.Errorf("%w: confirmationId exceeds %d characters", ErrOrderInvalidInput, maxConfirmationIDLen)
	}
	if cmd.Amount < 0 {
		return PaymentResult{}, fmt.Errorf("%w: amount must not be negative", ErrOrderInvalidInput)
	}
	notes := textutil.SanitizeText(cmd.Notes, maxNoteLength)

	var (
		result       PaymentTransaction
		deduplicated bool
	)
	order, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		deduplicated = false
		if cmd.Principal.Anonymous() {
			if order.UserID != "" {
				return fmt.Errorf("%w: sign in to pay for this order", ErrOrderUnauthenticated)
			}
		} else if !CanRecordPayment(*order, cmd.Principal) {
			return fmt.Errorf("%w: only the order owner or an administrator may record payments", ErrOrderForbidden)
		}

		amount := cmd.Amount
		if amount == 0 {
			amount = outstandingBalance(*order)
		}

		if idx := findCashAppPayment(order.Payments, confirmationID); idx >= 0 {
			now := s.now()
			existing := &order.Payments[idx]
			existing.ConfirmationID = confirmationID
			if existing.CashAppDetails != nil {
				existing.CashAppDetails.ConfirmationID = confirmationID
			}
			existing.LastUpdated = now
			if notes != "" {
				existing.Notes = notes
			}
			order.UpdatedAt = now
			result = existing.Clone()
			deduplicated = true
			return nil
		}

		if amount == 0 {
			return fmt.Errorf("%w: order has no outstanding balance", ErrOrderInvalidInput)
		}
		result = s.appendPayment(order, normalisedPayment{
			Amount:         amount,
			Method:         domain.PaymentMethodCashApp,
			Date:           s.now(),
			ConfirmationID: confirmationID,
			CashAppDetails: &CashAppDetails{ConfirmationID: confirmationID},
			Notes:          notes,
		}, cmd.Principal)
		return nil
	})
	if err != nil {
		return PaymentResult{}, s.mapMutationError(err)
	}

	if deduplicated {
		s.metrics.cashAppCorrected(ctx)
		s.logger(ctx, "order.payment.cashapp.deduplicated", map[string]any{
			"orderId":   order.ID,
			"paymentId": result.ID,
		})
		return PaymentResult{Order: order, Payment: result, Deduplicated: true}, nil
	}
	s.afterPayment(ctx, order, result, cmd.Principal)
	return PaymentResult{Order: order, Payment: result}, nil
}

// SetPaymentStatus records staff verification of the ledger, for example marking an order paid
// after reconciling cash-app confirmations.
func (s *orderService) SetPaymentStatus(ctx context.Context, cmd SetPaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParsePaymentStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Status)
	}
	if err := requireAuthenticated(cmd.Principal); err != nil {
		return Order{}, err
	}
	if !CanSetPaymentStatus(cmd.Principal) {
		return Order{}, fmt.Errorf("%w: only staff or administrators may verify payments", ErrOrderForbidden)
	}

	note := textutil.SanitizeText(cmd.Note, maxNoteLength)
	if note == "" {
		note = fmt.Sprintf("Payment status changed to %s", target)
	}

	var previous PaymentStatus
	order, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		previous = order.PaymentStatus
		s.applyPaymentStatus(order, target, note, cmd.Principal, s.now())
		return nil
	})
	if err != nil {
		return Order{}, s.mapMutationError(err)
	}

	s.logger(ctx, "order.payment_status.updated", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(target),
		"actorId": cmd.Principal.UID,
	})
	return order, nil
}

type normalisedPayment struct {
	Amount         int64
	Method         domain.PaymentMethod
	Date           time.Time
	ConfirmationID string
	CashAppDetails *CashAppDetails
	CardDetails    *CardDetails
	Notes          string
}

func (s *orderService) normalisePayment(input PaymentInput) (normalisedPayment, error) {
	if input.Amount == 0 {
		return normalisedPayment{}, fmt.Errorf("%w: amount must not be zero", ErrOrderInvalidInput)
	}
	method, ok := domain.ParsePaymentMethod(input.Method)
	if !ok {
		return normalisedPayment{}, fmt.Errorf("%w: method must be credit-card, cash or cash-app", ErrOrderInvalidInput)
	}
	out := normalisedPayment{
		Amount:         input.Amount,
		Method:         method,
		Date:           input.Date.UTC(),
		ConfirmationID: strings.TrimSpace(input.ConfirmationID),
		Notes:          textutil.SanitizeText(input.Notes, maxNoteLength),
	}
	if input.Date.IsZero() {
		out.Date = s.now()
	}
	if len(out.ConfirmationID) > maxConfirmationIDLen {
		return normalisedPayment{}, fmt.Errorf("%w: confirmationId exceeds %d characters", ErrOrderInvalidInput, maxConfirmationIDLen)
	}

	if details := input.CashAppDetails; details != nil {
		cashtag := strings.TrimSpace(details.Cashtag)
		confirmation := strings.TrimSpace(details.ConfirmationID)
		if out.ConfirmationID == "" {
			out.ConfirmationID = confirmation
		}
		out.CashAppDetails = &CashAppDetails{Cashtag: cashtag, ConfirmationID: confirmation}
	}
	if details := input.CardDetails; details != nil {
		last4 := strings.TrimSpace(details.Last4)
		if last4 != "" && !isFourDigits(last4) {
			return normalisedPayment{}, fmt.Errorf("%w: cardDetails.last4 must be exactly four digits", ErrOrderInvalidInput)
		}
		if details.ExpMonth < 0 || details.ExpMonth > 12 {
			return normalisedPayment{}, fmt.Errorf("%w: cardDetails.expMonth is out of range", ErrOrderInvalidInput)
		}
		out.CardDetails = &CardDetails{
			Brand:    strings.TrimSpace(details.Brand),
			Last4:    last4,
			ExpMonth: details.ExpMonth,
			ExpYear:  details.ExpYear,
		}
	}
	if out.CardDetails != nil && method != domain.PaymentMethodCreditCard {
		return normalisedPayment{}, fmt.Errorf("%w: cardDetails require method credit-card", ErrOrderInvalidInput)
	}
	return out, nil
}

// appendPayment adds the transaction, recomputes the derived totals, and applies the automatic
// unpaid to pending transition. It must run inside a repository mutation.
func (s *orderService) appendPayment(order *Order, input normalisedPayment, principal Principal) PaymentTransaction {
	now := s.now()
	tx := PaymentTransaction{
		ID:             s.nextPaymentID(),
		Amount:         input.Amount,
		Method:         input.Method,
		Date:           input.Date,
		ConfirmationID: input.ConfirmationID,
		CashAppDetails: input.CashAppDetails,
		CardDetails:    input.CardDetails,
		Notes:          input.Notes,
		RecordedBy:     actorID(principal),
		CreatedAt:      now,
		LastUpdated:    now,
	}
	order.Payments = append(order.Payments, tx)
	order.AmountPaid += input.Amount
	order.BalanceDue = domain.BalanceDue(order.Total, order.AmountPaid)
	order.UpdatedAt = now

	if input.Amount > 0 && (order.PaymentStatus == domain.PaymentStatusUnpaid || order.PaymentStatus == "") {
		note := fmt.Sprintf("Payment of %s recorded via %s. Balance due: %s", formatAmount(input.Amount), input.Method, formatAmount(order.BalanceDue))
		s.applyPaymentStatus(order, domain.PaymentStatusPending, note, principal, now)
	}
	return tx.Clone()
}

func (s *orderService) applyPaymentStatus(order *Order, target PaymentStatus, note string, principal Principal, now time.Time) {
	order.PaymentStatus = target
	order.PaymentStatusHistory = append(order.PaymentStatusHistory, domain.PaymentStatusHistoryEntry{
		Status:    target,
		Timestamp: now,
		Note:      note,
		UpdatedBy: actorID(principal),
	})
	order.UpdatedAt = now
}

func (s *orderService) afterPayment(ctx context.Context, order Order, payment PaymentTransaction, principal Principal) {
	s.metrics.paymentRecorded(ctx, payment)
	s.logger(ctx, "order.payment.recorded", map[string]any{
		"orderId":       order.ID,
		"paymentId":     payment.ID,
		"method":        string(payment.Method),
		"amount":        payment.Amount,
		"amountPaid":    order.AmountPaid,
		"balanceDue":    order.BalanceDue,
		"paymentStatus": string(order.PaymentStatus),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPaymentRecorded,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.PaymentStatus),
		ActorID:       actorID(principal),
		OccurredAt:    payment.CreatedAt,
		Metadata: map[string]any{
			"paymentId":  payment.ID,
			"method":     string(payment.Method),
			"amount":     payment.Amount,
			"amountPaid": order.AmountPaid,
			"balanceDue": order.BalanceDue,
		},
	})
}

// outstandingBalance is the amount a zero-amount cash-app submission pays. Orders that never
// received a payment owe their total.
func outstandingBalance(order Order) int64 {
	if len(order.Payments) == 0 && order.AmountPaid == 0 {
		return order.Total
	}
	return order.BalanceDue
}

func findCashAppPayment(payments []PaymentTransaction, confirmationID string) int {
	want := confirmationFolder.String(strings.TrimSpace(confirmationID))
	if want == "" {
		return -1
	}
	for i, payment := range payments {
		if payment.Method != domain.PaymentMethodCashApp {
			continue
		}
		if confirmationFolder.String(strings.TrimSpace(payment.ConfirmationID)) == want {
			return i
		}
	}
	return -1
}

func isFourDigits(value string) bool {
	if len(value) != 4 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
