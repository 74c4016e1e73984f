package handlers

import (
	"net/http"

	"github.com/crumbline/orders-api/internal/platform/auth"
	"github.com/crumbline/orders-api/internal/platform/httpx"
	"github.com/crumbline/orders-api/internal/services"
)

const maxPaymentBodySize = 8 * 1024

func (h *OrderHandlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := decodeJSONBody(r, maxPaymentBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.RecordPayment(ctx, services.RecordPaymentCommand{
		OrderID:   orderID,
		Payment:   input,
		Principal: auth.PrincipalFromContext(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writePaymentResult(w, result, auth.PrincipalFromContext(ctx))
}

func (h *OrderHandlers) processCashAppPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	var req cashAppRequest
	if err := decodeJSONBody(r, maxPaymentBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.orders.ProcessCashAppPayment(ctx, services.CashAppPaymentCommand{
		OrderID:        orderID,
		Amount:         req.Amount,
		ConfirmationID: req.ConfirmationID,
		Notes:          req.Notes,
		Principal:      auth.PrincipalFromContext(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writePaymentResult(w, result, auth.PrincipalFromContext(ctx))
}

func (h *OrderHandlers) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	var req paymentStatusRequest
	if err := decodeJSONBody(r, maxOrderUpdateBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.SetPaymentStatus(ctx, services.SetPaymentStatusCommand{
		OrderID:   orderID,
		Status:    req.Status,
		Note:      req.Note,
		Principal: auth.PrincipalFromContext(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// writePaymentResult answers 201 for a new ledger entry and 200 when a repeated confirmation
// corrected an existing one. The order itself is included only when the caller may read it.
func writePaymentResult(w http.ResponseWriter, result services.PaymentResult, principal services.Principal) {
	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	resp := paymentResponse{
		Ledger: ledgerSummaryPayload{
			OrderID:       result.Order.ID,
			AmountPaid:    result.Order.AmountPaid,
			BalanceDue:    result.Order.BalanceDue,
			PaymentStatus: string(result.Order.PaymentStatus),
		},
		Payment:      buildPaymentPayload(result.Payment),
		Deduplicated: result.Deduplicated,
	}
	if services.CanReadOrder(result.Order, principal) {
		order := buildOrderPayload(result.Order)
		resp.Order = &order
	}
	writeJSONResponse(w, status, resp)
}
