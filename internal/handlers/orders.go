package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/crumbline/orders-api/internal/platform/auth"
	"github.com/crumbline/orders-api/internal/platform/httpx"
	"github.com/crumbline/orders-api/internal/services"
)

const (
	maxCreateOrderBodySize = 128 * 1024
	maxOrderUpdateBodySize = 8 * 1024
	defaultKeyHeader       = "Idempotency-Key"
)

// OrderHandlers exposes the order lifecycle and payment ledger endpoints.
type OrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	replay    func(http.Handler) http.Handler
	keyHeader string
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithPaymentReplay installs the middleware that replays responses for retried payment posts.
func WithPaymentReplay(mw func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.replay = mw
	}
}

// WithIdempotencyHeader names the header read as a fallback order creation key.
func WithIdempotencyHeader(name string) OrderHandlerOption {
	return func(h *OrderHandlers) {
		if name = strings.TrimSpace(name); name != "" {
			h.keyHeader = name
		}
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance. A nil authenticator leaves identity
// resolution to upstream middleware.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:     authn,
		orders:    orders,
		keyHeader: defaultKeyHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints. Order creation and cash-app payments accept guests;
// everything else needs a verified token.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	optional, required := passthrough, passthrough
	if h.authn != nil {
		optional = h.authn.OptionalFirebaseAuth()
		required = h.authn.RequireFirebaseAuth()
	}
	replay := passthrough
	if h.replay != nil {
		replay = h.replay
	}

	r.With(optional).Post("/", h.createOrder)
	r.With(optional, replay).Post("/{orderID}/payments/cashapp", h.processCashAppPayment)

	r.Group(func(authed chi.Router) {
		authed.Use(required)
		authed.Get("/", h.listOrders)
		authed.Get("/my-orders", h.listMyOrders)
		authed.Get("/{orderID}", h.getOrder)
		authed.Put("/{orderID}/status", h.updateStatus)
		authed.Put("/{orderID}/cancel", h.cancelOrder)
		authed.With(replay).Post("/{orderID}/payments", h.recordPayment)
		authed.Put("/{orderID}/payment-status", h.setPaymentStatus)
	})
}

func passthrough(next http.Handler) http.Handler { return next }

func (h *OrderHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, maxCreateOrderBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	cmd, err := req.toCommand(auth.PrincipalFromContext(ctx), r.Header.Get(h.keyHeader))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+result.Order.ID)
	}
	writeJSONResponse(w, status, createOrderResponse{ID: result.Order.ID, Created: result.Created})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, auth.PrincipalFromContext(ctx))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	page, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.ListMyOrders(ctx, services.ListMyOrdersQuery{
		Principal:    auth.PrincipalFromContext(ctx),
		TargetUserID: strings.TrimSpace(r.URL.Query().Get("userId")),
		Pagination:   page,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(result))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	page, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.ListOrders(ctx, services.ListOrdersQuery{
		Principal:  auth.PrincipalFromContext(ctx),
		Statuses:   parseFilterValues(r.URL.Query()["status"]),
		Pagination: page,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(result))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeJSONBody(r, maxOrderUpdateBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
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

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := decodeJSONBody(r, maxOrderUpdateBodySize, &req, true); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:   orderID,
		Reason:    req.Reason,
		Principal: auth.PrincipalFromContext(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func orderIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody), errors.Is(err, errInvalidJSON):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order store temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
