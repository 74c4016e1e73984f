package handlers

import (
	"errors"
	"strings"

	domain "github.com/crumbline/orders-api/internal/domain"
	"github.com/crumbline/orders-api/internal/services"
)

type createOrderRequest struct {
	IdempotencyKey string               `json:"idempotencyKey"`
	Items          []orderItemRequest   `json:"items"`
	Subtotal       int64                `json:"subtotal"`
	Tax            int64                `json:"tax"`
	Total          int64                `json:"total"`
	CustomerInfo   customerInfoPayload  `json:"customerInfo"`
	DeliveryMethod string               `json:"deliveryMethod"`
	DeliveryInfo   *deliveryInfoRequest `json:"deliveryInfo"`
	PickupInfo     *pickupInfoRequest   `json:"pickupInfo"`
	IsCustomOrder  bool                 `json:"isCustomOrder"`
	Notes          string               `json:"notes"`
}

type orderItemRequest struct {
	ProductID     string         `json:"productId"`
	Name          string         `json:"name"`
	UnitPrice     int64          `json:"unitPrice"`
	Quantity      int            `json:"quantity"`
	Customization map[string]any `json:"customization"`
}

type customerInfoPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type addressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
}

type deliveryInfoRequest struct {
	Address      addressPayload `json:"address"`
	Date         *string        `json:"date"`
	Instructions string         `json:"instructions"`
}

type pickupInfoRequest struct {
	Date     *string `json:"date"`
	TimeSlot string  `json:"timeSlot"`
	Location string  `json:"location"`
}

func (req createOrderRequest) toCommand(principal domain.Principal, headerKey string) (services.CreateOrderCommand, error) {
	cmd := services.CreateOrderCommand{
		Principal:      principal,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Subtotal:       req.Subtotal,
		Tax:            req.Tax,
		Total:          req.Total,
		CustomerInfo: services.CustomerInfo{
			Name:  req.CustomerInfo.Name,
			Email: req.CustomerInfo.Email,
			Phone: req.CustomerInfo.Phone,
		},
		DeliveryMethod: req.DeliveryMethod,
		IsCustomOrder:  req.IsCustomOrder,
		Notes:          req.Notes,
	}
	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = strings.TrimSpace(headerKey)
	}

	cmd.Items = make([]services.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderItem{
			ProductID:     item.ProductID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			Customization: item.Customization,
		})
	}

	if req.DeliveryInfo != nil {
		date, err := parseOptionalTime(req.DeliveryInfo.Date)
		if err != nil {
			return services.CreateOrderCommand{}, errors.New("deliveryInfo.date must be an RFC3339 timestamp")
		}
		addr := req.DeliveryInfo.Address
		cmd.DeliveryInfo = &services.DeliveryInfo{
			Address: domain.Address{
				Line1:      addr.Line1,
				Line2:      addr.Line2,
				City:       addr.City,
				State:      addr.State,
				PostalCode: addr.PostalCode,
			},
			Date:         date,
			Instructions: req.DeliveryInfo.Instructions,
		}
	}
	if req.PickupInfo != nil {
		date, err := parseOptionalTime(req.PickupInfo.Date)
		if err != nil {
			return services.CreateOrderCommand{}, errors.New("pickupInfo.date must be an RFC3339 timestamp")
		}
		cmd.PickupInfo = &services.PickupInfo{
			Date:     date,
			TimeSlot: req.PickupInfo.TimeSlot,
			Location: req.PickupInfo.Location,
		}
	}
	return cmd, nil
}

type createOrderResponse struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

type statusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type paymentRequest struct {
	Amount         *int64                 `json:"amount"`
	Method         string                 `json:"method"`
	Date           *string                `json:"date"`
	ConfirmationID string                 `json:"confirmationId"`
	CashAppDetails *cashAppDetailsPayload `json:"cashAppDetails"`
	CardDetails    *cardDetailsRequest    `json:"cardDetails"`
	Notes          string                 `json:"notes"`
}

type cashAppDetailsPayload struct {
	Cashtag        string `json:"cashtag,omitempty"`
	ConfirmationID string `json:"confirmationId,omitempty"`
}

// cardDetailsRequest names the raw card fields only so they can be refused.
type cardDetailsRequest struct {
	Brand      string `json:"brand"`
	Last4      string `json:"last4"`
	ExpMonth   int    `json:"expMonth"`
	ExpYear    int    `json:"expYear"`
	Number     string `json:"number"`
	CardNumber string `json:"cardNumber"`
	CVV        string `json:"cvv"`
	CVC        string `json:"cvc"`
}

func (req paymentRequest) toInput() (services.PaymentInput, error) {
	if req.Amount == nil {
		return services.PaymentInput{}, errors.New("amount is required")
	}
	input := services.PaymentInput{
		Amount:         *req.Amount,
		Method:         req.Method,
		ConfirmationID: req.ConfirmationID,
		Notes:          req.Notes,
	}
	if req.Date != nil && strings.TrimSpace(*req.Date) != "" {
		date, err := parseTimeParam(*req.Date)
		if err != nil {
			return services.PaymentInput{}, errors.New("date must be an RFC3339 timestamp")
		}
		input.Date = date
	}
	if req.CashAppDetails != nil {
		input.CashAppDetails = &services.CashAppDetails{
			Cashtag:        req.CashAppDetails.Cashtag,
			ConfirmationID: req.CashAppDetails.ConfirmationID,
		}
	}
	if card := req.CardDetails; card != nil {
		if card.Number != "" || card.CardNumber != "" || card.CVV != "" || card.CVC != "" {
			return services.PaymentInput{}, errors.New("card numbers and security codes must not be submitted")
		}
		input.CardDetails = &services.CardDetails{
			Brand:    card.Brand,
			Last4:    card.Last4,
			ExpMonth: card.ExpMonth,
			ExpYear:  card.ExpYear,
		}
	}
	return input, nil
}

type cashAppRequest struct {
	Amount         int64  `json:"amount"`
	ConfirmationID string `json:"confirmationId"`
	Notes          string `json:"notes"`
}

type paymentStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

// paymentResponse carries the full order only for callers allowed to read it. Guests paying by
// cash-app get the payment and the ledger totals.
type paymentResponse struct {
	Order        *orderPayload        `json:"order,omitempty"`
	Ledger       ledgerSummaryPayload `json:"ledger"`
	Payment      paymentPayload       `json:"payment"`
	Deduplicated bool                 `json:"deduplicated"`
}

type ledgerSummaryPayload struct {
	OrderID       string `json:"orderId"`
	AmountPaid    int64  `json:"amountPaid"`
	BalanceDue    int64  `json:"balanceDue"`
	PaymentStatus string `json:"paymentStatus"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderPayload struct {
	ID                   string               `json:"id"`
	UserID               string               `json:"userId,omitempty"`
	Items                []orderItemPayload   `json:"items"`
	Subtotal             int64                `json:"subtotal"`
	Tax                  int64                `json:"tax"`
	Total                int64                `json:"total"`
	Status               string               `json:"status"`
	PaymentStatus        string               `json:"paymentStatus"`
	AmountPaid           int64                `json:"amountPaid"`
	BalanceDue           int64                `json:"balanceDue"`
	StatusHistory        []statusEntryPayload `json:"statusHistory"`
	PaymentStatusHistory []statusEntryPayload `json:"paymentStatusHistory"`
	Payments             []paymentPayload     `json:"payments"`
	IdempotencyKey       string               `json:"idempotencyKey,omitempty"`
	CustomerInfo         customerInfoPayload  `json:"customerInfo"`
	DeliveryMethod       string               `json:"deliveryMethod"`
	DeliveryInfo         *deliveryInfoPayload `json:"deliveryInfo,omitempty"`
	PickupInfo           *pickupInfoPayload   `json:"pickupInfo,omitempty"`
	IsCustomOrder        bool                 `json:"isCustomOrder"`
	Notes                string               `json:"notes,omitempty"`
	CreatedAt            string               `json:"createdAt"`
	UpdatedAt            string               `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ProductID     string         `json:"productId"`
	Name          string         `json:"name"`
	UnitPrice     int64          `json:"unitPrice"`
	Quantity      int            `json:"quantity"`
	Customization map[string]any `json:"customization,omitempty"`
}

type deliveryInfoPayload struct {
	Address      addressPayload `json:"address"`
	Date         string         `json:"date,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
}

type pickupInfoPayload struct {
	Date     string `json:"date,omitempty"`
	TimeSlot string `json:"timeSlot,omitempty"`
	Location string `json:"location,omitempty"`
}

type statusEntryPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Note      string `json:"note,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

type paymentPayload struct {
	ID             string                 `json:"id"`
	Amount         int64                  `json:"amount"`
	Method         string                 `json:"method"`
	Date           string                 `json:"date"`
	ConfirmationID string                 `json:"confirmationId,omitempty"`
	CashAppDetails *cashAppDetailsPayload `json:"cashAppDetails,omitempty"`
	CardDetails    *cardDetailsPayload    `json:"cardDetails,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	RecordedBy     string                 `json:"recordedBy,omitempty"`
	CreatedAt      string                 `json:"createdAt"`
	LastUpdated    string                 `json:"lastUpdated,omitempty"`
}

type cardDetailsPayload struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"expMonth,omitempty"`
	ExpYear  int    `json:"expYear,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                   order.ID,
		UserID:               order.UserID,
		Items:                make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:             order.Subtotal,
		Tax:                  order.Tax,
		Total:                order.Total,
		Status:               string(order.Status),
		PaymentStatus:        string(order.PaymentStatus),
		AmountPaid:           order.AmountPaid,
		BalanceDue:           order.BalanceDue,
		StatusHistory:        make([]statusEntryPayload, 0, len(order.StatusHistory)),
		PaymentStatusHistory: make([]statusEntryPayload, 0, len(order.PaymentStatusHistory)),
		Payments:             make([]paymentPayload, 0, len(order.Payments)),
		IdempotencyKey:       order.IdempotencyKey,
		CustomerInfo: customerInfoPayload{
			Name:  order.CustomerInfo.Name,
			Email: order.CustomerInfo.Email,
			Phone: order.CustomerInfo.Phone,
		},
		DeliveryMethod: string(order.DeliveryMethod),
		IsCustomOrder:  order.IsCustomOrder,
		Notes:          order.Notes,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:     item.ProductID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			Customization: item.Customization,
		})
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusEntryPayload{
			Status:    string(entry.Status),
			Timestamp: formatTime(entry.Timestamp),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	for _, entry := range order.PaymentStatusHistory {
		payload.PaymentStatusHistory = append(payload.PaymentStatusHistory, statusEntryPayload{
			Status:    string(entry.Status),
			Timestamp: formatTime(entry.Timestamp),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	for _, payment := range order.Payments {
		payload.Payments = append(payload.Payments, buildPaymentPayload(payment))
	}
	if info := order.DeliveryInfo; info != nil {
		payload.DeliveryInfo = &deliveryInfoPayload{
			Address: addressPayload{
				Line1:      info.Address.Line1,
				Line2:      info.Address.Line2,
				City:       info.Address.City,
				State:      info.Address.State,
				PostalCode: info.Address.PostalCode,
			},
			Date:         formatTimePointer(info.Date),
			Instructions: info.Instructions,
		}
	}
	if info := order.PickupInfo; info != nil {
		payload.PickupInfo = &pickupInfoPayload{
			Date:     formatTimePointer(info.Date),
			TimeSlot: info.TimeSlot,
			Location: info.Location,
		}
	}
	return payload
}

func buildPaymentPayload(payment services.PaymentTransaction) paymentPayload {
	payload := paymentPayload{
		ID:             payment.ID,
		Amount:         payment.Amount,
		Method:         string(payment.Method),
		Date:           formatTime(payment.Date),
		ConfirmationID: payment.ConfirmationID,
		Notes:          payment.Notes,
		RecordedBy:     payment.RecordedBy,
		CreatedAt:      formatTime(payment.CreatedAt),
		LastUpdated:    formatTime(payment.LastUpdated),
	}
	if details := payment.CashAppDetails; details != nil {
		payload.CashAppDetails = &cashAppDetailsPayload{Cashtag: details.Cashtag, ConfirmationID: details.ConfirmationID}
	}
	if details := payment.CardDetails; details != nil {
		payload.CardDetails = &cardDetailsPayload{
			Brand:    details.Brand,
			Last4:    details.Last4,
			ExpMonth: details.ExpMonth,
			ExpYear:  details.ExpYear,
		}
	}
	return payload
}

func buildOrderList(page domain.CursorPage[services.Order]) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	return orderListResponse{Items: items, NextPageToken: strings.TrimSpace(page.NextPageToken)}
}
