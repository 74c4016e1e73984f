package firestore

import (
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/crumbline/orders-api/internal/domain"
)

type orderDocument struct {
	UserID               string                 `firestore:"userId,omitempty"`
	Items                []orderItemDocument    `firestore:"items"`
	Subtotal             int64                  `firestore:"subtotal"`
	Tax                  int64                  `firestore:"tax"`
	Total                int64                  `firestore:"total"`
	Status               string                 `firestore:"status"`
	PaymentStatus        string                 `firestore:"paymentStatus"`
	AmountPaid           int64                  `firestore:"amountPaid"`
	BalanceDue           int64                  `firestore:"balanceDue"`
	StatusHistory        []historyEntryDocument `firestore:"statusHistory"`
	PaymentStatusHistory []historyEntryDocument `firestore:"paymentStatusHistory"`
	Payments             []paymentDocument      `firestore:"payments"`
	IdempotencyKey       string                 `firestore:"idempotencyKey"`
	CustomerInfo         customerInfoDocument   `firestore:"customerInfo"`
	DeliveryMethod       string                 `firestore:"deliveryMethod"`
	DeliveryInfo         *deliveryInfoDocument  `firestore:"deliveryInfo,omitempty"`
	PickupInfo           *pickupInfoDocument    `firestore:"pickupInfo,omitempty"`
	IsCustomOrder        bool                   `firestore:"isCustomOrder"`
	Notes                string                 `firestore:"notes,omitempty"`
	CreatedAt            time.Time              `firestore:"createdAt"`
	UpdatedAt            time.Time              `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID     string         `firestore:"productId"`
	Name          string         `firestore:"name"`
	UnitPrice     int64          `firestore:"unitPrice"`
	Quantity      int            `firestore:"quantity"`
	Customization map[string]any `firestore:"customization,omitempty"`
}

type historyEntryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	Note      string    `firestore:"note,omitempty"`
	UpdatedBy string    `firestore:"updatedBy,omitempty"`
}

type paymentDocument struct {
	ID             string                  `firestore:"id"`
	Amount         int64                   `firestore:"amount"`
	Method         string                  `firestore:"method"`
	Date           time.Time               `firestore:"date"`
	ConfirmationID string                  `firestore:"confirmationId,omitempty"`
	CashAppDetails *cashAppDetailsDocument `firestore:"cashAppDetails,omitempty"`
	CardDetails    *cardDetailsDocument    `firestore:"cardDetails,omitempty"`
	Notes          string                  `firestore:"notes,omitempty"`
	RecordedBy     string                  `firestore:"recordedBy,omitempty"`
	CreatedAt      time.Time               `firestore:"createdAt"`
	LastUpdated    time.Time               `firestore:"lastUpdated"`
}

type cashAppDetailsDocument struct {
	Cashtag        string `firestore:"cashtag,omitempty"`
	ConfirmationID string `firestore:"confirmationId,omitempty"`
}

type cardDetailsDocument struct {
	Brand    string `firestore:"brand,omitempty"`
	Last4    string `firestore:"last4,omitempty"`
	ExpMonth int    `firestore:"expMonth,omitempty"`
	ExpYear  int    `firestore:"expYear,omitempty"`
}

type customerInfoDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type addressDocument struct {
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
}

type deliveryInfoDocument struct {
	Address      addressDocument `firestore:"address"`
	Date         *time.Time      `firestore:"date,omitempty"`
	Instructions string          `firestore:"instructions,omitempty"`
}

type pickupInfoDocument struct {
	Date     *time.Time `firestore:"date,omitempty"`
	TimeSlot string     `firestore:"timeSlot,omitempty"`
	Location string     `firestore:"location,omitempty"`
}

func encodeOrder(order domain.Order) (any, error) {
	doc := orderDocument{
		UserID:         order.UserID,
		Subtotal:       order.Subtotal,
		Tax:            order.Tax,
		Total:          order.Total,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		AmountPaid:     order.AmountPaid,
		BalanceDue:     order.BalanceDue,
		IdempotencyKey: order.IdempotencyKey,
		CustomerInfo: customerInfoDocument{
			Name:  order.CustomerInfo.Name,
			Email: order.CustomerInfo.Email,
			Phone: order.CustomerInfo.Phone,
		},
		DeliveryMethod: string(order.DeliveryMethod),
		IsCustomOrder:  order.IsCustomOrder,
		Notes:          order.Notes,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:     item.ProductID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			Customization: item.Customization,
		})
	}

	doc.StatusHistory = make([]historyEntryDocument, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, historyEntryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	doc.PaymentStatusHistory = make([]historyEntryDocument, 0, len(order.PaymentStatusHistory))
	for _, entry := range order.PaymentStatusHistory {
		doc.PaymentStatusHistory = append(doc.PaymentStatusHistory, historyEntryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}

	doc.Payments = make([]paymentDocument, 0, len(order.Payments))
	for _, payment := range order.Payments {
		entry := paymentDocument{
			ID:             payment.ID,
			Amount:         payment.Amount,
			Method:         string(payment.Method),
			Date:           payment.Date.UTC(),
			ConfirmationID: payment.ConfirmationID,
			Notes:          payment.Notes,
			RecordedBy:     payment.RecordedBy,
			CreatedAt:      payment.CreatedAt.UTC(),
			LastUpdated:    payment.LastUpdated.UTC(),
		}
		if details := payment.CashAppDetails; details != nil {
			entry.CashAppDetails = &cashAppDetailsDocument{Cashtag: details.Cashtag, ConfirmationID: details.ConfirmationID}
		}
		if details := payment.CardDetails; details != nil {
			entry.CardDetails = &cardDetailsDocument{Brand: details.Brand, Last4: details.Last4, ExpMonth: details.ExpMonth, ExpYear: details.ExpYear}
		}
		doc.Payments = append(doc.Payments, entry)
	}

	if info := order.DeliveryInfo; info != nil {
		doc.DeliveryInfo = &deliveryInfoDocument{
			Address: addressDocument{
				Line1:      info.Address.Line1,
				Line2:      info.Address.Line2,
				City:       info.Address.City,
				State:      info.Address.State,
				PostalCode: info.Address.PostalCode,
			},
			Date:         utcPtr(info.Date),
			Instructions: info.Instructions,
		}
	}
	if info := order.PickupInfo; info != nil {
		doc.PickupInfo = &pickupInfoDocument{
			Date:     utcPtr(info.Date),
			TimeSlot: info.TimeSlot,
			Location: info.Location,
		}
	}
	return doc, nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:             snap.Ref.ID,
		UserID:         doc.UserID,
		Subtotal:       doc.Subtotal,
		Tax:            doc.Tax,
		Total:          doc.Total,
		Status:         domain.OrderStatus(doc.Status),
		PaymentStatus:  domain.PaymentStatus(doc.PaymentStatus),
		AmountPaid:     doc.AmountPaid,
		BalanceDue:     doc.BalanceDue,
		IdempotencyKey: doc.IdempotencyKey,
		CustomerInfo: domain.CustomerInfo{
			Name:  doc.CustomerInfo.Name,
			Email: doc.CustomerInfo.Email,
			Phone: doc.CustomerInfo.Phone,
		},
		DeliveryMethod: domain.DeliveryMethod(doc.DeliveryMethod),
		IsCustomOrder:  doc.IsCustomOrder,
		Notes:          doc.Notes,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
	}

	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:     item.ProductID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			Customization: item.Customization,
		})
	}
	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	for _, entry := range doc.PaymentStatusHistory {
		order.PaymentStatusHistory = append(order.PaymentStatusHistory, domain.PaymentStatusHistoryEntry{
			Status:    domain.PaymentStatus(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	for _, payment := range doc.Payments {
		tx := domain.PaymentTransaction{
			ID:             payment.ID,
			Amount:         payment.Amount,
			Method:         domain.PaymentMethod(payment.Method),
			Date:           payment.Date.UTC(),
			ConfirmationID: payment.ConfirmationID,
			Notes:          payment.Notes,
			RecordedBy:     payment.RecordedBy,
			CreatedAt:      payment.CreatedAt.UTC(),
			LastUpdated:    payment.LastUpdated.UTC(),
		}
		if details := payment.CashAppDetails; details != nil {
			tx.CashAppDetails = &domain.CashAppDetails{Cashtag: details.Cashtag, ConfirmationID: details.ConfirmationID}
		}
		if details := payment.CardDetails; details != nil {
			tx.CardDetails = &domain.CardDetails{Brand: details.Brand, Last4: details.Last4, ExpMonth: details.ExpMonth, ExpYear: details.ExpYear}
		}
		order.Payments = append(order.Payments, tx)
	}

	if info := doc.DeliveryInfo; info != nil {
		order.DeliveryInfo = &domain.DeliveryInfo{
			Address: domain.Address{
				Line1:      info.Address.Line1,
				Line2:      info.Address.Line2,
				City:       info.Address.City,
				State:      info.Address.State,
				PostalCode: info.Address.PostalCode,
			},
			Date:         utcPtr(info.Date),
			Instructions: info.Instructions,
		}
	}
	if info := doc.PickupInfo; info != nil {
		order.PickupInfo = &domain.PickupInfo{
			Date:     utcPtr(info.Date),
			TimeSlot: info.TimeSlot,
			Location: info.Location,
		}
	}
	return order, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := t.UTC()
	return &value
}
