package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricNamespace = "github.com/crumbline/orders-api/internal/services"

// orderMetrics holds the ledger and creation counters. Instruments that fail to register stay nil
// and are skipped.
type orderMetrics struct {
	ordersCreated    metric.Int64Counter
	duplicateCreates metric.Int64Counter
	paymentsRecorded metric.Int64Counter
	amountRecorded   metric.Int64Counter
	cashAppCorrects  metric.Int64Counter
}

func newOrderMetrics(meter metric.Meter, onError func(name string, err error)) orderMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	register := func(name, description, unit string) metric.Int64Counter {
		counter, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
		if err != nil {
			if onError != nil {
				onError(name, err)
			}
			return nil
		}
		return counter
	}
	return orderMetrics{
		ordersCreated:    register("orders.created", "Orders created", "{order}"),
		duplicateCreates: register("orders.create.duplicates", "Order creations collapsed onto an existing order by idempotency key", "{request}"),
		paymentsRecorded: register("orders.payments.recorded", "Payment transactions appended to order ledgers", "{payment}"),
		amountRecorded:   register("orders.payments.amount", "Sum of recorded payment amounts in minor units", "1"),
		cashAppCorrects:  register("orders.payments.cashapp.deduplicated", "Repeated cash-app confirmations applied as corrections", "{payment}"),
	}
}

func (m orderMetrics) created(ctx context.Context, order Order) {
	if m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("delivery_method", string(order.DeliveryMethod)),
		attribute.Bool("guest", order.UserID == ""),
	))
}

func (m orderMetrics) duplicate(ctx context.Context, source string) {
	if m.duplicateCreates == nil {
		return
	}
	m.duplicateCreates.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m orderMetrics) paymentRecorded(ctx context.Context, payment PaymentTransaction) {
	attrs := metric.WithAttributes(attribute.String("method", string(payment.Method)))
	if m.paymentsRecorded != nil {
		m.paymentsRecorded.Add(ctx, 1, attrs)
	}
	if m.amountRecorded != nil {
		m.amountRecorded.Add(ctx, payment.Amount, attrs)
	}
}

func (m orderMetrics) cashAppCorrected(ctx context.Context) {
	if m.cashAppCorrects == nil {
		return
	}
	m.cashAppCorrects.Add(ctx, 1)
}
