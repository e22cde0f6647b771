package billing

import (
	"context"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// InvoiceActivityLogger subscribes to invoice lifecycle events and writes
// them to the structured log, giving operators a per-clinic activity feed
// without querying the audit tables.
type InvoiceActivityLogger struct {
	logger *zap.Logger
}

// NewInvoiceActivityLogger creates a new InvoiceActivityLogger
func NewInvoiceActivityLogger(logger *zap.Logger) *InvoiceActivityLogger {
	return &InvoiceActivityLogger{logger: logger}
}

// EventTypes returns the invoice lifecycle event types this handler consumes
func (h *InvoiceActivityLogger) EventTypes() []string {
	return []string{
		"InvoiceCreated",
		"InvoicePaid",
		"InvoicePartiallyPaid",
		"InvoiceRefunded",
	}
}

// Handle logs one lifecycle event
func (h *InvoiceActivityLogger) Handle(_ context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("clinic_id", event.ClinicID().String()),
		zap.String("invoice_id", event.AggregateID().String()),
	}

	switch e := event.(type) {
	case *billing.InvoiceCreatedEvent:
		fields = append(fields,
			zap.String("invoice_number", e.InvoiceNumber),
			zap.String("patient_id", e.PatientID.String()),
			zap.String("total", e.Total.String()),
		)
	case *billing.InvoicePaidEvent:
		fields = append(fields,
			zap.String("invoice_number", e.InvoiceNumber),
			zap.String("amount_paid", e.AmountPaid.String()),
		)
	case *billing.InvoicePartiallyPaidEvent:
		fields = append(fields,
			zap.String("invoice_number", e.InvoiceNumber),
			zap.String("payment_amount", e.PaymentAmount.String()),
			zap.String("amount_due", e.AmountDue.String()),
		)
	case *billing.InvoiceRefundedEvent:
		fields = append(fields,
			zap.String("invoice_number", e.InvoiceNumber),
			zap.String("refund_amount", e.RefundAmount.String()),
			zap.String("new_status", string(e.NewStatus)),
		)
	}

	h.logger.Info("invoice activity", fields...)
	return nil
}
