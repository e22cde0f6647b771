package billing

import (
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceCreatedEvent is raised when a new invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	PatientName   string          `json:"patient_name"`
	Total         decimal.Decimal `json:"total"`
	IssuedAt      time.Time       `json:"issued_at"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return "InvoiceCreated"
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCreated", "Invoice", inv.ID, inv.ClinicID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		PatientName:     inv.PatientName,
		Total:           inv.Total(),
		IssuedAt:        inv.IssuedAt,
		DueDate:         inv.DueDate,
	}
}

// InvoicePaidEvent is raised when an invoice is fully paid
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaidAt        time.Time       `json:"paid_at"`
}

// EventType returns the event type name
func (e *InvoicePaidEvent) EventType() string {
	return "InvoicePaid"
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	paidAt := time.Now()
	if inv.PaidAt != nil {
		paidAt = *inv.PaidAt
	}
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaid", "Invoice", inv.ID, inv.ClinicID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		Total:           inv.Total(),
		AmountPaid:      inv.AmountPaid,
		PaidAt:          paidAt,
	}
}

// InvoicePartiallyPaidEvent is raised when a partial payment is applied
type InvoicePartiallyPaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	AmountDue     decimal.Decimal `json:"amount_due"`
}

// EventType returns the event type name
func (e *InvoicePartiallyPaidEvent) EventType() string {
	return "InvoicePartiallyPaid"
}

// NewInvoicePartiallyPaidEvent creates a new InvoicePartiallyPaidEvent
func NewInvoicePartiallyPaidEvent(inv *Invoice, entry PaymentEntry) *InvoicePartiallyPaidEvent {
	return &InvoicePartiallyPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePartiallyPaid", "Invoice", inv.ID, inv.ClinicID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		PaymentID:       entry.ID,
		PaymentAmount:   entry.AmountInBase,
		Total:           inv.Total(),
		AmountPaid:      inv.AmountPaid,
		AmountDue:       inv.AmountDue(),
	}
}

// InvoiceRefundedEvent is raised when a refund entry is appended to an invoice
type InvoiceRefundedEvent struct {
	shared.BaseDomainEvent
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	PatientID         uuid.UUID       `json:"patient_id"`
	RefundEntryID     uuid.UUID       `json:"refund_entry_id"`
	OriginalPaymentID uuid.UUID       `json:"original_payment_id"`
	RefundAmount      decimal.Decimal `json:"refund_amount"`
	RefundReason      string          `json:"refund_reason"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	AmountDue         decimal.Decimal `json:"amount_due"`
	NewStatus         InvoiceStatus   `json:"new_status"`
}

// EventType returns the event type name
func (e *InvoiceRefundedEvent) EventType() string {
	return "InvoiceRefunded"
}

// NewInvoiceRefundedEvent creates a new InvoiceRefundedEvent
func NewInvoiceRefundedEvent(inv *Invoice, refund *PaymentEntry, originalPaymentID uuid.UUID) *InvoiceRefundedEvent {
	return &InvoiceRefundedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("InvoiceRefunded", "Invoice", inv.ID, inv.ClinicID),
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		PatientID:         inv.PatientID,
		RefundEntryID:     refund.ID,
		OriginalPaymentID: originalPaymentID,
		RefundAmount:      refund.AmountInBase.Neg(),
		RefundReason:      refund.RefundReason,
		AmountPaid:        inv.AmountPaid,
		AmountDue:         inv.AmountDue(),
		NewStatus:         inv.Status,
	}
}
