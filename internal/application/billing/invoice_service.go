package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceService handles invoice lifecycle outside of payment allocation:
// creation, adjustments, cancellation, and the overdue sweep.
type InvoiceService struct {
	invoiceRepo billing.InvoiceRepository
	auditor     billing.AuditRecorder
	events      shared.EventPublisher
	logger      *zap.Logger
}

// NewInvoiceService creates a new InvoiceService. The event publisher may
// be nil, in which case domain events are dropped after persistence.
func NewInvoiceService(invoiceRepo billing.InvoiceRepository, auditor billing.AuditRecorder, events shared.EventPublisher, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		invoiceRepo: invoiceRepo,
		auditor:     auditor,
		events:      events,
		logger:      logger,
	}
}

// publishEvents drains and publishes the aggregate's pending domain events.
// Publish failures are logged, not returned; the state change is already
// committed by the time events go out.
func (s *InvoiceService) publishEvents(ctx context.Context, inv *billing.Invoice) {
	events := inv.GetDomainEvents()
	inv.ClearDomainEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish invoice events",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
	}
}

// CreateInvoiceRequest represents a request to issue a new invoice
type CreateInvoiceRequest struct {
	ClinicID      uuid.UUID
	PatientID     uuid.UUID
	PatientName   string
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	DueDate       *time.Time
	Notes         string
	ActorID       uuid.UUID
}

// CreateInvoice issues a new invoice with a generated sequential number
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "create_invoice")
	defer span.End()

	number, err := s.invoiceRepo.NextInvoiceNumber(ctx, req.ClinicID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to generate invoice number: %w", err)
	}

	inv, err := billing.NewInvoice(req.ClinicID, number, req.PatientID, req.PatientName,
		req.Subtotal, req.DiscountTotal, req.TaxTotal, time.Now(), req.DueDate)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	inv.Notes = req.Notes
	if req.ActorID != uuid.Nil {
		inv.SetCreatedBy(req.ActorID)
	}

	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, inv.ID.String(),
		telemetry.SpanAttrInvoiceNumber, inv.InvoiceNumber,
	)

	s.publishEvents(ctx, inv)

	return inv, nil
}

// GetInvoice returns one invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, clinicID, invoiceID uuid.UUID) (*billing.Invoice, error) {
	inv, err := s.invoiceRepo.FindByIDForClinic(ctx, clinicID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	return inv, nil
}

// ListInvoices returns invoices matching the filter
func (s *InvoiceService) ListInvoices(ctx context.Context, clinicID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, int64, error) {
	invoices, err := s.invoiceRepo.FindAllForClinic(ctx, clinicID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	total, err := s.invoiceRepo.CountForClinic(ctx, clinicID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return invoices, total, nil
}

// ApplyDiscount records a discount on an invoice
func (s *InvoiceService) ApplyDiscount(ctx context.Context, clinicID, invoiceID uuid.UUID, amount decimal.Decimal, reason string, actorID uuid.UUID) (*billing.Invoice, error) {
	inv, err := s.GetInvoice(ctx, clinicID, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := inv.ApplyDiscount(amount, reason, actorID); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, billing.NewAuditRecord(clinicID, actorID, billing.AuditActionApplyDiscount, "invoice", inv.ID, billing.AuditMetadata{
		"amount": amount.String(),
		"reason": reason,
	}))

	return inv, nil
}

// ApplyWriteOff records a write-off on an invoice
func (s *InvoiceService) ApplyWriteOff(ctx context.Context, clinicID, invoiceID uuid.UUID, amount decimal.Decimal, reason string, actorID uuid.UUID) (*billing.Invoice, error) {
	inv, err := s.GetInvoice(ctx, clinicID, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := inv.ApplyWriteOff(amount, reason, actorID); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, billing.NewAuditRecord(clinicID, actorID, billing.AuditActionWriteOff, "invoice", inv.ID, billing.AuditMetadata{
		"amount": amount.String(),
		"reason": reason,
	}))

	return inv, nil
}

// CancelInvoice cancels an unpaid invoice
func (s *InvoiceService) CancelInvoice(ctx context.Context, clinicID, invoiceID uuid.UUID, reason string, actorID uuid.UUID) error {
	inv, err := s.GetInvoice(ctx, clinicID, invoiceID)
	if err != nil {
		return err
	}
	if err := inv.Cancel(reason); err != nil {
		return err
	}
	if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
		return err
	}

	s.auditor.Record(ctx, billing.NewAuditRecord(clinicID, actorID, billing.AuditActionCancelInvoice, "invoice", inv.ID, billing.AuditMetadata{
		"reason": reason,
	}))

	return nil
}

// MarkOverdueInvoices flags all payable past-due invoices for the clinic.
// A version conflict on one invoice skips it; the next sweep catches it.
func (s *InvoiceService) MarkOverdueInvoices(ctx context.Context, clinicID uuid.UUID) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "mark_overdue")
	defer span.End()

	invoices, err := s.invoiceRepo.FindOverdue(ctx, clinicID, billing.InvoiceFilter{Filter: shared.DefaultFilter()})
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("failed to load overdue invoices: %w", err)
	}

	marked := 0
	for i := range invoices {
		inv := &invoices[i]
		if inv.Status == billing.InvoiceStatusOverdue {
			continue
		}
		if err := inv.MarkOverdue(); err != nil {
			continue
		}
		if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
			s.logger.Warn("skipping overdue mark after version conflict",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
			continue
		}
		marked++
	}

	telemetry.SetAttribute(span, "marked", marked)
	return marked, nil
}
