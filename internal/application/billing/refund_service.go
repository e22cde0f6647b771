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

// gatewayTimeout bounds the external refund call so a stalled processor
// never blocks the request indefinitely.
const gatewayTimeout = 15 * time.Second

// RefundService processes refunds against invoice payments. Gateway-settled
// payments are reversed at the processor BEFORE the local write: a gateway
// failure aborts cleanly, while a local failure after gateway success is a
// critical inconsistency that pages a human instead of retrying.
type RefundService struct {
	invoiceRepo billing.InvoiceRepository
	validator   *billing.RefundValidator
	gateway     billing.PaymentGateway
	auditor     billing.AuditRecorder
	alerts      billing.AlertNotifier
	events      shared.EventPublisher
	metrics     *telemetry.BusinessMetrics
	logger      *zap.Logger
}

// NewRefundService creates a new RefundService. The event publisher and
// metrics may be nil.
func NewRefundService(
	invoiceRepo billing.InvoiceRepository,
	gateway billing.PaymentGateway,
	auditor billing.AuditRecorder,
	alerts billing.AlertNotifier,
	events shared.EventPublisher,
	metrics *telemetry.BusinessMetrics,
	logger *zap.Logger,
) *RefundService {
	return &RefundService{
		invoiceRepo: invoiceRepo,
		validator:   billing.NewRefundValidator(),
		gateway:     gateway,
		auditor:     auditor,
		alerts:      alerts,
		events:      events,
		metrics:     metrics,
		logger:      logger,
	}
}

// ProcessRefundRequest represents a request to refund part of a payment
type ProcessRefundRequest struct {
	ClinicID  uuid.UUID
	InvoiceID uuid.UUID
	// PaymentID identifies the original payment. When nil, PaymentIndex
	// is used instead.
	PaymentID    *uuid.UUID
	PaymentIndex int
	Amount       decimal.Decimal
	Reason       string
	ActorID      uuid.UUID
}

// ProcessRefundResult is the outcome of a refund
type ProcessRefundResult struct {
	InvoiceID       uuid.UUID             `json:"invoice_id"`
	InvoiceNumber   string                `json:"invoice_number"`
	RefundID        uuid.UUID             `json:"refund_id"`
	PaymentID       uuid.UUID             `json:"payment_id"`
	Amount          decimal.Decimal       `json:"amount"`
	RemainingCap    decimal.Decimal       `json:"remaining_cap"`
	GatewayRefundID string                `json:"gateway_refund_id,omitempty"`
	InvoiceStatus   billing.InvoiceStatus `json:"invoice_status"`
	AmountDue       decimal.Decimal       `json:"amount_due"`
}

// ProcessRefund validates and applies a refund. The full sequence:
// validate against payment history, reverse at the gateway when the original
// payment was gateway-settled, then append the negative entry locally with a
// version-checked write.
func (s *RefundService) ProcessRefund(ctx context.Context, req ProcessRefundRequest) (*ProcessRefundResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "process_refund")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	var result *ProcessRefundResult
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.BillingOperationLabels(telemetry.OperationProcessRefund, ""), func(c context.Context) {
		result, operationErr = s.processRefund(c, req)
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
	}
	return result, operationErr
}

func (s *RefundService) processRefund(ctx context.Context, req ProcessRefundRequest) (*ProcessRefundResult, error) {
	inv, err := s.invoiceRepo.FindByIDForClinic(ctx, req.ClinicID, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")
	}

	var assessment *billing.RefundAssessment
	if req.PaymentID != nil {
		assessment, err = s.validator.Validate(inv, *req.PaymentID, req.Amount, req.Reason)
	} else {
		assessment, err = s.validator.ValidateByIndex(inv, req.PaymentIndex, req.Amount, req.Reason)
	}
	if err != nil {
		return nil, err
	}

	// Reverse at the processor first. Failing here leaves no local trace,
	// so the operator can simply retry.
	gatewayRefundID := ""
	if assessment.RequiresGateway {
		gatewayCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
		defer cancel()

		resp, err := s.gateway.ProcessRefund(gatewayCtx, &billing.GatewayRefundRequest{
			ClinicID:             req.ClinicID,
			GatewayTransactionID: assessment.GatewayTxnID,
			RefundID:             uuid.New(),
			InvoiceNumber:        inv.InvoiceNumber,
			OriginalAmount:       assessment.OriginalAmount,
			RefundAmount:         req.Amount,
			Currency:             "CDF",
			Reason:               req.Reason,
			Method:               inv.FindPayment(assessment.PaymentID).Method,
		})
		if err != nil {
			return nil, shared.NewDomainError("GATEWAY_ERROR",
				fmt.Sprintf("Gateway refund failed: %v", err))
		}
		if !resp.Status.IsSuccess() {
			return nil, shared.NewDomainError("GATEWAY_ERROR",
				fmt.Sprintf("Gateway declined the refund: %s", resp.Status))
		}
		gatewayRefundID = resp.GatewayRefundID
	}

	entry, err := inv.ApplyRefund(assessment.PaymentID, req.Amount, req.Reason, req.ActorID, gatewayRefundID)
	if err != nil {
		if gatewayRefundID != "" {
			return nil, s.raiseCriticalInconsistency(ctx, inv, assessment.PaymentID, gatewayRefundID, req.Amount, err)
		}
		return nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
		// Money has already moved at the processor but the local ledger
		// write failed. Never retried automatically.
		if gatewayRefundID != "" {
			return nil, s.raiseCriticalInconsistency(ctx, inv, assessment.PaymentID, gatewayRefundID, req.Amount, err)
		}
		return nil, err
	}

	events := inv.GetDomainEvents()
	inv.ClearDomainEvents()
	if s.events != nil && len(events) > 0 {
		if err := s.events.Publish(ctx, events...); err != nil {
			s.logger.Warn("failed to publish refund events",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
		}
	}

	if s.metrics != nil {
		method := inv.FindPayment(assessment.PaymentID).Method
		s.metrics.RecordRefund(ctx, req.ClinicID, string(method), telemetry.PaymentStatusSuccess)
	}

	s.auditor.Record(ctx, billing.NewAuditRecord(req.ClinicID, req.ActorID, billing.AuditActionProcessRefund, "invoice", inv.ID, billing.AuditMetadata{
		"payment_id":        assessment.PaymentID.String(),
		"refund_id":         entry.ID.String(),
		"amount":            req.Amount.String(),
		"reason":            req.Reason,
		"gateway_refund_id": gatewayRefundID,
		"invoice_status":    string(inv.Status),
	}))

	return &ProcessRefundResult{
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		RefundID:        entry.ID,
		PaymentID:       assessment.PaymentID,
		Amount:          req.Amount,
		RemainingCap:    assessment.MaxRefundable.Sub(req.Amount),
		GatewayRefundID: gatewayRefundID,
		InvoiceStatus:   inv.Status,
		AmountDue:       inv.AmountDue(),
	}, nil
}

// PreviewRefund validates a refund without side effects, returning the
// refundable figures so staff can see the cap before committing.
func (s *RefundService) PreviewRefund(ctx context.Context, clinicID, invoiceID, paymentID uuid.UUID, amount decimal.Decimal, reason string) (*billing.RefundAssessment, error) {
	inv, err := s.invoiceRepo.FindByIDForClinic(ctx, clinicID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	return s.validator.Validate(inv, paymentID, amount, reason)
}

func (s *RefundService) raiseCriticalInconsistency(ctx context.Context, inv *billing.Invoice, paymentID uuid.UUID, gatewayRefundID string, amount decimal.Decimal, cause error) error {
	critical := billing.NewCriticalInconsistencyError(inv.ID, paymentID, gatewayRefundID, amount, cause)

	s.logger.Error("gateway refund succeeded but local write failed, manual reconciliation required",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("payment_id", paymentID.String()),
		zap.String("gateway_refund_id", gatewayRefundID),
		zap.String("amount", amount.String()),
		zap.Error(cause),
	)
	s.alerts.NotifyCriticalInconsistency(ctx, critical)

	return critical
}
