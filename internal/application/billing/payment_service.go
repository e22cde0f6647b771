package billing

import (
	"context"
	"fmt"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/currency"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/clinic/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

// PaymentService allocates payments across a patient's outstanding invoices
// and banks any excess as patient credit. All mutations from one payment
// commit in a single transaction with optimistic locking per invoice.
type PaymentService struct {
	invoiceRepo billing.InvoiceRepository
	accountRepo billing.PatientAccountRepository
	uow         billing.BillingUnitOfWork
	converter   *currency.Converter
	factory     *billing.AllocationStrategyFactory
	idempotency shared.IdempotencyStore
	auditor     billing.AuditRecorder
	events      shared.EventPublisher
	metrics     *telemetry.BusinessMetrics
}

// NewPaymentService creates a new PaymentService. The event publisher may
// be nil, in which case domain events are dropped after the batch commits.
func NewPaymentService(
	invoiceRepo billing.InvoiceRepository,
	accountRepo billing.PatientAccountRepository,
	uow billing.BillingUnitOfWork,
	converter *currency.Converter,
	idempotency shared.IdempotencyStore,
	auditor billing.AuditRecorder,
	events shared.EventPublisher,
	metrics *telemetry.BusinessMetrics,
) *PaymentService {
	return &PaymentService{
		invoiceRepo: invoiceRepo,
		accountRepo: accountRepo,
		uow:         uow,
		converter:   converter,
		factory:     billing.NewAllocationStrategyFactory(),
		idempotency: idempotency,
		auditor:     auditor,
		events:      events,
		metrics:     metrics,
	}
}

// AllocatePaymentRequest represents a request to allocate one payment
// across a patient's outstanding invoices.
type AllocatePaymentRequest struct {
	ClinicID    uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	Amount      decimal.Decimal
	Currency    valueobject.Currency
	Method      billing.PaymentMethod
	Reference   string
	// Strategy selects an automatic allocation. Ignored when Allocations
	// are supplied.
	Strategy billing.AllocationStrategyType
	// Allocations are explicit per-invoice amounts in the accounting
	// currency. Presence switches the allocator to manual mode.
	Allocations []billing.ManualAllocationRequest
	// BatchID is the caller-supplied idempotency key for this payment
	BatchID string
	ActorID uuid.UUID
}

// InvoiceAllocationResult describes the outcome for one invoice in the batch
type InvoiceAllocationResult struct {
	InvoiceID         uuid.UUID             `json:"invoice_id"`
	InvoiceNumber     string                `json:"invoice_number"`
	PaymentID         uuid.UUID             `json:"payment_id"`
	Allocated         decimal.Decimal       `json:"allocated"`
	PreviousAmountDue decimal.Decimal       `json:"previous_amount_due"`
	AmountDue         decimal.Decimal       `json:"amount_due"`
	Status            billing.InvoiceStatus `json:"status"`
}

// AllocatePaymentResult is the outcome of a payment allocation batch
type AllocatePaymentResult struct {
	BatchID        string                    `json:"batch_id"`
	TotalInBase    decimal.Decimal           `json:"total_in_base"`
	ExchangeRate   decimal.Decimal           `json:"exchange_rate"`
	TotalAllocated decimal.Decimal           `json:"total_allocated"`
	CreditGranted  decimal.Decimal           `json:"credit_granted"`
	CreditBalance  decimal.Decimal           `json:"credit_balance"`
	Invoices       []InvoiceAllocationResult `json:"invoices"`
}

func (r *AllocatePaymentRequest) validate() error {
	if r.ClinicID == uuid.Nil {
		return shared.NewDomainError("INVALID_CLINIC", "Clinic ID cannot be empty")
	}
	if r.PatientID == uuid.Nil {
		return shared.NewDomainError("INVALID_PATIENT", "Patient ID cannot be empty")
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !valueobject.IsSupportedCurrency(r.Currency) {
		return shared.NewDomainError("UNSUPPORTED_CURRENCY",
			fmt.Sprintf("Currency %s is not supported", r.Currency))
	}
	if !r.Method.IsValid() {
		return shared.NewDomainError("INVALID_METHOD", "Payment method is not valid")
	}
	if len(r.Allocations) == 0 && !r.Strategy.IsValid() {
		return shared.NewDomainError("INVALID_STRATEGY", "An allocation strategy or explicit allocations are required")
	}
	if r.BatchID == "" {
		return shared.NewDomainError("INVALID_BATCH_ID", "Batch ID is required")
	}
	return nil
}

// AllocatePayment distributes a payment across the patient's outstanding
// invoices and commits all resulting mutations atomically. Excess beyond
// the total outstanding is granted to the patient as credit.
//
// The currency conversion happens before any invoice is touched so that no
// conditional write is held open across the rate lookup.
func (s *PaymentService) AllocatePayment(ctx context.Context, req AllocatePaymentRequest) (*AllocatePaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "allocate_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPatientID, req.PatientID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrCurrency, string(req.Currency),
		telemetry.SpanAttrPaymentMethod, string(req.Method),
		telemetry.SpanAttrBatchID, req.BatchID,
	)

	var result *AllocatePaymentResult
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.BillingOperationLabels(telemetry.OperationAllocatePayment, string(req.Method)), func(c context.Context) {
		result, operationErr = s.allocatePayment(c, span, req)
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
	}
	return result, operationErr
}

func (s *PaymentService) allocatePayment(ctx context.Context, span trace.Span, req AllocatePaymentRequest) (*AllocatePaymentResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	processed, err := s.idempotency.IsProcessed(ctx, req.BatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to check batch idempotency: %w", err)
	}
	if processed {
		return nil, shared.NewDomainError("DUPLICATE_BATCH",
			fmt.Sprintf("Batch %s has already been processed", req.BatchID))
	}

	// Normalize to the accounting currency before loading invoices
	conv, err := s.converter.ToBase(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	totalInBase := conv.AmountInBase

	invoices, err := s.invoiceRepo.FindOutstanding(ctx, req.ClinicID, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outstanding invoices: %w", err)
	}

	targets := make([]billing.AllocationTarget, 0, len(invoices))
	byID := make(map[uuid.UUID]*billing.Invoice, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		targets = append(targets, inv.AllocationSnapshot())
		byID[inv.ID] = inv
	}

	strategyType := req.Strategy
	if len(req.Allocations) > 0 {
		strategyType = billing.AllocationStrategyManual
	}
	strategy, err := s.factory.GetStrategy(strategyType, req.Allocations)
	if err != nil {
		return nil, err
	}

	plan, err := strategy.Allocate(valueobject.NewMoneyCDF(totalInBase), targets)
	if err != nil {
		return nil, err
	}

	batch := &billing.PaymentBatch{}
	lineResults := make([]InvoiceAllocationResult, 0, len(plan.Lines))

	for _, line := range plan.Lines {
		inv := byID[line.InvoiceID]
		if inv == nil {
			return nil, shared.NewDomainError("INVALID_ALLOCATIONS",
				fmt.Sprintf("Invoice %s is not in the outstanding set", line.InvoiceID))
		}

		// Reconstruct the tendered-currency share from the base amount
		// so the entry records what was actually handed over.
		original := line.Amount
		if !conv.RateUsed.Equal(decimal.NewFromInt(1)) {
			original = line.Amount.Div(conv.RateUsed).Round(2)
		}

		entry := billing.NewPaymentEntry(original, req.Currency, line.Amount, conv.RateUsed, req.Method, req.Reference, req.ActorID, req.BatchID)
		previousDue := inv.AmountDue()
		if err := inv.ApplyPayment(entry); err != nil {
			return nil, err
		}

		batch.Invoices = append(batch.Invoices, inv)
		lineResults = append(lineResults, InvoiceAllocationResult{
			InvoiceID:         inv.ID,
			InvoiceNumber:     inv.InvoiceNumber,
			PaymentID:         entry.ID,
			Allocated:         line.Amount,
			PreviousAmountDue: previousDue,
			AmountDue:         inv.AmountDue(),
			Status:            inv.Status,
		})
	}

	creditBalance := decimal.Zero
	if plan.Excess.GreaterThan(decimal.Zero) {
		account, err := s.accountRepo.FindOrCreateByPatient(ctx, req.ClinicID, req.PatientID, req.PatientName)
		if err != nil {
			return nil, fmt.Errorf("failed to load patient account: %w", err)
		}

		txn, err := account.GrantCredit(plan.Excess,
			fmt.Sprintf("Overpayment from payment batch %s", req.BatchID),
			req.ActorID, billing.CreditSourceOverpayment, req.BatchID)
		if err != nil {
			return nil, err
		}

		batch.Account = account
		batch.CreditTransactions = append(batch.CreditTransactions, txn)
		creditBalance = account.CreditBalance
	}

	if err := s.uow.CommitPaymentBatch(ctx, batch); err != nil {
		return nil, err
	}

	for _, inv := range batch.Invoices {
		events := inv.GetDomainEvents()
		inv.ClearDomainEvents()
		if s.events != nil && len(events) > 0 {
			if err := s.events.Publish(ctx, events...); err != nil {
				telemetry.RecordError(span, err)
			}
		}
	}

	if s.metrics != nil {
		s.metrics.RecordPaymentWithAmount(ctx, req.ClinicID, string(req.Method), totalInBase)
		if plan.Excess.GreaterThan(decimal.Zero) {
			s.metrics.RecordCreditGranted(ctx, req.ClinicID, string(billing.CreditSourceOverpayment),
				plan.Excess.Mul(decimal.NewFromInt(100)).IntPart())
		}
	}

	if _, err := s.idempotency.MarkProcessed(ctx, req.BatchID, shared.DefaultIdempotencyConfig().TTL); err != nil {
		// The batch is committed; a failed idempotency mark only risks a
		// rejected retry, which the version checks catch anyway.
		telemetry.RecordError(span, err)
	}

	telemetry.AddEvent(span, "payment_allocated",
		"invoices", len(lineResults),
		"excess", plan.Excess.String(),
	)

	s.auditor.Record(ctx, billing.NewAuditRecord(req.ClinicID, req.ActorID, billing.AuditActionBatchPayment, "patient", req.PatientID, billing.AuditMetadata{
		"batch_id":        req.BatchID,
		"amount":          req.Amount.String(),
		"currency":        string(req.Currency),
		"amount_in_base":  totalInBase.String(),
		"exchange_rate":   conv.RateUsed.String(),
		"method":          string(req.Method),
		"strategy":        strategyType.String(),
		"invoices":        len(lineResults),
		"total_allocated": plan.TotalAllocated.String(),
		"credit_granted":  plan.Excess.String(),
	}))

	return &AllocatePaymentResult{
		BatchID:        req.BatchID,
		TotalInBase:    totalInBase,
		ExchangeRate:   conv.RateUsed,
		TotalAllocated: plan.TotalAllocated,
		CreditGranted:  plan.Excess,
		CreditBalance:  creditBalance,
		Invoices:       lineResults,
	}, nil
}

// SuggestAllocation computes an allocation preview without mutating anything.
// The same strategy code runs as in AllocatePayment, so the preview is exact
// as long as no invoice changes in between.
func (s *PaymentService) SuggestAllocation(
	ctx context.Context,
	clinicID, patientID uuid.UUID,
	amount decimal.Decimal,
	currencyCode valueobject.Currency,
	strategyType billing.AllocationStrategyType,
) (*billing.AllocationPlan, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "suggest_allocation")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPatientID, patientID.String(),
		telemetry.SpanAttrAmount, amount.String(),
		telemetry.SpanAttrStrategy, strategyType.String(),
	)

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}

	conv, err := s.converter.ToBase(amount, currencyCode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	invoices, err := s.invoiceRepo.FindOutstanding(ctx, clinicID, patientID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load outstanding invoices: %w", err)
	}

	targets := make([]billing.AllocationTarget, 0, len(invoices))
	for i := range invoices {
		targets = append(targets, invoices[i].AllocationSnapshot())
	}

	strategy, err := s.factory.GetStrategy(strategyType, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	plan, err := strategy.Allocate(valueobject.NewMoneyCDF(conv.AmountInBase), targets)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return plan, nil
}

// ListOutstanding returns the patient's payable invoices, oldest first
func (s *PaymentService) ListOutstanding(ctx context.Context, clinicID, patientID uuid.UUID) ([]billing.Invoice, error) {
	return s.invoiceRepo.FindOutstanding(ctx, clinicID, patientID)
}
