package billing

import (
	"context"
	"fmt"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/clinic/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditService manages patient credit: manual grants, applying credit to
// invoices, and reading the ledger. Grants are idempotent per request key;
// the balance itself is strictly additive.
type CreditService struct {
	invoiceRepo   billing.InvoiceRepository
	accountRepo   billing.PatientAccountRepository
	creditTxnRepo billing.CreditTransactionRepository
	uow           billing.BillingUnitOfWork
	idempotency   shared.IdempotencyStore
	auditor       billing.AuditRecorder
	metrics       *telemetry.BusinessMetrics
}

// NewCreditService creates a new CreditService
func NewCreditService(
	invoiceRepo billing.InvoiceRepository,
	accountRepo billing.PatientAccountRepository,
	creditTxnRepo billing.CreditTransactionRepository,
	uow billing.BillingUnitOfWork,
	idempotency shared.IdempotencyStore,
	auditor billing.AuditRecorder,
	metrics *telemetry.BusinessMetrics,
) *CreditService {
	return &CreditService{
		invoiceRepo:   invoiceRepo,
		accountRepo:   accountRepo,
		creditTxnRepo: creditTxnRepo,
		uow:           uow,
		idempotency:   idempotency,
		auditor:       auditor,
		metrics:       metrics,
	}
}

// GrantCreditRequest represents a manual credit grant
type GrantCreditRequest struct {
	ClinicID    uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	Amount      decimal.Decimal
	Reason      string
	// RequestKey is the caller-supplied idempotency key; a repeated key
	// is rejected instead of double-granting.
	RequestKey string
	ActorID    uuid.UUID
}

// GrantCreditResult is the outcome of a credit grant
type GrantCreditResult struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// GrantCredit adds credit to a patient account
func (s *CreditService) GrantCredit(ctx context.Context, req GrantCreditRequest) (*GrantCreditResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "grant_credit")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPatientID, req.PatientID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if req.ClinicID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PATIENT", "Clinic and patient IDs are required")
	}
	if req.RequestKey == "" {
		return nil, shared.NewDomainError("INVALID_REQUEST_KEY", "Request key is required")
	}

	processed, err := s.idempotency.IsProcessed(ctx, req.RequestKey)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check grant idempotency: %w", err)
	}
	if processed {
		return nil, shared.NewDomainError("DUPLICATE_REQUEST",
			fmt.Sprintf("Credit grant %s has already been processed", req.RequestKey))
	}

	account, err := s.accountRepo.FindOrCreateByPatient(ctx, req.ClinicID, req.PatientID, req.PatientName)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load patient account: %w", err)
	}

	txn, err := account.GrantCredit(req.Amount, req.Reason, req.ActorID, billing.CreditSourceManual, req.RequestKey)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Balance and ledger entry commit together; a half-written grant would
	// let a retry stack a second grant on top of the raised balance.
	batch := &billing.PaymentBatch{
		Account:            account,
		CreditTransactions: []*billing.CreditTransaction{txn},
	}
	if err := s.uow.CommitPaymentBatch(ctx, batch); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if _, err := s.idempotency.MarkProcessed(ctx, req.RequestKey, shared.DefaultIdempotencyConfig().TTL); err != nil {
		telemetry.RecordError(span, err)
	}

	if s.metrics != nil {
		s.metrics.RecordCreditGranted(ctx, req.ClinicID, string(billing.CreditSourceManual),
			req.Amount.Mul(decimal.NewFromInt(100)).IntPart())
	}

	s.auditor.Record(ctx, billing.NewAuditRecord(req.ClinicID, req.ActorID, billing.AuditActionGrantCredit, "patient_account", account.ID, billing.AuditMetadata{
		"transaction_id": txn.ID.String(),
		"amount":         req.Amount.String(),
		"reason":         req.Reason,
		"request_key":    req.RequestKey,
		"balance_after":  txn.BalanceAfter.String(),
	}))

	return &GrantCreditResult{
		TransactionID: txn.ID,
		AccountID:     account.ID,
		Amount:        req.Amount,
		BalanceBefore: txn.BalanceBefore,
		BalanceAfter:  txn.BalanceAfter,
	}, nil
}

// ApplyCreditRequest represents applying patient credit to an invoice
type ApplyCreditRequest struct {
	ClinicID  uuid.UUID
	PatientID uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	ActorID   uuid.UUID
}

// ApplyCreditResult is the outcome of applying credit to an invoice
type ApplyCreditResult struct {
	InvoiceID     uuid.UUID             `json:"invoice_id"`
	PaymentID     uuid.UUID             `json:"payment_id"`
	Amount        decimal.Decimal       `json:"amount"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	InvoiceStatus billing.InvoiceStatus `json:"invoice_status"`
	AmountDue     decimal.Decimal       `json:"amount_due"`
}

// ApplyCredit debits the patient's credit balance and credits the invoice as
// a CREDIT-method payment. Both aggregates commit in one transaction so the
// balance and the invoice can never drift apart.
func (s *CreditService) ApplyCredit(ctx context.Context, req ApplyCreditRequest) (*ApplyCreditResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "apply_credit")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPatientID, req.PatientID.String(),
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}

	account, err := s.accountRepo.FindByPatient(ctx, req.ClinicID, req.PatientID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load patient account: %w", err)
	}
	if account == nil {
		return nil, shared.NewDomainError("ACCOUNT_NOT_FOUND", "Patient has no credit account")
	}

	inv, err := s.invoiceRepo.FindByIDForClinic(ctx, req.ClinicID, req.InvoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	if inv.PatientID != req.PatientID {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice does not belong to this patient")
	}

	// Never apply more credit than the invoice can absorb
	applied := decimal.Min(req.Amount, inv.AmountDue())

	txn, err := account.ApplyCredit(applied, fmt.Sprintf("Applied to invoice %s", inv.InvoiceNumber), req.ActorID, inv.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	entry := billing.NewPaymentEntry(applied, valueobject.DefaultCurrency, applied, decimal.NewFromInt(1), billing.PaymentMethodCredit, "", req.ActorID, "")
	entry.CreditApplied = true
	if err := inv.ApplyPayment(entry); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	batch := &billing.PaymentBatch{
		Invoices:           []*billing.Invoice{inv},
		Account:            account,
		CreditTransactions: []*billing.CreditTransaction{txn},
	}
	if err := s.uow.CommitPaymentBatch(ctx, batch); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCreditApplied(ctx, req.ClinicID,
			applied.Mul(decimal.NewFromInt(100)).IntPart())
	}

	s.auditor.Record(ctx, billing.NewAuditRecord(req.ClinicID, req.ActorID, billing.AuditActionApplyCredit, "invoice", inv.ID, billing.AuditMetadata{
		"transaction_id": txn.ID.String(),
		"payment_id":     entry.ID.String(),
		"amount":         applied.String(),
		"balance_after":  txn.BalanceAfter.String(),
		"invoice_status": string(inv.Status),
	}))

	return &ApplyCreditResult{
		InvoiceID:     inv.ID,
		PaymentID:     entry.ID,
		Amount:        applied,
		BalanceAfter:  txn.BalanceAfter,
		InvoiceStatus: inv.Status,
		AmountDue:     inv.AmountDue(),
	}, nil
}

// GetBalance returns the patient's current credit balance. Patients without
// an account simply have a zero balance.
func (s *CreditService) GetBalance(ctx context.Context, clinicID, patientID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.accountRepo.FindByPatient(ctx, clinicID, patientID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load patient account: %w", err)
	}
	if account == nil {
		return decimal.Zero, nil
	}
	return account.CreditBalance, nil
}

// ListTransactions returns the patient's credit ledger, newest first
func (s *CreditService) ListTransactions(ctx context.Context, clinicID, patientID uuid.UUID, filter billing.CreditTransactionFilter) ([]billing.CreditTransaction, error) {
	account, err := s.accountRepo.FindByPatient(ctx, clinicID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient account: %w", err)
	}
	if account == nil {
		return []billing.CreditTransaction{}, nil
	}
	return s.creditTxnRepo.FindByAccount(ctx, clinicID, account.ID, filter)
}
