package billing

import (
	"fmt"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditTransactionType classifies credit ledger movements
type CreditTransactionType string

const (
	CreditTransactionGrant CreditTransactionType = "GRANT" // Credit added (overpayment or manual grant)
	CreditTransactionApply CreditTransactionType = "APPLY" // Credit consumed against an invoice
)

// IsValid checks if the transaction type is valid
func (t CreditTransactionType) IsValid() bool {
	return t == CreditTransactionGrant || t == CreditTransactionApply
}

// CreditSourceType identifies what produced a credit movement
type CreditSourceType string

const (
	CreditSourceOverpayment CreditSourceType = "OVERPAYMENT" // Excess from a payment batch
	CreditSourceManual      CreditSourceType = "MANUAL"      // Staff-initiated grant
	CreditSourceInvoice     CreditSourceType = "INVOICE"     // Applied to an invoice
)

// PatientAccount tracks a patient's credit balance at one clinic.
// The balance is strictly non-negative; grants add, applications subtract.
type PatientAccount struct {
	shared.ClinicAggregateRoot
	PatientID     uuid.UUID       `json:"patient_id"`
	PatientName   string          `json:"patient_name"`
	CreditBalance decimal.Decimal `json:"credit_balance"`
}

// NewPatientAccount creates a new patient account with zero credit
func NewPatientAccount(clinicID, patientID uuid.UUID, patientName string) (*PatientAccount, error) {
	if patientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PATIENT", "Patient ID cannot be empty")
	}
	if patientName == "" {
		return nil, shared.NewDomainError("INVALID_PATIENT_NAME", "Patient name cannot be empty")
	}
	return &PatientAccount{
		ClinicAggregateRoot: shared.NewClinicAggregateRoot(clinicID),
		PatientID:           patientID,
		PatientName:         patientName,
		CreditBalance:       decimal.Zero,
	}, nil
}

// GrantCredit adds credit to the account and returns the ledger transaction.
// Grants are strictly additive; idempotency is enforced by the caller via
// idempotency keys, never inside the aggregate.
func (a *PatientAccount) GrantCredit(amount decimal.Decimal, reason string, grantedBy uuid.UUID, source CreditSourceType, sourceRef string) (*CreditTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}
	if reason == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "Credit reason is required")
	}

	before := a.CreditBalance
	a.CreditBalance = a.CreditBalance.Add(amount)
	a.Touch()
	a.IncrementVersion()

	txn := newCreditTransaction(a, CreditTransactionGrant, amount, before, reason, grantedBy, source, sourceRef)
	a.AddDomainEvent(NewCreditGrantedEvent(a, txn))

	return txn, nil
}

// ApplyCredit consumes credit from the account and returns the ledger
// transaction. Rejects if the balance is insufficient, reporting both figures.
func (a *PatientAccount) ApplyCredit(amount decimal.Decimal, reason string, appliedBy uuid.UUID, invoiceID uuid.UUID) (*CreditTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}
	if amount.GreaterThan(a.CreditBalance) {
		return nil, shared.NewDomainError("INSUFFICIENT_CREDIT",
			fmt.Sprintf("Requested credit %s exceeds available balance %s",
				amount.StringFixed(2), a.CreditBalance.StringFixed(2)))
	}

	before := a.CreditBalance
	a.CreditBalance = a.CreditBalance.Sub(amount)
	a.Touch()
	a.IncrementVersion()

	txn := newCreditTransaction(a, CreditTransactionApply, amount.Neg(), before, reason, appliedBy, CreditSourceInvoice, invoiceID.String())
	a.AddDomainEvent(NewCreditAppliedEvent(a, txn, invoiceID))

	return txn, nil
}

// GetCreditBalanceMoney returns the credit balance as Money
func (a *PatientAccount) GetCreditBalanceMoney() valueobject.Money {
	return valueobject.NewMoneyCDF(a.CreditBalance)
}

// HasCredit returns true if the account carries a positive balance
func (a *PatientAccount) HasCredit() bool {
	return a.CreditBalance.GreaterThan(decimal.Zero)
}

// CreditTransaction is an append-only record of one credit ledger movement.
// Amount is signed: positive for grants, negative for applications.
type CreditTransaction struct {
	shared.BaseEntity
	ClinicID      uuid.UUID             `json:"clinic_id"`
	AccountID     uuid.UUID             `json:"account_id"`
	PatientID     uuid.UUID             `json:"patient_id"`
	Type          CreditTransactionType `json:"type"`
	Amount        decimal.Decimal       `json:"amount"`
	BalanceBefore decimal.Decimal       `json:"balance_before"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	Reason        string                `json:"reason"`
	PerformedBy   uuid.UUID             `json:"performed_by"`
	SourceType    CreditSourceType      `json:"source_type"`
	SourceRef     string                `json:"source_ref"` // Batch ID or invoice ID
}

func newCreditTransaction(a *PatientAccount, txnType CreditTransactionType, amount, before decimal.Decimal, reason string, performedBy uuid.UUID, source CreditSourceType, sourceRef string) *CreditTransaction {
	return &CreditTransaction{
		BaseEntity:    shared.NewBaseEntity(),
		ClinicID:      a.ClinicID,
		AccountID:     a.ID,
		PatientID:     a.PatientID,
		Type:          txnType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  a.CreditBalance,
		Reason:        reason,
		PerformedBy:   performedBy,
		SourceType:    source,
		SourceRef:     sourceRef,
	}
}

// CreditGrantedEvent is raised when credit is added to a patient account
type CreditGrantedEvent struct {
	shared.BaseDomainEvent
	AccountID    uuid.UUID       `json:"account_id"`
	PatientID    uuid.UUID       `json:"patient_id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reason       string          `json:"reason"`
	GrantedBy    uuid.UUID       `json:"granted_by"`
}

// EventType returns the event type name
func (e *CreditGrantedEvent) EventType() string {
	return "CreditGranted"
}

// NewCreditGrantedEvent creates a new CreditGrantedEvent
func NewCreditGrantedEvent(a *PatientAccount, txn *CreditTransaction) *CreditGrantedEvent {
	return &CreditGrantedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditGranted", "PatientAccount", a.ID, a.ClinicID),
		AccountID:       a.ID,
		PatientID:       a.PatientID,
		Amount:          txn.Amount,
		BalanceAfter:    txn.BalanceAfter,
		Reason:          txn.Reason,
		GrantedBy:       txn.PerformedBy,
	}
}

// CreditAppliedEvent is raised when credit is consumed against an invoice
type CreditAppliedEvent struct {
	shared.BaseDomainEvent
	AccountID    uuid.UUID       `json:"account_id"`
	PatientID    uuid.UUID       `json:"patient_id"`
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// EventType returns the event type name
func (e *CreditAppliedEvent) EventType() string {
	return "CreditApplied"
}

// NewCreditAppliedEvent creates a new CreditAppliedEvent
func NewCreditAppliedEvent(a *PatientAccount, txn *CreditTransaction, invoiceID uuid.UUID) *CreditAppliedEvent {
	return &CreditAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditApplied", "PatientAccount", a.ID, a.ClinicID),
		AccountID:       a.ID,
		PatientID:       a.PatientID,
		InvoiceID:       invoiceID,
		Amount:          txn.Amount.Abs(),
		BalanceAfter:    txn.BalanceAfter,
	}
}
