package models

import (
	"time"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Payment entries and adjustments are embedded as JSONB because they are
// value objects owned by the aggregate and always loaded with it.
type InvoiceModel struct {
	ClinicAggregateModel
	InvoiceNumber string                 `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoice_clinic_number,priority:2"`
	PatientID     uuid.UUID              `gorm:"type:uuid;not null;index"`
	PatientName   string                 `gorm:"type:varchar(200);not null"`
	Status        billing.InvoiceStatus  `gorm:"type:varchar(20);not null;default:'ISSUED';index"`
	Subtotal      decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
	DiscountTotal decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
	TaxTotal      decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
	WriteOffTotal decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
	AmountPaid    decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
	IssuedAt      time.Time              `gorm:"not null;index"`
	DueDate       *time.Time             `gorm:"index"`
	Payments      billing.PaymentEntries `gorm:"type:jsonb;not null;default:'[]'"`
	Discounts     billing.Adjustments    `gorm:"type:jsonb;not null;default:'[]'"`
	WriteOffs     billing.Adjustments    `gorm:"type:jsonb;not null;default:'[]'"`
	Notes         string                 `gorm:"type:text"`
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CancelReason  string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice aggregate.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		InvoiceNumber: m.InvoiceNumber,
		PatientID:     m.PatientID,
		PatientName:   m.PatientName,
		Status:        m.Status,
		Subtotal:      m.Subtotal,
		DiscountTotal: m.DiscountTotal,
		TaxTotal:      m.TaxTotal,
		WriteOffTotal: m.WriteOffTotal,
		AmountPaid:    m.AmountPaid,
		IssuedAt:      m.IssuedAt,
		DueDate:       m.DueDate,
		Payments:      m.Payments,
		Discounts:     m.Discounts,
		WriteOffs:     m.WriteOffs,
		Notes:         m.Notes,
		PaidAt:        m.PaidAt,
		CancelledAt:   m.CancelledAt,
		CancelReason:  m.CancelReason,
	}
	m.PopulateClinicAggregateRoot(&inv.ClinicAggregateRoot)
	if inv.Payments == nil {
		inv.Payments = billing.PaymentEntries{}
	}
	if inv.Discounts == nil {
		inv.Discounts = billing.Adjustments{}
	}
	if inv.WriteOffs == nil {
		inv.WriteOffs = billing.Adjustments{}
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice aggregate.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainClinicAggregateRoot(inv.ClinicAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.PatientID = inv.PatientID
	m.PatientName = inv.PatientName
	m.Status = inv.Status
	m.Subtotal = inv.Subtotal
	m.DiscountTotal = inv.DiscountTotal
	m.TaxTotal = inv.TaxTotal
	m.WriteOffTotal = inv.WriteOffTotal
	m.AmountPaid = inv.AmountPaid
	m.IssuedAt = inv.IssuedAt
	m.DueDate = inv.DueDate
	m.Payments = inv.Payments
	m.Discounts = inv.Discounts
	m.WriteOffs = inv.WriteOffs
	m.Notes = inv.Notes
	m.PaidAt = inv.PaidAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice aggregate.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PatientAccountModel is the persistence model for the PatientAccount aggregate root.
type PatientAccountModel struct {
	ClinicAggregateModel
	PatientID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_patient_account_clinic_patient,priority:2"`
	PatientName   string          `gorm:"type:varchar(200);not null"`
	CreditBalance decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (PatientAccountModel) TableName() string {
	return "patient_accounts"
}

// ToDomain converts the persistence model to a domain PatientAccount aggregate.
func (m *PatientAccountModel) ToDomain() *billing.PatientAccount {
	account := &billing.PatientAccount{
		PatientID:     m.PatientID,
		PatientName:   m.PatientName,
		CreditBalance: m.CreditBalance,
	}
	m.PopulateClinicAggregateRoot(&account.ClinicAggregateRoot)
	return account
}

// FromDomain populates the persistence model from a domain PatientAccount aggregate.
func (m *PatientAccountModel) FromDomain(account *billing.PatientAccount) {
	m.FromDomainClinicAggregateRoot(account.ClinicAggregateRoot)
	m.PatientID = account.PatientID
	m.PatientName = account.PatientName
	m.CreditBalance = account.CreditBalance
}

// PatientAccountModelFromDomain creates a new persistence model from a domain PatientAccount aggregate.
func PatientAccountModelFromDomain(account *billing.PatientAccount) *PatientAccountModel {
	m := &PatientAccountModel{}
	m.FromDomain(account)
	return m
}

// CreditTransactionModel is the persistence model for credit ledger entries.
// Rows are append-only; there is no update path.
type CreditTransactionModel struct {
	BaseModel
	ClinicID      uuid.UUID                     `gorm:"type:uuid;not null;index"`
	AccountID     uuid.UUID                     `gorm:"type:uuid;not null;index"`
	PatientID     uuid.UUID                     `gorm:"type:uuid;not null;index"`
	Type          billing.CreditTransactionType `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal               `gorm:"type:decimal(18,4);not null"`
	BalanceBefore decimal.Decimal               `gorm:"type:decimal(18,4);not null"`
	BalanceAfter  decimal.Decimal               `gorm:"type:decimal(18,4);not null"`
	Reason        string                        `gorm:"type:varchar(500)"`
	PerformedBy   uuid.UUID                     `gorm:"type:uuid;not null"`
	SourceType    billing.CreditSourceType      `gorm:"type:varchar(20);not null"`
	SourceRef     string                        `gorm:"type:varchar(100);index"`
}

// TableName returns the table name for GORM
func (CreditTransactionModel) TableName() string {
	return "credit_transactions"
}

// ToDomain converts the persistence model to a domain CreditTransaction entity.
func (m *CreditTransactionModel) ToDomain() *billing.CreditTransaction {
	return &billing.CreditTransaction{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ClinicID:      m.ClinicID,
		AccountID:     m.AccountID,
		PatientID:     m.PatientID,
		Type:          m.Type,
		Amount:        m.Amount,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		Reason:        m.Reason,
		PerformedBy:   m.PerformedBy,
		SourceType:    m.SourceType,
		SourceRef:     m.SourceRef,
	}
}

// FromDomain populates the persistence model from a domain CreditTransaction entity.
func (m *CreditTransactionModel) FromDomain(txn *billing.CreditTransaction) {
	m.FromDomainBaseEntity(txn.BaseEntity)
	m.ClinicID = txn.ClinicID
	m.AccountID = txn.AccountID
	m.PatientID = txn.PatientID
	m.Type = txn.Type
	m.Amount = txn.Amount
	m.BalanceBefore = txn.BalanceBefore
	m.BalanceAfter = txn.BalanceAfter
	m.Reason = txn.Reason
	m.PerformedBy = txn.PerformedBy
	m.SourceType = txn.SourceType
	m.SourceRef = txn.SourceRef
}

// CreditTransactionModelFromDomain creates a new persistence model from a domain CreditTransaction entity.
func CreditTransactionModelFromDomain(txn *billing.CreditTransaction) *CreditTransactionModel {
	m := &CreditTransactionModel{}
	m.FromDomain(txn)
	return m
}

// AuditRecordModel is the persistence model for audit trail records.
// Rows are append-only; there is no update path.
type AuditRecordModel struct {
	ID         uuid.UUID             `gorm:"type:uuid;primary_key"`
	ClinicID   uuid.UUID             `gorm:"type:uuid;not null;index"`
	Actor      uuid.UUID             `gorm:"type:uuid;not null;index"`
	Action     billing.AuditAction   `gorm:"type:varchar(50);not null"`
	Resource   string                `gorm:"type:varchar(50);not null;index:idx_audit_resource"`
	ResourceID uuid.UUID             `gorm:"type:uuid;not null;index:idx_audit_resource"`
	Metadata   billing.AuditMetadata `gorm:"type:jsonb;not null;default:'{}'"`
	OccurredAt time.Time             `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (AuditRecordModel) TableName() string {
	return "audit_records"
}

// ToDomain converts the persistence model to a domain AuditRecord.
func (m *AuditRecordModel) ToDomain() *billing.AuditRecord {
	return &billing.AuditRecord{
		ID:         m.ID,
		ClinicID:   m.ClinicID,
		Actor:      m.Actor,
		Action:     m.Action,
		Resource:   m.Resource,
		ResourceID: m.ResourceID,
		Metadata:   m.Metadata,
		OccurredAt: m.OccurredAt,
	}
}

// AuditRecordModelFromDomain creates a new persistence model from a domain AuditRecord.
func AuditRecordModelFromDomain(record *billing.AuditRecord) *AuditRecordModel {
	return &AuditRecordModel{
		ID:         record.ID,
		ClinicID:   record.ClinicID,
		Actor:      record.Actor,
		Action:     record.Action,
		Resource:   record.Resource,
		ResourceID: record.ResourceID,
		Metadata:   record.Metadata,
		OccurredAt: record.OccurredAt,
	}
}
