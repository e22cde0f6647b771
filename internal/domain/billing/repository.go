package billing

import (
	"context"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	PatientID *uuid.UUID       // Filter by patient
	Status    *InvoiceStatus   // Filter by status
	FromDate  *time.Time       // Filter by issue date range start
	ToDate    *time.Time       // Filter by issue date range end
	DueFrom   *time.Time       // Filter by due date range start
	DueTo     *time.Time       // Filter by due date range end
	Overdue   *bool            // Filter only past-due invoices
	MinDue    *decimal.Decimal // Filter by minimum outstanding amount
	MaxDue    *decimal.Decimal // Filter by maximum outstanding amount
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDForClinic finds an invoice by ID for a specific clinic
	FindByIDForClinic(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error)

	// FindByInvoiceNumber finds by invoice number for a clinic
	FindByInvoiceNumber(ctx context.Context, clinicID uuid.UUID, invoiceNumber string) (*Invoice, error)

	// FindByIDs loads a set of invoices for a clinic in one round trip
	FindByIDs(ctx context.Context, clinicID uuid.UUID, ids []uuid.UUID) ([]Invoice, error)

	// FindAllForClinic finds all invoices for a clinic with filtering
	FindAllForClinic(ctx context.Context, clinicID uuid.UUID, filter InvoiceFilter) ([]Invoice, error)

	// FindOutstanding finds all payable invoices for a patient, oldest first
	FindOutstanding(ctx context.Context, clinicID, patientID uuid.UUID) ([]Invoice, error)

	// FindOverdue finds all past-due, still payable invoices for a clinic
	FindOverdue(ctx context.Context, clinicID uuid.UUID, filter InvoiceFilter) ([]Invoice, error)

	// Save creates or updates an invoice
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock saves with optimistic locking (version check).
	// Returns shared.ErrConcurrencyConflict if the stored version
	// no longer matches the aggregate's version.
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// NextInvoiceNumber generates the next sequential invoice number
	// for the clinic (INV-YYYYMMDD-NNNNN)
	NextInvoiceNumber(ctx context.Context, clinicID uuid.UUID) (string, error)

	// CountForClinic counts invoices matching the filter
	CountForClinic(ctx context.Context, clinicID uuid.UUID, filter InvoiceFilter) (int64, error)

	// Delete removes an invoice (draft cleanup only)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PatientAccountRepository defines the interface for patient account persistence
type PatientAccountRepository interface {
	// FindByID finds a patient account by ID
	FindByID(ctx context.Context, id uuid.UUID) (*PatientAccount, error)

	// FindByPatient finds the account for a patient within a clinic
	FindByPatient(ctx context.Context, clinicID, patientID uuid.UUID) (*PatientAccount, error)

	// FindOrCreateByPatient finds the account for a patient, creating
	// an empty one if none exists yet
	FindOrCreateByPatient(ctx context.Context, clinicID, patientID uuid.UUID, patientName string) (*PatientAccount, error)

	// Save creates or updates a patient account
	Save(ctx context.Context, account *PatientAccount) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, account *PatientAccount) error
}

// CreditTransactionFilter defines filtering options for credit history queries
type CreditTransactionFilter struct {
	shared.Filter
	Type     *CreditTransactionType // Filter by grant or apply
	FromDate *time.Time             // Filter by date range start
	ToDate   *time.Time             // Filter by date range end
}

// CreditTransactionRepository defines the interface for the credit ledger
type CreditTransactionRepository interface {
	// Save appends a credit transaction. Entries are immutable.
	Save(ctx context.Context, txn *CreditTransaction) error

	// FindByAccount lists transactions for an account, newest first
	FindByAccount(ctx context.Context, clinicID, accountID uuid.UUID, filter CreditTransactionFilter) ([]CreditTransaction, error)

	// FindBySourceRef finds transactions referencing a source document,
	// used to detect duplicate grants for the same overpayment
	FindBySourceRef(ctx context.Context, clinicID uuid.UUID, sourceType CreditSourceType, sourceRef string) ([]CreditTransaction, error)
}

// AuditRecordRepository defines the interface for audit trail persistence
type AuditRecordRepository interface {
	// Save appends an audit record. Records are immutable.
	Save(ctx context.Context, record *AuditRecord) error

	// FindByResource lists records for a resource, newest first
	FindByResource(ctx context.Context, clinicID uuid.UUID, resource string, resourceID uuid.UUID, filter shared.Filter) ([]AuditRecord, error)

	// FindByActor lists records produced by an actor, newest first
	FindByActor(ctx context.Context, clinicID, actor uuid.UUID, filter shared.Filter) ([]AuditRecord, error)
}

// PaymentBatch is the unit of work produced by allocating one payment
// across invoices. All writes commit or roll back together.
type PaymentBatch struct {
	// Invoices are the mutated aggregates, saved with version checks
	Invoices []*Invoice
	// Account is the mutated patient account, nil when no credit moved
	Account *PatientAccount
	// CreditTransactions are ledger entries to append
	CreditTransactions []*CreditTransaction
}

// BillingUnitOfWork applies multi-aggregate mutations in one database
// transaction with optimistic locking on every aggregate touched.
type BillingUnitOfWork interface {
	// CommitPaymentBatch persists the batch atomically. If any version
	// check fails the whole batch rolls back and
	// shared.ErrConcurrencyConflict is returned.
	CommitPaymentBatch(ctx context.Context, batch *PaymentBatch) error
}
