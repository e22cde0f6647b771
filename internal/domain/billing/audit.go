package billing

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the financially sensitive operation being recorded
type AuditAction string

const (
	// AuditActionBatchPayment records a payment allocated across invoices
	AuditActionBatchPayment AuditAction = "BATCH_PAYMENT"
	// AuditActionProcessRefund records a refund applied to a payment entry
	AuditActionProcessRefund AuditAction = "PROCESS_REFUND"
	// AuditActionGrantCredit records credit granted to a patient account
	AuditActionGrantCredit AuditAction = "GRANT_CREDIT"
	// AuditActionApplyCredit records credit consumed against an invoice
	AuditActionApplyCredit AuditAction = "APPLY_CREDIT"
	// AuditActionApplyDiscount records a discount applied to an invoice
	AuditActionApplyDiscount AuditAction = "APPLY_DISCOUNT"
	// AuditActionWriteOff records a balance written off an invoice
	AuditActionWriteOff AuditAction = "WRITE_OFF"
	// AuditActionCancelInvoice records an invoice cancellation
	AuditActionCancelInvoice AuditAction = "CANCEL_INVOICE"
)

// IsValid returns true if the audit action is valid
func (a AuditAction) IsValid() bool {
	switch a {
	case AuditActionBatchPayment, AuditActionProcessRefund, AuditActionGrantCredit,
		AuditActionApplyCredit, AuditActionApplyDiscount, AuditActionWriteOff,
		AuditActionCancelInvoice:
		return true
	default:
		return false
	}
}

// String returns the string representation of AuditAction
func (a AuditAction) String() string {
	return string(a)
}

// AuditMetadata holds action specific key-value context, stored as JSONB
type AuditMetadata map[string]any

// Value implements driver.Valuer for database storage
func (m AuditMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = AuditMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, isStr := value.(string); isStr {
			bytes = []byte(str)
		} else {
			return fmt.Errorf("cannot scan %T into AuditMetadata", value)
		}
	}
	return json.Unmarshal(bytes, m)
}

// AuditRecord is an immutable trail entry for a financial operation.
// Records are append only and never updated or deleted.
type AuditRecord struct {
	ID         uuid.UUID     `json:"id"`
	ClinicID   uuid.UUID     `json:"clinicId"`
	Actor      uuid.UUID     `json:"actor"`
	Action     AuditAction   `json:"action"`
	Resource   string        `json:"resource"`
	ResourceID uuid.UUID     `json:"resourceId"`
	Metadata   AuditMetadata `json:"metadata"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// NewAuditRecord creates an audit record stamped with the current time
func NewAuditRecord(clinicID, actor uuid.UUID, action AuditAction, resource string, resourceID uuid.UUID, metadata AuditMetadata) *AuditRecord {
	if metadata == nil {
		metadata = AuditMetadata{}
	}
	return &AuditRecord{
		ID:         uuid.New(),
		ClinicID:   clinicID,
		Actor:      actor,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
}

// AuditRecorder persists audit records without blocking the caller.
// Record is fire-and-forget: a failed write is logged and must never
// fail the financial operation that produced it.
type AuditRecorder interface {
	// Record enqueues the audit record for persistence
	Record(ctx context.Context, record *AuditRecord)

	// Close drains pending records and stops the recorder
	Close() error
}

// AlertNotifier raises operational alerts that require human attention,
// such as a gateway refund succeeding while the local write failed.
type AlertNotifier interface {
	// NotifyCriticalInconsistency reports a money-moved-but-not-recorded
	// condition for manual reconciliation
	NotifyCriticalInconsistency(ctx context.Context, err *CriticalInconsistencyError)
}
