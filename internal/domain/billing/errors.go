package billing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CriticalInconsistencyError marks a state where the payment gateway and the
// local ledger disagree about whether money moved: the gateway refund was
// confirmed but the local write failed afterwards. It is never auto-retried
// (a retry could double-refund) and must be escalated for manual
// reconciliation.
type CriticalInconsistencyError struct {
	InvoiceID       uuid.UUID
	PaymentID       uuid.UUID
	GatewayRefundID string
	Amount          decimal.Decimal
	Cause           error
}

// Error implements the error interface
func (e *CriticalInconsistencyError) Error() string {
	return fmt.Sprintf(
		"critical inconsistency: gateway refund %s for %s CDF confirmed but local write on invoice %s failed: %v",
		e.GatewayRefundID, e.Amount.StringFixed(2), e.InvoiceID, e.Cause,
	)
}

// Unwrap returns the underlying write failure
func (e *CriticalInconsistencyError) Unwrap() error {
	return e.Cause
}

// NewCriticalInconsistencyError creates a new critical inconsistency error
func NewCriticalInconsistencyError(invoiceID, paymentID uuid.UUID, gatewayRefundID string, amount decimal.Decimal, cause error) *CriticalInconsistencyError {
	return &CriticalInconsistencyError{
		InvoiceID:       invoiceID,
		PaymentID:       paymentID,
		GatewayRefundID: gatewayRefundID,
		Amount:          amount,
		Cause:           cause,
	}
}
