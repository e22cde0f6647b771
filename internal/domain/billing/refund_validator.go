package billing

import (
	"fmt"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinRefundReasonLength is the minimum length of a refund justification.
// Refunds are irreversible financial events; a bare "refund" is not a reason.
const MinRefundReasonLength = 10

// RefundAssessment is the result of validating a refund request against an
// invoice's payment history. All figures are in the accounting currency.
type RefundAssessment struct {
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	AlreadyRefunded decimal.Decimal `json:"already_refunded"`
	MaxRefundable   decimal.Decimal `json:"max_refundable"`
	Requested       decimal.Decimal `json:"requested"`
	GatewayTxnID    string          `json:"gateway_txn_id,omitempty"`
	RequiresGateway bool            `json:"requires_gateway"`
}

// RefundValidator computes the remaining refundable amount for a payment and
// bounds refund requests. It is a pure service: no I/O, no state.
type RefundValidator struct{}

// NewRefundValidator creates a new refund validator
func NewRefundValidator() *RefundValidator {
	return &RefundValidator{}
}

// Validate checks a refund request against the invoice's payment history.
// Validation order: reason, then requested vs original amount, then requested
// vs the remaining refundable cap. Both the requested and the permitted
// figures are reported on rejection so the caller can self-correct.
func (v *RefundValidator) Validate(inv *Invoice, paymentID uuid.UUID, requested decimal.Decimal, reason string) (*RefundAssessment, error) {
	if inv == nil {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice cannot be nil")
	}
	if requested.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Refund amount must be positive")
	}
	if len(reason) < MinRefundReasonLength {
		return nil, shared.NewDomainError("INVALID_REASON",
			fmt.Sprintf("Refund reason must be at least %d characters", MinRefundReasonLength))
	}
	if !inv.Status.CanRefund() {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot refund invoice in %s status", inv.Status))
	}

	original := inv.FindPayment(paymentID)
	if original == nil {
		return nil, shared.NewDomainError("PAYMENT_NOT_FOUND", "Original payment not found on invoice")
	}
	if original.IsRefund() {
		return nil, shared.NewDomainError("INVALID_PAYMENT", "Cannot refund a refund entry")
	}

	if requested.Sub(original.AmountInBase).GreaterThan(AmountTolerance) {
		return nil, shared.NewDomainError("REFUND_EXCEEDS_ORIGINAL",
			fmt.Sprintf("Requested refund %s exceeds original payment amount %s",
				requested.StringFixed(2), original.AmountInBase.StringFixed(2)))
	}

	alreadyRefunded := inv.AlreadyRefunded(paymentID)
	maxRefundable := original.AmountInBase.Sub(alreadyRefunded)
	if requested.Sub(maxRefundable).GreaterThan(AmountTolerance) {
		return nil, shared.NewDomainError("EXCEEDS_REFUNDABLE",
			fmt.Sprintf("Requested refund %s exceeds maxRefundable: %s remaining",
				requested.StringFixed(2), maxRefundable.StringFixed(2)))
	}

	return &RefundAssessment{
		InvoiceID:       inv.ID,
		PaymentID:       paymentID,
		OriginalAmount:  original.AmountInBase,
		AlreadyRefunded: alreadyRefunded,
		MaxRefundable:   maxRefundable,
		Requested:       requested,
		GatewayTxnID:    original.GatewayTxnID,
		RequiresGateway: original.Method.IsGatewayProcessed() && original.GatewayTxnID != "",
	}, nil
}

// ValidateByIndex resolves a payment by its position in the payment log and
// delegates to Validate. Refund entries are not addressable by index.
func (v *RefundValidator) ValidateByIndex(inv *Invoice, index int, requested decimal.Decimal, reason string) (*RefundAssessment, error) {
	if inv == nil {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice cannot be nil")
	}
	entry := inv.PaymentByIndex(index)
	if entry == nil {
		return nil, shared.NewDomainError("PAYMENT_NOT_FOUND",
			fmt.Sprintf("No payment at index %d", index))
	}
	return v.Validate(inv, entry.ID, requested, reason)
}
