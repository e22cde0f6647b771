package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Payment Gateway Errors
// ---------------------------------------------------------------------------

var (
	// Refund request errors
	ErrRefundInvalidClinicID        = errors.New("refund: invalid clinic ID")
	ErrRefundInvalidOriginalPayment = errors.New("refund: invalid original payment reference")
	ErrRefundInvalidRefundID        = errors.New("refund: invalid refund ID")
	ErrRefundInvalidOriginalAmount  = errors.New("refund: invalid original amount")
	ErrRefundInvalidAmount          = errors.New("refund: invalid refund amount")
	ErrRefundAmountExceedsOriginal  = errors.New("refund: refund amount exceeds original payment")

	// Gateway errors
	ErrGatewayNotConfigured   = errors.New("gateway: not configured")
	ErrGatewayUnavailable     = errors.New("gateway: temporarily unavailable")
	ErrGatewayRequestFailed   = errors.New("gateway: request failed")
	ErrGatewayInvalidResponse = errors.New("gateway: invalid response")
	ErrGatewayRefundDeclined  = errors.New("gateway: refund declined")
)

// GatewayRefundStatus represents the status of a refund in the gateway
type GatewayRefundStatus string

const (
	// GatewayRefundStatusPending indicates the refund is being processed
	GatewayRefundStatusPending GatewayRefundStatus = "PENDING"
	// GatewayRefundStatusSuccess indicates the refund was accepted by the gateway
	GatewayRefundStatusSuccess GatewayRefundStatus = "SUCCESS"
	// GatewayRefundStatusFailed indicates the refund failed
	GatewayRefundStatusFailed GatewayRefundStatus = "FAILED"
)

// IsValid returns true if the refund status is valid
func (s GatewayRefundStatus) IsValid() bool {
	switch s {
	case GatewayRefundStatusPending, GatewayRefundStatusSuccess, GatewayRefundStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of GatewayRefundStatus
func (s GatewayRefundStatus) String() string {
	return string(s)
}

// IsSuccess returns true if the gateway accepted the refund
func (s GatewayRefundStatus) IsSuccess() bool {
	return s == GatewayRefundStatusSuccess
}

// ---------------------------------------------------------------------------
// Refund Request/Response DTOs
// ---------------------------------------------------------------------------

// GatewayRefundRequest represents a request to reverse a card or
// mobile money payment at the external processor.
type GatewayRefundRequest struct {
	// ClinicID is the clinic requesting the refund
	ClinicID uuid.UUID
	// GatewayTransactionID is the processor transaction of the original payment
	GatewayTransactionID string
	// RefundID is our internal refund reference ID
	RefundID uuid.UUID
	// InvoiceNumber is the invoice the original payment settled (for display)
	InvoiceNumber string
	// OriginalAmount is the original payment amount in accounting currency
	OriginalAmount decimal.Decimal
	// RefundAmount is the amount to refund in accounting currency
	RefundAmount decimal.Decimal
	// Currency is the refund currency (matches the original payment)
	Currency string
	// Reason is the operator supplied justification
	Reason string
	// Method is the payment method of the original entry
	Method PaymentMethod
}

// Validate validates the gateway refund request
func (r *GatewayRefundRequest) Validate() error {
	if r.ClinicID == uuid.Nil {
		return ErrRefundInvalidClinicID
	}
	if r.GatewayTransactionID == "" {
		return ErrRefundInvalidOriginalPayment
	}
	if r.RefundID == uuid.Nil {
		return ErrRefundInvalidRefundID
	}
	if r.OriginalAmount.LessThanOrEqual(decimal.Zero) {
		return ErrRefundInvalidOriginalAmount
	}
	if r.RefundAmount.LessThanOrEqual(decimal.Zero) {
		return ErrRefundInvalidAmount
	}
	if r.RefundAmount.GreaterThan(r.OriginalAmount) {
		return ErrRefundAmountExceedsOriginal
	}
	return nil
}

// GatewayRefundResponse represents the response from a refund request
type GatewayRefundResponse struct {
	// GatewayRefundID is the refund ID assigned by the gateway
	GatewayRefundID string
	// Status is the refund status
	Status GatewayRefundStatus
	// RefundAmount is the refunded amount
	RefundAmount decimal.Decimal
	// RefundedAt is when the refund was completed
	RefundedAt *time.Time
	// RawResponse is the original gateway response (JSON)
	RawResponse string
}

// ---------------------------------------------------------------------------
// PaymentGateway Port Interface
// ---------------------------------------------------------------------------

// PaymentGateway defines the port interface for the external payment
// processor. It is defined in the domain layer, and the HTTP adapter
// lives in the infrastructure layer.
type PaymentGateway interface {
	// ProcessRefund reverses a card or mobile money payment at the
	// processor. Callers must invoke this BEFORE recording the refund
	// locally so that a gateway failure never leaves a phantom refund
	// in the ledger.
	ProcessRefund(ctx context.Context, req *GatewayRefundRequest) (*GatewayRefundResponse, error)

	// QueryRefund queries the status of a previously submitted refund.
	QueryRefund(ctx context.Context, clinicID uuid.UUID, gatewayRefundID string) (*GatewayRefundResponse, error)
}
