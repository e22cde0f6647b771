package gateway

import (
	"context"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/google/uuid"
)

// Disabled is a PaymentGateway used when no processor is configured.
// Cash refunds never reach the gateway, so a clinic without card or
// mobile money acquiring still runs; gateway-settled refunds fail
// with ErrGatewayNotConfigured.
type Disabled struct{}

// NewDisabled creates a Disabled gateway
func NewDisabled() *Disabled {
	return &Disabled{}
}

// ProcessRefund always fails with ErrGatewayNotConfigured
func (d *Disabled) ProcessRefund(ctx context.Context, req *billing.GatewayRefundRequest) (*billing.GatewayRefundResponse, error) {
	return nil, billing.ErrGatewayNotConfigured
}

// QueryRefund always fails with ErrGatewayNotConfigured
func (d *Disabled) QueryRefund(ctx context.Context, clinicID uuid.UUID, gatewayRefundID string) (*billing.GatewayRefundResponse, error) {
	return nil, billing.ErrGatewayNotConfigured
}

// Ensure Disabled implements PaymentGateway
var _ billing.PaymentGateway = (*Disabled)(nil)
