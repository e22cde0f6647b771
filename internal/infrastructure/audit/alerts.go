package audit

import (
	"context"

	"github.com/clinic/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// LogAlertNotifier raises critical alerts through the structured log
// pipeline, where the on-call alerting rules pick them up. Deployments
// with a paging integration can swap in their own AlertNotifier.
type LogAlertNotifier struct {
	logger *zap.Logger
}

// NewLogAlertNotifier creates a new LogAlertNotifier
func NewLogAlertNotifier(logger *zap.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{logger: logger}
}

// NotifyCriticalInconsistency reports a money-moved-but-not-recorded condition
func (n *LogAlertNotifier) NotifyCriticalInconsistency(ctx context.Context, err *billing.CriticalInconsistencyError) {
	if err == nil {
		return
	}
	n.logger.Error("CRITICAL: gateway refund succeeded but local record failed, manual reconciliation required",
		zap.String("invoice_id", err.InvoiceID.String()),
		zap.String("payment_id", err.PaymentID.String()),
		zap.String("gateway_refund_id", err.GatewayRefundID),
		zap.String("amount", err.Amount.String()),
		zap.Error(err),
	)
}

// Ensure LogAlertNotifier implements AlertNotifier
var _ billing.AlertNotifier = (*LogAlertNotifier)(nil)
