// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BusinessMetrics provides business metrics for the billing system.
// It tracks payment allocation, refund activity, credit movement, and
// outstanding invoice health.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	paymentTotal       *Counter
	paymentAmountTotal *Counter
	refundTotal        *Counter
	creditGrantedTotal *Counter
	creditAppliedTotal *Counter

	// Gauge metrics (point-in-time values)
	outstandingInvoiceCount *Gauge
	outstandingAmount       *FloatGauge
	overdueInvoiceCount     *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data providers for periodic collection
	billingProvider BillingMetricsProvider
}

// BillingMetricsProvider provides billing data for periodic metrics collection.
// This interface allows the telemetry layer to query invoice state without
// depending on the billing domain directly.
type BillingMetricsProvider interface {
	// GetOutstandingTotals returns the count and summed balance of payable invoices for a clinic
	GetOutstandingTotals(ctx context.Context, clinicID uuid.UUID) (int64, decimal.Decimal, error)

	// GetOverdueInvoiceCount returns the number of overdue invoices for a clinic
	GetOverdueInvoiceCount(ctx context.Context, clinicID uuid.UUID) (int64, error)
}

// BusinessMetricsConfig holds configuration for business metrics.
type BusinessMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	BillingProvider BillingMetricsProvider
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		billingProvider: cfg.BillingProvider,
	}

	// Initialize counter metrics
	var err error

	// Payment metrics
	bm.paymentTotal, err = NewCounter(
		cfg.Meter,
		"billing_payment_total",
		"Total number of payment allocations",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	bm.paymentAmountTotal, err = NewCounter(
		cfg.Meter,
		"billing_payment_amount_total",
		"Total allocated payment amount in accounting currency minor units",
		"{centimes}",
	)
	if err != nil {
		return nil, err
	}

	// Refund metrics
	bm.refundTotal, err = NewCounter(
		cfg.Meter,
		"billing_refund_total",
		"Total number of refund attempts",
		"{refunds}",
	)
	if err != nil {
		return nil, err
	}

	// Credit metrics
	bm.creditGrantedTotal, err = NewCounter(
		cfg.Meter,
		"billing_credit_granted_amount_total",
		"Total credit granted in accounting currency minor units",
		"{centimes}",
	)
	if err != nil {
		return nil, err
	}

	bm.creditAppliedTotal, err = NewCounter(
		cfg.Meter,
		"billing_credit_applied_amount_total",
		"Total credit applied to invoices in accounting currency minor units",
		"{centimes}",
	)
	if err != nil {
		return nil, err
	}

	// Outstanding invoice gauge metrics
	bm.outstandingInvoiceCount, err = NewGauge(
		cfg.Meter,
		"billing_outstanding_invoice_count",
		"Number of invoices with an unpaid balance",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	bm.outstandingAmount, err = NewFloatGauge(
		cfg.Meter,
		"billing_outstanding_amount",
		"Summed unpaid balance across payable invoices",
		"{CDF}",
	)
	if err != nil {
		return nil, err
	}

	bm.overdueInvoiceCount, err = NewGauge(
		cfg.Meter,
		"billing_overdue_invoice_count",
		"Number of invoices past their due date",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Payment Metrics
// =============================================================================

// PaymentStatus represents the outcome of a payment for metrics labeling.
type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// RecordPayment records a payment allocation event.
// This should be called from the application layer when a payment batch commits.
func (bm *BusinessMetrics) RecordPayment(ctx context.Context, clinicID uuid.UUID, paymentMethod string, status PaymentStatus) {
	bm.paymentTotal.Inc(ctx,
		AttrClinicID.String(clinicID.String()),
		AttrPaymentMethod.String(paymentMethod),
		AttrPaymentStatus.String(string(status)),
	)
}

// RecordPaymentAmount records the allocated payment amount.
// Amount should be in the smallest currency unit (centimes).
func (bm *BusinessMetrics) RecordPaymentAmount(ctx context.Context, clinicID uuid.UUID, paymentMethod string, amountCentimes int64) {
	bm.paymentAmountTotal.Add(ctx, amountCentimes,
		AttrClinicID.String(clinicID.String()),
		AttrPaymentMethod.String(paymentMethod),
	)
}

// RecordPaymentWithAmount is a convenience method that records both payment count and amount.
func (bm *BusinessMetrics) RecordPaymentWithAmount(ctx context.Context, clinicID uuid.UUID, paymentMethod string, amount decimal.Decimal) {
	bm.RecordPayment(ctx, clinicID, paymentMethod, PaymentStatusSuccess)

	// Convert to centimes (multiply by 100)
	amountCentimes := amount.Mul(decimal.NewFromInt(100)).IntPart()
	bm.RecordPaymentAmount(ctx, clinicID, paymentMethod, amountCentimes)
}

// =============================================================================
// Refund Metrics
// =============================================================================

// RecordRefund records a refund attempt and its outcome.
// This should be called when a refund completes or is rejected.
func (bm *BusinessMetrics) RecordRefund(ctx context.Context, clinicID uuid.UUID, paymentMethod string, status PaymentStatus) {
	bm.refundTotal.Inc(ctx,
		AttrClinicID.String(clinicID.String()),
		AttrPaymentMethod.String(paymentMethod),
		AttrPaymentStatus.String(string(status)),
	)
}

// =============================================================================
// Credit Metrics
// =============================================================================

// RecordCreditGranted records credit granted to a patient account.
// Amount should be in the smallest currency unit (centimes).
func (bm *BusinessMetrics) RecordCreditGranted(ctx context.Context, clinicID uuid.UUID, source string, amountCentimes int64) {
	bm.creditGrantedTotal.Add(ctx, amountCentimes,
		AttrClinicID.String(clinicID.String()),
		AttrCreditSource.String(source),
	)
}

// RecordCreditApplied records credit applied against an invoice.
// Amount should be in the smallest currency unit (centimes).
func (bm *BusinessMetrics) RecordCreditApplied(ctx context.Context, clinicID uuid.UUID, amountCentimes int64) {
	bm.creditAppliedTotal.Add(ctx, amountCentimes,
		AttrClinicID.String(clinicID.String()),
	)
}

// =============================================================================
// Outstanding Invoice Metrics
// =============================================================================

// RecordOutstandingInvoices records the current outstanding invoice totals for a clinic.
// This is a gauge metric that should be updated periodically.
func (bm *BusinessMetrics) RecordOutstandingInvoices(ctx context.Context, clinicID uuid.UUID, count int64, amount decimal.Decimal) {
	clinicAttr := AttrClinicID.String(clinicID.String())
	bm.outstandingInvoiceCount.Record(ctx, count, clinicAttr)
	bm.outstandingAmount.Record(ctx, amount.InexactFloat64(), clinicAttr)
}

// RecordOverdueInvoiceCount records the number of overdue invoices for a clinic.
// This is a gauge metric that should be updated periodically.
func (bm *BusinessMetrics) RecordOverdueInvoiceCount(ctx context.Context, clinicID uuid.UUID, count int64) {
	bm.overdueInvoiceCount.Record(ctx, count,
		AttrClinicID.String(clinicID.String()),
	)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// ClinicProvider provides clinic IDs for periodic metrics collection.
type ClinicProvider interface {
	GetActiveClinicIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It collects outstanding invoice metrics every interval (default: 5 minutes).
// This is non-blocking - use Stop() to stop collection.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, clinicProvider ClinicProvider, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go bm.runPeriodicCollection(ctx, clinicProvider, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, clinicProvider ClinicProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	bm.collectBillingMetrics(ctx, clinicProvider)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic business metrics collection")
			return
		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping periodic business metrics collection")
			return
		case <-ticker.C:
			bm.collectBillingMetrics(ctx, clinicProvider)
		}
	}
}

// collectBillingMetrics collects outstanding invoice gauge metrics for all clinics.
func (bm *BusinessMetrics) collectBillingMetrics(ctx context.Context, clinicProvider ClinicProvider) {
	if bm.billingProvider == nil {
		bm.logger.Debug("No billing provider configured, skipping invoice metrics collection")
		return
	}

	clinicIDs, err := clinicProvider.GetActiveClinicIDs(ctx)
	if err != nil {
		bm.logger.Error("Failed to get clinic IDs for metrics collection", zap.Error(err))
		return
	}

	for _, clinicID := range clinicIDs {
		bm.collectClinicBillingMetrics(ctx, clinicID)
	}
}

// collectClinicBillingMetrics collects invoice metrics for a single clinic.
func (bm *BusinessMetrics) collectClinicBillingMetrics(ctx context.Context, clinicID uuid.UUID) {
	// Collect outstanding invoice totals
	count, amount, err := bm.billingProvider.GetOutstandingTotals(ctx, clinicID)
	if err != nil {
		bm.logger.Warn("Failed to get outstanding totals for clinic",
			zap.String("clinic_id", clinicID.String()),
			zap.Error(err),
		)
	} else {
		bm.RecordOutstandingInvoices(ctx, clinicID, count, amount)
	}

	// Collect overdue invoice count
	overdueCount, err := bm.billingProvider.GetOverdueInvoiceCount(ctx, clinicID)
	if err != nil {
		bm.logger.Warn("Failed to get overdue invoice count for clinic",
			zap.String("clinic_id", clinicID.String()),
			zap.Error(err),
		)
	} else {
		bm.RecordOverdueInvoiceCount(ctx, clinicID, overdueCount)
	}
}

// Stop stops the periodic collection.
func (bm *BusinessMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBusinessMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
