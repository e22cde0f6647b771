package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/clinic/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestNewBusinessMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
	})

	require.NoError(t, err)
	require.NotNil(t, bm)
}

func TestNewBusinessMetrics_NilMeter(t *testing.T) {
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  nil,
		Logger: zap.NewNop(),
	})

	require.Error(t, err)
	assert.Nil(t, bm)
	assert.Equal(t, "NewBusinessMetrics: meter cannot be nil", err.Error())
}

func TestBusinessMetrics_RecordPayment(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	clinicID := uuid.New()

	// Should not panic
	bm.RecordPayment(ctx, clinicID, "CASH", telemetry.PaymentStatusSuccess)
	bm.RecordPayment(ctx, clinicID, "CARD", telemetry.PaymentStatusFailed)
}

func TestBusinessMetrics_RecordPaymentAmount(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	clinicID := uuid.New()

	// Should not panic
	bm.RecordPaymentAmount(ctx, clinicID, "CASH", 10000) // 100.00 CDF
	bm.RecordPaymentAmount(ctx, clinicID, "MOBILE_MONEY", 50000)
}

func TestBusinessMetrics_RecordPaymentWithAmount(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	clinicID := uuid.New()
	amount := decimal.NewFromFloat(199.99)

	// Should not panic and record both count and amount
	bm.RecordPaymentWithAmount(ctx, clinicID, "CARD", amount)
}

func TestBusinessMetrics_RecordRefund(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	clinicID := uuid.New()

	// Should not panic
	bm.RecordRefund(ctx, clinicID, "CARD", telemetry.PaymentStatusSuccess)
	bm.RecordRefund(ctx, clinicID, "MOBILE_MONEY", telemetry.PaymentStatusFailed)
}

func TestBusinessMetrics_RecordCreditGranted(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	clinicID := uuid.New()

	// Should not panic
	bm.RecordCreditGranted(ctx, clinicID, "OVERPAYMENT", 2500)
	bm.RecordCreditGranted(ctx, clinicID, "MANUAL", 10000)
}

func TestBusinessMetrics_RecordCreditApplied(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	clinicID := uuid.New()

	// Should not panic
	bm.RecordCreditApplied(ctx, clinicID, 2500)
	bm.RecordCreditApplied(ctx, clinicID, 7500)
}

func TestBusinessMetrics_RecordOutstandingInvoices(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	clinicID := uuid.New()

	// Should not panic
	bm.RecordOutstandingInvoices(ctx, clinicID, 12, decimal.NewFromInt(450000))
	bm.RecordOverdueInvoiceCount(ctx, clinicID, 3)
}

// Mock implementations for testing periodic collection

type mockClinicProvider struct {
	clinicIDs []uuid.UUID
	err       error
}

func (m *mockClinicProvider) GetActiveClinicIDs(ctx context.Context) ([]uuid.UUID, error) {
	return m.clinicIDs, m.err
}

type mockBillingProvider struct {
	outstandingCount  int64
	outstandingAmount decimal.Decimal
	overdueCount      int64
	err               error
}

func (m *mockBillingProvider) GetOutstandingTotals(ctx context.Context, clinicID uuid.UUID) (int64, decimal.Decimal, error) {
	if m.err != nil {
		return 0, decimal.Zero, m.err
	}
	return m.outstandingCount, m.outstandingAmount, nil
}

func (m *mockBillingProvider) GetOverdueInvoiceCount(ctx context.Context, clinicID uuid.UUID) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.overdueCount, nil
}

func TestBusinessMetrics_PeriodicCollection(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	clinicID := uuid.New()

	billingProvider := &mockBillingProvider{
		outstandingCount:  8,
		outstandingAmount: decimal.NewFromInt(320000),
		overdueCount:      2,
	}

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:           meter,
		Logger:          zap.NewNop(),
		BillingProvider: billingProvider,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clinicProvider := &mockClinicProvider{
		clinicIDs: []uuid.UUID{clinicID},
	}

	// Start periodic collection with short interval for testing
	bm.StartPeriodicCollection(ctx, clinicProvider, 100*time.Millisecond)

	// Wait for at least one collection cycle
	time.Sleep(150 * time.Millisecond)

	// Stop collection
	bm.Stop()

	// Should complete without error
}

func TestBusinessMetrics_PeriodicCollection_NoProvider(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
		// No billing provider
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clinicProvider := &mockClinicProvider{
		clinicIDs: []uuid.UUID{uuid.New()},
	}

	// Should not panic with no billing provider
	bm.StartPeriodicCollection(ctx, clinicProvider, 50*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	bm.Stop()
}

func TestBusinessMetrics_Stop_Idempotent(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	// Calling Stop multiple times should not panic
	bm.Stop()
	bm.Stop()
	bm.Stop()
}

func TestBusinessMetrics_StartPeriodicCollection_OnlyOnce(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clinicProvider := &mockClinicProvider{
		clinicIDs: []uuid.UUID{},
	}

	// Calling StartPeriodicCollection multiple times should only start once
	bm.StartPeriodicCollection(ctx, clinicProvider, time.Hour)
	bm.StartPeriodicCollection(ctx, clinicProvider, time.Minute)
	bm.StartPeriodicCollection(ctx, clinicProvider, time.Second)

	bm.Stop()
}

func TestPaymentStatus_Values(t *testing.T) {
	assert.Equal(t, telemetry.PaymentStatus("success"), telemetry.PaymentStatusSuccess)
	assert.Equal(t, telemetry.PaymentStatus("failed"), telemetry.PaymentStatusFailed)
}

func TestMetricsError_Error(t *testing.T) {
	err := &telemetry.MetricsError{
		Op:  "TestOperation",
		Err: "test error message",
	}

	assert.Equal(t, "TestOperation: test error message", err.Error())
}
