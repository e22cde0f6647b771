package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// Test Helper Functions
// =============================================================================

type refundServiceFixture struct {
	invoiceRepo *MockInvoiceRepository
	gateway     *MockPaymentGateway
	alerts      *MockAlertNotifier
	service     *RefundService
}

func newRefundServiceFixture() *refundServiceFixture {
	f := &refundServiceFixture{
		invoiceRepo: new(MockInvoiceRepository),
		gateway:     new(MockPaymentGateway),
		alerts:      new(MockAlertNotifier),
	}
	f.service = NewRefundService(f.invoiceRepo, f.gateway, noopAuditRecorder{}, f.alerts, nil, nil, zap.NewNop())
	return f
}

// createPaidInvoice builds an invoice settled by a single payment and returns
// the invoice together with the payment's ID.
func createPaidInvoice(t *testing.T, clinicID uuid.UUID, total float64, method billing.PaymentMethod, gatewayTxnID string) (*billing.Invoice, uuid.UUID) {
	t.Helper()
	inv, err := billing.NewInvoice(
		clinicID,
		"INV-20260110-00001",
		uuid.New(),
		"Amina Kabila",
		decimal.NewFromFloat(total),
		decimal.Zero,
		decimal.Zero,
		time.Now().Add(-48*time.Hour),
		nil,
	)
	require.NoError(t, err)

	amount := decimal.NewFromFloat(total)
	entry := billing.NewPaymentEntry(amount, valueobject.CDF, amount, decimal.NewFromInt(1), method, "", uuid.New(), "batch-orig")
	entry.GatewayTxnID = gatewayTxnID
	require.NoError(t, inv.ApplyPayment(entry))
	inv.ClearDomainEvents()
	return inv, entry.ID
}

// =============================================================================
// Test Cases for ProcessRefund
// =============================================================================

func TestRefundService_ProcessRefund_CashSkipsGateway(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()

	f := newRefundServiceFixture()
	inv, paymentID := createPaidInvoice(t, clinicID, 10000, billing.PaymentMethodCash, "")

	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, inv.ID).Return(inv, nil)
	f.invoiceRepo.On("SaveWithLock", mock.Anything, inv).Return(nil)

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:  clinicID,
		InvoiceID: inv.ID,
		PaymentID: &paymentID,
		Amount:    decimal.NewFromFloat(4000),
		Reason:    "Returned frames after fitting issue",
		ActorID:   uuid.New(),
	})

	require.NoError(t, err)
	assert.Equal(t, "4000", result.Amount.String())
	assert.Equal(t, "6000", result.RemainingCap.String())
	assert.Empty(t, result.GatewayRefundID)
	assert.Equal(t, billing.InvoiceStatusPartial, result.InvoiceStatus)
	assert.Equal(t, "4000", result.AmountDue.String())

	f.gateway.AssertNotCalled(t, "ProcessRefund", mock.Anything, mock.Anything)
	f.invoiceRepo.AssertExpectations(t)
}

func TestRefundService_ProcessRefund_GatewayFirst(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()

	f := newRefundServiceFixture()
	inv, paymentID := createPaidInvoice(t, clinicID, 10000, billing.PaymentMethodCard, "txn-gw-4471")

	refundedAt := time.Now()
	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, inv.ID).Return(inv, nil)
	f.gateway.On("ProcessRefund", mock.Anything, mock.AnythingOfType("*billing.GatewayRefundRequest")).
		Return(&billing.GatewayRefundResponse{
			GatewayRefundID: "rf-981",
			Status:          billing.GatewayRefundStatusSuccess,
			RefundAmount:    decimal.NewFromFloat(10000),
			RefundedAt:      &refundedAt,
		}, nil)
	f.invoiceRepo.On("SaveWithLock", mock.Anything, inv).Return(nil)

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:  clinicID,
		InvoiceID: inv.ID,
		PaymentID: &paymentID,
		Amount:    decimal.NewFromFloat(10000),
		Reason:    "Full refund, prescription rejected",
		ActorID:   uuid.New(),
	})

	require.NoError(t, err)
	assert.Equal(t, "rf-981", result.GatewayRefundID)
	assert.Equal(t, billing.InvoiceStatusRefunded, result.InvoiceStatus)

	// The gateway request carries the original transaction and both amounts
	gwReq := f.gateway.Calls[0].Arguments.Get(1).(*billing.GatewayRefundRequest)
	assert.Equal(t, "txn-gw-4471", gwReq.GatewayTransactionID)
	assert.Equal(t, "10000", gwReq.OriginalAmount.String())
	assert.Equal(t, "10000", gwReq.RefundAmount.String())
	assert.Equal(t, billing.PaymentMethodCard, gwReq.Method)

	// The stored refund entry references the gateway refund
	refund := inv.FindPayment(result.RefundID)
	require.NotNil(t, refund)
	assert.Equal(t, "rf-981", refund.GatewayTxnID)

	f.gateway.AssertExpectations(t)
	f.invoiceRepo.AssertExpectations(t)
}

func TestRefundService_ProcessRefund_GatewayFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()

	f := newRefundServiceFixture()
	inv, paymentID := createPaidInvoice(t, clinicID, 10000, billing.PaymentMethodCard, "txn-gw-4471")

	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, inv.ID).Return(inv, nil)
	f.gateway.On("ProcessRefund", mock.Anything, mock.AnythingOfType("*billing.GatewayRefundRequest")).
		Return(nil, billing.ErrGatewayUnavailable)

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:  clinicID,
		InvoiceID: inv.ID,
		PaymentID: &paymentID,
		Amount:    decimal.NewFromFloat(5000),
		Reason:    "Partial refund for lens downgrade",
		ActorID:   uuid.New(),
	})

	assert.Nil(t, result)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "GATEWAY_ERROR", domainErr.Code)

	// Nothing was written locally, so a plain retry is safe
	f.invoiceRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	assert.Len(t, inv.Payments, 1)
	assert.Equal(t, billing.InvoiceStatusPaid, inv.Status)
}

func TestRefundService_ProcessRefund_GatewayDeclined(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()

	f := newRefundServiceFixture()
	inv, paymentID := createPaidInvoice(t, clinicID, 10000, billing.PaymentMethodMobileMoney, "txn-mm-230")

	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, inv.ID).Return(inv, nil)
	f.gateway.On("ProcessRefund", mock.Anything, mock.AnythingOfType("*billing.GatewayRefundRequest")).
		Return(&billing.GatewayRefundResponse{
			GatewayRefundID: "rf-112",
			Status:          billing.GatewayRefundStatusFailed,
		}, nil)

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:  clinicID,
		InvoiceID: inv.ID,
		PaymentID: &paymentID,
		Amount:    decimal.NewFromFloat(5000),
		Reason:    "Partial refund for lens downgrade",
		ActorID:   uuid.New(),
	})

	assert.Nil(t, result)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "GATEWAY_ERROR", domainErr.Code)
	f.invoiceRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
}

func TestRefundService_ProcessRefund_LocalFailureAfterGatewaySuccess(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()

	f := newRefundServiceFixture()
	inv, paymentID := createPaidInvoice(t, clinicID, 10000, billing.PaymentMethodCard, "txn-gw-4471")

	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, inv.ID).Return(inv, nil)
	f.gateway.On("ProcessRefund", mock.Anything, mock.AnythingOfType("*billing.GatewayRefundRequest")).
		Return(&billing.GatewayRefundResponse{
			GatewayRefundID: "rf-981",
			Status:          billing.GatewayRefundStatusSuccess,
		}, nil)
	f.invoiceRepo.On("SaveWithLock", mock.Anything, inv).Return(shared.ErrConcurrencyConflict)
	f.alerts.On("NotifyCriticalInconsistency", mock.Anything, mock.AnythingOfType("*billing.CriticalInconsistencyError")).Return()

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:  clinicID,
		InvoiceID: inv.ID,
		PaymentID: &paymentID,
		Amount:    decimal.NewFromFloat(5000),
		Reason:    "Partial refund for lens downgrade",
		ActorID:   uuid.New(),
	})

	assert.Nil(t, result)

	// Money moved at the processor but the ledger write failed. The error
	// identifies exactly what needs manual reconciliation.
	var critical *billing.CriticalInconsistencyError
	require.ErrorAs(t, err, &critical)
	assert.Equal(t, inv.ID, critical.InvoiceID)
	assert.Equal(t, paymentID, critical.PaymentID)
	assert.Equal(t, "rf-981", critical.GatewayRefundID)
	assert.Equal(t, "5000", critical.Amount.String())

	f.alerts.AssertExpectations(t)
}

func TestRefundService_ProcessRefund_ValidationRejectsBeforeGateway(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()

	f := newRefundServiceFixture()
	inv, paymentID := createPaidInvoice(t, clinicID, 10000, billing.PaymentMethodCard, "txn-gw-4471")

	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, inv.ID).Return(inv, nil)

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:  clinicID,
		InvoiceID: inv.ID,
		PaymentID: &paymentID,
		Amount:    decimal.NewFromFloat(12000),
		Reason:    "Refund request above the original payment",
		ActorID:   uuid.New(),
	})

	assert.Nil(t, result)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "REFUND_EXCEEDS_ORIGINAL", domainErr.Code)

	f.gateway.AssertNotCalled(t, "ProcessRefund", mock.Anything, mock.Anything)
	f.invoiceRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
}

func TestRefundService_ProcessRefund_InvoiceNotFound(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()
	invoiceID := uuid.New()
	paymentID := uuid.New()

	f := newRefundServiceFixture()
	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, invoiceID).Return(nil, nil)

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:  clinicID,
		InvoiceID: invoiceID,
		PaymentID: &paymentID,
		Amount:    decimal.NewFromFloat(1000),
		Reason:    "Refund for a missing invoice",
	})

	assert.Nil(t, result)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVOICE_NOT_FOUND", domainErr.Code)
}

func TestRefundService_ProcessRefund_ByIndex(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()

	f := newRefundServiceFixture()
	inv, paymentID := createPaidInvoice(t, clinicID, 10000, billing.PaymentMethodCash, "")

	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, inv.ID).Return(inv, nil)
	f.invoiceRepo.On("SaveWithLock", mock.Anything, inv).Return(nil)

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:     clinicID,
		InvoiceID:    inv.ID,
		PaymentIndex: 0,
		Amount:       decimal.NewFromFloat(2500),
		Reason:       "Cashier correction within same day",
		ActorID:      uuid.New(),
	})

	require.NoError(t, err)
	assert.Equal(t, paymentID, result.PaymentID)
	assert.Equal(t, "2500", result.Amount.String())
}

func TestRefundService_ProcessRefund_RepositoryError(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()
	invoiceID := uuid.New()
	paymentID := uuid.New()

	f := newRefundServiceFixture()
	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, invoiceID).
		Return(nil, errors.New("connection refused"))

	result, err := f.service.ProcessRefund(ctx, ProcessRefundRequest{
		ClinicID:  clinicID,
		InvoiceID: invoiceID,
		PaymentID: &paymentID,
		Amount:    decimal.NewFromFloat(1000),
		Reason:    "Refund while database is down",
	})

	assert.Nil(t, result)
	assert.ErrorContains(t, err, "failed to load invoice")
}

// =============================================================================
// Test Cases for PreviewRefund
// =============================================================================

func TestRefundService_PreviewRefund(t *testing.T) {
	ctx := context.Background()
	clinicID := uuid.New()

	f := newRefundServiceFixture()
	inv, paymentID := createPaidInvoice(t, clinicID, 10000, billing.PaymentMethodCard, "txn-gw-4471")

	f.invoiceRepo.On("FindByIDForClinic", mock.Anything, clinicID, inv.ID).Return(inv, nil)

	assessment, err := f.service.PreviewRefund(ctx, clinicID, inv.ID, paymentID,
		decimal.NewFromFloat(3000), "Preview before committing refund")

	require.NoError(t, err)
	assert.Equal(t, "10000", assessment.MaxRefundable.String())
	assert.True(t, assessment.RequiresGateway)

	// Preview never touches the gateway or the store
	f.gateway.AssertNotCalled(t, "ProcessRefund", mock.Anything, mock.Anything)
	f.invoiceRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	assert.Len(t, inv.Payments, 1)
}
