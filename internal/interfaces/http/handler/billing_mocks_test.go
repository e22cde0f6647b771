package handler

import (
	"context"
	"time"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Repositories and Ports for Billing Handler Tests
// =============================================================================

// MockInvoiceRepository implements billing.InvoiceRepository for testing
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDForClinic(ctx context.Context, clinicID, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, clinicID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByInvoiceNumber(ctx context.Context, clinicID uuid.UUID, invoiceNumber string) (*billing.Invoice, error) {
	args := m.Called(ctx, clinicID, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDs(ctx context.Context, clinicID uuid.UUID, ids []uuid.UUID) ([]billing.Invoice, error) {
	args := m.Called(ctx, clinicID, ids)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAllForClinic(ctx context.Context, clinicID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, clinicID, filter)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindOutstanding(ctx context.Context, clinicID, patientID uuid.UUID) ([]billing.Invoice, error) {
	args := m.Called(ctx, clinicID, patientID)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindOverdue(ctx context.Context, clinicID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, clinicID, filter)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) NextInvoiceNumber(ctx context.Context, clinicID uuid.UUID) (string, error) {
	args := m.Called(ctx, clinicID)
	return args.Get(0).(string), args.Error(1)
}

func (m *MockInvoiceRepository) CountForClinic(ctx context.Context, clinicID uuid.UUID, filter billing.InvoiceFilter) (int64, error) {
	args := m.Called(ctx, clinicID, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPatientAccountRepository implements billing.PatientAccountRepository for testing
type MockPatientAccountRepository struct {
	mock.Mock
}

func (m *MockPatientAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PatientAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PatientAccount), args.Error(1)
}

func (m *MockPatientAccountRepository) FindByPatient(ctx context.Context, clinicID, patientID uuid.UUID) (*billing.PatientAccount, error) {
	args := m.Called(ctx, clinicID, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PatientAccount), args.Error(1)
}

func (m *MockPatientAccountRepository) FindOrCreateByPatient(ctx context.Context, clinicID, patientID uuid.UUID, patientName string) (*billing.PatientAccount, error) {
	args := m.Called(ctx, clinicID, patientID, patientName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PatientAccount), args.Error(1)
}

func (m *MockPatientAccountRepository) Save(ctx context.Context, account *billing.PatientAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockPatientAccountRepository) SaveWithLock(ctx context.Context, account *billing.PatientAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockCreditTransactionRepository implements billing.CreditTransactionRepository for testing
type MockCreditTransactionRepository struct {
	mock.Mock
}

func (m *MockCreditTransactionRepository) Save(ctx context.Context, txn *billing.CreditTransaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockCreditTransactionRepository) FindByAccount(ctx context.Context, clinicID, accountID uuid.UUID, filter billing.CreditTransactionFilter) ([]billing.CreditTransaction, error) {
	args := m.Called(ctx, clinicID, accountID, filter)
	return args.Get(0).([]billing.CreditTransaction), args.Error(1)
}

func (m *MockCreditTransactionRepository) FindBySourceRef(ctx context.Context, clinicID uuid.UUID, sourceType billing.CreditSourceType, sourceRef string) ([]billing.CreditTransaction, error) {
	args := m.Called(ctx, clinicID, sourceType, sourceRef)
	return args.Get(0).([]billing.CreditTransaction), args.Error(1)
}

// MockBillingUnitOfWork implements billing.BillingUnitOfWork for testing
type MockBillingUnitOfWork struct {
	mock.Mock
}

func (m *MockBillingUnitOfWork) CommitPaymentBatch(ctx context.Context, batch *billing.PaymentBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

// MockIdempotencyStore implements shared.IdempotencyStore for testing
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(bool), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(bool), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockPaymentGateway implements billing.PaymentGateway for testing
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) ProcessRefund(ctx context.Context, req *billing.GatewayRefundRequest) (*billing.GatewayRefundResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.GatewayRefundResponse), args.Error(1)
}

func (m *MockPaymentGateway) QueryRefund(ctx context.Context, clinicID uuid.UUID, gatewayRefundID string) (*billing.GatewayRefundResponse, error) {
	args := m.Called(ctx, clinicID, gatewayRefundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.GatewayRefundResponse), args.Error(1)
}

// MockAlertNotifier implements billing.AlertNotifier for testing
type MockAlertNotifier struct {
	mock.Mock
}

func (m *MockAlertNotifier) NotifyCriticalInconsistency(ctx context.Context, err *billing.CriticalInconsistencyError) {
	m.Called(ctx, err)
}

// noopAuditRecorder swallows audit records in handler tests
type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(ctx context.Context, record *billing.AuditRecord) {}
func (noopAuditRecorder) Close() error                                            { return nil }

var _ billing.AuditRecorder = noopAuditRecorder{}
var _ shared.IdempotencyStore = (*MockIdempotencyStore)(nil)
var _ billing.InvoiceRepository = (*MockInvoiceRepository)(nil)
var _ billing.PatientAccountRepository = (*MockPatientAccountRepository)(nil)
var _ billing.CreditTransactionRepository = (*MockCreditTransactionRepository)(nil)
var _ billing.BillingUnitOfWork = (*MockBillingUnitOfWork)(nil)
var _ billing.PaymentGateway = (*MockPaymentGateway)(nil)
var _ billing.AlertNotifier = (*MockAlertNotifier)(nil)
