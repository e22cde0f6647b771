// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// payableInvoiceStatuses are the invoice statuses that still carry a balance.
var payableInvoiceStatuses = []string{"ISSUED", "SENT", "VIEWED", "PARTIAL", "OVERDUE"}

// GormBillingMetricsProvider implements BillingMetricsProvider using GORM.
// It queries the invoices table directly for aggregated metrics.
type GormBillingMetricsProvider struct {
	db *gorm.DB
}

// NewGormBillingMetricsProvider creates a new GormBillingMetricsProvider.
func NewGormBillingMetricsProvider(db *gorm.DB) *GormBillingMetricsProvider {
	return &GormBillingMetricsProvider{db: db}
}

// GetOutstandingTotals returns the count and summed balance of payable invoices for a clinic.
func (p *GormBillingMetricsProvider) GetOutstandingTotals(ctx context.Context, clinicID uuid.UUID) (int64, decimal.Decimal, error) {
	type result struct {
		InvoiceCount int64           `gorm:"column:invoice_count"`
		TotalDue     decimal.Decimal `gorm:"column:total_due"`
	}

	var r result
	err := p.db.WithContext(ctx).
		Table("invoices").
		Select("COUNT(*) as invoice_count, COALESCE(SUM(subtotal - discount_total + tax_total - write_off_total - amount_paid), 0) as total_due").
		Where("clinic_id = ? AND status IN ?", clinicID, payableInvoiceStatuses).
		Find(&r).Error

	if err != nil {
		return 0, decimal.Zero, err
	}

	return r.InvoiceCount, r.TotalDue, nil
}

// GetOverdueInvoiceCount returns the number of overdue invoices for a clinic.
func (p *GormBillingMetricsProvider) GetOverdueInvoiceCount(ctx context.Context, clinicID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("invoices").
		Where("clinic_id = ? AND status = ?", clinicID, "OVERDUE").
		Count(&count).Error

	return count, err
}

// GormClinicProvider implements ClinicProvider using GORM.
type GormClinicProvider struct {
	db *gorm.DB
}

// NewGormClinicProvider creates a new GormClinicProvider.
func NewGormClinicProvider(db *gorm.DB) *GormClinicProvider {
	return &GormClinicProvider{db: db}
}

// GetActiveClinicIDs returns the clinic IDs that have invoices on record.
func (p *GormClinicProvider) GetActiveClinicIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("invoices").
		Distinct("clinic_id").
		Find(&ids).Error

	return ids, err
}
