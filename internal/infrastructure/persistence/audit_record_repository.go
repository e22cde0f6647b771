package persistence

import (
	"context"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditRecordRepository implements AuditRecordRepository using GORM.
// Audit rows are append-only; this repository never updates or deletes rows.
type GormAuditRecordRepository struct {
	db *gorm.DB
}

// NewGormAuditRecordRepository creates a new GormAuditRecordRepository
func NewGormAuditRecordRepository(db *gorm.DB) *GormAuditRecordRepository {
	return &GormAuditRecordRepository{db: db}
}

// Save appends an audit record
func (r *GormAuditRecordRepository) Save(ctx context.Context, record *billing.AuditRecord) error {
	model := models.AuditRecordModelFromDomain(record)
	return r.db.WithContext(ctx).Create(model).Error
}

// SaveBatch appends multiple audit records in one insert
func (r *GormAuditRecordRepository) SaveBatch(ctx context.Context, records []*billing.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	recordModels := make([]*models.AuditRecordModel, len(records))
	for i, rec := range records {
		recordModels[i] = models.AuditRecordModelFromDomain(rec)
	}
	return r.db.WithContext(ctx).Create(recordModels).Error
}

// FindByResource lists records for a resource, newest first
func (r *GormAuditRecordRepository) FindByResource(ctx context.Context, clinicID uuid.UUID, resource string, resourceID uuid.UUID, filter shared.Filter) ([]billing.AuditRecord, error) {
	var recordModels []models.AuditRecordModel
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&models.AuditRecordModel{}).
			Where("clinic_id = ? AND resource = ? AND resource_id = ?", clinicID, resource, resourceID),
		filter,
	)

	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]billing.AuditRecord, len(recordModels))
	for i, model := range recordModels {
		records[i] = *model.ToDomain()
	}
	return records, nil
}

// FindByActor lists records produced by an actor, newest first
func (r *GormAuditRecordRepository) FindByActor(ctx context.Context, clinicID, actor uuid.UUID, filter shared.Filter) ([]billing.AuditRecord, error) {
	var recordModels []models.AuditRecordModel
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&models.AuditRecordModel{}).
			Where("clinic_id = ? AND actor = ?", clinicID, actor),
		filter,
	)

	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]billing.AuditRecord, len(recordModels))
	for i, model := range recordModels {
		records[i] = *model.ToDomain()
	}
	return records, nil
}

// applyFilter applies filter options to the query
func (r *GormAuditRecordRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering, newest first by default
	if filter.OrderBy != "" {
		orderBy := ValidateSortField(filter.OrderBy, AuditRecordSortFields, "occurred_at")
		query = query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))
	} else {
		query = query.Order("occurred_at DESC")
	}

	return query
}

// Ensure GormAuditRecordRepository implements AuditRecordRepository
var _ billing.AuditRecordRepository = (*GormAuditRecordRepository)(nil)
