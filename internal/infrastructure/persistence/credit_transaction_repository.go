package persistence

import (
	"context"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCreditTransactionRepository implements CreditTransactionRepository using GORM.
// Ledger entries are append-only; this repository never updates or deletes rows.
type GormCreditTransactionRepository struct {
	db *gorm.DB
}

// NewGormCreditTransactionRepository creates a new GormCreditTransactionRepository
func NewGormCreditTransactionRepository(db *gorm.DB) *GormCreditTransactionRepository {
	return &GormCreditTransactionRepository{db: db}
}

// Save appends a credit transaction
func (r *GormCreditTransactionRepository) Save(ctx context.Context, txn *billing.CreditTransaction) error {
	model := models.CreditTransactionModelFromDomain(txn)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByAccount lists transactions for an account, newest first
func (r *GormCreditTransactionRepository) FindByAccount(ctx context.Context, clinicID, accountID uuid.UUID, filter billing.CreditTransactionFilter) ([]billing.CreditTransaction, error) {
	var txnModels []models.CreditTransactionModel
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&models.CreditTransactionModel{}).
			Where("clinic_id = ? AND account_id = ?", clinicID, accountID),
		filter,
	)

	if err := query.Find(&txnModels).Error; err != nil {
		return nil, err
	}

	txns := make([]billing.CreditTransaction, len(txnModels))
	for i, model := range txnModels {
		txns[i] = *model.ToDomain()
	}
	return txns, nil
}

// FindBySourceRef finds transactions referencing a source document
func (r *GormCreditTransactionRepository) FindBySourceRef(ctx context.Context, clinicID uuid.UUID, sourceType billing.CreditSourceType, sourceRef string) ([]billing.CreditTransaction, error) {
	var txnModels []models.CreditTransactionModel
	if err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND source_type = ? AND source_ref = ?", clinicID, sourceType, sourceRef).
		Order("created_at DESC").
		Find(&txnModels).Error; err != nil {
		return nil, err
	}

	txns := make([]billing.CreditTransaction, len(txnModels))
	for i, model := range txnModels {
		txns[i] = *model.ToDomain()
	}
	return txns, nil
}

// applyFilter applies filter options to the query
func (r *GormCreditTransactionRepository) applyFilter(query *gorm.DB, filter billing.CreditTransactionFilter) *gorm.DB {
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.FromDate != nil {
		query = query.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("created_at <= ?", *filter.ToDate)
	}

	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering, newest first by default
	if filter.OrderBy != "" {
		orderBy := ValidateSortField(filter.OrderBy, CreditTransactionSortFields, "created_at")
		query = query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))
	} else {
		query = query.Order("created_at DESC")
	}

	return query
}

// Ensure GormCreditTransactionRepository implements CreditTransactionRepository
var _ billing.CreditTransactionRepository = (*GormCreditTransactionRepository)(nil)
