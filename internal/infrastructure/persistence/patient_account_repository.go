package persistence

import (
	"context"
	"errors"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPatientAccountRepository implements PatientAccountRepository using GORM
type GormPatientAccountRepository struct {
	db *gorm.DB
}

// NewGormPatientAccountRepository creates a new GormPatientAccountRepository
func NewGormPatientAccountRepository(db *gorm.DB) *GormPatientAccountRepository {
	return &GormPatientAccountRepository{db: db}
}

// FindByID finds a patient account by its ID
func (r *GormPatientAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PatientAccount, error) {
	var model models.PatientAccountModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPatient finds the account for a patient within a clinic
func (r *GormPatientAccountRepository) FindByPatient(ctx context.Context, clinicID, patientID uuid.UUID) (*billing.PatientAccount, error) {
	var model models.PatientAccountModel
	if err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND patient_id = ?", clinicID, patientID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOrCreateByPatient finds the account for a patient, creating an empty
// one if none exists yet. Creation races resolve through the unique index
// on (clinic_id, patient_id) and a reload.
func (r *GormPatientAccountRepository) FindOrCreateByPatient(ctx context.Context, clinicID, patientID uuid.UUID, patientName string) (*billing.PatientAccount, error) {
	account, err := r.FindByPatient(ctx, clinicID, patientID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	account, err = billing.NewPatientAccount(clinicID, patientID, patientName)
	if err != nil {
		return nil, err
	}

	model := models.PatientAccountModelFromDomain(account)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "clinic_id"}, {Name: "patient_id"}},
			DoNothing: true,
		}).
		Create(model).Error; err != nil {
		return nil, err
	}

	// Reload so a concurrent insert still yields the surviving row
	return r.FindByPatient(ctx, clinicID, patientID)
}

// Save creates or updates a patient account
func (r *GormPatientAccountRepository) Save(ctx context.Context, account *billing.PatientAccount) error {
	model := models.PatientAccountModelFromDomain(account)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves a patient account with optimistic locking (version check)
func (r *GormPatientAccountRepository) SaveWithLock(ctx context.Context, account *billing.PatientAccount) error {
	model := models.PatientAccountModelFromDomain(account)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("*").Omit("id", "created_at").
		Where("id = ? AND version = ?", account.ID, account.Version-1).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormPatientAccountRepository implements PatientAccountRepository
var _ billing.PatientAccountRepository = (*GormPatientAccountRepository)(nil)
