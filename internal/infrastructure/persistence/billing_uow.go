package persistence

import (
	"context"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillingUnitOfWork implements BillingUnitOfWork using a GORM transaction.
// Every aggregate in the batch is written with a version check so a payment
// that raced with another writer rolls back as a whole.
type GormBillingUnitOfWork struct {
	db *gorm.DB
}

// NewGormBillingUnitOfWork creates a new GormBillingUnitOfWork
func NewGormBillingUnitOfWork(db *gorm.DB) *GormBillingUnitOfWork {
	return &GormBillingUnitOfWork{db: db}
}

// CommitPaymentBatch persists the batch atomically
func (u *GormBillingUnitOfWork) CommitPaymentBatch(ctx context.Context, batch *billing.PaymentBatch) error {
	if batch == nil {
		return nil
	}

	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, invoice := range batch.Invoices {
			if err := saveInvoiceWithLock(tx, invoice); err != nil {
				return err
			}
		}

		if batch.Account != nil {
			if err := saveAccountWithLock(tx, batch.Account); err != nil {
				return err
			}
		}

		for _, txn := range batch.CreditTransactions {
			model := models.CreditTransactionModelFromDomain(txn)
			if err := tx.Create(model).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func saveInvoiceWithLock(tx *gorm.DB, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	// Select all columns so pointer fields returning to nil are written
	result := tx.Model(model).
		Select("*").Omit("id", "created_at").
		Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func saveAccountWithLock(tx *gorm.DB, account *billing.PatientAccount) error {
	model := models.PatientAccountModelFromDomain(account)
	result := tx.Model(model).
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

// Ensure GormBillingUnitOfWork implements BillingUnitOfWork
var _ billing.BillingUnitOfWork = (*GormBillingUnitOfWork)(nil)
