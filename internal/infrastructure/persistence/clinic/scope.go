// Package clinic provides multi-clinic database scoping for GORM.
//
// This package implements automatic clinic_id filtering to prevent cross-clinic
// data access at the repository layer. It extracts the clinic ID from the request
// context and automatically applies WHERE clinic_id = ? conditions to all queries.
//
// Usage:
//
//	db := clinic.NewClinicDB(gormDB)
//	scopedDB := db.WithContext(ctx) // automatically applies clinic filtering
//	scopedDB.Find(&invoices) // WHERE clinic_id = 'xxx' is auto-added
package clinic

import (
	"context"
	"errors"

	"github.com/clinic/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrClinicIDRequired is returned when clinic_id is required but not found
var ErrClinicIDRequired = errors.New("clinic_id is required but not found in context")

// ErrInvalidClinicID is returned when clinic_id format is invalid
var ErrInvalidClinicID = errors.New("invalid clinic_id format")

// ClinicScope applies clinic filtering to GORM queries
func ClinicScope(clinicID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("clinic_id = ?", clinicID)
	}
}

// ClinicScopeString applies clinic filtering using string clinic ID
func ClinicScopeString(clinicID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("clinic_id = ?", clinicID)
	}
}

// ClinicCreateScope sets clinic_id on create operations
func ClinicCreateScope(clinicID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Set("clinic_id", clinicID)
	}
}

// ClinicDB wraps GORM DB with automatic clinic scoping
type ClinicDB struct {
	db           *gorm.DB
	clinicColumn string
	required     bool
}

// Config holds configuration for ClinicDB
type Config struct {
	// ClinicColumn is the name of the clinic ID column (default: "clinic_id")
	ClinicColumn string
	// Required determines if clinic_id is mandatory (default: true)
	Required bool
}

// DefaultConfig returns default ClinicDB configuration
func DefaultConfig() Config {
	return Config{
		ClinicColumn: "clinic_id",
		Required:     true,
	}
}

// NewClinicDB creates a new ClinicDB with default configuration
func NewClinicDB(db *gorm.DB) *ClinicDB {
	return NewClinicDBWithConfig(db, DefaultConfig())
}

// NewClinicDBWithConfig creates a new ClinicDB with custom configuration
func NewClinicDBWithConfig(db *gorm.DB, cfg Config) *ClinicDB {
	if cfg.ClinicColumn == "" {
		cfg.ClinicColumn = "clinic_id"
	}
	return &ClinicDB{
		db:           db,
		clinicColumn: cfg.ClinicColumn,
		required:     cfg.Required,
	}
}

// DB returns the underlying GORM DB without clinic scoping
// Use with caution - this bypasses clinic isolation
func (t *ClinicDB) DB() *gorm.DB {
	return t.db
}

// WithContext returns a GORM DB scoped to the clinic from context.
// It extracts clinic_id from the context (set by clinic middleware)
// and automatically applies the clinic filter to all queries.
//
// If clinic_id is not found in context and Required is true, it returns
// a DB that will error on any operation.
func (t *ClinicDB) WithContext(ctx context.Context) *gorm.DB {
	clinicID := logger.GetClinicID(ctx)

	if clinicID == "" {
		if t.required {
			// Return a DB that will error on execution
			db := t.db.WithContext(ctx)
			_ = db.AddError(ErrClinicIDRequired)
			return db
		}
		// If not required, return DB without clinic scope
		return t.db.WithContext(ctx)
	}

	// Validate UUID format
	if _, err := uuid.Parse(clinicID); err != nil {
		db := t.db.WithContext(ctx)
		_ = db.AddError(ErrInvalidClinicID)
		return db
	}

	// Apply clinic scope
	return t.db.WithContext(ctx).Scopes(ClinicScopeString(clinicID))
}

// WithClinic returns a GORM DB scoped to a specific clinic ID.
// Use this when you have the clinic ID directly rather than from context.
func (t *ClinicDB) WithClinic(clinicID uuid.UUID) *gorm.DB {
	if clinicID == uuid.Nil {
		if t.required {
			db := t.db
			_ = db.AddError(ErrClinicIDRequired)
			return db
		}
		return t.db
	}
	return t.db.Scopes(ClinicScope(clinicID))
}

// WithClinicString returns a GORM DB scoped to a specific clinic ID string.
func (t *ClinicDB) WithClinicString(clinicID string) *gorm.DB {
	if clinicID == "" {
		if t.required {
			db := t.db
			_ = db.AddError(ErrClinicIDRequired)
			return db
		}
		return t.db
	}

	// Validate UUID format
	if _, err := uuid.Parse(clinicID); err != nil {
		db := t.db
		_ = db.AddError(ErrInvalidClinicID)
		return db
	}

	return t.db.Scopes(ClinicScopeString(clinicID))
}

// ForClinic creates a new ClinicDB instance scoped to a specific context.
// This is useful for creating a scoped DB that can be passed around.
func (t *ClinicDB) ForClinic(ctx context.Context, clinicID uuid.UUID) *gorm.DB {
	return t.db.WithContext(ctx).Scopes(ClinicScope(clinicID))
}

// Transaction executes a function within a database transaction with clinic scope
func (t *ClinicDB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	clinicID := logger.GetClinicID(ctx)

	if clinicID == "" && t.required {
		return ErrClinicIDRequired
	}

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clinicID != "" {
			tx = tx.Scopes(ClinicScopeString(clinicID))
		}
		return fn(tx)
	})
}

// Unscoped returns the underlying DB without any clinic scoping.
// WARNING: Use this with extreme caution as it bypasses clinic isolation.
// This should only be used for system-level operations or migrations.
func (t *ClinicDB) Unscoped() *gorm.DB {
	return t.db
}

// SetRequired changes whether clinic_id is required
func (t *ClinicDB) SetRequired(required bool) *ClinicDB {
	return &ClinicDB{
		db:           t.db,
		clinicColumn: t.clinicColumn,
		required:     required,
	}
}
