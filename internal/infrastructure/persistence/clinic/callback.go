package clinic

import (
	"strings"

	"github.com/clinic/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClinicCallback provides GORM callback hooks for automatic clinic filtering
type ClinicCallback struct {
	clinicColumn string
	required     bool
}

// NewClinicCallback creates a new clinic callback handler
func NewClinicCallback(clinicColumn string, required bool) *ClinicCallback {
	if clinicColumn == "" {
		clinicColumn = "clinic_id"
	}
	return &ClinicCallback{
		clinicColumn: clinicColumn,
		required:     required,
	}
}

// RegisterCallbacks registers clinic callbacks with GORM
func (tc *ClinicCallback) RegisterCallbacks(db *gorm.DB) {
	// Register query callback - add clinic filter
	_ = db.Callback().Query().Before("gorm:query").Register("clinic:before_query", tc.beforeQuery)

	// Register update callback - ensure clinic filter
	_ = db.Callback().Update().Before("gorm:update").Register("clinic:before_update", tc.beforeUpdate)

	// Register delete callback - ensure clinic filter
	_ = db.Callback().Delete().Before("gorm:delete").Register("clinic:before_delete", tc.beforeDelete)

	// Register row query callback - add clinic filter
	_ = db.Callback().Row().Before("gorm:row").Register("clinic:before_row", tc.beforeQuery)

	// Note: Create callback is not registered because clinic_id should be set
	// explicitly by the application when creating entities
}

// beforeQuery adds clinic filter to SELECT queries
func (tc *ClinicCallback) beforeQuery(db *gorm.DB) {
	tc.addClinicFilter(db)
}

// beforeUpdate adds clinic filter to UPDATE queries
func (tc *ClinicCallback) beforeUpdate(db *gorm.DB) {
	tc.addClinicFilter(db)
}

// beforeDelete adds clinic filter to DELETE queries
func (tc *ClinicCallback) beforeDelete(db *gorm.DB) {
	tc.addClinicFilter(db)
}

// addClinicFilter adds clinic filtering to the query
func (tc *ClinicCallback) addClinicFilter(db *gorm.DB) {
	if db.Statement.Context == nil {
		return
	}

	// Skip if unscoped
	if db.Statement.Unscoped {
		return
	}

	// Skip if already has clinic condition
	if tc.hasClinicCondition(db) {
		return
	}

	// Get clinic ID from context
	clinicID := logger.GetClinicID(db.Statement.Context)
	if clinicID == "" {
		if tc.required {
			_ = db.AddError(ErrClinicIDRequired)
		}
		return
	}

	// Validate UUID format
	if _, err := uuid.Parse(clinicID); err != nil {
		_ = db.AddError(ErrInvalidClinicID)
		return
	}

	// Add clinic filter using GORM's clause
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: tc.clinicColumn},
				Value:  clinicID,
			},
		},
	})
}

// hasClinicCondition checks if clinic_id condition is already present
func (tc *ClinicCallback) hasClinicCondition(db *gorm.DB) bool {
	// Check if there's a manual scope applied via Unscoped
	if db.Statement.Unscoped {
		return true
	}

	// Check existing where clauses for clinic_id
	if whereClause, ok := db.Statement.Clauses["WHERE"]; ok {
		if where, ok := whereClause.Expression.(clause.Where); ok {
			for _, expr := range where.Exprs {
				if tc.exprContainsClinic(expr) {
					return true
				}
			}
		}
	}

	// Also check the built SQL if available
	sql := db.Statement.SQL.String()
	if sql != "" && strings.Contains(sql, tc.clinicColumn) {
		return true
	}

	return false
}

// exprContainsClinic checks if an expression contains clinic_id column
func (tc *ClinicCallback) exprContainsClinic(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == tc.clinicColumn
		}
	case clause.IN:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == tc.clinicColumn
		}
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if tc.exprContainsClinic(cond) {
				return true
			}
		}
	case clause.OrConditions:
		for _, cond := range e.Exprs {
			if tc.exprContainsClinic(cond) {
				return true
			}
		}
	}
	return false
}

// EnableAutoClinicFilter enables automatic clinic filtering on a GORM DB instance
// This registers callbacks that automatically add clinic_id filtering to all queries
func EnableAutoClinicFilter(db *gorm.DB, required bool) {
	tc := NewClinicCallback("clinic_id", required)
	tc.RegisterCallbacks(db)
}

// DisableAutoClinicFilter removes the clinic callbacks (not recommended in production)
func DisableAutoClinicFilter(db *gorm.DB) {
	// Note: GORM doesn't provide a clean way to remove callbacks
	// This is mainly for testing purposes
	_ = db.Callback().Query().Remove("clinic:before_query")
	_ = db.Callback().Update().Remove("clinic:before_update")
	_ = db.Callback().Delete().Remove("clinic:before_delete")
	_ = db.Callback().Row().Remove("clinic:before_row")
}
