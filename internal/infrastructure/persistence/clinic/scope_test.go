package clinic

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clinic/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// TestModel is a simple model for testing clinic scoping
type TestModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClinicID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name     string    `gorm:"size:100"`
}

func (TestModel) TableName() string {
	return "test_models"
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func createTestContext(clinicID string) context.Context {
	ctx := context.Background()
	if clinicID != "" {
		log := logger.FromContext(ctx)
		ctx, _ = logger.WithClinicID(ctx, log, clinicID)
	}
	return ctx
}

func TestClinicScope(t *testing.T) {
	clinicID := uuid.New()

	t.Run("applies clinic filter to query", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1`).
			WithArgs(clinicID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := db.Scopes(ClinicScope(clinicID)).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClinicScopeString(t *testing.T) {
	clinicID := uuid.New().String()

	t.Run("applies clinic filter with string ID", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1`).
			WithArgs(clinicID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := db.Scopes(ClinicScopeString(clinicID)).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClinicDB_WithContext(t *testing.T) {
	t.Run("extracts clinic from context and scopes query", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinicID := uuid.New()
		ctx := createTestContext(clinicID.String())

		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1`).
			WithArgs(clinicID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.WithContext(ctx).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("errors when clinic required but missing", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db) // required=true by default
		ctx := createTestContext("")

		scopedDB := clinicDB.WithContext(ctx)

		// Should have error when clinic is required but missing
		assert.ErrorIs(t, scopedDB.Error, ErrClinicIDRequired)
	})

	t.Run("allows missing clinic when not required", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDBWithConfig(db, Config{
			ClinicColumn: "clinic_id",
			Required:     false,
		})
		ctx := createTestContext("")

		mock.ExpectQuery(`SELECT \* FROM "test_models"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.WithContext(ctx).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("errors on invalid UUID format", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		ctx := createTestContext("invalid-uuid")

		scopedDB := clinicDB.WithContext(ctx)

		// Should error on invalid UUID
		assert.ErrorIs(t, scopedDB.Error, ErrInvalidClinicID)
	})
}

func TestClinicDB_WithClinic(t *testing.T) {
	t.Run("scopes to specific clinic", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinicID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1`).
			WithArgs(clinicID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.WithClinic(clinicID).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("errors on nil UUID when required", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		scopedDB := clinicDB.WithClinic(uuid.Nil)

		assert.ErrorIs(t, scopedDB.Error, ErrClinicIDRequired)
	})
}

func TestClinicDB_WithClinicString(t *testing.T) {
	t.Run("scopes to clinic from string", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinicID := uuid.New().String()

		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1`).
			WithArgs(clinicID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.WithClinicString(clinicID).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("errors on empty string when required", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		scopedDB := clinicDB.WithClinicString("")

		assert.ErrorIs(t, scopedDB.Error, ErrClinicIDRequired)
	})

	t.Run("errors on invalid UUID string", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		scopedDB := clinicDB.WithClinicString("not-a-uuid")

		assert.ErrorIs(t, scopedDB.Error, ErrInvalidClinicID)
	})
}

func TestClinicDB_SetRequired(t *testing.T) {
	t.Run("creates new instance with required=false", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		notRequiredDB := clinicDB.SetRequired(false)
		ctx := createTestContext("")

		scopedDB := notRequiredDB.WithContext(ctx)
		assert.Nil(t, scopedDB.Error)
	})
}

func TestClinicDB_Unscoped(t *testing.T) {
	t.Run("returns unscoped DB", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		unscopedDB := clinicDB.Unscoped()

		// Should be the same as original DB
		assert.Equal(t, db, unscopedDB)
	})
}

func TestClinicDB_ForClinic(t *testing.T) {
	t.Run("creates scoped DB with context and clinic", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinicID := uuid.New()
		ctx := context.Background()

		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1`).
			WithArgs(clinicID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.ForClinic(ctx, clinicID).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClinicDB_Transaction(t *testing.T) {
	t.Run("transaction errors without clinic when required", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		ctx := createTestContext("")

		err := clinicDB.Transaction(ctx, func(tx *gorm.DB) error {
			return nil
		})

		assert.ErrorIs(t, err, ErrClinicIDRequired)
	})

	t.Run("transaction executes with clinic context", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinicID := uuid.New()
		ctx := createTestContext(clinicID.String())

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := clinicDB.Transaction(ctx, func(tx *gorm.DB) error {
			// Just a no-op to verify transaction works
			return nil
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "clinic_id", cfg.ClinicColumn)
	assert.True(t, cfg.Required)
}

func TestNewClinicDBWithConfig_DefaultColumn(t *testing.T) {
	db, _, mockDB := setupMockDB(t)
	defer mockDB.Close()

	// Empty clinic column should default to "clinic_id"
	clinicDB := NewClinicDBWithConfig(db, Config{
		ClinicColumn: "",
		Required:     true,
	})

	assert.NotNil(t, clinicDB)
	assert.Equal(t, "clinic_id", clinicDB.clinicColumn)
}

func TestClinicDB_ChainedQueries(t *testing.T) {
	t.Run("clinic scope chains with additional where clauses", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinicID := uuid.New()
		ctx := createTestContext(clinicID.String())

		// GORM may order WHERE clauses differently - use regex that matches either order
		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE .+ AND .+`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.WithContext(ctx).Where("name = ?", "Test").Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clinic scope preserves ordering", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinicID := uuid.New()
		ctx := createTestContext(clinicID.String())

		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1 ORDER BY name ASC`).
			WithArgs(clinicID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.WithContext(ctx).Order("name ASC").Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clinic scope with pagination", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinicID := uuid.New()
		ctx := createTestContext(clinicID.String())

		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1 LIMIT \$2 OFFSET \$3`).
			WithArgs(clinicID.String(), 10, 5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.WithContext(ctx).Limit(10).Offset(5).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClinicDB_SQLInjectionPrevention(t *testing.T) {
	t.Run("parameterized queries prevent SQL injection", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		// Malicious clinic ID - should be parameterized and safe
		maliciousClinicID := uuid.New().String()
		ctx := createTestContext(maliciousClinicID)

		// The query should use parameterized queries
		mock.ExpectQuery(`SELECT \* FROM "test_models" WHERE clinic_id = \$1`).
			WithArgs(maliciousClinicID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "clinic_id", "name"}))

		var results []TestModel
		err := clinicDB.WithContext(ctx).Find(&results).Error
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClinicDB_MultiClinicIsolation(t *testing.T) {
	t.Run("different clinics get isolated scopes", func(t *testing.T) {
		db, _, mockDB := setupMockDB(t)
		defer mockDB.Close()

		clinicDB := NewClinicDB(db)
		clinic1ID := uuid.New()
		clinic2ID := uuid.New()

		clinic1DB := clinicDB.WithClinic(clinic1ID)
		clinic2DB := clinicDB.WithClinic(clinic2ID)

		// The two scoped DBs should be different instances
		assert.NotEqual(t, clinic1DB, clinic2DB)
	})
}
