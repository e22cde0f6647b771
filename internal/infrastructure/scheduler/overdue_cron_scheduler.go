package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cronTickerInterval is the interval at which the cron scheduler checks for execution
const cronTickerInterval = 1 * time.Minute

// JobStatus represents the status of a scheduled sweep
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// OverdueSweeper flags past-due invoices for a clinic.
type OverdueSweeper interface {
	MarkOverdueInvoices(ctx context.Context, clinicID uuid.UUID) (int, error)
}

// ClinicProvider provides the clinic IDs to sweep.
type ClinicProvider interface {
	GetActiveClinicIDs(ctx context.Context) ([]uuid.UUID, error)
}

// OverdueCronSchedulerConfig holds configuration for the cron-based overdue sweep
type OverdueCronSchedulerConfig struct {
	// Enabled indicates if the cron scheduler is enabled
	Enabled bool
	// CronHour is the hour (0-23) to run the daily sweep
	CronHour int
	// CronMinute is the minute (0-59) to run the daily sweep
	CronMinute int
	// DailyCronSchedule is the cron expression (parsed to extract hour/minute)
	DailyCronSchedule string
	// JobTimeout is the maximum time a single clinic sweep can run
	JobTimeout time.Duration
}

// DefaultOverdueCronSchedulerConfig returns default cron scheduler configuration
// Defaults to running at 2:00 AM daily
func DefaultOverdueCronSchedulerConfig() OverdueCronSchedulerConfig {
	return OverdueCronSchedulerConfig{
		Enabled:           true,
		CronHour:          2, // 2 AM
		CronMinute:        0, // 0 minutes
		DailyCronSchedule: "0 2 * * *",
		JobTimeout:        10 * time.Minute,
	}
}

// ParseCronSchedule parses a cron expression "minute hour * * *" to extract hour and minute
// Returns defaults (2:00) if parsing fails or expression is empty
func ParseCronSchedule(cronExpr string) (hour, minute int, err error) {
	// Default values
	hour = 2
	minute = 0

	if cronExpr == "" {
		return hour, minute, nil
	}

	// Use strings.Fields for simple whitespace splitting
	parts := strings.Fields(cronExpr)

	if len(parts) < 2 {
		return hour, minute, nil
	}

	// Parse minute
	if parts[0] != "*" {
		if val, parseErr := parseIntOrDefault(parts[0], 0); parseErr == nil {
			minute = val
		}
	}

	// Parse hour
	if parts[1] != "*" {
		if val, parseErr := parseIntOrDefault(parts[1], 2); parseErr == nil {
			hour = val
		}
	}

	// Validate ranges
	if minute < 0 || minute > 59 {
		return 2, 0, fmt.Errorf("minute must be 0-59, got %d", minute)
	}
	if hour < 0 || hour > 23 {
		return 2, 0, fmt.Errorf("hour must be 0-23, got %d", hour)
	}

	return hour, minute, nil
}

// parseIntOrDefault parses an int string or returns default
func parseIntOrDefault(s string, defaultVal int) (int, error) {
	if s == "" || s == "*" {
		return defaultVal, nil
	}
	var val int
	for _, c := range s {
		if c < '0' || c > '9' {
			return defaultVal, ErrInvalidConfig
		}
		val = val*10 + int(c-'0')
	}
	return val, nil
}

// SweepJobRecord represents a record of a sweep execution for one clinic
type SweepJobRecord struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ClinicID     uuid.UUID  `gorm:"column:clinic_id;type:uuid;not null"`
	Status       string     `gorm:"column:last_run_status;size:20"`
	Error        string     `gorm:"column:last_error;type:text"`
	MarkedCount  int        `gorm:"column:marked_count"`
	StartedAt    *time.Time `gorm:"column:last_run_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

// TableName returns the table name for GORM
func (SweepJobRecord) TableName() string {
	return "overdue_sweep_jobs"
}

// SweepJobRepository handles persistence of sweep job records
type SweepJobRepository struct {
	db *gorm.DB
}

// NewSweepJobRepository creates a new SweepJobRepository
func NewSweepJobRepository(db *gorm.DB) *SweepJobRepository {
	return &SweepJobRepository{db: db}
}

// RecordJobStart records the start of a sweep for a clinic
func (r *SweepJobRepository) RecordJobStart(ctx context.Context, clinicID uuid.UUID) (uuid.UUID, error) {
	now := time.Now()
	record := &SweepJobRecord{
		ID:        uuid.New(),
		ClinicID:  clinicID,
		Status:    string(JobStatusRunning),
		StartedAt: &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return uuid.Nil, err
	}
	return record.ID, nil
}

// RecordJobComplete records the completion of a sweep
func (r *SweepJobRepository) RecordJobComplete(ctx context.Context, jobID uuid.UUID, markedCount int, errMsg string) error {
	now := time.Now()
	status := string(JobStatusSuccess)
	if errMsg != "" {
		status = string(JobStatusFailed)
	}
	return r.db.WithContext(ctx).
		Model(&SweepJobRecord{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"last_run_status": status,
			"last_error":      errMsg,
			"marked_count":    markedCount,
			"completed_at":    now,
			"updated_at":      now,
		}).Error
}

// GetLastJobStatus gets the last sweep record for a clinic
func (r *SweepJobRepository) GetLastJobStatus(ctx context.Context, clinicID uuid.UUID) (*SweepJobRecord, error) {
	var record SweepJobRecord
	err := r.db.WithContext(ctx).
		Where("clinic_id = ?", clinicID).
		Order("last_run_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// OverdueCronScheduler flags past-due invoices for every clinic once a day.
type OverdueCronScheduler struct {
	config         OverdueCronSchedulerConfig
	sweeper        OverdueSweeper
	clinicProvider ClinicProvider
	jobRepo        *SweepJobRepository
	logger         *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	sweeping  bool

	// Last execution tracking
	lastRunAt *time.Time
	nextRunAt *time.Time
}

// NewOverdueCronScheduler creates a new cron-based overdue sweep scheduler
func NewOverdueCronScheduler(
	config OverdueCronSchedulerConfig,
	sweeper OverdueSweeper,
	clinicProvider ClinicProvider,
	jobRepo *SweepJobRepository,
	logger *zap.Logger,
) *OverdueCronScheduler {
	return &OverdueCronScheduler{
		config:         config,
		sweeper:        sweeper,
		clinicProvider: clinicProvider,
		jobRepo:        jobRepo,
		logger:         logger,
	}
}

// Start starts the cron scheduler
func (s *OverdueCronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Calculate next run time
	s.calculateNextRunTime()

	// Start the cron ticker
	s.wg.Add(1)
	go s.cronLoop(ctx)

	s.logger.Info("Overdue sweep scheduler started",
		zap.Int("cron_hour", s.config.CronHour),
		zap.Int("cron_minute", s.config.CronMinute),
		zap.Timep("next_run_at", s.nextRunAt),
	)

	return nil
}

// Stop stops the cron scheduler
func (s *OverdueCronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	// Cancel the cron loop
	if s.cancel != nil {
		s.cancel()
	}

	// Wait for cron loop to finish
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Overdue sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Overdue sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// cronLoop runs the main cron loop
func (s *OverdueCronScheduler) cronLoop(ctx context.Context) {
	defer s.wg.Done()

	// Use a ticker that checks every minute for cron execution
	ticker := time.NewTicker(cronTickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.shouldRun(now) {
				s.runDailySweep(ctx)
				s.calculateNextRunTime()
			}
		}
	}
}

// shouldRun checks if the cron should run at the given time
func (s *OverdueCronScheduler) shouldRun(now time.Time) bool {
	return now.Hour() == s.config.CronHour && now.Minute() == s.config.CronMinute
}

// calculateNextRunTime calculates the next run time
func (s *OverdueCronScheduler) calculateNextRunTime() {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.CronHour, s.config.CronMinute, 0, 0, now.Location())

	// If we've already passed today's run time, schedule for tomorrow
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	s.mu.Lock()
	s.nextRunAt = &next
	s.mu.Unlock()
}

// runDailySweep marks overdue invoices for all active clinics
func (s *OverdueCronScheduler) runDailySweep(ctx context.Context) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.logger.Warn("Skipping overdue sweep, previous sweep still running")
		return
	}
	s.sweeping = true
	now := time.Now()
	s.lastRunAt = &now
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	s.logger.Info("Starting daily overdue invoice sweep")

	clinicIDs, err := s.clinicProvider.GetActiveClinicIDs(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch clinic IDs for overdue sweep", zap.Error(err))
		return
	}

	s.logger.Info("Sweeping overdue invoices for clinics", zap.Int("clinic_count", len(clinicIDs)))

	for _, clinicID := range clinicIDs {
		s.sweepClinic(ctx, clinicID)
	}
}

// sweepClinic marks overdue invoices for a single clinic
func (s *OverdueCronScheduler) sweepClinic(ctx context.Context, clinicID uuid.UUID) {
	var jobID uuid.UUID
	if s.jobRepo != nil {
		var recordErr error
		jobID, recordErr = s.jobRepo.RecordJobStart(ctx, clinicID)
		if recordErr != nil {
			s.logger.Warn("Failed to record sweep start",
				zap.String("clinic_id", clinicID.String()),
				zap.Error(recordErr),
			)
		}
	}

	sweepCtx := ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		sweepCtx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	marked, err := s.sweeper.MarkOverdueInvoices(sweepCtx, clinicID)
	if err != nil {
		s.logger.Error("Overdue sweep failed for clinic",
			zap.String("clinic_id", clinicID.String()),
			zap.Error(err),
		)
		s.recordComplete(ctx, jobID, marked, err.Error())
		return
	}

	if marked > 0 {
		s.logger.Info("Marked overdue invoices",
			zap.String("clinic_id", clinicID.String()),
			zap.Int("marked_count", marked),
		)
	}
	s.recordComplete(ctx, jobID, marked, "")
}

func (s *OverdueCronScheduler) recordComplete(ctx context.Context, jobID uuid.UUID, marked int, errMsg string) {
	if s.jobRepo == nil || jobID == uuid.Nil {
		return
	}
	if err := s.jobRepo.RecordJobComplete(ctx, jobID, marked, errMsg); err != nil {
		s.logger.Warn("Failed to record sweep completion",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
	}
}

// TriggerManualSweep runs a sweep immediately, outside the daily schedule.
func (s *OverdueCronScheduler) TriggerManualSweep(ctx context.Context) error {
	s.mu.Lock()
	running := s.isRunning
	sweeping := s.sweeping
	s.mu.Unlock()

	if !running {
		return ErrSchedulerNotRunning
	}
	if sweeping {
		return ErrSweepAlreadyRunning
	}

	s.runDailySweep(ctx)
	return nil
}

// LastRunAt returns the time of the last sweep, or nil if none has run.
func (s *OverdueCronScheduler) LastRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt
}

// NextRunAt returns the next scheduled sweep time.
func (s *OverdueCronScheduler) NextRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunAt
}
