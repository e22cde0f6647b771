package rates

import (
	"context"
	"sync"
	"time"

	"github.com/clinic/backend/internal/domain/currency"
	"go.uber.org/zap"
)

// RefresherConfig holds configuration for the rate refresher
type RefresherConfig struct {
	// RefreshInterval is how often the provider is polled
	RefreshInterval time.Duration
	// StaleThreshold is how old the table may get before warnings fire
	StaleThreshold time.Duration
}

// DefaultRefresherConfig returns default configuration
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		RefreshInterval: 1 * time.Hour,
		StaleThreshold:  24 * time.Hour,
	}
}

// Refresher polls the rate source in the background and feeds fresh rates
// into the converter. Fetch failures keep the last known table; the front
// desk keeps quoting on cached rates rather than stopping.
type Refresher struct {
	converter *currency.Converter
	source    currency.RateSource
	config    RefresherConfig
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a new rate refresher
func NewRefresher(converter *currency.Converter, source currency.RateSource, config RefresherConfig, logger *zap.Logger) *Refresher {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefresherConfig().RefreshInterval
	}
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = DefaultRefresherConfig().StaleThreshold
	}
	return &Refresher{
		converter: converter,
		source:    source,
		config:    config,
		logger:    logger,
	}
}

// Start begins the background refresh loop. It performs one immediate
// fetch so the converter starts from live rates when the provider is up.
func (r *Refresher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.RefreshOnce(ctx)

	r.wg.Add(1)
	go r.refreshLoop(ctx)

	r.logger.Info("rate refresher started",
		zap.Duration("refresh_interval", r.config.RefreshInterval),
		zap.Duration("stale_threshold", r.config.StaleThreshold),
	)

	return nil
}

// Stop gracefully stops the refresher
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("rate refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) refreshLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce performs a single fetch-and-swap. Exposed so schedulers and
// admin endpoints can force a refresh.
func (r *Refresher) RefreshOnce(ctx context.Context) {
	table, err := r.source.FetchRates(ctx)
	if err != nil {
		age := time.Since(r.converter.LastUpdated())
		if age > r.config.StaleThreshold {
			r.logger.Warn("rate fetch failed and cached rates are stale",
				zap.Error(err),
				zap.Duration("rate_age", age),
			)
		} else {
			r.logger.Warn("rate fetch failed, keeping cached rates", zap.Error(err))
		}
		return
	}

	r.converter.UpdateRates(table)
	r.logger.Info("exchange rates refreshed", zap.Int("currencies", len(table)))
}
