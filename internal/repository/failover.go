package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"retreat/internal/metrics"
	"retreat/internal/models"
)

// DefaultRecoveryInterval is how long the primary stays bypassed after a
// failure before it is tried again.
const DefaultRecoveryInterval = time.Minute

// RateSource loads the rate rows valid on asOf.
type RateSource interface {
	LoadRates(ctx context.Context, asOf time.Time) (*models.RateRecords, error)
}

// FailoverRateSource reads rates from the primary store and switches to the
// fallback while the primary is failing.
type FailoverRateSource struct {
	primary  RateSource
	fallback RateSource
	logger   *zerolog.Logger

	isDown           atomic.Bool
	mu               sync.Mutex
	lastCheck        time.Time
	recoveryInterval time.Duration
}

func NewFailoverRateSource(primary, fallback RateSource, logger *zerolog.Logger) *FailoverRateSource {
	return &FailoverRateSource{
		primary:          primary,
		fallback:         fallback,
		logger:           logger,
		recoveryInterval: DefaultRecoveryInterval,
	}
}

// SetRecoveryInterval overrides DefaultRecoveryInterval.
func (r *FailoverRateSource) SetRecoveryInterval(d time.Duration) {
	if d > 0 {
		r.recoveryInterval = d
	}
}

func (r *FailoverRateSource) LoadRates(ctx context.Context, asOf time.Time) (*models.RateRecords, error) {
	if r.usePrimary() {
		rec, err := r.primary.LoadRates(ctx, asOf)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("primary rate source recovered")
			}
			return rec, nil
		}
		r.markDown(err)
	}

	metrics.IncRateSourceFallback()
	rec, err := r.fallback.LoadRates(ctx, asOf)
	if err != nil {
		return nil, err
	}
	rec.Origin = "fallback"
	return rec, nil
}

// Down reports whether the primary is currently bypassed.
func (r *FailoverRateSource) Down() bool {
	return r.isDown.Load()
}

func (r *FailoverRateSource) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) >= r.recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverRateSource) markDown(err error) {
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary rate source failed, switching to fallback")
	}
}
