package rates

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"retreat/internal/metrics"
	"retreat/internal/models"
)

// Source loads the rate rows valid on asOf.
type Source interface {
	LoadRates(ctx context.Context, asOf time.Time) (*models.RateRecords, error)
}

// Provider hands out rate snapshots. A failed load degrades to the last
// snapshot that loaded successfully, or to an empty one, so pricing keeps
// answering while the source is down.
type Provider struct {
	source Source
	cache  Cache
	logger *zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	lastGood *Config
}

// NewProvider accepts a nil cache, in which case every call hits the source.
func NewProvider(source Source, cache Cache, logger *zerolog.Logger) *Provider {
	return &Provider{source: source, cache: cache, logger: logger, now: time.Now}
}

// Current returns the active snapshot.
func (p *Provider) Current(ctx context.Context) *Config {
	now := p.now()
	if p.cache != nil {
		if rec, ok := p.cache.Get(ctx); ok {
			metrics.IncRateCache(true)
			return Build(rec, OriginCache, now)
		}
		metrics.IncRateCache(false)
	}

	rec, err := p.source.LoadRates(ctx, now)
	if err != nil {
		metrics.IncRateSourceFallback()
		p.mu.RLock()
		last := p.lastGood
		p.mu.RUnlock()
		if last != nil {
			p.logger.Warn().Err(err).Str("version", last.Version).Msg("rate source failed, using last known rates")
			return Build(last.Records(), OriginFallback, now)
		}
		p.logger.Error().Err(err).Msg("rate source failed and no rates are known, pricing at zero")
		return Build(nil, OriginEmpty, now)
	}

	origin := OriginSource
	if rec.Origin == string(OriginFallback) {
		// static fallback rows are served but never cached
		origin = OriginFallback
	} else if p.cache != nil {
		p.cache.Set(ctx, rec)
	}
	cfg := Build(rec, origin, now)
	p.mu.Lock()
	p.lastGood = cfg
	p.mu.Unlock()
	return cfg
}

// Invalidate drops the cached snapshot so the next call reloads.
func (p *Provider) Invalidate(ctx context.Context) {
	if p.cache != nil {
		p.cache.Invalidate(ctx)
	}
	p.logger.Info().Msg("rate cache invalidated")
}

// StaticSource serves a fixed set of rows, filtered by validity.
type StaticSource struct {
	mu      sync.RWMutex
	records *models.RateRecords
}

func NewStaticSource(rec *models.RateRecords) *StaticSource {
	return &StaticSource{records: rec}
}

func (s *StaticSource) LoadRates(_ context.Context, asOf time.Time) (*models.RateRecords, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.records == nil {
		return &models.RateRecords{}, nil
	}
	return s.records.ActiveAt(asOf), nil
}

// Replace swaps the rows, used when the rate file changes on disk.
func (s *StaticSource) Replace(rec *models.RateRecords) {
	s.mu.Lock()
	s.records = rec
	s.mu.Unlock()
}
