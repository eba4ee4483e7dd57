package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"retreat/internal/metrics"
	"retreat/internal/models"
)

const (
	DefaultTTL            = 10 * time.Minute
	DefaultExpiringWindow = 60 * time.Second
	DefaultProbeWindow    = 2 * time.Minute
)

// Options tune a Manager. Zero values take the defaults.
type Options struct {
	TTL            time.Duration
	ExpiringWindow time.Duration
	ProbeWindow    time.Duration
	Clock          func() time.Time
}

type probe struct {
	cells map[string]struct{}
	seen  time.Time
}

// Manager hands out reservation locks on top of a Store. Acquisition never
// waits: contention is reported as false.
type Manager struct {
	store  Store
	opts   Options
	logger *zerolog.Logger

	mu     sync.Mutex
	probes map[string]probe
}

func NewManager(store Store, opts Options, logger *zerolog.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.ExpiringWindow <= 0 {
		opts.ExpiringWindow = DefaultExpiringWindow
	}
	if opts.ProbeWindow <= 0 {
		opts.ProbeWindow = DefaultProbeWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{store: store, opts: opts, logger: logger, probes: make(map[string]probe)}
}

// TTL is the lifetime of a fresh lock.
func (m *Manager) TTL() time.Duration {
	return m.opts.TTL
}

// Acquire holds every room night of stay for the session, replacing any
// lock the session held before. Store errors count as contention.
func (m *Manager) Acquire(ctx context.Context, roomIDs []string, stay models.Stay, sessionID string) bool {
	if sessionID == "" || len(roomIDs) == 0 || !stay.Valid() {
		return false
	}
	now := m.opts.Clock()
	m.note(sessionID, models.Cells(roomIDs, stay), now)
	if _, err := m.store.Purge(ctx, now); err != nil {
		m.logger.Warn().Err(err).Msg("lock purge failed")
	}

	l := &models.ReservationLock{
		SessionID:  sessionID,
		Token:      uuid.NewString(),
		RoomIDs:    append([]string(nil), roomIDs...),
		Stay:       stay,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.opts.TTL),
	}
	ok, err := m.store.TryAcquire(ctx, l, now)
	if err != nil {
		m.logger.Error().Err(err).Str("session", sessionID).Msg("lock store failed, treating as contention")
		ok = false
	}
	metrics.IncLockAcquire(ok)
	if ok {
		m.logger.Debug().Str("session", sessionID).Strs("rooms", roomIDs).Str("stay", stay.String()).Msg("lock acquired")
	}
	return ok
}

// Release frees the session's lock early.
func (m *Manager) Release(ctx context.Context, sessionID string) {
	if err := m.store.Release(ctx, sessionID); err != nil {
		m.logger.Warn().Err(err).Str("session", sessionID).Msg("lock release failed")
	}
	m.mu.Lock()
	delete(m.probes, sessionID)
	m.mu.Unlock()
}

// Lock returns the session's unexpired lock.
func (m *Manager) Lock(ctx context.Context, sessionID string) (*models.ReservationLock, bool) {
	l, err := m.store.Get(ctx, sessionID)
	if err != nil {
		m.logger.Warn().Err(err).Str("session", sessionID).Msg("lock lookup failed")
		return nil, false
	}
	if l == nil || l.IsExpired(m.opts.Clock()) {
		return nil, false
	}
	return l, true
}

func (m *Manager) HasLock(ctx context.Context, sessionID string) bool {
	_, ok := m.Lock(ctx, sessionID)
	return ok
}

// IsLockExpiring is true while a held lock has under ExpiringWindow left.
func (m *Manager) IsLockExpiring(ctx context.Context, sessionID string) bool {
	l, ok := m.Lock(ctx, sessionID)
	if !ok {
		return false
	}
	return l.Remaining(m.opts.Clock()) < m.opts.ExpiringWindow
}

// Remaining is the time left on the session's lock, zero when it has none.
func (m *Manager) Remaining(ctx context.Context, sessionID string) time.Duration {
	l, ok := m.Lock(ctx, sessionID)
	if !ok {
		return 0
	}
	return l.Remaining(m.opts.Clock())
}

// Covers reports whether the session's unexpired lock holds every room
// night of stay.
func (m *Manager) Covers(ctx context.Context, sessionID string, roomIDs []string, stay models.Stay) bool {
	l, ok := m.Lock(ctx, sessionID)
	return ok && l.Covers(roomIDs, stay)
}

// OtherActiveSessions counts distinct other sessions holding or recently
// probing any of the same room nights. It is advisory only.
func (m *Manager) OtherActiveSessions(ctx context.Context, roomIDs []string, stay models.Stay, sessionID string) int {
	now := m.opts.Clock()
	cells := models.Cells(roomIDs, stay)
	m.note(sessionID, cells, now)

	others := make(map[string]struct{})
	holders, err := m.store.Holders(ctx, cells, now)
	if err != nil {
		m.logger.Warn().Err(err).Msg("lock holders lookup failed")
	}
	for _, h := range holders {
		if h != sessionID {
			others[h] = struct{}{}
		}
	}

	m.mu.Lock()
	for id, p := range m.probes {
		if id == sessionID {
			continue
		}
		if now.Sub(p.seen) > m.opts.ProbeWindow {
			delete(m.probes, id)
			continue
		}
		for _, c := range cells {
			if _, ok := p.cells[c.Key()]; ok {
				others[id] = struct{}{}
				break
			}
		}
	}
	m.mu.Unlock()
	return len(others)
}

// Purge drops expired locks and stale probes.
func (m *Manager) Purge(ctx context.Context) int {
	now := m.opts.Clock()
	n, err := m.store.Purge(ctx, now)
	if err != nil {
		m.logger.Warn().Err(err).Msg("lock purge failed")
	}
	m.mu.Lock()
	for id, p := range m.probes {
		if now.Sub(p.seen) > m.opts.ProbeWindow {
			delete(m.probes, id)
		}
	}
	m.mu.Unlock()
	return n
}

func (m *Manager) note(sessionID string, cells []models.Cell, now time.Time) {
	if sessionID == "" {
		return
	}
	set := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		set[c.Key()] = struct{}{}
	}
	m.mu.Lock()
	m.probes[sessionID] = probe{cells: set, seen: now}
	m.mu.Unlock()
}
