// Package lock grants short-lived exclusive holds on room nights so two
// sessions cannot commit overlapping bookings.
package lock

import (
	"context"
	"time"

	"retreat/internal/models"
)

// Store persists reservation locks. Implementations serialize writes per
// room and never block waiting for a competing holder.
type Store interface {
	// TryAcquire grants lock unless another session holds an unexpired lock
	// on any of its cells. A session's previous lock is replaced.
	TryAcquire(ctx context.Context, lock *models.ReservationLock, now time.Time) (bool, error)
	// Get returns the session's lock, or nil when it has none.
	Get(ctx context.Context, sessionID string) (*models.ReservationLock, error)
	Release(ctx context.Context, sessionID string) error
	// Holders returns the sessions holding unexpired locks on any cell.
	Holders(ctx context.Context, cells []models.Cell, now time.Time) ([]string, error)
	// Purge drops expired locks and reports how many sessions lost one.
	Purge(ctx context.Context, now time.Time) (int, error)
}
