package models

import (
	"sort"
	"time"
)

// Cell is one room on one night, the unit of locking.
type Cell struct {
	RoomID string    `json:"room_id"`
	Date   time.Time `json:"date"`
}

// Key is a stable string form of the cell.
func (c Cell) Key() string {
	return c.RoomID + ":" + c.Date.Format(DateLayout)
}

// Cells expands rooms over the nights of a stay, sorted by room then date.
func Cells(roomIDs []string, stay Stay) []Cell {
	ids := append([]string(nil), roomIDs...)
	sort.Strings(ids)
	nights := stay.NightDates()
	cells := make([]Cell, 0, len(ids)*len(nights))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, d := range nights {
			cells = append(cells, Cell{RoomID: id, Date: d})
		}
	}
	return cells
}

// ReservationLock is a short-lived hold by a session on a set of cells.
type ReservationLock struct {
	SessionID  string    `json:"session_id"`
	Token      string    `json:"token"`
	RoomIDs    []string  `json:"room_ids"`
	Stay       Stay      `json:"stay"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Cells lists the cells covered by the lock.
func (l *ReservationLock) Cells() []Cell {
	return Cells(l.RoomIDs, l.Stay)
}

// IsExpired treats a lock as dead strictly after its expiry instant.
func (l *ReservationLock) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Remaining is the time left before expiry, never negative.
func (l *ReservationLock) Remaining(now time.Time) time.Duration {
	d := l.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Covers reports whether every cell of roomIDs over stay is held.
func (l *ReservationLock) Covers(roomIDs []string, stay Stay) bool {
	held := make(map[string]struct{})
	for _, c := range l.Cells() {
		held[c.Key()] = struct{}{}
	}
	for _, c := range Cells(roomIDs, stay) {
		if _, ok := held[c.Key()]; !ok {
			return false
		}
	}
	return true
}
