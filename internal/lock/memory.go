package lock

import (
	"context"
	"sort"
	"sync"
	"time"

	"retreat/internal/models"
)

type cellHold struct {
	sessionID string
	token     string
	expiresAt time.Time
}

type roomCells struct {
	mu    sync.Mutex
	cells map[string]cellHold // keyed by night date
}

// MemoryStore keeps locks in process memory with one mutex per room, so
// acquisitions on unrelated rooms never contend.
type MemoryStore struct {
	roomsMu sync.Mutex
	rooms   map[string]*roomCells

	sessMu   sync.RWMutex
	sessions map[string]*models.ReservationLock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*roomCells),
		sessions: make(map[string]*models.ReservationLock),
	}
}

func (s *MemoryStore) room(id string) *roomCells {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	rc, ok := s.rooms[id]
	if !ok {
		rc = &roomCells{cells: make(map[string]cellHold)}
		s.rooms[id] = rc
	}
	return rc
}

// lockRooms takes room mutexes in id order to rule out deadlocks.
func (s *MemoryStore) lockRooms(cells []models.Cell) (map[string]*roomCells, func()) {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, c := range cells {
		if _, ok := seen[c.RoomID]; !ok {
			seen[c.RoomID] = struct{}{}
			ids = append(ids, c.RoomID)
		}
	}
	sort.Strings(ids)

	held := make(map[string]*roomCells, len(ids))
	for _, id := range ids {
		rc := s.room(id)
		rc.mu.Lock()
		held[id] = rc
	}
	return held, func() {
		for i := len(ids) - 1; i >= 0; i-- {
			held[ids[i]].mu.Unlock()
		}
	}
}

func dateKey(d time.Time) string {
	return d.Format(models.DateLayout)
}

func (s *MemoryStore) TryAcquire(_ context.Context, lock *models.ReservationLock, now time.Time) (bool, error) {
	cells := lock.Cells()
	held, unlock := s.lockRooms(cells)

	for _, c := range cells {
		rc := held[c.RoomID]
		h, ok := rc.cells[dateKey(c.Date)]
		if !ok {
			continue
		}
		if now.After(h.expiresAt) {
			delete(rc.cells, dateKey(c.Date))
			continue
		}
		if h.sessionID != lock.SessionID {
			unlock()
			return false, nil
		}
	}
	for _, c := range cells {
		held[c.RoomID].cells[dateKey(c.Date)] = cellHold{sessionID: lock.SessionID, token: lock.Token, expiresAt: lock.ExpiresAt}
	}
	unlock()

	s.sessMu.Lock()
	prev := s.sessions[lock.SessionID]
	stored := *lock
	s.sessions[lock.SessionID] = &stored
	s.sessMu.Unlock()

	if prev != nil && prev.Token != lock.Token {
		s.dropCells(prev)
	}
	return true, nil
}

// dropCells removes the cells still owned by the lock's token.
func (s *MemoryStore) dropCells(lock *models.ReservationLock) {
	cells := lock.Cells()
	held, unlock := s.lockRooms(cells)
	defer unlock()
	for _, c := range cells {
		rc := held[c.RoomID]
		if h, ok := rc.cells[dateKey(c.Date)]; ok && h.token == lock.Token {
			delete(rc.cells, dateKey(c.Date))
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*models.ReservationLock, error) {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	l, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) Release(_ context.Context, sessionID string) error {
	s.sessMu.Lock()
	l, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.sessMu.Unlock()
	if ok {
		s.dropCells(l)
	}
	return nil
}

func (s *MemoryStore) Holders(_ context.Context, cells []models.Cell, now time.Time) ([]string, error) {
	held, unlock := s.lockRooms(cells)
	defer unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, c := range cells {
		h, ok := held[c.RoomID].cells[dateKey(c.Date)]
		if !ok || now.After(h.expiresAt) {
			continue
		}
		if _, dup := seen[h.sessionID]; !dup {
			seen[h.sessionID] = struct{}{}
			out = append(out, h.sessionID)
		}
	}
	return out, nil
}

func (s *MemoryStore) Purge(_ context.Context, now time.Time) (int, error) {
	s.sessMu.Lock()
	var expired []*models.ReservationLock
	for id, l := range s.sessions {
		if l.IsExpired(now) {
			expired = append(expired, l)
			delete(s.sessions, id)
		}
	}
	s.sessMu.Unlock()

	for _, l := range expired {
		s.dropCells(l)
	}

	s.roomsMu.Lock()
	rooms := make([]*roomCells, 0, len(s.rooms))
	for _, rc := range s.rooms {
		rooms = append(rooms, rc)
	}
	s.roomsMu.Unlock()
	for _, rc := range rooms {
		rc.mu.Lock()
		for k, h := range rc.cells {
			if now.After(h.expiresAt) {
				delete(rc.cells, k)
			}
		}
		rc.mu.Unlock()
	}
	return len(expired), nil
}
