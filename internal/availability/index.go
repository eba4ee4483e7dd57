// Package availability answers read-only room occupancy queries.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"retreat/internal/metrics"
	"retreat/internal/models"
)

// BookingSource is the persistence view the index reads from.
type BookingSource interface {
	ActiveRooms(ctx context.Context) ([]models.Room, error)
	ActiveBookingsOverlapping(ctx context.Context, roomIDs []string, stay models.Stay) ([]models.Booking, error)
}

// Check is the availability of one room over a stay.
type Check struct {
	RoomID              string   `json:"room_id"`
	IsAvailable         bool     `json:"is_available"`
	ConflictingBookings []string `json:"conflicting_bookings"`
	AvailableCapacity   int      `json:"available_capacity"`
	Error               string   `json:"error,omitempty"`
}

// Stats summarizes occupancy over a stay.
type Stats struct {
	TotalRooms         int     `json:"total_rooms"`
	OccupiedRooms      int     `json:"occupied_rooms"`
	OccupancyRate      float64 `json:"occupancy_rate"`
	TotalCapacity      int     `json:"total_capacity"`
	OccupiedCapacity   int     `json:"occupied_capacity"`
	GuestOccupancyRate float64 `json:"guest_occupancy_rate"`
}

type Index struct {
	source BookingSource
	logger *zerolog.Logger
}

func NewIndex(source BookingSource, logger *zerolog.Logger) *Index {
	return &Index{source: source, logger: logger}
}

// CheckAvailability reports every requested room, or every active room when
// roomIDs is empty. Store failures mark rooms unavailable instead of
// failing the batch.
func (i *Index) CheckAvailability(ctx context.Context, roomIDs []string, stay models.Stay, excludeBookingID string) []Check {
	defer metrics.ObserveAvailabilityCheck(time.Now())

	rooms, err := i.source.ActiveRooms(ctx)
	if err != nil {
		i.logger.Error().Err(err).Msg("availability: rooms unavailable, failing closed")
		return failClosed(roomIDs, fmt.Errorf("load rooms: %w", err))
	}
	byID := make(map[string]models.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}
	if len(roomIDs) == 0 {
		for _, r := range rooms {
			roomIDs = append(roomIDs, r.ID)
		}
	}

	bookings, err := i.source.ActiveBookingsOverlapping(ctx, roomIDs, stay)
	if err != nil {
		i.logger.Error().Err(err).Str("stay", stay.String()).Msg("availability: bookings unavailable, failing closed")
		return failClosed(roomIDs, fmt.Errorf("load bookings: %w", err))
	}

	out := make([]Check, 0, len(roomIDs))
	for _, id := range roomIDs {
		room, ok := byID[id]
		if !ok {
			out = append(out, Check{RoomID: id, ConflictingBookings: []string{}, Error: "unknown or inactive room"})
			continue
		}
		check := Check{RoomID: id, ConflictingBookings: []string{}}
		for _, b := range bookings {
			if b.ID == excludeBookingID || !b.IsActive() || !b.UsesRoom(id) || !b.Stay.Overlaps(stay) {
				continue
			}
			check.ConflictingBookings = append(check.ConflictingBookings, b.ID)
		}
		check.IsAvailable = len(check.ConflictingBookings) == 0
		if check.IsAvailable {
			check.AvailableCapacity = room.Capacity
		}
		out = append(out, check)
	}
	return out
}

// AvailableRooms filters checks down to free room ids.
func AvailableRooms(checks []Check) []string {
	var ids []string
	for _, c := range checks {
		if c.IsAvailable {
			ids = append(ids, c.RoomID)
		}
	}
	return ids
}

func failClosed(roomIDs []string, err error) []Check {
	out := make([]Check, 0, len(roomIDs))
	for _, id := range roomIDs {
		out = append(out, Check{RoomID: id, ConflictingBookings: []string{}, Error: err.Error()})
	}
	return out
}

// OccupancyStats counts rooms and guests taken by active bookings over stay.
func (i *Index) OccupancyStats(ctx context.Context, stay models.Stay) (*Stats, error) {
	rooms, err := i.source.ActiveRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	ids := make([]string, 0, len(rooms))
	stats := &Stats{TotalRooms: len(rooms)}
	for _, r := range rooms {
		ids = append(ids, r.ID)
		stats.TotalCapacity += r.Capacity
	}
	if len(ids) == 0 {
		return stats, nil
	}

	bookings, err := i.source.ActiveBookingsOverlapping(ctx, ids, stay)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	occupied := make(map[string]struct{})
	for _, b := range bookings {
		if !b.IsActive() || !b.Stay.Overlaps(stay) {
			continue
		}
		for _, id := range ids {
			if !b.UsesRoom(id) {
				continue
			}
			occupied[id] = struct{}{}
			stats.OccupiedCapacity += b.GuestsInRoom(id)
		}
	}
	stats.OccupiedRooms = len(occupied)
	stats.OccupancyRate = percent(stats.OccupiedRooms, stats.TotalRooms)
	stats.GuestOccupancyRate = percent(stats.OccupiedCapacity, stats.TotalCapacity)
	return stats, nil
}

// percent is clamped to [0, 100].
func percent(part, total int) float64 {
	if total <= 0 || part <= 0 {
		return 0
	}
	p := float64(part) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}
