package models

import "time"

// BookingStatus tracks a booking's lifecycle.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Booking is a reservation of one or more rooms for a stay.
type Booking struct {
	ID          string        `json:"id"`
	Rooms       []RoomUsage   `json:"rooms" validate:"required,min=1,dive"`
	Guests      GuestCount    `json:"guests"`
	Stay        Stay          `json:"stay"`
	Addons      []AddonItem   `json:"addons,omitempty" validate:"dive"`
	Status      BookingStatus `json:"status"`
	TotalAmount int64         `json:"total_amount"`
	RateVersion string        `json:"rate_version,omitempty"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsActive reports whether the booking still occupies its rooms.
func (b *Booking) IsActive() bool {
	return b.Status != StatusCancelled
}

// RoomIDs lists the booked room ids in booking order.
func (b *Booking) RoomIDs() []string {
	ids := make([]string, 0, len(b.Rooms))
	for _, r := range b.Rooms {
		ids = append(ids, r.RoomID)
	}
	return ids
}

// UsesRoom reports whether the booking includes the room.
func (b *Booking) UsesRoom(roomID string) bool {
	for _, r := range b.Rooms {
		if r.RoomID == roomID {
			return true
		}
	}
	return false
}

// OverlapsWith is true when both bookings share a room and a night.
func (b *Booking) OverlapsWith(other *Booking) bool {
	if !b.Stay.Overlaps(other.Stay) {
		return false
	}
	for _, r := range b.Rooms {
		if other.UsesRoom(r.RoomID) {
			return true
		}
	}
	return false
}

// GuestsInRoom returns the guests assigned to roomID. A booking that never
// assigned guests spreads its party over its rooms in booking order, so the
// shares of all its rooms add up to the party size.
func (b *Booking) GuestsInRoom(roomID string) int {
	assigned, inRoom := 0, 0
	for _, r := range b.Rooms {
		assigned += r.AssignedGuests
		if r.RoomID == roomID {
			inRoom += r.AssignedGuests
		}
	}
	if assigned > 0 {
		return inRoom
	}

	ids := b.RoomIDs()
	total := b.Guests.Total()
	for i, id := range ids {
		if id != roomID {
			continue
		}
		share := total / len(ids)
		if i < total%len(ids) {
			share++
		}
		return share
	}
	return 0
}
