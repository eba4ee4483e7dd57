package models

import "time"

// UsageType decides which guest rate table applies.
type UsageType string

const (
	UsageShared  UsageType = "shared"
	UsagePrivate UsageType = "private"
)

func (u UsageType) Valid() bool {
	return u == UsageShared || u == UsagePrivate
}

// Room is a bookable unit of the facility.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Capacity  int       `json:"capacity"`
	BaseRate  float64   `json:"base_rate"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoomUsage is one room as used by a stay.
type RoomUsage struct {
	RoomID         string    `json:"room_id" validate:"required"`
	RoomType       string    `json:"room_type"`
	UsageType      UsageType `json:"usage_type,omitempty"`
	Rate           float64   `json:"rate,omitempty" validate:"min=0"`
	AssignedGuests int       `json:"assigned_guests" validate:"min=0"`
	Capacity       int       `json:"capacity,omitempty" validate:"min=0"`
}

// Usage builds a RoomUsage for the room. isPrivate reports whether a room
// type is priced on the private table.
func (r Room) Usage(assigned int, isPrivate func(roomType string) bool) RoomUsage {
	usage := UsageShared
	if isPrivate != nil && isPrivate(r.Type) {
		usage = UsagePrivate
	}
	return RoomUsage{
		RoomID:         r.ID,
		RoomType:       r.Type,
		UsageType:      usage,
		Rate:           r.BaseRate,
		AssignedGuests: assigned,
		Capacity:       r.Capacity,
	}
}

// StayUsageType is private when any room in the stay is private.
func StayUsageType(rooms []RoomUsage) UsageType {
	for _, r := range rooms {
		if r.UsageType == UsagePrivate {
			return UsagePrivate
		}
	}
	return UsageShared
}
