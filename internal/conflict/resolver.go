// Package conflict validates candidate bookings against existing ones and
// proposes alternatives when the requested rooms are taken.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"retreat/internal/models"
)

const (
	DefaultSearchWindow   = 7
	DefaultMaxSuggestions = 5
	DefaultFitRatio       = 1.5
)

// Conflict is one existing booking clashing with the candidate on a room.
type Conflict struct {
	BookingID    string      `json:"booking_id"`
	RoomID       string      `json:"room_id"`
	OverlapDates []time.Time `json:"overlap_dates"`
}

// Result is the outcome of validating a candidate booking.
type Result struct {
	IsValid   bool       `json:"is_valid"`
	Conflicts []Conflict `json:"conflicts"`
	Errors    []string   `json:"errors"`
}

// Resolver holds suggestion tuning and a clock for past-date checks.
type Resolver struct {
	SearchWindow   int
	MaxSuggestions int
	FitRatio       float64
	Now            func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{
		SearchWindow:   DefaultSearchWindow,
		MaxSuggestions: DefaultMaxSuggestions,
		FitRatio:       DefaultFitRatio,
		Now:            time.Now,
	}
}

func (r *Resolver) today() time.Time {
	return models.DateOnly(r.Now())
}

// ValidateBooking checks the candidate's own fields, then looks for active
// bookings sharing a room and a night with it.
func (r *Resolver) ValidateBooking(candidate *models.Booking, existing []models.Booking) Result {
	res := Result{Conflicts: []Conflict{}, Errors: []string{}}

	res.Errors = append(res.Errors, models.ValidateStruct(candidate).Messages()...)

	stayOK := candidate.Stay.Valid()
	if !stayOK {
		res.Errors = append(res.Errors, models.ErrInvalidStay.Error())
	} else {
		if candidate.Stay.StartDate.Before(r.today()) {
			res.Errors = append(res.Errors, "check-in date is in the past")
		}
		res.Errors = append(res.Errors, models.CheckAddonDates(candidate.Stay, candidate.Addons).Messages()...)
	}
	if candidate.Guests.Total() == 0 {
		res.Errors = append(res.Errors, "at least one guest is required")
	}
	if candidate.Guests.Leader > 0 && models.StayUsageType(candidate.Rooms) != models.UsagePrivate {
		res.Errors = append(res.Errors, "leader rate requires a private room")
	}

	if stayOK {
		res.Conflicts = findConflicts(candidate, existing)
	}
	res.IsValid = len(res.Errors) == 0 && len(res.Conflicts) == 0
	return res
}

func findConflicts(candidate *models.Booking, existing []models.Booking) []Conflict {
	out := []Conflict{}
	for _, room := range candidate.Rooms {
		for i := range existing {
			b := &existing[i]
			if b.ID != "" && b.ID == candidate.ID {
				continue
			}
			if !b.IsActive() || !b.UsesRoom(room.RoomID) || !b.Stay.Overlaps(candidate.Stay) {
				continue
			}
			out = append(out, Conflict{
				BookingID:    b.ID,
				RoomID:       room.RoomID,
				OverlapDates: candidate.Stay.OverlapDates(b.Stay),
			})
		}
	}
	return out
}

// SuggestionType names the kind of alternative.
type SuggestionType string

const (
	SuggestDates SuggestionType = "alternate_dates"
	SuggestSplit SuggestionType = "split_booking"
	SuggestRoom  SuggestionType = "larger_room"
)

// Suggestion is one alternative to an unavailable request.
type Suggestion struct {
	Type          SuggestionType `json:"type"`
	Stay          models.Stay    `json:"stay"`
	RoomIDs       []string       `json:"room_ids"`
	TotalCapacity int            `json:"total_capacity"`
	OffsetDays    int            `json:"offset_days,omitempty"`
	Description   string         `json:"description"`
}

// SuggestionRequest is the request that could not be served.
type SuggestionRequest struct {
	RoomIDs []string    `json:"room_ids"`
	Stay    models.Stay `json:"stay"`
	Guests  int         `json:"guests"`
}

// SuggestAlternatives returns shifted date windows, then a multi-room split,
// then roomy single rooms, in that order and capped at MaxSuggestions.
// bookings must cover the stay widened by SearchWindow days.
func (r *Resolver) SuggestAlternatives(req SuggestionRequest, rooms []models.Room, bookings []models.Booking) []Suggestion {
	out := []Suggestion{}
	if !req.Stay.Valid() {
		return out
	}
	limit := r.MaxSuggestions
	add := func(s Suggestion) bool {
		out = append(out, s)
		return len(out) >= limit
	}

	for d := 1; d <= r.SearchWindow; d++ {
		for _, offset := range []int{d, -d} {
			window := req.Stay.Shift(offset)
			if window.StartDate.Before(r.today()) {
				continue
			}
			ids, capacity, ok := r.windowFree(req, window, rooms, bookings)
			if !ok {
				continue
			}
			if add(Suggestion{
				Type:          SuggestDates,
				Stay:          window,
				RoomIDs:       ids,
				TotalCapacity: capacity,
				OffsetDays:    offset,
				Description:   fmt.Sprintf("Free from %s to %s", window.StartDate.Format(models.DateLayout), window.EndDate.Format(models.DateLayout)),
			}) {
				return out
			}
		}
	}

	if req.Guests <= 0 {
		return out
	}
	free := freeRooms(rooms, bookings, req.Stay)

	if split, capacity := splitRooms(free, req.Guests); len(split) >= 2 {
		if add(Suggestion{
			Type:          SuggestSplit,
			Stay:          req.Stay,
			RoomIDs:       split,
			TotalCapacity: capacity,
			Description:   fmt.Sprintf("Split %d guests across %d rooms", req.Guests, len(split)),
		}) {
			return out
		}
	}

	need := float64(req.Guests) * r.FitRatio
	for _, room := range free {
		if float64(room.Capacity) < need {
			continue
		}
		if add(Suggestion{
			Type:          SuggestRoom,
			Stay:          req.Stay,
			RoomIDs:       []string{room.ID},
			TotalCapacity: room.Capacity,
			Description:   fmt.Sprintf("%s sleeps %d", roomName(room), room.Capacity),
		}) {
			return out
		}
	}
	return out
}

// windowFree checks the requested rooms, or any mix of rooms with enough
// capacity when none were requested.
func (r *Resolver) windowFree(req SuggestionRequest, window models.Stay, rooms []models.Room, bookings []models.Booking) ([]string, int, bool) {
	if len(req.RoomIDs) > 0 {
		capacity := 0
		for _, id := range req.RoomIDs {
			room, ok := findRoom(rooms, id)
			if !ok || occupied(bookings, id, window) {
				return nil, 0, false
			}
			capacity += room.Capacity
		}
		return append([]string(nil), req.RoomIDs...), capacity, true
	}

	free := freeRooms(rooms, bookings, window)
	if len(free) == 0 {
		return nil, 0, false
	}
	ids := make([]string, 0, len(free))
	capacity := 0
	for _, room := range free {
		ids = append(ids, room.ID)
		capacity += room.Capacity
	}
	return ids, capacity, capacity >= req.Guests
}

// splitRooms greedily takes the largest free rooms until guests fit.
func splitRooms(free []models.Room, guests int) ([]string, int) {
	sorted := append([]models.Room(nil), free...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Capacity > sorted[j].Capacity })

	var ids []string
	capacity := 0
	for _, room := range sorted {
		if capacity >= guests {
			break
		}
		ids = append(ids, room.ID)
		capacity += room.Capacity
	}
	if capacity < guests {
		return nil, 0
	}
	return ids, capacity
}

func freeRooms(rooms []models.Room, bookings []models.Booking, stay models.Stay) []models.Room {
	var out []models.Room
	for _, room := range rooms {
		if room.IsActive && !occupied(bookings, room.ID, stay) {
			out = append(out, room)
		}
	}
	return out
}

func occupied(bookings []models.Booking, roomID string, stay models.Stay) bool {
	for i := range bookings {
		b := &bookings[i]
		if b.IsActive() && b.UsesRoom(roomID) && b.Stay.Overlaps(stay) {
			return true
		}
	}
	return false
}

func findRoom(rooms []models.Room, id string) (models.Room, bool) {
	for _, r := range rooms {
		if r.ID == id {
			return r, r.IsActive
		}
	}
	return models.Room{}, false
}

func roomName(r models.Room) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
