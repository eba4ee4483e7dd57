// Package service wires pricing, availability, conflicts and locks into the
// booking engine used by the API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"retreat/internal/availability"
	"retreat/internal/booking"
	"retreat/internal/conflict"
	"retreat/internal/database"
	"retreat/internal/events"
	"retreat/internal/lock"
	"retreat/internal/models"
	"retreat/internal/pricing"
	"retreat/internal/rates"
)

var (
	ErrUnknownRoom = errors.New("unknown room")
	ErrNoSession   = errors.New("session id is required")
)

// BookingStore is the persistence the engine needs.
type BookingStore interface {
	availability.BookingSource
	CommitBooking(ctx context.Context, b *models.Booking) error
	CancelBooking(ctx context.Context, id string, version int64) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
}

// RateProvider hands out the current rate snapshot.
type RateProvider interface {
	Current(ctx context.Context) *rates.Config
	Invalidate(ctx context.Context)
}

// RoomSelection is one room picked for a stay. UsageType may force private
// use of a room whose type is normally shared.
type RoomSelection struct {
	RoomID    string           `json:"room_id" validate:"required"`
	Guests    int              `json:"guests" validate:"min=0"`
	UsageType models.UsageType `json:"usage_type,omitempty"`
}

// StayRequest describes the stay being quoted or booked.
type StayRequest struct {
	SessionID string             `json:"session_id,omitempty"`
	Rooms     []RoomSelection    `json:"rooms" validate:"required,min=1,dive"`
	Guests    models.GuestCount  `json:"guests"`
	Stay      models.Stay        `json:"stay"`
	Addons    []models.AddonItem `json:"addons,omitempty" validate:"dive"`
}

// HoldResult reports a lock attempt. Contention is not an error.
type HoldResult struct {
	Acquired      bool                 `json:"acquired"`
	State         booking.State        `json:"state"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	OtherSessions int                  `json:"other_sessions"`
	Checks        []availability.Check `json:"checks,omitempty"`
}

// LockStatus is what a session sees about its own hold.
type LockStatus struct {
	HasLock   bool                    `json:"has_lock"`
	Expiring  bool                    `json:"expiring"`
	Remaining time.Duration           `json:"remaining_ns"`
	State     booking.State           `json:"state"`
	Lock      *models.ReservationLock `json:"lock,omitempty"`
}

// SubmitResult is the outcome of a commit attempt.
type SubmitResult struct {
	Committed bool                `json:"committed"`
	State     booking.State       `json:"state"`
	Booking   *models.Booking     `json:"booking,omitempty"`
	Price     *pricing.Breakdown  `json:"price,omitempty"`
	Conflicts []conflict.Conflict `json:"conflicts"`
	Errors    []string            `json:"errors"`
}

// Engine is the booking validity and pricing facade.
type Engine struct {
	store     BookingStore
	rates     RateProvider
	calc      *pricing.Calculator
	index     *availability.Index
	resolver  *conflict.Resolver
	locks     *lock.Manager
	validator *booking.Validator
	fsm       *booking.FSM
	attempts  *booking.AttemptStore
	publisher events.Publisher
	logger    *zerolog.Logger

	roomsMu       sync.RWMutex
	lastRooms     []models.Room
	fallbackRooms []models.Room
}

func NewEngine(
	store BookingStore,
	provider RateProvider,
	calc *pricing.Calculator,
	locks *lock.Manager,
	resolver *conflict.Resolver,
	attempts *booking.AttemptStore,
	publisher events.Publisher,
	logger *zerolog.Logger,
) *Engine {
	return &Engine{
		store:     store,
		rates:     provider,
		calc:      calc,
		index:     availability.NewIndex(store, logger),
		resolver:  resolver,
		locks:     locks,
		validator: booking.NewValidator(store, locks, resolver, logger),
		fsm:       booking.NewFSM(),
		attempts:  attempts,
		publisher: publisher,
		logger:    logger,
	}
}

func checkRequest(req StayRequest) error {
	if !req.Stay.Valid() {
		return models.ErrInvalidStay
	}
	if errs := models.ValidateStruct(req); len(errs) > 0 {
		return errs
	}
	if errs := models.CheckAddonDates(req.Stay, req.Addons); len(errs) > 0 {
		return errs
	}
	return nil
}

func selectionIDs(sel []RoomSelection) []string {
	ids := make([]string, 0, len(sel))
	for _, s := range sel {
		ids = append(ids, s.RoomID)
	}
	return ids
}

// SetFallbackRooms sets the room list quotes use when the store cannot be
// read and no earlier read succeeded.
func (e *Engine) SetFallbackRooms(rooms []models.Room) {
	active := make([]models.Room, 0, len(rooms))
	for _, r := range rooms {
		if r.IsActive {
			active = append(active, r)
		}
	}
	e.roomsMu.Lock()
	e.fallbackRooms = active
	e.roomsMu.Unlock()
}

// loadRooms reads the active rooms. With degrade set, a store failure falls
// back to the last list read, then to the fallback rooms.
func (e *Engine) loadRooms(ctx context.Context, degrade bool) ([]models.Room, error) {
	rooms, err := e.store.ActiveRooms(ctx)
	if err == nil {
		e.roomsMu.Lock()
		e.lastRooms = rooms
		e.roomsMu.Unlock()
		return rooms, nil
	}
	if !degrade {
		return nil, fmt.Errorf("load rooms: %w", err)
	}

	e.roomsMu.RLock()
	defer e.roomsMu.RUnlock()
	switch {
	case len(e.lastRooms) > 0:
		e.logger.Warn().Err(err).Msg("room store unavailable, pricing with last known rooms")
		return e.lastRooms, nil
	case len(e.fallbackRooms) > 0:
		e.logger.Warn().Err(err).Msg("room store unavailable, pricing with configured rooms")
		return e.fallbackRooms, nil
	}
	return nil, fmt.Errorf("load rooms: %w", err)
}

// resolveRooms turns selections into priced room usages.
func (e *Engine) resolveRooms(ctx context.Context, sel []RoomSelection, cfg *rates.Config, degrade bool) ([]models.RoomUsage, error) {
	rooms, err := e.loadRooms(ctx, degrade)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}

	out := make([]models.RoomUsage, 0, len(sel))
	for _, s := range sel {
		room, ok := byID[s.RoomID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, s.RoomID)
		}
		usage := room.Usage(s.Guests, cfg.IsPrivateType)
		if s.UsageType == models.UsagePrivate {
			usage.UsageType = models.UsagePrivate
		}
		out = append(out, usage)
	}
	return out, nil
}

// Quote prices a stay without touching availability or locks. It keeps
// answering from known rooms and fallback rates while the store is down.
func (e *Engine) Quote(ctx context.Context, req StayRequest) (*pricing.Breakdown, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	cfg := e.rates.Current(ctx)
	rooms, err := e.resolveRooms(ctx, req.Rooms, cfg, true)
	if err != nil {
		return nil, err
	}
	return e.calc.ComputePrice(pricing.Request{
		Rooms:  rooms,
		Guests: req.Guests,
		Stay:   req.Stay,
		Addons: req.Addons,
	}, cfg)
}

// CheckAvailability reports each room for the stay. Empty roomIDs checks
// every active room. A session with every requested room free advances to
// AVAILABILITY_CHECKED.
func (e *Engine) CheckAvailability(ctx context.Context, sessionID string, roomIDs []string, stay models.Stay) ([]availability.Check, error) {
	if !stay.Valid() {
		return nil, models.ErrInvalidStay
	}
	checks := e.index.CheckAvailability(ctx, roomIDs, stay, "")

	if sessionID != "" && len(checks) > 0 && len(availability.AvailableRooms(checks)) == len(checks) {
		a := e.attempts.GetOrCreate(sessionID)
		switch a.GetState() {
		case booking.StateInit, booking.StateAvailabilityChecked:
			e.fsm.Transition(a, booking.StateAvailabilityChecked)
		}
	}
	return checks, nil
}

// Occupancy reports room and guest occupancy over the stay.
func (e *Engine) Occupancy(ctx context.Context, stay models.Stay) (*availability.Stats, error) {
	if !stay.Valid() {
		return nil, models.ErrInvalidStay
	}
	return e.index.OccupancyStats(ctx, stay)
}

// Validate runs the booking checks against a fresh read without holding
// anything. The store being unreachable makes the candidate invalid.
func (e *Engine) Validate(ctx context.Context, req StayRequest) (conflict.Result, error) {
	cfg := e.rates.Current(ctx)
	rooms, err := e.resolveRooms(ctx, req.Rooms, cfg, false)
	if err != nil {
		return conflict.Result{}, err
	}
	candidate := &models.Booking{Rooms: rooms, Guests: req.Guests, Stay: req.Stay, Addons: req.Addons}

	var existing []models.Booking
	if candidate.Stay.Valid() && len(rooms) > 0 {
		existing, err = e.store.ActiveBookingsOverlapping(ctx, candidate.RoomIDs(), candidate.Stay)
		if err != nil {
			e.logger.Error().Err(err).Msg("validate: bookings unavailable, failing closed")
			return conflict.Result{Conflicts: []conflict.Conflict{}, Errors: []string{"booking store unavailable"}}, nil
		}
	}
	return e.resolver.ValidateBooking(candidate, existing), nil
}

// Suggest proposes alternatives to an unavailable request.
func (e *Engine) Suggest(ctx context.Context, req conflict.SuggestionRequest) ([]conflict.Suggestion, error) {
	if !req.Stay.Valid() {
		return nil, models.ErrInvalidStay
	}
	rooms, err := e.store.ActiveRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	bookings, err := e.store.ActiveBookingsOverlapping(ctx, nil, req.Stay.Widen(e.resolver.SearchWindow))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	return e.resolver.SuggestAlternatives(req, rooms, bookings), nil
}

// Hold locks the rooms for the session after confirming they are free.
func (e *Engine) Hold(ctx context.Context, sessionID string, roomIDs []string, stay models.Stay) (*HoldResult, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	if !stay.Valid() {
		return nil, models.ErrInvalidStay
	}
	if len(roomIDs) == 0 {
		return nil, fmt.Errorf("%w: no rooms selected", ErrUnknownRoom)
	}
	e.attempts.Cleanup()

	a := e.attempts.GetOrCreate(sessionID)
	if a.GetState() == booking.StateLockAcquired && !e.locks.HasLock(ctx, sessionID) {
		e.fsm.Expire(a)
	}

	res := &HoldResult{}
	checks := e.index.CheckAvailability(ctx, roomIDs, stay, "")
	if len(availability.AvailableRooms(checks)) != len(checks) {
		res.Checks = checks
		res.State = a.GetState()
		res.OtherSessions = e.locks.OtherActiveSessions(ctx, roomIDs, stay, sessionID)
		return res, nil
	}
	if a.GetState() == booking.StateInit {
		e.fsm.Transition(a, booking.StateAvailabilityChecked)
	}

	res.Acquired = e.locks.Acquire(ctx, roomIDs, stay, sessionID)
	if res.Acquired {
		e.fsm.Transition(a, booking.StateLockAcquired)
		if l, ok := e.locks.Lock(ctx, sessionID); ok {
			exp := l.ExpiresAt
			res.ExpiresAt = &exp
		}
	}
	res.OtherSessions = e.locks.OtherActiveSessions(ctx, roomIDs, stay, sessionID)
	res.State = a.GetState()
	return res, nil
}

// Release drops the session's hold and forgets its attempt.
func (e *Engine) Release(ctx context.Context, sessionID string) {
	e.locks.Release(ctx, sessionID)
	e.attempts.Delete(sessionID)
}

// LockStatus reports the session's hold.
func (e *Engine) LockStatus(ctx context.Context, sessionID string) LockStatus {
	st := LockStatus{State: booking.StateInit}
	if a := e.attempts.Get(sessionID); a != nil {
		st.State = a.GetState()
	}
	l, ok := e.locks.Lock(ctx, sessionID)
	if !ok {
		return st
	}
	st.HasLock = true
	st.Lock = l
	st.Expiring = e.locks.IsLockExpiring(ctx, sessionID)
	st.Remaining = e.locks.Remaining(ctx, sessionID)
	return st
}

// Submit prices the request, runs the final validation and commits. A lost
// lock sends the attempt back to INIT; a conflict ends it.
func (e *Engine) Submit(ctx context.Context, req StayRequest) (*SubmitResult, error) {
	if req.SessionID == "" {
		return nil, ErrNoSession
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	a := e.attempts.GetOrCreate(req.SessionID)
	res := &SubmitResult{Conflicts: []conflict.Conflict{}, Errors: []string{}}

	cfg := e.rates.Current(ctx)
	rooms, err := e.resolveRooms(ctx, req.Rooms, cfg, false)
	if err != nil {
		return nil, err
	}
	price, err := e.calc.ComputePrice(pricing.Request{Rooms: rooms, Guests: req.Guests, Stay: req.Stay, Addons: req.Addons}, cfg)
	if err != nil {
		return nil, err
	}

	candidate := &models.Booking{
		Rooms:       rooms,
		Guests:      req.Guests,
		Stay:        req.Stay,
		Addons:      req.Addons,
		Status:      models.StatusConfirmed,
		TotalAmount: price.Total,
		RateVersion: price.RateVersion,
	}

	final := e.validator.FinalValidation(ctx, candidate, req.SessionID)
	res.Conflicts = final.Conflicts
	res.Errors = final.Errors
	if !final.IsValid {
		switch {
		case len(final.Conflicts) > 0:
			e.fsm.Transition(a, booking.StateConflictDetected)
			e.locks.Release(ctx, req.SessionID)
		case !final.LockValid:
			e.fsm.Expire(a)
		}
		res.State = a.GetState()
		return res, nil
	}

	if !e.fsm.Transition(a, booking.StateFinalValidated) {
		res.Errors = append(res.Errors, fmt.Sprintf("booking attempt cannot be finalized from %s", a.GetState()))
		res.State = a.GetState()
		return res, nil
	}

	if err := e.store.CommitBooking(ctx, candidate); err != nil {
		if errors.Is(err, database.ErrNotAvailable) {
			e.fsm.Transition(a, booking.StateConflictDetected)
			e.locks.Release(ctx, req.SessionID)
			res.Errors = append(res.Errors, "rooms were booked by another session")
			res.State = a.GetState()
			return res, nil
		}
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	e.fsm.Transition(a, booking.StateCommitted)
	a.SetBookingID(candidate.ID)
	e.locks.Release(ctx, req.SessionID)
	if e.publisher != nil {
		if err := e.publisher.PublishJSON(events.BookingCommitted, candidate); err != nil {
			e.logger.Error().Err(err).Str("booking_id", candidate.ID).Msg("publish booking.committed failed")
		}
	}
	e.logger.Info().
		Str("booking_id", candidate.ID).
		Str("session", req.SessionID).
		Int64("total", price.Total).
		Str("stay", req.Stay.String()).
		Msg("booking committed")

	res.Committed = true
	res.State = a.GetState()
	res.Booking = candidate
	res.Price = price
	return res, nil
}

// Cancel frees a committed booking's rooms.
func (e *Engine) Cancel(ctx context.Context, bookingID string, version int64) error {
	if err := e.store.CancelBooking(ctx, bookingID, version); err != nil {
		return err
	}
	if e.publisher != nil {
		payload := map[string]any{"booking_id": bookingID, "version": version + 1}
		if err := e.publisher.PublishJSON(events.BookingCancelled, payload); err != nil {
			e.logger.Error().Err(err).Str("booking_id", bookingID).Msg("publish booking.cancelled failed")
		}
	}
	return nil
}

// InvalidateRates drops cached rates after an admin edit.
func (e *Engine) InvalidateRates(ctx context.Context) {
	e.rates.Invalidate(ctx)
}

// RateConfig exposes the active snapshot for diagnostics.
func (e *Engine) RateConfig(ctx context.Context) *rates.Config {
	return e.rates.Current(ctx)
}
