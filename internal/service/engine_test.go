package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"retreat/internal/booking"
	"retreat/internal/conflict"
	"retreat/internal/database"
	"retreat/internal/events"
	"retreat/internal/lock"
	"retreat/internal/models"
	"retreat/internal/pricing"
	"retreat/internal/rates"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ActiveRooms(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Room), args.Error(1)
}

func (m *mockStore) ActiveBookingsOverlapping(ctx context.Context, roomIDs []string, stay models.Stay) ([]models.Booking, error) {
	args := m.Called(ctx, roomIDs, stay)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockStore) CommitBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockStore) CancelBooking(ctx context.Context, id string, version int64) error {
	return m.Called(ctx, id, version).Error(0)
}

func (m *mockStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p any) error { return m.Called(et, p).Error(0) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 0, 0, 0, 0, time.UTC)
}

var testRooms = []models.Room{
	{ID: "R1", Name: "Hall", Type: "large", Capacity: 20, IsActive: true},
	{ID: "R2", Name: "Cedar", Type: "small", Capacity: 2, IsActive: true},
}

func testRates() *models.RateRecords {
	return &models.RateRecords{
		Version: "test",
		GuestRates: []models.GuestRate{
			{AgeGroup: models.AgeAdult, UsageType: models.UsageShared, DayType: models.Weekday, SeasonType: models.OffSeason, Price: 4800},
			{AgeGroup: models.AgeAdult, UsageType: models.UsagePrivate, DayType: models.Weekday, SeasonType: models.OffSeason, Price: 6000},
			{AgeGroup: models.AgeAdult, UsageType: models.UsagePrivate, DayType: models.Weekday, SeasonType: models.OffSeason, IsLeader: true, Price: 3000},
		},
		RoomRates:        []models.RoomRate{{RoomType: "large", Price: 20000}},
		PrivateRoomTypes: []string{"small"},
	}
}

type fixture struct {
	engine *Engine
	store  *mockStore
	bus    *mockEventBus
	clock  *fakeClock
	locks  *lock.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	clock := &fakeClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}

	store := new(mockStore)
	bus := new(mockEventBus)
	provider := rates.NewProvider(rates.NewStaticSource(testRates()), nil, &logger)
	calc := pricing.NewCalculator(nil, "periods", nil, &logger)
	locks := lock.NewManager(lock.NewMemoryStore(), lock.Options{Clock: clock.Now}, &logger)
	resolver := conflict.NewResolver()
	resolver.Now = clock.Now

	engine := NewEngine(store, provider, calc, locks, resolver, booking.NewAttemptStore(time.Hour), bus, &logger)
	return &fixture{engine: engine, store: store, bus: bus, clock: clock, locks: locks}
}

func juneStay(t *testing.T) models.Stay {
	t.Helper()
	s, err := models.NewStay(day(6, 2), day(6, 3)) // Monday night
	require.NoError(t, err)
	return s
}

func sharedRequest(t *testing.T, session string) StayRequest {
	return StayRequest{
		SessionID: session,
		Rooms:     []RoomSelection{{RoomID: "R1", Guests: 2}},
		Guests:    models.GuestCount{Adult: 2},
		Stay:      juneStay(t),
	}
}

func TestQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("SharedRoom", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)

		got, err := f.engine.Quote(ctx, sharedRequest(t, ""))
		require.NoError(t, err)
		assert.Equal(t, int64(20000), got.RoomAmount)
		assert.Equal(t, int64(9600), got.GuestAmount)
		assert.Equal(t, int64(29600), got.Total)
		assert.Equal(t, "test", got.RateVersion)
	})

	t.Run("PrivateWithLeader", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)

		req := StayRequest{
			Rooms:  []RoomSelection{{RoomID: "R2", Guests: 2}},
			Guests: models.GuestCount{Adult: 2, Leader: 1},
			Stay:   juneStay(t),
		}
		got, err := f.engine.Quote(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.UsagePrivate, got.UsageType)
		assert.Equal(t, int64(9000), got.GuestAmount)
	})

	t.Run("ForcedPrivateUsage", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)

		req := sharedRequest(t, "")
		req.Rooms[0].UsageType = models.UsagePrivate
		got, err := f.engine.Quote(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.UsagePrivate, got.UsageType)
		assert.Equal(t, int64(12000), got.GuestAmount)
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)

		req := sharedRequest(t, "")
		req.Rooms = []RoomSelection{{RoomID: "R9"}}
		_, err := f.engine.Quote(ctx, req)
		assert.ErrorIs(t, err, ErrUnknownRoom)
	})

	t.Run("InvertedStay", func(t *testing.T) {
		f := newFixture(t)
		req := sharedRequest(t, "")
		req.Stay = models.Stay{StartDate: day(6, 3), EndDate: day(6, 2)}
		_, err := f.engine.Quote(ctx, req)
		assert.ErrorIs(t, err, models.ErrInvalidStay)
		f.store.AssertNotCalled(t, "ActiveRooms", mock.Anything)
	})

	t.Run("InvalidGuests", func(t *testing.T) {
		f := newFixture(t)
		req := sharedRequest(t, "")
		req.Guests = models.GuestCount{Adult: 1, Leader: 2}
		_, err := f.engine.Quote(ctx, req)
		var verrs models.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.NotEmpty(t, verrs)
	})

	t.Run("FacilityDateOutsideStay", func(t *testing.T) {
		f := newFixture(t)
		req := sharedRequest(t, "")
		req.Addons = []models.AddonItem{{AddonID: "hall", Hours: 3, Date: day(6, 9)}}
		_, err := f.engine.Quote(ctx, req)
		var verrs models.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		require.Len(t, verrs, 1)
		assert.Equal(t, "Addons[0].Date", verrs[0].Field)
		f.store.AssertNotCalled(t, "ActiveRooms", mock.Anything)
	})
}

func TestQuoteWhileStoreDown(t *testing.T) {
	ctx := context.Background()
	storeDown := errors.New("db down")

	t.Run("ConfiguredRooms", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(nil, storeDown)
		f.engine.SetFallbackRooms(append(testRooms, models.Room{ID: "R3", Type: "large", IsActive: false}))

		got, err := f.engine.Quote(ctx, sharedRequest(t, ""))
		require.NoError(t, err)
		assert.Equal(t, int64(29600), got.Total)

		req := sharedRequest(t, "")
		req.Rooms = []RoomSelection{{RoomID: "R3", Guests: 2}}
		_, err = f.engine.Quote(ctx, req)
		assert.ErrorIs(t, err, ErrUnknownRoom, "inactive configured rooms are not quotable")
	})

	t.Run("LastKnownRooms", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil).Once()
		f.store.On("ActiveRooms", mock.Anything).Return(nil, storeDown)

		_, err := f.engine.Quote(ctx, sharedRequest(t, ""))
		require.NoError(t, err)
		got, err := f.engine.Quote(ctx, sharedRequest(t, ""))
		require.NoError(t, err)
		assert.Equal(t, int64(29600), got.Total)
	})

	t.Run("NothingKnown", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(nil, storeDown)

		_, err := f.engine.Quote(ctx, sharedRequest(t, ""))
		assert.ErrorIs(t, err, storeDown)
	})

	t.Run("SubmitStillFailsClosed", func(t *testing.T) {
		f := newFixture(t)
		f.engine.SetFallbackRooms(testRooms)
		f.store.On("ActiveRooms", mock.Anything).Return(nil, storeDown)

		_, err := f.engine.Submit(ctx, sharedRequest(t, "s1"))
		assert.ErrorIs(t, err, storeDown)
	})
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stay := juneStay(t)

	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, []string{"R1", "R2"}, stay).Return([]models.Booking{
		{ID: "b1", Stay: stay, Rooms: []models.RoomUsage{{RoomID: "R2"}}, Status: models.StatusConfirmed},
	}, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, []string{"R1"}, stay).Return([]models.Booking{}, nil)

	checks, err := f.engine.CheckAvailability(ctx, "s1", nil, stay)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.True(t, checks[0].IsAvailable)
	assert.False(t, checks[1].IsAvailable)
	assert.Equal(t, []string{"b1"}, checks[1].ConflictingBookings)
	assert.Nil(t, f.engine.attempts.Get("s1"), "partial availability leaves the attempt alone")

	_, err = f.engine.CheckAvailability(ctx, "s1", []string{"R1"}, stay)
	require.NoError(t, err)
	require.NotNil(t, f.engine.attempts.Get("s1"))
	assert.Equal(t, booking.StateAvailabilityChecked, f.engine.attempts.Get("s1").GetState())

	_, err = f.engine.CheckAvailability(ctx, "s1", nil, models.Stay{StartDate: day(6, 3), EndDate: day(6, 3)})
	assert.ErrorIs(t, err, models.ErrInvalidStay)
}

func TestCheckAvailabilityFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	checks, err := f.engine.CheckAvailability(context.Background(), "s1", []string{"R1", "R2"}, juneStay(t))
	require.NoError(t, err)
	require.Len(t, checks, 2)
	for _, c := range checks {
		assert.False(t, c.IsAvailable)
		assert.NotEmpty(t, c.Error)
	}
}

func TestHoldAndSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stay := juneStay(t)

	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, []string{"R1"}, stay).Return([]models.Booking{}, nil)
	f.store.On("CommitBooking", mock.Anything, mock.AnythingOfType("*models.Booking")).
		Run(func(args mock.Arguments) { args.Get(1).(*models.Booking).ID = "b-100" }).
		Return(nil).Once()
	f.bus.On("PublishJSON", events.BookingCommitted, mock.Anything).Return(nil).Once()

	hold, err := f.engine.Hold(ctx, "s1", []string{"R1"}, stay)
	require.NoError(t, err)
	assert.True(t, hold.Acquired)
	assert.Equal(t, booking.StateLockAcquired, hold.State)
	require.NotNil(t, hold.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(lock.DefaultTTL), *hold.ExpiresAt)

	status := f.engine.LockStatus(ctx, "s1")
	assert.True(t, status.HasLock)
	assert.False(t, status.Expiring)
	assert.Equal(t, lock.DefaultTTL, status.Remaining)

	res, err := f.engine.Submit(ctx, sharedRequest(t, "s1"))
	require.NoError(t, err)
	assert.True(t, res.Committed, "errors: %v", res.Errors)
	assert.Equal(t, booking.StateCommitted, res.State)
	require.NotNil(t, res.Booking)
	assert.Equal(t, "b-100", res.Booking.ID)
	assert.Equal(t, int64(29600), res.Booking.TotalAmount)
	assert.Equal(t, "test", res.Booking.RateVersion)
	assert.False(t, f.locks.HasLock(ctx, "s1"), "commit releases the lock")

	f.store.AssertExpectations(t)
	f.bus.AssertExpectations(t)
}

func TestHoldContention(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stay := juneStay(t)
	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{}, nil)

	a, err := f.engine.Hold(ctx, "A", []string{"R1"}, stay)
	require.NoError(t, err)
	require.True(t, a.Acquired)

	b, err := f.engine.Hold(ctx, "B", []string{"R1"}, stay)
	require.NoError(t, err)
	assert.False(t, b.Acquired)
	assert.Equal(t, 1, b.OtherSessions)
	assert.Equal(t, booking.StateAvailabilityChecked, b.State)

	f.clock.Advance(lock.DefaultTTL + time.Second)
	b, err = f.engine.Hold(ctx, "B", []string{"R1"}, stay)
	require.NoError(t, err)
	assert.True(t, b.Acquired)

	f.engine.Release(ctx, "B")
	assert.False(t, f.engine.LockStatus(ctx, "B").HasLock)
	assert.Equal(t, booking.StateInit, f.engine.LockStatus(ctx, "B").State)
}

func TestHoldRejectsBookedRooms(t *testing.T) {
	f := newFixture(t)
	stay := juneStay(t)
	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{
		{ID: "b1", Stay: stay, Rooms: []models.RoomUsage{{RoomID: "R1"}}, Status: models.StatusConfirmed},
	}, nil)

	res, err := f.engine.Hold(context.Background(), "s1", []string{"R1"}, stay)
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	require.Len(t, res.Checks, 1)
	assert.False(t, res.Checks[0].IsAvailable)
	assert.False(t, f.locks.HasLock(context.Background(), "s1"))

	_, err = f.engine.Hold(context.Background(), "", []string{"R1"}, stay)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSubmitLockExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stay := juneStay(t)
	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{}, nil)

	hold, err := f.engine.Hold(ctx, "s1", []string{"R1"}, stay)
	require.NoError(t, err)
	require.True(t, hold.Acquired)

	f.clock.Advance(lock.DefaultTTL - 30*time.Second)
	assert.True(t, f.engine.LockStatus(ctx, "s1").Expiring)

	f.clock.Advance(time.Minute)
	res, err := f.engine.Submit(ctx, sharedRequest(t, "s1"))
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, booking.StateInit, res.State)
	assert.Contains(t, res.Errors, "reservation lock expired or does not cover the selection")
	f.store.AssertNotCalled(t, "CommitBooking", mock.Anything, mock.Anything)
}

func TestSubmitConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stay := juneStay(t)
	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{}, nil).Once()

	hold, err := f.engine.Hold(ctx, "s1", []string{"R1"}, stay)
	require.NoError(t, err)
	require.True(t, hold.Acquired)

	f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{
		{ID: "walk-in", Stay: stay, Rooms: []models.RoomUsage{{RoomID: "R1"}}, Status: models.StatusConfirmed},
	}, nil)

	res, err := f.engine.Submit(ctx, sharedRequest(t, "s1"))
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, booking.StateConflictDetected, res.State)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "walk-in", res.Conflicts[0].BookingID)
	assert.False(t, f.locks.HasLock(ctx, "s1"))
}

func TestSubmitCommitRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stay := juneStay(t)
	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{}, nil)
	f.store.On("CommitBooking", mock.Anything, mock.Anything).Return(database.ErrNotAvailable)

	_, err := f.engine.Hold(ctx, "s1", []string{"R1"}, stay)
	require.NoError(t, err)

	res, err := f.engine.Submit(ctx, sharedRequest(t, "s1"))
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, booking.StateConflictDetected, res.State)
	assert.Contains(t, res.Errors, "rooms were booked by another session")
	f.bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestSubmitStoreError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{}, nil)
	f.store.On("CommitBooking", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := f.engine.Hold(ctx, "s1", []string{"R1"}, juneStay(t))
	require.NoError(t, err)

	_, err = f.engine.Submit(ctx, sharedRequest(t, "s1"))
	assert.ErrorContains(t, err, "disk full")

	_, err = f.engine.Submit(ctx, sharedRequest(t, ""))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSuggest(t *testing.T) {
	ctx := context.Background()
	stay := juneStay(t)

	t.Run("ShiftedDates", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
		f.store.On("ActiveBookingsOverlapping", mock.Anything, []string(nil), stay.Widen(conflict.DefaultSearchWindow)).Return([]models.Booking{
			{ID: "b1", Stay: stay, Rooms: []models.RoomUsage{{RoomID: "R1"}}, Status: models.StatusConfirmed},
		}, nil)

		got, err := f.engine.Suggest(ctx, conflict.SuggestionRequest{RoomIDs: []string{"R1"}, Stay: stay, Guests: 2})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, conflict.SuggestDates, got[0].Type)
		assert.Equal(t, 1, got[0].OffsetDays)
	})

	t.Run("StoreDown", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(nil, errors.New("db down"))
		_, err := f.engine.Suggest(ctx, conflict.SuggestionRequest{RoomIDs: []string{"R1"}, Stay: stay, Guests: 2})
		assert.Error(t, err)
	})
}

func TestOccupancy(t *testing.T) {
	f := newFixture(t)
	stay := juneStay(t)
	f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
	f.store.On("ActiveBookingsOverlapping", mock.Anything, []string{"R1", "R2"}, stay).Return([]models.Booking{
		{ID: "b1", Stay: stay, Guests: models.GuestCount{Adult: 2}, Rooms: []models.RoomUsage{{RoomID: "R2"}}, Status: models.StatusConfirmed},
	}, nil)

	stats, err := f.engine.Occupancy(context.Background(), stay)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OccupiedRooms)
	assert.Equal(t, 50.0, stats.OccupancyRate)
	assert.Equal(t, 2, stats.OccupiedCapacity)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	stay := juneStay(t)

	t.Run("Conflict", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
		f.store.On("ActiveBookingsOverlapping", mock.Anything, []string{"R1"}, stay).Return([]models.Booking{
			{ID: "b1", Stay: stay, Rooms: []models.RoomUsage{{RoomID: "R1"}}, Status: models.StatusConfirmed},
		}, nil)

		res, err := f.engine.Validate(ctx, sharedRequest(t, ""))
		require.NoError(t, err)
		assert.False(t, res.IsValid)
		require.Len(t, res.Conflicts, 1)
		assert.Equal(t, "R1", res.Conflicts[0].RoomID)
	})

	t.Run("LeaderNeedsPrivateRoom", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
		f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return([]models.Booking{}, nil)

		req := sharedRequest(t, "")
		req.Guests.Leader = 1
		res, err := f.engine.Validate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, []string{"leader rate requires a private room"}, res.Errors)
	})

	t.Run("StoreDown", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ActiveRooms", mock.Anything).Return(testRooms, nil)
		f.store.On("ActiveBookingsOverlapping", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		res, err := f.engine.Validate(ctx, sharedRequest(t, ""))
		require.NoError(t, err)
		assert.False(t, res.IsValid)
		assert.Equal(t, []string{"booking store unavailable"}, res.Errors)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.On("CancelBooking", mock.Anything, "b1", int64(1)).Return(nil).Once()
	f.store.On("CancelBooking", mock.Anything, "b1", int64(1)).Return(database.ErrConcurrentModification).Once()
	f.bus.On("PublishJSON", events.BookingCancelled, mock.Anything).Return(nil).Once()

	require.NoError(t, f.engine.Cancel(ctx, "b1", 1))
	assert.ErrorIs(t, f.engine.Cancel(ctx, "b1", 1), database.ErrConcurrentModification)
	f.bus.AssertExpectations(t)
}
