package booking

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"retreat/internal/conflict"
	"retreat/internal/models"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ActiveBookingsOverlapping(ctx context.Context, roomIDs []string, stay models.Stay) ([]models.Booking, error) {
	args := m.Called(ctx, roomIDs, stay)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

type mockLocks struct {
	mock.Mock
}

func (m *mockLocks) Covers(ctx context.Context, sessionID string, roomIDs []string, stay models.Stay) bool {
	return m.Called(ctx, sessionID, roomIDs, stay).Bool(0)
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestFinalValidation(t *testing.T) {
	logger := zerolog.New(io.Discard)
	resolver := conflict.NewResolver()
	resolver.Now = func() time.Time { return day(2025, 5, 1) }
	ctx := context.Background()

	stay := models.Stay{StartDate: day(2025, 6, 1), EndDate: day(2025, 6, 3)}
	candidate := &models.Booking{
		Rooms:  []models.RoomUsage{{RoomID: "R1"}},
		Guests: models.GuestCount{Adult: 2},
		Stay:   stay,
	}
	rooms := []string{"R1"}

	t.Run("Valid", func(t *testing.T) {
		reader, locks := new(mockReader), new(mockLocks)
		reader.On("ActiveBookingsOverlapping", ctx, rooms, stay).Return([]models.Booking{}, nil).Once()
		locks.On("Covers", ctx, "s1", rooms, stay).Return(true).Once()

		res := NewValidator(reader, locks, resolver, &logger).FinalValidation(ctx, candidate, "s1")
		assert.True(t, res.IsValid)
		assert.True(t, res.LockValid)
		reader.AssertExpectations(t)
		locks.AssertExpectations(t)
	})

	t.Run("ConflictFromFreshRead", func(t *testing.T) {
		reader, locks := new(mockReader), new(mockLocks)
		taken := models.Booking{ID: "b9", Rooms: []models.RoomUsage{{RoomID: "R1"}}, Stay: stay, Status: models.StatusConfirmed}
		reader.On("ActiveBookingsOverlapping", ctx, rooms, stay).Return([]models.Booking{taken}, nil).Once()
		locks.On("Covers", ctx, "s1", rooms, stay).Return(true).Once()

		res := NewValidator(reader, locks, resolver, &logger).FinalValidation(ctx, candidate, "s1")
		assert.False(t, res.IsValid)
		assert.Len(t, res.Conflicts, 1)
	})

	t.Run("LockLost", func(t *testing.T) {
		reader, locks := new(mockReader), new(mockLocks)
		reader.On("ActiveBookingsOverlapping", ctx, rooms, stay).Return([]models.Booking{}, nil).Once()
		locks.On("Covers", ctx, "s1", rooms, stay).Return(false).Once()

		res := NewValidator(reader, locks, resolver, &logger).FinalValidation(ctx, candidate, "s1")
		assert.False(t, res.IsValid)
		assert.False(t, res.LockValid)
		assert.Empty(t, res.Conflicts)
	})

	t.Run("StoreDownFailsClosed", func(t *testing.T) {
		reader, locks := new(mockReader), new(mockLocks)
		reader.On("ActiveBookingsOverlapping", ctx, rooms, stay).Return(nil, errors.New("disk I/O error")).Once()

		res := NewValidator(reader, locks, resolver, &logger).FinalValidation(ctx, candidate, "s1")
		assert.False(t, res.IsValid)
		assert.Contains(t, res.Errors, "booking store unavailable")
		locks.AssertNotCalled(t, "Covers", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
