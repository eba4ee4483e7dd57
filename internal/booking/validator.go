package booking

import (
	"context"

	"github.com/rs/zerolog"

	"retreat/internal/conflict"
	"retreat/internal/metrics"
	"retreat/internal/models"
)

// BookingReader fetches the freshest bookings for the final check.
type BookingReader interface {
	ActiveBookingsOverlapping(ctx context.Context, roomIDs []string, stay models.Stay) ([]models.Booking, error)
}

// LockChecker confirms a session still holds its cells.
type LockChecker interface {
	Covers(ctx context.Context, sessionID string, roomIDs []string, stay models.Stay) bool
}

// FinalResult is the verdict right before commit.
type FinalResult struct {
	IsValid   bool                `json:"is_valid"`
	LockValid bool                `json:"lock_valid"`
	Conflicts []conflict.Conflict `json:"conflicts"`
	Errors    []string            `json:"errors"`
}

// Validator runs the final check. It reads only and changes nothing.
type Validator struct {
	bookings BookingReader
	locks    LockChecker
	resolver *conflict.Resolver
	logger   *zerolog.Logger
}

func NewValidator(bookings BookingReader, locks LockChecker, resolver *conflict.Resolver, logger *zerolog.Logger) *Validator {
	return &Validator{bookings: bookings, locks: locks, resolver: resolver, logger: logger}
}

// FinalValidation revalidates candidate against a fresh read and confirms
// the session's lock still covers every requested room night.
func (v *Validator) FinalValidation(ctx context.Context, candidate *models.Booking, sessionID string) FinalResult {
	res := FinalResult{Conflicts: []conflict.Conflict{}, Errors: []string{}}
	roomIDs := candidate.RoomIDs()

	var existing []models.Booking
	if candidate.Stay.Valid() && len(roomIDs) > 0 {
		var err error
		existing, err = v.bookings.ActiveBookingsOverlapping(ctx, roomIDs, candidate.Stay)
		if err != nil {
			v.logger.Error().Err(err).Str("session", sessionID).Msg("final validation: bookings unavailable, failing closed")
			res.Errors = append(res.Errors, "booking store unavailable")
			metrics.IncFinalValidation("store_error")
			return res
		}
	}

	check := v.resolver.ValidateBooking(candidate, existing)
	res.Conflicts = check.Conflicts
	res.Errors = append(res.Errors, check.Errors...)

	res.LockValid = v.locks.Covers(ctx, sessionID, roomIDs, candidate.Stay)
	if !res.LockValid {
		res.Errors = append(res.Errors, "reservation lock expired or does not cover the selection")
	}

	res.IsValid = check.IsValid && res.LockValid
	switch {
	case res.IsValid:
		metrics.IncFinalValidation("valid")
	case len(res.Conflicts) > 0:
		metrics.IncFinalValidation("conflict")
	case !res.LockValid:
		metrics.IncFinalValidation("lock_lost")
	default:
		metrics.IncFinalValidation("invalid")
	}
	return res
}
