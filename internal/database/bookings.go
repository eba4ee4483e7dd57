package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"retreat/internal/models"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ActiveBookingsOverlapping returns non-cancelled bookings that use any of
// roomIDs on a night of stay. Empty roomIDs matches every room. Bookings and
// their rooms are read in one transaction.
func (db *DB) ActiveBookingsOverlapping(ctx context.Context, roomIDs []string, stay models.Stay) ([]models.Booking, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := overlappingIDs(ctx, tx, roomIDs, stay, "")
	if err != nil {
		return nil, err
	}
	bookings, err := loadBookings(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	return bookings, tx.Commit()
}

func overlappingIDs(ctx context.Context, q querier, roomIDs []string, stay models.Stay, excludeID string) ([]string, error) {
	query := `
		SELECT DISTINCT b.id FROM bookings b
		JOIN booking_rooms br ON br.booking_id = b.id
		WHERE b.status != ? AND b.start_date < ? AND ? < b.end_date AND b.id != ?`
	args := []any{string(models.StatusCancelled), fmtDate(stay.EndDate), fmtDate(stay.StartDate), excludeID}
	if len(roomIDs) > 0 {
		query += ` AND br.room_id IN (` + placeholders(len(roomIDs)) + `)`
		for _, id := range roomIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY b.start_date, b.id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query overlapping: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadBookings(ctx context.Context, q querier, ids []string) ([]models.Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, start_date, end_date, guests, addons, status, total_amount, rate_version, version, created_at, updated_at
		FROM bookings WHERE id IN (`+placeholders(len(ids))+`) ORDER BY start_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	var bookings []models.Booking
	index := make(map[string]int, len(ids))
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[b.ID] = len(bookings)
		bookings = append(bookings, *b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT booking_id, room_id, room_type, usage_type, rate, assigned_guests, capacity
		FROM booking_rooms WHERE booking_id IN (`+placeholders(len(ids))+`) ORDER BY booking_id, room_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query booking rooms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			bookingID string
			ru        models.RoomUsage
			roomType  sql.NullString
			usage     sql.NullString
		)
		if err := rows.Scan(&bookingID, &ru.RoomID, &roomType, &usage, &ru.Rate, &ru.AssignedGuests, &ru.Capacity); err != nil {
			return nil, err
		}
		ru.RoomType = roomType.String
		ru.UsageType = models.UsageType(usage.String)
		if i, ok := index[bookingID]; ok {
			bookings[i].Rooms = append(bookings[i].Rooms, ru)
		}
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b           models.Booking
		start, end  string
		guests      string
		addons      sql.NullString
		rateVersion sql.NullString
		status      string
	)
	err := row.Scan(&b.ID, &start, &end, &guests, &addons, &status, &b.TotalAmount, &rateVersion, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if b.Stay.StartDate, err = parseDate(start); err != nil {
		return nil, fmt.Errorf("booking %s start: %w", b.ID, err)
	}
	if b.Stay.EndDate, err = parseDate(end); err != nil {
		return nil, fmt.Errorf("booking %s end: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(guests), &b.Guests); err != nil {
		return nil, fmt.Errorf("booking %s guests: %w", b.ID, err)
	}
	if addons.Valid && addons.String != "" {
		if err := json.Unmarshal([]byte(addons.String), &b.Addons); err != nil {
			return nil, fmt.Errorf("booking %s addons: %w", b.ID, err)
		}
	}
	b.Status = models.BookingStatus(status)
	b.RateVersion = rateVersion.String
	return &b, nil
}

// GetBooking loads one booking with its rooms.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	bookings, err := loadBookings(ctx, db, []string{id})
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, ErrBookingNotFound
	}
	return &bookings[0], nil
}

// CommitBooking persists b after re-checking, inside the write transaction,
// that none of its rooms are taken on any of its nights. It assigns an id
// when b has none and returns ErrNotAvailable on overlap.
func (db *DB) CommitBooking(ctx context.Context, b *models.Booking) error {
	if !b.Stay.Valid() {
		return models.ErrInvalidStay
	}
	if len(b.Rooms) == 0 {
		return fmt.Errorf("booking has no rooms")
	}

	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	roomIDs := b.RoomIDs()
	for _, id := range roomIDs {
		var active bool
		err := tx.QueryRowContext(ctx, `SELECT is_active FROM rooms WHERE id = ?`, id).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("check room %s: %w", id, err)
		}
		if !active {
			return fmt.Errorf("%w: room %s is inactive", ErrNotAvailable, id)
		}
	}

	conflicts, err := overlappingIDs(ctx, tx, roomIDs, b.Stay, b.ID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: overlaps %v", ErrNotAvailable, conflicts)
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.StatusConfirmed
	}
	guests, err := json.Marshal(b.Guests)
	if err != nil {
		return err
	}
	var addons sql.NullString
	if len(b.Addons) > 0 {
		raw, err := json.Marshal(b.Addons)
		if err != nil {
			return err
		}
		addons = sql.NullString{String: string(raw), Valid: true}
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, start_date, end_date, guests, addons, status, total_amount, rate_version, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		b.ID, fmtDate(b.Stay.StartDate), fmtDate(b.Stay.EndDate), string(guests), addons,
		string(b.Status), b.TotalAmount, b.RateVersion, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	for _, r := range b.Rooms {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO booking_rooms (booking_id, room_id, room_type, usage_type, rate, assigned_guests, capacity)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, r.RoomID, r.RoomType, string(r.UsageType), r.Rate, r.AssignedGuests, r.Capacity,
		)
		if err != nil {
			return fmt.Errorf("insert booking room %s: %w", r.RoomID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// CancelBooking frees a booking's rooms. version must match the stored
// version; a stale version returns ErrConcurrentModification.
func (db *DB) CancelBooking(ctx context.Context, id string, version int64) error {
	res, err := db.writer.ExecContext(ctx, `
		UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status != ?`,
		string(models.StatusCancelled), time.Now(), id, version, string(models.StatusCancelled),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return err
	}
	return ErrConcurrentModification
}
