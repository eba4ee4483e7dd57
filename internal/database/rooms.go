package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"retreat/internal/models"
)

// ActiveRooms lists bookable rooms ordered by id.
func (db *DB) ActiveRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, room_type, capacity, base_rate, is_active, created_at, updated_at
		FROM rooms WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &r.Capacity, &r.BaseRate, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom returns a room regardless of its active flag.
func (db *DB) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var r models.Room
	err := db.QueryRowContext(ctx, `
		SELECT id, name, room_type, capacity, base_rate, is_active, created_at, updated_at
		FROM rooms WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.Type, &r.Capacity, &r.BaseRate, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SyncRooms upserts the configured rooms and deactivates rooms that are no
// longer listed. Booking history keeps pointing at deactivated rooms.
func (db *DB) SyncRooms(ctx context.Context, rooms []models.Room) error {
	now := time.Now()
	seen := make(map[string]struct{}, len(rooms))

	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rooms {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, name, room_type, capacity, base_rate, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				room_type = excluded.room_type,
				capacity = excluded.capacity,
				base_rate = excluded.base_rate,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			r.ID, r.Name, r.Type, r.Capacity, r.BaseRate, r.IsActive, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync room %s: %w", r.ID, err)
		}
		seen[r.ID] = struct{}{}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM rooms WHERE is_active = 1`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate room %s: %w", id, err)
		}
		db.logger.Info().Str("room_id", id).Msg("Room deactivated, missing from config")
	}

	return tx.Commit()
}
