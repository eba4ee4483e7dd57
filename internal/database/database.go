package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"retreat/internal/events"
	"retreat/internal/models"
)

// DB is the SQLite store for rooms, bookings and rate rows. The embedded
// pool serves reads with deferred transactions; writes go through writer,
// whose transactions take the database lock at BEGIN.
type DB struct {
	*sql.DB
	writer    *sql.DB
	logger    *zerolog.Logger
	publisher events.Publisher
}

var (
	ErrNotAvailable           = errors.New("not available")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrRoomNotFound           = errors.New("room not found")
)

const baseDSN = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

func openPool(dsn string, maxOpen int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxOpen)
	pool.SetConnMaxLifetime(time.Hour)
	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// NewDB opens the database at path and creates missing tables. Overlap
// re-checks inside CommitBooking are serialized by the single immediate
// writer connection; readers see WAL snapshots and never wait for it.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	writer, err := openPool(path+baseDSN+"&_txlock=immediate", 1)
	if err != nil {
		return nil, err
	}
	reader, err := openPool(path+baseDSN, 10)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}

	instance := &DB{DB: reader, writer: writer, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = instance.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Close closes both pools.
func (db *DB) Close() error {
	return errors.Join(db.DB.Close(), db.writer.Close())
}

// SetPublisher enables rates.updated notifications on rate writes.
func (db *DB) SetPublisher(p events.Publisher) {
	db.publisher = p
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			room_type TEXT NOT NULL,
			capacity INTEGER NOT NULL,
			base_rate REAL NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// Dates are stored as YYYY-MM-DD so they compare as text.
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			guests TEXT NOT NULL,
			addons TEXT,
			status TEXT NOT NULL DEFAULT 'confirmed',
			total_amount INTEGER NOT NULL DEFAULT 0,
			rate_version TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS booking_rooms (
			booking_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			room_type TEXT,
			usage_type TEXT,
			rate REAL NOT NULL DEFAULT 0,
			assigned_guests INTEGER NOT NULL DEFAULT 0,
			capacity INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (booking_id, room_id),
			FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE,
			FOREIGN KEY (room_id) REFERENCES rooms(id)
		)`,
		`CREATE TABLE IF NOT EXISTS guest_rates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			age_group TEXT NOT NULL,
			usage_type TEXT NOT NULL,
			day_type TEXT NOT NULL,
			season_type TEXT NOT NULL,
			is_leader BOOLEAN NOT NULL DEFAULT 0,
			price REAL NOT NULL,
			valid_from TEXT NOT NULL,
			valid_to TEXT,
			UNIQUE (age_group, usage_type, day_type, season_type, is_leader, valid_from)
		)`,
		`CREATE TABLE IF NOT EXISTS room_rates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_type TEXT NOT NULL,
			price REAL NOT NULL,
			valid_from TEXT NOT NULL,
			valid_to TEXT,
			UNIQUE (room_type, valid_from)
		)`,
		`CREATE TABLE IF NOT EXISTS addon_rates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			addon_id TEXT NOT NULL,
			category TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			pricing TEXT NOT NULL,
			valid_from TEXT NOT NULL,
			valid_to TEXT,
			UNIQUE (addon_id, valid_from)
		)`,
		`CREATE TABLE IF NOT EXISTS season_periods (
			name TEXT PRIMARY KEY,
			season_type TEXT NOT NULL,
			start_md TEXT NOT NULL,
			end_md TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS room_types (
			room_type TEXT PRIMARY KEY,
			usage_type TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rate_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_dates ON bookings(start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_rooms_room ON booking_rooms(room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_guest_rates_validity ON guest_rates(valid_from, valid_to)`,
	}

	for _, q := range queries {
		if _, err := db.writer.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// zeroDate stands in for an open-ended valid_from.
const zeroDate = "0001-01-01"

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return zeroDate
	}
	return t.Format(models.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == zeroDate || s == "" {
		return time.Time{}, nil
	}
	return models.ParseDate(s)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(models.DateLayout), Valid: true}
}

func scanNullDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := models.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
