package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retreat/internal/events"
	"retreat/internal/models"
)

// addonPricing is the JSON stored in addon_rates.pricing.
type addonPricing struct {
	MealPrices map[models.AgeGroup]float64 `json:"meal_prices,omitempty"`
	Facility   *models.FacilityRate        `json:"facility,omitempty"`
	UnitPrice  float64                     `json:"unit_price,omitempty"`
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const activeAt = `valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)`

// LoadRates returns the rate rows valid on asOf and the active season
// periods.
func (db *DB) LoadRates(ctx context.Context, asOf time.Time) (*models.RateRecords, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	day := fmtDate(models.DateOnly(asOf))
	rec := &models.RateRecords{Origin: "sqlite"}

	err = tx.QueryRowContext(ctx, `SELECT value FROM rate_meta WHERE key = 'version'`).Scan(&rec.Version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load rate version: %w", err)
	}

	if err := loadGuestRates(ctx, tx, day, rec); err != nil {
		return nil, err
	}
	if err := loadRoomRates(ctx, tx, day, rec); err != nil {
		return nil, err
	}
	if err := loadAddonRates(ctx, tx, day, rec); err != nil {
		return nil, err
	}
	if err := loadSeasonPeriods(ctx, tx, rec); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT room_type FROM room_types WHERE usage_type = ? ORDER BY room_type`, string(models.UsagePrivate))
	if err != nil {
		return nil, fmt.Errorf("query room types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rt string
		if err := rows.Scan(&rt); err != nil {
			return nil, err
		}
		rec.PrivateRoomTypes = append(rec.PrivateRoomTypes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rec, tx.Commit()
}

func scanValidity(from string, to sql.NullString) (models.Validity, error) {
	var v models.Validity
	var err error
	if v.ValidFrom, err = parseDate(from); err != nil {
		return v, err
	}
	v.ValidTo, err = scanNullDate(to)
	return v, err
}

func loadGuestRates(ctx context.Context, tx *sql.Tx, day string, rec *models.RateRecords) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT age_group, usage_type, day_type, season_type, is_leader, price, valid_from, valid_to
		FROM guest_rates WHERE `+activeAt+` ORDER BY valid_from`, day, day)
	if err != nil {
		return fmt.Errorf("query guest rates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r                                 models.GuestRate
			age, usage, dayType, season, from string
			to                                sql.NullString
		)
		if err := rows.Scan(&age, &usage, &dayType, &season, &r.IsLeader, &r.Price, &from, &to); err != nil {
			return err
		}
		r.AgeGroup = models.AgeGroup(age)
		r.UsageType = models.UsageType(usage)
		r.DayType = models.DayType(dayType)
		r.SeasonType = models.SeasonType(season)
		if r.Validity, err = scanValidity(from, to); err != nil {
			return fmt.Errorf("guest rate validity: %w", err)
		}
		rec.GuestRates = append(rec.GuestRates, r)
	}
	return rows.Err()
}

func loadRoomRates(ctx context.Context, tx *sql.Tx, day string, rec *models.RateRecords) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT room_type, price, valid_from, valid_to
		FROM room_rates WHERE `+activeAt+` ORDER BY valid_from`, day, day)
	if err != nil {
		return fmt.Errorf("query room rates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r    models.RoomRate
			from string
			to   sql.NullString
		)
		if err := rows.Scan(&r.RoomType, &r.Price, &from, &to); err != nil {
			return err
		}
		if r.Validity, err = scanValidity(from, to); err != nil {
			return fmt.Errorf("room rate validity: %w", err)
		}
		rec.RoomRates = append(rec.RoomRates, r)
	}
	return rows.Err()
}

func loadAddonRates(ctx context.Context, tx *sql.Tx, day string, rec *models.RateRecords) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT addon_id, category, name, pricing, valid_from, valid_to
		FROM addon_rates WHERE `+activeAt+` ORDER BY valid_from`, day, day)
	if err != nil {
		return fmt.Errorf("query addon rates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a                 models.AddonRate
			category, pricing string
			from              string
			to                sql.NullString
			p                 addonPricing
		)
		if err := rows.Scan(&a.ID, &category, &a.Name, &pricing, &from, &to); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(pricing), &p); err != nil {
			return fmt.Errorf("addon %s pricing: %w", a.ID, err)
		}
		a.Category = models.AddonCategory(category)
		a.MealPrices = p.MealPrices
		a.Facility = p.Facility
		a.UnitPrice = p.UnitPrice
		if a.Validity, err = scanValidity(from, to); err != nil {
			return fmt.Errorf("addon validity: %w", err)
		}
		rec.Addons = append(rec.Addons, a)
	}
	return rows.Err()
}

func loadSeasonPeriods(ctx context.Context, tx *sql.Tx, rec *models.RateRecords) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT name, season_type, start_md, end_md, is_active
		FROM season_periods WHERE is_active = 1 ORDER BY start_md, name`)
	if err != nil {
		return fmt.Errorf("query season periods: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p                  models.SeasonPeriod
			season, start, end string
		)
		if err := rows.Scan(&p.Name, &season, &start, &end, &p.IsActive); err != nil {
			return err
		}
		p.Type = models.SeasonType(season)
		p.Start = models.MonthDay(start)
		p.End = models.MonthDay(end)
		rec.SeasonPeriods = append(rec.SeasonPeriods, p)
	}
	return rows.Err()
}

func upsertGuestRate(ctx context.Context, ex execer, r models.GuestRate) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO guest_rates (age_group, usage_type, day_type, season_type, is_leader, price, valid_from, valid_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(age_group, usage_type, day_type, season_type, is_leader, valid_from) DO UPDATE SET
			price = excluded.price,
			valid_to = excluded.valid_to`,
		string(r.AgeGroup), string(r.UsageType), string(r.DayType), string(r.SeasonType), r.IsLeader,
		r.Price, fmtDate(r.ValidFrom), nullDate(r.ValidTo),
	)
	return err
}

func upsertRoomRate(ctx context.Context, ex execer, r models.RoomRate) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO room_rates (room_type, price, valid_from, valid_to)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_type, valid_from) DO UPDATE SET
			price = excluded.price,
			valid_to = excluded.valid_to`,
		r.RoomType, r.Price, fmtDate(r.ValidFrom), nullDate(r.ValidTo),
	)
	return err
}

func upsertAddonRate(ctx context.Context, ex execer, a models.AddonRate) error {
	pricing, err := json.Marshal(addonPricing{MealPrices: a.MealPrices, Facility: a.Facility, UnitPrice: a.UnitPrice})
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO addon_rates (addon_id, category, name, pricing, valid_from, valid_to)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(addon_id, valid_from) DO UPDATE SET
			category = excluded.category,
			name = excluded.name,
			pricing = excluded.pricing,
			valid_to = excluded.valid_to`,
		a.ID, string(a.Category), a.Name, string(pricing), fmtDate(a.ValidFrom), nullDate(a.ValidTo),
	)
	return err
}

func upsertSeasonPeriod(ctx context.Context, ex execer, p models.SeasonPeriod) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO season_periods (name, season_type, start_md, end_md, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			season_type = excluded.season_type,
			start_md = excluded.start_md,
			end_md = excluded.end_md,
			is_active = excluded.is_active`,
		p.Name, string(p.Type), string(p.Start), string(p.End), p.IsActive,
	)
	return err
}

func (db *DB) ratesChanged(what string) {
	if db.publisher == nil {
		return
	}
	if err := db.publisher.PublishJSON(events.RatesUpdated, map[string]string{"table": what}); err != nil {
		db.logger.Error().Err(err).Str("table", what).Msg("Failed to publish rates update")
	}
}

// UpsertGuestRate inserts or updates one guest rate row keyed by its
// matrix cell and valid_from.
func (db *DB) UpsertGuestRate(ctx context.Context, r models.GuestRate) error {
	if err := upsertGuestRate(ctx, db.writer, r); err != nil {
		return fmt.Errorf("upsert guest rate: %w", err)
	}
	db.ratesChanged("guest_rates")
	return nil
}

func (db *DB) UpsertRoomRate(ctx context.Context, r models.RoomRate) error {
	if err := upsertRoomRate(ctx, db.writer, r); err != nil {
		return fmt.Errorf("upsert room rate: %w", err)
	}
	db.ratesChanged("room_rates")
	return nil
}

func (db *DB) UpsertAddonRate(ctx context.Context, a models.AddonRate) error {
	if err := upsertAddonRate(ctx, db.writer, a); err != nil {
		return fmt.Errorf("upsert addon rate: %w", err)
	}
	db.ratesChanged("addon_rates")
	return nil
}

func (db *DB) UpsertSeasonPeriod(ctx context.Context, p models.SeasonPeriod) error {
	if err := upsertSeasonPeriod(ctx, db.writer, p); err != nil {
		return fmt.Errorf("upsert season period: %w", err)
	}
	db.ratesChanged("season_periods")
	return nil
}

// SeedRates replaces every rate table with rec in one transaction.
func (db *DB) SeedRates(ctx context.Context, rec *models.RateRecords) error {
	if rec == nil {
		return errors.New("rate records are nil")
	}
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"guest_rates", "room_rates", "addon_rates", "season_periods", "room_types"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, r := range rec.GuestRates {
		if err := upsertGuestRate(ctx, tx, r); err != nil {
			return fmt.Errorf("seed guest rate: %w", err)
		}
	}
	for _, r := range rec.RoomRates {
		if err := upsertRoomRate(ctx, tx, r); err != nil {
			return fmt.Errorf("seed room rate: %w", err)
		}
	}
	for _, a := range rec.Addons {
		if err := upsertAddonRate(ctx, tx, a); err != nil {
			return fmt.Errorf("seed addon %s: %w", a.ID, err)
		}
	}
	for _, p := range rec.SeasonPeriods {
		if err := upsertSeasonPeriod(ctx, tx, p); err != nil {
			return fmt.Errorf("seed season period %s: %w", p.Name, err)
		}
	}
	for _, rt := range rec.PrivateRoomTypes {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO room_types (room_type, usage_type) VALUES (?, ?)`,
			rt, string(models.UsagePrivate)); err != nil {
			return fmt.Errorf("seed room type %s: %w", rt, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO rate_meta (key, value) VALUES ('version', ?)`, rec.Version); err != nil {
		return fmt.Errorf("seed rate version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.logger.Info().Str("version", rec.Version).Int("guest_rates", len(rec.GuestRates)).Msg("Rates seeded")
	db.ratesChanged("all")
	return nil
}
