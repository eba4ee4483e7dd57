// Package rates holds the immutable rate snapshot used for pricing and the
// provider that loads, caches and invalidates it.
package rates

import (
	"time"

	"retreat/internal/models"
)

// Origin tells where a snapshot was loaded from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginSource   Origin = "source"
	OriginFallback Origin = "fallback"
	OriginEmpty    Origin = "empty"
)

type guestKey struct {
	usage  models.UsageType
	age    models.AgeGroup
	key    models.RateKey
	leader bool
}

// Config is a read-only rate snapshot. Lookups never mutate it, so one
// snapshot can serve concurrent quotes.
type Config struct {
	Version  string
	Origin   Origin
	LoadedAt time.Time

	guest   map[guestKey]float64
	rooms   map[string]float64
	addons  map[string]models.AddonRate
	periods []models.SeasonPeriod
	private map[string]struct{}
	records *models.RateRecords
}

// Build indexes records into a snapshot. When several rows match the same
// cell, the one with the latest ValidFrom wins.
func Build(rec *models.RateRecords, origin Origin, loadedAt time.Time) *Config {
	if rec == nil {
		rec = &models.RateRecords{}
	}
	c := &Config{
		Version:  rec.Version,
		Origin:   origin,
		LoadedAt: loadedAt,
		guest:    make(map[guestKey]float64, len(rec.GuestRates)),
		rooms:    make(map[string]float64, len(rec.RoomRates)),
		addons:   make(map[string]models.AddonRate, len(rec.Addons)),
		periods:  append([]models.SeasonPeriod(nil), rec.SeasonPeriods...),
		private:  make(map[string]struct{}, len(rec.PrivateRoomTypes)),
		records:  rec,
	}

	guestFrom := make(map[guestKey]time.Time)
	for _, g := range rec.GuestRates {
		k := guestKey{usage: g.UsageType, age: g.AgeGroup, key: g.RateKey(), leader: g.IsLeader}
		if prev, ok := guestFrom[k]; ok && g.ValidFrom.Before(prev) {
			continue
		}
		guestFrom[k] = g.ValidFrom
		c.guest[k] = g.Price
	}

	roomFrom := make(map[string]time.Time)
	for _, r := range rec.RoomRates {
		if prev, ok := roomFrom[r.RoomType]; ok && r.ValidFrom.Before(prev) {
			continue
		}
		roomFrom[r.RoomType] = r.ValidFrom
		c.rooms[r.RoomType] = r.Price
	}

	for _, a := range rec.Addons {
		if prev, ok := c.addons[a.ID]; ok && a.ValidFrom.Before(prev.ValidFrom) {
			continue
		}
		c.addons[a.ID] = a
	}

	for _, t := range rec.PrivateRoomTypes {
		c.private[t] = struct{}{}
	}
	return c
}

// GuestRate returns the per-person nightly rate. Babies are always free.
func (c *Config) GuestRate(usage models.UsageType, age models.AgeGroup, key models.RateKey) (float64, bool) {
	if age == models.AgeBaby {
		return 0, true
	}
	p, ok := c.guest[guestKey{usage: usage, age: age, key: key}]
	return p, ok
}

// LeaderRate returns the private-stay leader rate.
func (c *Config) LeaderRate(key models.RateKey) (float64, bool) {
	p, ok := c.guest[guestKey{usage: models.UsagePrivate, age: models.AgeAdult, key: key, leader: true}]
	return p, ok
}

// RoomRate returns the nightly price of a room type.
func (c *Config) RoomRate(roomType string) (float64, bool) {
	p, ok := c.rooms[roomType]
	return p, ok
}

// Addon returns an add-on definition by id.
func (c *Config) Addon(id string) (models.AddonRate, bool) {
	a, ok := c.addons[id]
	return a, ok
}

// SeasonPeriods returns the active season periods.
func (c *Config) SeasonPeriods() []models.SeasonPeriod {
	return c.periods
}

// IsPrivateType reports whether a room type is priced on the private table.
func (c *Config) IsPrivateType(roomType string) bool {
	_, ok := c.private[roomType]
	return ok
}

// Records returns the rows the snapshot was built from.
func (c *Config) Records() *models.RateRecords {
	return c.records
}
