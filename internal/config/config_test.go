package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retreat/internal/models"
)

const sampleRates = `
version: "2025.1"
valid_from: "2025-01-01"
private_room_types: [suite]
rooms:
  - {id: R1, name: Pine, type: dorm, capacity: 10, base_rate: 0, is_active: true}
  - {id: R2, name: Cedar, type: suite, capacity: 2, base_rate: 0, is_active: true}
room_rates:
  dorm: 0
  suite: 5000
guest_rates:
  shared:
    adult: {weekday: 3000, weekend: 3500, peak_weekday: 4000, peak_weekend: 4500}
    child: {weekday: 1500, weekend: 1500, peak_weekday: 2000, peak_weekend: 2000}
  private:
    adult: {weekday: 5000, weekend: 5500, peak_weekday: 6000, peak_weekend: 6500}
leader_rates:
  weekday: 2000
season_periods:
  - {name: summer, type: "on", start: "07-01", end: "08-31", active: true}
addons:
  - id: breakfast
    name: Breakfast
    category: meal
    meal_prices: {adult: 800, child: 400}
  - id: hall
    name: Hall
    category: facility
    personal_fee_tiers: [500, 800, 1000]
    room_fee: {weekday: 2000, weekend: 3000}
    hourly_surcharge: 100
  - id: projector
    name: Projector
    category: equipment
    unit_price: 1500
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RETREAT_REDIS_PASSWORD", "s3cret")

	path := writeFile(t, dir, "config.yaml", `
server:
  port: 9090
database:
  path: `+filepath.Join(dir, "db", "retreat.db")+`
redis:
  address: localhost:6379
  password: ${RETREAT_REDIS_PASSWORD}
calendar:
  weekend: [friday, saturday]
  season_mode: peak_months
  peak_months: [7, 8, 13]
locks:
  ttl_seconds: 300
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort())
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, []string{"friday", "saturday"}, cfg.Calendar.Weekend)
	assert.Equal(t, []time.Month{time.July, time.August}, cfg.PeakMonths())
	assert.Equal(t, 5*time.Minute, cfg.LockTTL())
	assert.Equal(t, 60*time.Second, cfg.LockExpiring())
	assert.Equal(t, 2*time.Minute, cfg.LockProbe())
	assert.Equal(t, "configs/rates.yaml", cfg.Rates.File)
	assert.Equal(t, filepath.Join(dir, "db", "backups"), cfg.Backup.StoragePath)
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "database:\n  path: "+filepath.Join(dir, "x.db")+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort())
	assert.Equal(t, 10*time.Minute, cfg.LockTTL())
	assert.Equal(t, 5*time.Minute, cfg.RateCacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 30*time.Minute, cfg.AttemptTimeout())
	assert.Equal(t, 2.0, cfg.LockProbeRate())
	assert.Equal(t, 5, cfg.LockProbeBurst())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRateFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rates.yaml", sampleRates)

	rf, err := LoadRateFile(path)
	require.NoError(t, err)

	assert.Equal(t, "2025.1", rf.Version)
	assert.Len(t, rf.ModelRooms(), 2)

	rec := rf.Records()
	assert.Equal(t, "2025.1", rec.Version)
	assert.Equal(t, []string{"suite"}, rec.PrivateRoomTypes)
	// 4 shared adult + 4 shared child + 4 private adult + 1 leader
	assert.Len(t, rec.GuestRates, 13)
	assert.Len(t, rec.RoomRates, 2)
	assert.Len(t, rec.Addons, 3)
	require.Len(t, rec.SeasonPeriods, 1)
	assert.True(t, rec.SeasonPeriods[0].IsActive)

	var leader *models.GuestRate
	for i := range rec.GuestRates {
		if rec.GuestRates[i].IsLeader {
			leader = &rec.GuestRates[i]
		}
	}
	require.NotNil(t, leader)
	assert.Equal(t, models.UsagePrivate, leader.UsageType)
	assert.Equal(t, models.RateKey("weekday"), leader.RateKey())
	assert.Equal(t, 2000.0, leader.Price)

	for _, a := range rec.Addons {
		if a.ID == "hall" {
			require.NotNil(t, a.Facility)
			assert.Equal(t, [3]float64{500, 800, 1000}, a.Facility.PersonalFeeTiers)
			assert.Equal(t, 3000.0, a.Facility.RoomFee[models.Weekend])
		}
	}

	start, _ := models.ParseDate("2025-01-01")
	assert.Equal(t, start, rec.GuestRates[0].ValidFrom)
}

func TestRateFileValidate(t *testing.T) {
	tests := []struct {
		name    string
		rf      RateFile
		wantErr string
	}{
		{
			name: "unknown usage",
			rf: RateFile{GuestRates: GuestRateTable{
				"vip": {models.AgeAdult: {"weekday": 1}},
			}},
			wantErr: "unknown usage type",
		},
		{
			name: "unknown rate key",
			rf: RateFile{GuestRates: GuestRateTable{
				models.UsageShared: {models.AgeAdult: {"holiday": 1}},
			}},
			wantErr: "unknown rate key",
		},
		{
			name: "negative price",
			rf: RateFile{GuestRates: GuestRateTable{
				models.UsageShared: {models.AgeAdult: {"weekday": -1}},
			}},
			wantErr: "must not be negative",
		},
		{
			name:    "duplicate room",
			rf:      RateFile{Rooms: []RoomConfig{{ID: "R1", Type: "dorm", Capacity: 1}, {ID: "R1", Type: "dorm", Capacity: 1}}},
			wantErr: "duplicate id",
		},
		{
			name:    "zero capacity",
			rf:      RateFile{Rooms: []RoomConfig{{ID: "R1", Type: "dorm"}}},
			wantErr: "capacity must be positive",
		},
		{
			name:    "bad season date",
			rf:      RateFile{SeasonPeriods: []models.SeasonPeriod{{Type: models.PeakSeason, Start: "13-01", End: "12-31"}}},
			wantErr: "invalid month-day",
		},
		{
			name:    "facility tiers",
			rf:      RateFile{Addons: []AddonConfig{{ID: "hall", Category: models.AddonFacility, PersonalFeeTiers: []float64{1}}}},
			wantErr: "personal_fee_tiers",
		},
		{
			name:    "unknown category",
			rf:      RateFile{Addons: []AddonConfig{{ID: "spa", Category: "spa"}}},
			wantErr: "unknown category",
		},
		{
			name: "valid",
			rf:   RateFile{Rooms: []RoomConfig{{ID: "R1", Type: "dorm", Capacity: 4}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rf.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatchRates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rates.yaml", sampleRates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var versions []string
	var failures int
	err := WatchRates(ctx, path, 10*time.Millisecond,
		func(rf *RateFile) {
			mu.Lock()
			versions = append(versions, rf.Version)
			mu.Unlock()
		},
		func(error) {
			mu.Lock()
			failures++
			mu.Unlock()
		})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"2025.1"}, versions)
	mu.Unlock()

	updated := []byte(`version: "2025.2"` + "\n")
	require.NoError(t, os.WriteFile(path, updated, 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(versions) >= 2 && versions[len(versions)-1] == "2025.2"
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("guest_rates:\n  vip: {}\n"), 0o644))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failures >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestWatchRatesInitialError(t *testing.T) {
	err := WatchRates(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), time.Second, nil, nil)
	assert.Error(t, err)
}
