package rates

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retreat/internal/models"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func sampleRecords() *models.RateRecords {
	return &models.RateRecords{
		Version: "v1",
		GuestRates: []models.GuestRate{
			{AgeGroup: models.AgeAdult, UsageType: models.UsageShared, DayType: models.Weekday, SeasonType: models.OffSeason, Price: 4800},
			{AgeGroup: models.AgeAdult, UsageType: models.UsageShared, DayType: models.Weekday, SeasonType: models.OffSeason, Price: 5000,
				Validity: models.Validity{ValidFrom: day(2025, 1, 1)}},
			{AgeGroup: models.AgeAdult, UsageType: models.UsagePrivate, DayType: models.Weekend, SeasonType: models.PeakSeason, IsLeader: true, Price: 3000},
			{AgeGroup: models.AgeBaby, UsageType: models.UsageShared, DayType: models.Weekday, SeasonType: models.OffSeason, Price: 999},
		},
		RoomRates:        []models.RoomRate{{RoomType: "large", Price: 20000}},
		Addons:           []models.AddonRate{{ID: "bbq", Category: models.AddonEquipment, UnitPrice: 3000}},
		PrivateRoomTypes: []string{"small"},
	}
}

func TestBuild_Lookups(t *testing.T) {
	cfg := Build(sampleRecords(), OriginSource, time.Now())

	p, ok := cfg.GuestRate(models.UsageShared, models.AgeAdult, models.RateWeekday)
	require.True(t, ok)
	assert.Equal(t, 5000.0, p, "latest valid_from wins")

	p, ok = cfg.GuestRate(models.UsageShared, models.AgeBaby, models.RateWeekday)
	assert.True(t, ok)
	assert.Zero(t, p)

	_, ok = cfg.GuestRate(models.UsagePrivate, models.AgeChild, models.RateWeekday)
	assert.False(t, ok)

	p, ok = cfg.LeaderRate(models.RatePeakWeekend)
	require.True(t, ok)
	assert.Equal(t, 3000.0, p)

	p, ok = cfg.RoomRate("large")
	assert.True(t, ok)
	assert.Equal(t, 20000.0, p)

	_, ok = cfg.Addon("bbq")
	assert.True(t, ok)
	assert.True(t, cfg.IsPrivateType("small"))
	assert.False(t, cfg.IsPrivateType("large"))
}

func TestBuild_NilRecords(t *testing.T) {
	cfg := Build(nil, OriginEmpty, time.Now())
	_, ok := cfg.RoomRate("large")
	assert.False(t, ok)
	assert.Equal(t, OriginEmpty, cfg.Origin)
}

type fakeSource struct {
	rec   *models.RateRecords
	err   error
	calls int
}

func (f *fakeSource) LoadRates(context.Context, time.Time) (*models.RateRecords, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func TestProvider_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rec: sampleRecords()}
	p := NewProvider(src, NewMemoryCache(time.Minute), testLogger())

	first := p.Current(ctx)
	assert.Equal(t, OriginSource, first.Origin)
	second := p.Current(ctx)
	assert.Equal(t, OriginCache, second.Origin)
	assert.Equal(t, 1, src.calls)

	p.Invalidate(ctx)
	p.Current(ctx)
	assert.Equal(t, 2, src.calls)
}

func TestProvider_DegradesOnSourceError(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: errors.New("db down")}
	p := NewProvider(src, nil, testLogger())

	cfg := p.Current(ctx)
	assert.Equal(t, OriginEmpty, cfg.Origin)

	src.err = nil
	src.rec = sampleRecords()
	assert.Equal(t, OriginSource, p.Current(ctx).Origin)

	src.err = errors.New("db down again")
	cfg = p.Current(ctx)
	assert.Equal(t, OriginFallback, cfg.Origin)
	assert.Equal(t, "v1", cfg.Version)
}

func TestProvider_DoesNotCacheStaticFallback(t *testing.T) {
	ctx := context.Background()
	rec := sampleRecords()
	rec.Origin = string(OriginFallback)
	src := &fakeSource{rec: rec}
	p := NewProvider(src, NewMemoryCache(time.Minute), testLogger())

	assert.Equal(t, OriginFallback, p.Current(ctx).Origin)
	assert.Equal(t, OriginFallback, p.Current(ctx).Origin)
	assert.Equal(t, 2, src.calls)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client, "test:", time.Minute, testLogger())

	_, ok := c.Get(ctx)
	assert.False(t, ok)

	c.Set(ctx, sampleRecords())
	rec, ok := c.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "v1", rec.Version)
	assert.Len(t, rec.GuestRates, 4)
	assert.True(t, mr.Exists("test:rates:active"))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx)
	assert.False(t, ok)

	c.Set(ctx, sampleRecords())
	c.Invalidate(ctx)
	_, ok = c.Get(ctx)
	assert.False(t, ok)
}

func TestStaticSource_FiltersByValidity(t *testing.T) {
	rec := sampleRecords()
	to := day(2025, 6, 1)
	rec.RoomRates = append(rec.RoomRates, models.RoomRate{RoomType: "small", Price: 8000,
		Validity: models.Validity{ValidFrom: day(2025, 1, 1), ValidTo: &to}})

	s := NewStaticSource(rec)
	got, err := s.LoadRates(context.Background(), day(2025, 7, 1))
	require.NoError(t, err)
	assert.Len(t, got.RoomRates, 1)

	got, err = s.LoadRates(context.Background(), day(2024, 7, 1))
	require.NoError(t, err)
	assert.Len(t, got.GuestRates, 3, "rows starting in 2025 are not yet valid")

	s.Replace(&models.RateRecords{Version: "v2"})
	got, _ = s.LoadRates(context.Background(), day(2025, 7, 1))
	assert.Equal(t, "v2", got.Version)
}
