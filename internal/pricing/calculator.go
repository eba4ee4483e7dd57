// Package pricing computes stay prices from a rate snapshot.
package pricing

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"retreat/internal/calendar"
	"retreat/internal/metrics"
	"retreat/internal/models"
	"retreat/internal/rates"
)

// DailyPrice is the price of one night.
type DailyPrice struct {
	Date        time.Time         `json:"date"`
	DayType     models.DayType    `json:"day_type"`
	SeasonType  models.SeasonType `json:"season_type"`
	RateKey     models.RateKey    `json:"rate_key"`
	RoomAmount  int64             `json:"room_amount"`
	GuestAmount int64             `json:"guest_amount"`
	AddonAmount int64             `json:"addon_amount"`
	Total       int64             `json:"total"`
}

// Breakdown is a full price quote.
type Breakdown struct {
	RoomAmount  int64            `json:"room_amount"`
	GuestAmount int64            `json:"guest_amount"`
	AddonAmount int64            `json:"addon_amount"`
	Subtotal    int64            `json:"subtotal"`
	Total       int64            `json:"total"`
	Nights      int              `json:"nights"`
	UsageType   models.UsageType `json:"usage_type"`
	RateVersion string           `json:"rate_version"`
	RateOrigin  rates.Origin     `json:"rate_origin"`
	Daily       []DailyPrice     `json:"daily"`
}

// Request is the input of a quote.
type Request struct {
	Rooms  []models.RoomUsage
	Guests models.GuestCount
	Stay   models.Stay
	Addons []models.AddonItem
}

// Calculator prices stays. It is stateless apart from calendar settings.
type Calculator struct {
	weekend    []time.Weekday
	seasonMode string
	peakMonths []time.Month
	logger     *zerolog.Logger
}

func NewCalculator(weekend []time.Weekday, seasonMode string, peakMonths []time.Month, logger *zerolog.Logger) *Calculator {
	return &Calculator{weekend: weekend, seasonMode: seasonMode, peakMonths: peakMonths, logger: logger}
}

type nightRaw struct {
	room, guest, addon float64
}

// ComputePrice prices every night, then the add-ons, then aggregates.
// Amounts round half away from zero at each night and at each total.
func (c *Calculator) ComputePrice(req Request, cfg *rates.Config) (*Breakdown, error) {
	if !req.Stay.Valid() {
		return nil, models.ErrInvalidStay
	}
	policy, err := calendar.NewSeasonPolicy(c.seasonMode, cfg.SeasonPeriods(), c.peakMonths)
	if err != nil {
		return nil, err
	}
	classifier := calendar.NewClassifier(c.weekend, policy)

	usage := c.stayUsage(req.Rooms, cfg)
	nights := req.Stay.NightDates()
	raw := make([]nightRaw, len(nights))
	out := &Breakdown{
		Nights:      len(nights),
		UsageType:   usage,
		RateVersion: cfg.Version,
		RateOrigin:  cfg.Origin,
		Daily:       make([]DailyPrice, len(nights)),
	}

	for i, date := range nights {
		key := classifier.RateKey(date)
		raw[i].room = c.roomNight(req.Rooms, cfg)
		raw[i].guest = c.guestNight(req.Guests, usage, key, cfg)
		out.Daily[i] = DailyPrice{
			Date:       date,
			DayType:    classifier.DayType(date),
			SeasonType: classifier.SeasonType(date),
			RateKey:    key,
		}
	}

	for _, item := range req.Addons {
		c.addAddon(item, req, nights, classifier, cfg, raw)
	}

	var roomSum, guestSum, addonSum float64
	for i := range nights {
		r := raw[i]
		out.Daily[i].RoomAmount = round(r.room)
		out.Daily[i].GuestAmount = round(r.guest)
		out.Daily[i].AddonAmount = round(r.addon)
		out.Daily[i].Total = round(r.room + r.guest + r.addon)
		roomSum += r.room
		guestSum += r.guest
		addonSum += r.addon
	}

	out.RoomAmount = round(roomSum)
	out.GuestAmount = round(guestSum)
	out.AddonAmount = round(addonSum)
	out.Subtotal = round(roomSum + guestSum)
	out.Total = round(roomSum + guestSum + addonSum)

	metrics.IncPriceQuote()
	return out, nil
}

func (c *Calculator) stayUsage(rooms []models.RoomUsage, cfg *rates.Config) models.UsageType {
	for _, r := range rooms {
		if r.UsageType == models.UsagePrivate || cfg.IsPrivateType(r.RoomType) {
			return models.UsagePrivate
		}
	}
	return models.UsageShared
}

// roomNight prefers the configured type rate, then the room's own rate.
func (c *Calculator) roomNight(rooms []models.RoomUsage, cfg *rates.Config) float64 {
	var sum float64
	for _, r := range rooms {
		if p, ok := cfg.RoomRate(r.RoomType); ok {
			sum += p
			continue
		}
		if r.Rate > 0 {
			sum += r.Rate
			continue
		}
		c.logger.Debug().Str("room_id", r.RoomID).Str("room_type", r.RoomType).Msg("no room rate, priced at zero")
	}
	return sum
}

func (c *Calculator) guestNight(g models.GuestCount, usage models.UsageType, key models.RateKey, cfg *rates.Config) float64 {
	var sum float64
	leaders := 0
	if usage == models.UsagePrivate && g.Leader > 0 {
		leaders = min(g.Leader, g.Adult)
	}
	for _, age := range models.AgeGroups {
		count := g.Count(age)
		if age == models.AgeAdult {
			count -= leaders
		}
		if count <= 0 {
			continue
		}
		p, ok := cfg.GuestRate(usage, age, key)
		if !ok {
			c.logger.Debug().Str("age_group", string(age)).Str("rate_key", string(key)).Msg("no guest rate, priced at zero")
			continue
		}
		sum += p * float64(count)
	}
	if leaders > 0 {
		p, ok := cfg.LeaderRate(key)
		if !ok {
			c.logger.Debug().Str("rate_key", string(key)).Msg("no leader rate, priced at zero")
		}
		sum += p * float64(leaders)
	}
	return sum
}

func (c *Calculator) addAddon(item models.AddonItem, req Request, nights []time.Time, cl *calendar.Classifier, cfg *rates.Config, raw []nightRaw) {
	rate, ok := cfg.Addon(item.AddonID)
	if !ok {
		c.logger.Debug().Str("addon_id", item.AddonID).Msg("unknown add-on, priced at zero")
		return
	}

	switch rate.Category {
	case models.AddonMeal:
		guests := req.Guests
		if item.Guests != nil {
			guests = *item.Guests
		}
		per := mealNight(rate, guests) * float64(max(item.Quantity, 1))
		for i := range raw {
			raw[i].addon += per
		}
	case models.AddonFacility:
		if rate.Facility == nil {
			return
		}
		i, ok := facilityNight(item.Date, nights)
		if !ok {
			c.logger.Warn().Str("addon_id", item.AddonID).Time("date", item.Date).Msg("facility date outside stay, billing first night")
		}
		f := rate.Facility
		fee := f.PersonalFee(item.Hours) * float64(req.Guests.Total())
		fee += f.RoomFee[cl.DayType(nights[i])] * item.Hours
		fee += f.HourlySurcharge * item.Hours
		raw[i].addon += fee
	case models.AddonEquipment:
		per := rate.UnitPrice * float64(item.Quantity)
		for i := range raw {
			raw[i].addon += per
		}
	default:
		c.logger.Debug().Str("addon_id", item.AddonID).Str("category", string(rate.Category)).Msg("unknown add-on category")
	}
}

func mealNight(rate models.AddonRate, guests models.GuestCount) float64 {
	var sum float64
	for _, age := range models.AgeGroups {
		if age == models.AgeBaby {
			continue
		}
		sum += rate.MealPrices[age] * float64(guests.Count(age))
	}
	return sum
}

// facilityNight returns the index of the night the facility is used on,
// defaulting to the first night. ok is false when date is set but falls
// outside nights.
func facilityNight(date time.Time, nights []time.Time) (int, bool) {
	if date.IsZero() {
		return 0, true
	}
	d := models.DateOnly(date)
	for i, n := range nights {
		if n.Equal(d) {
			return i, true
		}
	}
	return 0, false
}

func round(v float64) int64 {
	return int64(math.Round(v))
}
