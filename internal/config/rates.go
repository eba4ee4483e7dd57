package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"retreat/internal/models"
)

// RoomConfig is a room as declared in the rate file.
type RoomConfig struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Capacity int     `yaml:"capacity"`
	BaseRate float64 `yaml:"base_rate"`
	IsActive bool    `yaml:"is_active"`
}

// AddonConfig declares one add-on and its category-specific prices.
type AddonConfig struct {
	ID               string                      `yaml:"id"`
	Name             string                      `yaml:"name"`
	Category         models.AddonCategory        `yaml:"category"`
	MealPrices       map[models.AgeGroup]float64 `yaml:"meal_prices,omitempty"`
	PersonalFeeTiers []float64                   `yaml:"personal_fee_tiers,omitempty"`
	RoomFee          map[models.DayType]float64  `yaml:"room_fee,omitempty"`
	HourlySurcharge  float64                     `yaml:"hourly_surcharge,omitempty"`
	UnitPrice        float64                     `yaml:"unit_price,omitempty"`
}

// RateFile is the root of rates.yaml: the static rate configuration used to
// seed the store and as fallback when the store is unreachable.
type RateFile struct {
	Version          string                     `yaml:"version"`
	ValidFrom        string                     `yaml:"valid_from"`
	PrivateRoomTypes []string                   `yaml:"private_room_types"`
	Rooms            []RoomConfig               `yaml:"rooms"`
	RoomRates        map[string]float64         `yaml:"room_rates"`
	GuestRates       GuestRateTable             `yaml:"guest_rates"`
	LeaderRates      map[models.RateKey]float64 `yaml:"leader_rates"`
	SeasonPeriods    []models.SeasonPeriod      `yaml:"season_periods"`
	Addons           []AddonConfig              `yaml:"addons"`
}

// GuestRateTable is indexed by usage type, age group and rate key.
type GuestRateTable map[models.UsageType]map[models.AgeGroup]map[models.RateKey]float64

// LoadRateFile loads and validates rates.yaml.
func LoadRateFile(path string) (*RateFile, error) {
	if path == "" {
		path = "configs/rates.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate file: %w", err)
	}
	var rf RateFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rate file: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

func validKey(k models.RateKey) bool {
	_, _, ok := k.Split()
	return ok
}

// Validate checks every row for known enums and sane values.
func (rf *RateFile) Validate() error {
	if rf.ValidFrom != "" {
		if _, err := models.ParseDate(rf.ValidFrom); err != nil {
			return fmt.Errorf("valid_from: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(rf.Rooms))
	for i, r := range rf.Rooms {
		if r.ID == "" {
			return fmt.Errorf("room[%d]: id is required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("room[%d]: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Type == "" {
			return fmt.Errorf("room[%d]: type is required", i)
		}
		if r.Capacity <= 0 {
			return fmt.Errorf("room[%d]: capacity must be positive", i)
		}
		if r.BaseRate < 0 {
			return fmt.Errorf("room[%d]: base_rate must not be negative", i)
		}
	}

	for roomType, price := range rf.RoomRates {
		if price < 0 {
			return fmt.Errorf("room_rates[%s]: price must not be negative", roomType)
		}
	}

	for usage, byAge := range rf.GuestRates {
		if !usage.Valid() {
			return fmt.Errorf("guest_rates: unknown usage type %q", usage)
		}
		for age, byKey := range byAge {
			if !age.Valid() {
				return fmt.Errorf("guest_rates[%s]: unknown age group %q", usage, age)
			}
			for key, price := range byKey {
				if !validKey(key) {
					return fmt.Errorf("guest_rates[%s][%s]: unknown rate key %q", usage, age, key)
				}
				if price < 0 {
					return fmt.Errorf("guest_rates[%s][%s][%s]: price must not be negative", usage, age, key)
				}
			}
		}
	}
	for key := range rf.LeaderRates {
		if !validKey(key) {
			return fmt.Errorf("leader_rates: unknown rate key %q", key)
		}
	}

	for i, p := range rf.SeasonPeriods {
		if !p.Type.Valid() {
			return fmt.Errorf("season_period[%d]: unknown type %q", i, p.Type)
		}
		if err := p.Start.Validate(); err != nil {
			return fmt.Errorf("season_period[%d]: start: %w", i, err)
		}
		if err := p.End.Validate(); err != nil {
			return fmt.Errorf("season_period[%d]: end: %w", i, err)
		}
	}

	ids := make(map[string]struct{}, len(rf.Addons))
	for i, a := range rf.Addons {
		if a.ID == "" {
			return fmt.Errorf("addon[%d]: id is required", i)
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("addon[%d]: duplicate id %q", i, a.ID)
		}
		ids[a.ID] = struct{}{}
		switch a.Category {
		case models.AddonMeal:
			for age := range a.MealPrices {
				if !age.Valid() {
					return fmt.Errorf("addon[%d]: unknown age group %q", i, age)
				}
			}
		case models.AddonFacility:
			if len(a.PersonalFeeTiers) != 3 {
				return fmt.Errorf("addon[%d]: personal_fee_tiers needs 3 values", i)
			}
			for dt := range a.RoomFee {
				if !dt.Valid() {
					return fmt.Errorf("addon[%d]: unknown day type %q", i, dt)
				}
			}
		case models.AddonEquipment:
			if a.UnitPrice < 0 {
				return fmt.Errorf("addon[%d]: unit_price must not be negative", i)
			}
		default:
			return fmt.Errorf("addon[%d]: unknown category %q", i, a.Category)
		}
	}
	return nil
}

// Records flattens the file into rate rows valid from ValidFrom.
func (rf *RateFile) Records() *models.RateRecords {
	var from time.Time
	if rf.ValidFrom != "" {
		from, _ = models.ParseDate(rf.ValidFrom)
	}
	validity := models.Validity{ValidFrom: from}

	rec := &models.RateRecords{
		Version:          rf.Version,
		Origin:           "file",
		PrivateRoomTypes: append([]string(nil), rf.PrivateRoomTypes...),
		SeasonPeriods:    append([]models.SeasonPeriod(nil), rf.SeasonPeriods...),
	}
	for roomType, price := range rf.RoomRates {
		rec.RoomRates = append(rec.RoomRates, models.RoomRate{RoomType: roomType, Price: price, Validity: validity})
	}
	for usage, byAge := range rf.GuestRates {
		for age, byKey := range byAge {
			for key, price := range byKey {
				day, season, _ := key.Split()
				rec.GuestRates = append(rec.GuestRates, models.GuestRate{
					AgeGroup: age, UsageType: usage, DayType: day, SeasonType: season,
					Price: price, Validity: validity,
				})
			}
		}
	}
	for key, price := range rf.LeaderRates {
		day, season, _ := key.Split()
		rec.GuestRates = append(rec.GuestRates, models.GuestRate{
			AgeGroup: models.AgeAdult, UsageType: models.UsagePrivate, DayType: day, SeasonType: season,
			IsLeader: true, Price: price, Validity: validity,
		})
	}
	for _, a := range rf.Addons {
		rate := models.AddonRate{
			ID:         a.ID,
			Category:   a.Category,
			Name:       a.Name,
			MealPrices: a.MealPrices,
			UnitPrice:  a.UnitPrice,
			Validity:   validity,
		}
		if a.Category == models.AddonFacility {
			f := &models.FacilityRate{RoomFee: a.RoomFee, HourlySurcharge: a.HourlySurcharge}
			copy(f.PersonalFeeTiers[:], a.PersonalFeeTiers)
			rate.Facility = f
		}
		rec.Addons = append(rec.Addons, rate)
	}
	return rec
}

// ModelRooms converts the declared rooms.
func (rf *RateFile) ModelRooms() []models.Room {
	out := make([]models.Room, 0, len(rf.Rooms))
	for _, r := range rf.Rooms {
		out = append(out, models.Room{
			ID: r.ID, Name: r.Name, Type: r.Type, Capacity: r.Capacity, BaseRate: r.BaseRate, IsActive: r.IsActive,
		})
	}
	return out
}
