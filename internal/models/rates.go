package models

import "time"

// Validity bounds a rate row. ValidTo is exclusive; nil means open-ended.
type Validity struct {
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

// ActiveAt reports whether the row applies on t.
func (v Validity) ActiveAt(t time.Time) bool {
	if !v.ValidFrom.IsZero() && t.Before(v.ValidFrom) {
		return false
	}
	return v.ValidTo == nil || t.Before(*v.ValidTo)
}

// GuestRate is one cell of the guest rate matrix.
type GuestRate struct {
	AgeGroup   AgeGroup   `json:"age_group"`
	UsageType  UsageType  `json:"usage_type"`
	DayType    DayType    `json:"day_type"`
	SeasonType SeasonType `json:"season_type"`
	IsLeader   bool       `json:"is_leader"`
	Price      float64    `json:"price"`
	Validity
}

// RateKey returns the matrix column for the row.
func (r GuestRate) RateKey() RateKey {
	return RateKeyFor(r.DayType, r.SeasonType)
}

// RoomRate is the nightly price of a room type.
type RoomRate struct {
	RoomType string  `json:"room_type"`
	Price    float64 `json:"price"`
	Validity
}

// RateRecords is a flat, serializable set of rate rows.
type RateRecords struct {
	Version          string         `json:"version"`
	Origin           string         `json:"origin"`
	GuestRates       []GuestRate    `json:"guest_rates"`
	RoomRates        []RoomRate     `json:"room_rates"`
	Addons           []AddonRate    `json:"addons"`
	SeasonPeriods    []SeasonPeriod `json:"season_periods"`
	PrivateRoomTypes []string       `json:"private_room_types"`
}

// ActiveAt keeps only rows valid on asOf and active season periods.
func (r *RateRecords) ActiveAt(asOf time.Time) *RateRecords {
	out := &RateRecords{
		Version:          r.Version,
		Origin:           r.Origin,
		PrivateRoomTypes: append([]string(nil), r.PrivateRoomTypes...),
	}
	for _, g := range r.GuestRates {
		if g.ActiveAt(asOf) {
			out.GuestRates = append(out.GuestRates, g)
		}
	}
	for _, rr := range r.RoomRates {
		if rr.ActiveAt(asOf) {
			out.RoomRates = append(out.RoomRates, rr)
		}
	}
	for _, a := range r.Addons {
		if a.ActiveAt(asOf) {
			out.Addons = append(out.Addons, a)
		}
	}
	for _, p := range r.SeasonPeriods {
		if p.IsActive {
			out.SeasonPeriods = append(out.SeasonPeriods, p)
		}
	}
	return out
}
