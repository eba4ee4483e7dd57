package models

import (
	"fmt"
	"regexp"
	"time"
)

// DayType splits nights into weekday and weekend pricing.
type DayType string

const (
	Weekday DayType = "weekday"
	Weekend DayType = "weekend"
)

func (d DayType) Valid() bool {
	return d == Weekday || d == Weekend
}

// SeasonType marks nights as off-peak or peak.
type SeasonType string

const (
	OffSeason  SeasonType = "off"
	PeakSeason SeasonType = "on"
)

func (s SeasonType) Valid() bool {
	return s == OffSeason || s == PeakSeason
}

// RateKey selects a column in the guest rate matrix.
type RateKey string

const (
	RateWeekday     RateKey = "weekday"
	RateWeekend     RateKey = "weekend"
	RatePeakWeekday RateKey = "peak_weekday"
	RatePeakWeekend RateKey = "peak_weekend"
)

// RateKeys lists every key in matrix order.
var RateKeys = []RateKey{RateWeekday, RateWeekend, RatePeakWeekday, RatePeakWeekend}

// RateKeyFor combines the day and season of a night.
func RateKeyFor(day DayType, season SeasonType) RateKey {
	switch {
	case season == PeakSeason && day == Weekend:
		return RatePeakWeekend
	case season == PeakSeason:
		return RatePeakWeekday
	case day == Weekend:
		return RateWeekend
	default:
		return RateWeekday
	}
}

// Split is the inverse of RateKeyFor.
func (k RateKey) Split() (DayType, SeasonType, bool) {
	switch k {
	case RateWeekday:
		return Weekday, OffSeason, true
	case RateWeekend:
		return Weekend, OffSeason, true
	case RatePeakWeekday:
		return Weekday, PeakSeason, true
	case RatePeakWeekend:
		return Weekend, PeakSeason, true
	}
	return "", "", false
}

var monthDayRe = regexp.MustCompile(`^(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`)

// MonthDay is a year-less date in MM-DD form. Values compare
// lexicographically in calendar order.
type MonthDay string

// MonthDayOf formats date as MM-DD.
func MonthDayOf(date time.Time) MonthDay {
	return MonthDay(date.Format("01-02"))
}

func (m MonthDay) Validate() error {
	if !monthDayRe.MatchString(string(m)) {
		return fmt.Errorf("invalid month-day %q; expected MM-DD", string(m))
	}
	return nil
}

// SeasonPeriod is a named, yearly recurring date range.
type SeasonPeriod struct {
	Name     string     `json:"name" yaml:"name"`
	Type     SeasonType `json:"type" yaml:"type"`
	Start    MonthDay   `json:"start" yaml:"start"`
	End      MonthDay   `json:"end" yaml:"end"`
	IsActive bool       `json:"is_active" yaml:"active"`
}

// Contains compares inclusively on both ends. A period whose start is after
// its end wraps over the new year.
func (p SeasonPeriod) Contains(date time.Time) bool {
	md := MonthDayOf(date)
	if p.Start <= p.End {
		return md >= p.Start && md <= p.End
	}
	return md >= p.Start || md <= p.End
}
