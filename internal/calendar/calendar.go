// Package calendar classifies nights into day and season types.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"retreat/internal/models"
)

const (
	// SeasonPeriods resolves peak nights from configured date ranges.
	SeasonPeriods = "periods"
	// SeasonPeakMonths treats whole months as peak.
	SeasonPeakMonths = "peak_months"
)

// DefaultWeekend is Saturday and Sunday. Friday nights are weekday nights.
var DefaultWeekend = []time.Weekday{time.Saturday, time.Sunday}

// SeasonPolicy decides whether a night is peak.
type SeasonPolicy interface {
	SeasonOf(date time.Time) models.SeasonType
}

// PeriodPolicy marks a night as peak when an active on-season period
// contains it. Off-season periods are ignored.
type PeriodPolicy struct {
	periods []models.SeasonPeriod
}

func NewPeriodPolicy(periods []models.SeasonPeriod) *PeriodPolicy {
	active := make([]models.SeasonPeriod, 0, len(periods))
	for _, p := range periods {
		if p.IsActive && p.Type == models.PeakSeason {
			active = append(active, p)
		}
	}
	return &PeriodPolicy{periods: active}
}

func (p *PeriodPolicy) SeasonOf(date time.Time) models.SeasonType {
	for _, period := range p.periods {
		if period.Contains(date) {
			return models.PeakSeason
		}
	}
	return models.OffSeason
}

// PeakMonthPolicy marks every night in the listed months as peak.
type PeakMonthPolicy struct {
	months map[time.Month]struct{}
}

func NewPeakMonthPolicy(months []time.Month) *PeakMonthPolicy {
	set := make(map[time.Month]struct{}, len(months))
	for _, m := range months {
		set[m] = struct{}{}
	}
	return &PeakMonthPolicy{months: set}
}

func (p *PeakMonthPolicy) SeasonOf(date time.Time) models.SeasonType {
	if _, ok := p.months[date.Month()]; ok {
		return models.PeakSeason
	}
	return models.OffSeason
}

// NewSeasonPolicy builds exactly one policy for the configured mode.
func NewSeasonPolicy(mode string, periods []models.SeasonPeriod, peakMonths []time.Month) (SeasonPolicy, error) {
	switch mode {
	case "", SeasonPeriods:
		return NewPeriodPolicy(periods), nil
	case SeasonPeakMonths:
		return NewPeakMonthPolicy(peakMonths), nil
	default:
		return nil, fmt.Errorf("unknown season mode %q", mode)
	}
}

// Classifier maps a night to its day type, season and rate key.
type Classifier struct {
	weekend map[time.Weekday]struct{}
	season  SeasonPolicy
}

// NewClassifier uses DefaultWeekend when weekend is empty.
func NewClassifier(weekend []time.Weekday, season SeasonPolicy) *Classifier {
	if len(weekend) == 0 {
		weekend = DefaultWeekend
	}
	set := make(map[time.Weekday]struct{}, len(weekend))
	for _, d := range weekend {
		set[d] = struct{}{}
	}
	if season == nil {
		season = NewPeriodPolicy(nil)
	}
	return &Classifier{weekend: set, season: season}
}

func (c *Classifier) DayType(date time.Time) models.DayType {
	if _, ok := c.weekend[date.Weekday()]; ok {
		return models.Weekend
	}
	return models.Weekday
}

func (c *Classifier) SeasonType(date time.Time) models.SeasonType {
	return c.season.SeasonOf(date)
}

func (c *Classifier) RateKey(date time.Time) models.RateKey {
	return models.RateKeyFor(c.DayType(date), c.SeasonType(date))
}

// ParseWeekdays converts English day names, ignoring case.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		found := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.EqualFold(d.String(), strings.TrimSpace(n)) {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
	}
	return out, nil
}
