package models

import (
	"errors"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

var ErrInvalidStay = errors.New("end date must be after start date")

// Stay is a half-open night range [StartDate, EndDate).
// StartDate is the check-in date and EndDate the check-out date.
type Stay struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// DateOnly drops the clock part of t, keeping its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// NewStay normalizes both dates and rejects empty or inverted ranges.
func NewStay(start, end time.Time) (Stay, error) {
	s := Stay{StartDate: DateOnly(start), EndDate: DateOnly(end)}
	if !s.Valid() {
		return s, ErrInvalidStay
	}
	return s, nil
}

// ParseStay builds a Stay from two YYYY-MM-DD strings.
func ParseStay(start, end string) (Stay, error) {
	from, err := ParseDate(start)
	if err != nil {
		return Stay{}, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return Stay{}, err
	}
	return NewStay(from, to)
}

// Nights returns the number of nights, never negative.
func (s Stay) Nights() int {
	n := int(DateOnly(s.EndDate).Sub(DateOnly(s.StartDate)).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}

// Valid reports whether the stay covers at least one night.
func (s Stay) Valid() bool {
	return s.Nights() >= 1
}

// Overlaps uses half-open semantics: a check-out on another stay's
// check-in day is not a conflict.
func (s Stay) Overlaps(other Stay) bool {
	return s.StartDate.Before(other.EndDate) && other.StartDate.Before(s.EndDate)
}

// NightDates lists the date of each night in the stay.
func (s Stay) NightDates() []time.Time {
	n := s.Nights()
	dates := make([]time.Time, 0, n)
	start := DateOnly(s.StartDate)
	for i := 0; i < n; i++ {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	return dates
}

// OverlapDates lists the nights shared by both stays.
func (s Stay) OverlapDates(other Stay) []time.Time {
	if !s.Overlaps(other) {
		return nil
	}
	from := s.StartDate
	if other.StartDate.After(from) {
		from = other.StartDate
	}
	to := s.EndDate
	if other.EndDate.Before(to) {
		to = other.EndDate
	}
	return Stay{StartDate: from, EndDate: to}.NightDates()
}

// Contains reports whether date is one of the stay's nights.
func (s Stay) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(s.StartDate)) && d.Before(DateOnly(s.EndDate))
}

// Shift moves the whole stay by the given number of days.
func (s Stay) Shift(days int) Stay {
	return Stay{StartDate: s.StartDate.AddDate(0, 0, days), EndDate: s.EndDate.AddDate(0, 0, days)}
}

// Widen extends the stay by days on both sides.
func (s Stay) Widen(days int) Stay {
	return Stay{StartDate: s.StartDate.AddDate(0, 0, -days), EndDate: s.EndDate.AddDate(0, 0, days)}
}

func (s Stay) String() string {
	return s.StartDate.Format(DateLayout) + ".." + s.EndDate.Format(DateLayout)
}
