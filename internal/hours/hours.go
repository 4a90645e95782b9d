// Package hours answers time-of-day questions about service: which shift is
// on, whether happy hour is running, whether the floor is open.
package hours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Shift string

const (
	Morning   Shift = "morning"
	Afternoon Shift = "afternoon"
	Evening   Shift = "evening"
	LateNight Shift = "late-night"
)

// Window is an HH:MM range. End before Start wraps past midnight.
type Window struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

type HappyHour struct {
	Window `yaml:",inline"`
	Days   []time.Weekday `json:"days" yaml:"days"`
}

type Schedule struct {
	HappyHour HappyHour        `json:"happy_hour" yaml:"happy_hour"`
	Shifts    map[Shift]Window `json:"shifts" yaml:"shifts"`
	Open      Window           `json:"open" yaml:"open"`
}

func DefaultSchedule() Schedule {
	return Schedule{
		HappyHour: HappyHour{
			Window: Window{Start: "16:00", End: "18:00"},
			Days:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		},
		Shifts: map[Shift]Window{
			Morning:   {Start: "06:00", End: "11:00"},
			Afternoon: {Start: "11:00", End: "16:00"},
			Evening:   {Start: "16:00", End: "22:00"},
			LateNight: {Start: "22:00", End: "02:00"},
		},
		Open: Window{Start: "11:00", End: "23:00"},
	}
}

// Context is the time-derived state shown on the staff dashboard.
type Context struct {
	Shift       Shift `json:"shift"`
	HappyHour   bool  `json:"happy_hour"`
	ServiceOpen bool  `json:"service_open"`
}

func (s Schedule) At(t time.Time) Context {
	return Context{
		Shift:       s.ShiftAt(t),
		HappyHour:   s.HappyHourAt(t),
		ServiceOpen: s.Open.Contains(t),
	}
}

// ShiftAt returns the shift covering t. Outside every window (the small
// hours before the morning shift) it reports late-night.
func (s Schedule) ShiftAt(t time.Time) Shift {
	for _, sh := range []Shift{Morning, Afternoon, Evening, LateNight} {
		if w, ok := s.Shifts[sh]; ok && w.Contains(t) {
			return sh
		}
	}
	return LateNight
}

func (s Schedule) HappyHourAt(t time.Time) bool {
	for _, d := range s.HappyHour.Days {
		if d == t.Weekday() {
			return s.HappyHour.Contains(t)
		}
	}
	return false
}

func (w Window) Contains(t time.Time) bool {
	start, err := minutes(w.Start)
	if err != nil {
		return false
	}
	end, err := minutes(w.End)
	if err != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func (w Window) Validate() error {
	if _, err := minutes(w.Start); err != nil {
		return err
	}
	_, err := minutes(w.End)
	return err
}

func minutes(hhmm string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", hhmm)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", hhmm)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", hhmm)
	}
	return hh*60 + mm, nil
}
