// Package prayer resolves the current and next prayer from a day's schedule
// and serves cached prayer times for a location.
package prayer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSchedule is returned when timings are missing a prayer, malformed
// or out of order.
var ErrInvalidSchedule = errors.New("invalid prayer schedule")

// Prayer names one of the five daily prayers.
type Prayer string

const (
	Fajr    Prayer = "Fajr"
	Dhuhr   Prayer = "Dhuhr"
	Asr     Prayer = "Asr"
	Maghrib Prayer = "Maghrib"
	Isha    Prayer = "Isha"
)

// Order is the five prayers in their daily sequence.
var Order = [5]Prayer{Fajr, Dhuhr, Asr, Maghrib, Isha}

var urduNames = map[Prayer]string{
	Fajr:    "فجر",
	Dhuhr:   "ظہر",
	Asr:     "عصر",
	Maghrib: "مغرب",
	Isha:    "عشاء",
}

// Urdu returns the Urdu name of p.
func (p Prayer) Urdu() string { return urduNames[p] }

// ClockTime is a local civil time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClockTime parses "HH:MM", ignoring a trailing zone annotation such as
// "05:42 (PKT)".
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("clock time %q: missing ':'", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("clock time %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("clock time %q: bad minute", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

// Schedule holds the five prayer times of one day, indexed like Order.
type Schedule [5]ClockTime

// At returns the time of p.
func (s Schedule) At(p Prayer) ClockTime {
	for i, name := range Order {
		if name == p {
			return s[i]
		}
	}
	return ClockTime{}
}

// ParseSchedule builds a Schedule from a provider timings map. Extra keys such
// as Sunrise or Midnight are ignored. Times must be strictly increasing.
func ParseSchedule(timings map[string]string) (Schedule, error) {
	var s Schedule
	for i, p := range Order {
		raw, ok := timings[string(p)]
		if !ok {
			return Schedule{}, fmt.Errorf("%w: %s missing", ErrInvalidSchedule, p)
		}
		ct, err := ParseClockTime(raw)
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, p, err)
		}
		if i > 0 && ct.Minutes() <= s[i-1].Minutes() {
			return Schedule{}, fmt.Errorf("%w: %s (%s) not after %s (%s)",
				ErrInvalidSchedule, p, ct, Order[i-1], s[i-1])
		}
		s[i] = ct
	}
	return s, nil
}

// ResolveCurrentAndNext returns the prayer in progress and the one coming up
// at now's time of day. A prayer whose minute equals now's has not been
// reached yet. Before Fajr the current prayer is the previous night's Isha;
// after Isha the next one is tomorrow's Fajr.
func ResolveCurrentAndNext(s Schedule, now time.Time) (current, next Prayer) {
	minute := now.Hour()*60 + now.Minute()
	for i, ct := range s {
		if minute < ct.Minutes() {
			if i == 0 {
				return Isha, Fajr
			}
			return Order[i-1], Order[i]
		}
	}
	return Isha, Fajr
}

// Countdown is a non-negative hours and minutes split.
type Countdown struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// TimeUntilNext returns the time from now until next. next is placed on now's
// date in now's location and moved to the following day if it is not after
// now.
func TimeUntilNext(next ClockTime, now time.Time) Countdown {
	y, m, d := now.Date()
	at := time.Date(y, m, d, next.Hour, next.Minute, 0, 0, now.Location())
	if !at.After(now) {
		at = time.Date(y, m, d+1, next.Hour, next.Minute, 0, 0, now.Location())
	}
	diff := at.Sub(now)
	return Countdown{
		Hours:   int(diff / time.Hour),
		Minutes: int(diff % time.Hour / time.Minute),
	}
}

// Status is the resolved position within a day's schedule.
type Status struct {
	Current       Prayer    `json:"current"`
	CurrentUrdu   string    `json:"currentUrdu"`
	CurrentTime   string    `json:"currentTime"`
	Next          Prayer    `json:"next"`
	NextUrdu      string    `json:"nextUrdu"`
	NextTime      string    `json:"nextTime"`
	TimeUntilNext Countdown `json:"timeUntilNext"`
}

// Resolve combines ResolveCurrentAndNext and TimeUntilNext.
func Resolve(s Schedule, now time.Time) Status {
	cur, next := ResolveCurrentAndNext(s, now)
	nt := s.At(next)
	return Status{
		Current:       cur,
		CurrentUrdu:   cur.Urdu(),
		CurrentTime:   s.At(cur).String(),
		Next:          next,
		NextUrdu:      next.Urdu(),
		NextTime:      nt.String(),
		TimeUntilNext: TimeUntilNext(nt, now),
	}
}

// Method is a prayer time calculation method understood by the provider.
type Method struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

var methods = []Method{
	{0, "Shia Ithna-Ansari"},
	{1, "University of Islamic Sciences, Karachi"},
	{2, "Islamic Society of North America (ISNA)"},
	{3, "Muslim World League"},
	{4, "Umm Al-Qura University, Makkah"},
	{5, "Egyptian General Authority of Survey"},
	{7, "Institute of Geophysics, University of Tehran"},
	{8, "Gulf Region"},
	{9, "Kuwait"},
	{10, "Qatar"},
	{11, "Majlis Ugama Islam Singapura, Singapore"},
	{12, "Union Organization Islamic de France"},
	{13, "Diyanet İşleri Başkanlığı, Turkey"},
	{14, "Spiritual Administration of Muslims of Russia"},
}

// Methods returns the supported calculation methods.
func Methods() []Method {
	out := make([]Method, len(methods))
	copy(out, methods)
	return out
}

// ValidMethod reports whether id is a supported calculation method.
func ValidMethod(id int) bool {
	for _, m := range methods {
		if m.ID == id {
			return true
		}
	}
	return false
}
