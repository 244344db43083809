package storage

import (
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Day is a calendar date formatted as YYYY-MM-DD. The zero value means "never".
// The layout sorts lexically in date order.
type Day string

const dayLayout = "2006-01-02"

// DayOf returns the calendar date of t in t's location.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// Before reports whether d is strictly earlier than other. The zero Day is
// earlier than every date.
func (d Day) Before(other Day) bool {
	return d < other
}

// Valid reports whether d parses as a date.
func (d Day) Valid() bool {
	_, err := time.Parse(dayLayout, string(d))
	return err == nil
}

type VerseRecord struct {
	Number           int       `json:"number"`
	Text             string    `json:"text"`
	Translation      string    `json:"translation"`
	Reference        string    `json:"reference"`
	SurahNumber      int       `json:"surahNumber"`
	SurahName        string    `json:"surahName"`
	SurahEnglishName string    `json:"surahEnglishName"`
	NumberInSurah    int       `json:"numberInSurah"`
	SelectedAt       time.Time `json:"selectedAt"`
}

type SayingRecord struct {
	ID           int       `json:"id"`
	Text         string    `json:"text"`
	Arabic       string    `json:"arabic"`
	Source       string    `json:"source"`
	Book         string    `json:"book"`
	HadithNumber string    `json:"hadithNumber"`
	Category     string    `json:"category"`
	Narrator     string    `json:"narrator"`
	SelectedAt   time.Time `json:"selectedAt"`
}

type PrayerMeta struct {
	Timezone  string  `json:"timezone"`
	Method    string  `json:"method"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

type PrayerTimesRecord struct {
	Timings   map[string]string `json:"timings"`
	Date      string            `json:"date"`
	Meta      PrayerMeta        `json:"meta"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

type CalendarDateRecord struct {
	Day         int       `json:"day"`
	Month       int       `json:"month"`
	MonthName   string    `json:"monthName"`
	MonthNameAr string    `json:"monthNameAr"`
	Year        int       `json:"year"`
	Weekday     string    `json:"weekday"`
	Designation string    `json:"designation"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// RotationState is the single durable record behind the daily rotation.
// Seen sets hold sampler indices, not provider ids; the saying set keeps the
// seenSayingIds key of the persisted layout.
type RotationState struct {
	SelectedVerse      *VerseRecord        `json:"selectedVerse"`
	SelectedSaying     *SayingRecord       `json:"selectedSaying"`
	SeenVerseIndices   []int               `json:"seenVerseIndices"`
	SeenSayingIndices  []int               `json:"seenSayingIds"`
	LastRotationDay    Day                 `json:"lastRotationDay"`
	CachedPrayerTimes  *PrayerTimesRecord  `json:"cachedPrayerTimes"`
	CachedCalendarDate *CalendarDateRecord `json:"cachedCalendarDate"`
}

// Clone returns a deep copy so callers never share mutable state with the
// engine.
func (s RotationState) Clone() RotationState {
	out := RotationState{
		SeenVerseIndices:  slices.Clone(s.SeenVerseIndices),
		SeenSayingIndices: slices.Clone(s.SeenSayingIndices),
		LastRotationDay:   s.LastRotationDay,
	}
	if out.SeenVerseIndices == nil {
		out.SeenVerseIndices = []int{}
	}
	if out.SeenSayingIndices == nil {
		out.SeenSayingIndices = []int{}
	}
	if s.SelectedVerse != nil {
		v := *s.SelectedVerse
		out.SelectedVerse = &v
	}
	if s.SelectedSaying != nil {
		v := *s.SelectedSaying
		out.SelectedSaying = &v
	}
	if s.CachedPrayerTimes != nil {
		p := *s.CachedPrayerTimes
		if s.CachedPrayerTimes.Timings != nil {
			p.Timings = make(map[string]string, len(s.CachedPrayerTimes.Timings))
			for k, v := range s.CachedPrayerTimes.Timings {
				p.Timings[k] = v
			}
		}
		out.CachedPrayerTimes = &p
	}
	if s.CachedCalendarDate != nil {
		c := *s.CachedCalendarDate
		out.CachedCalendarDate = &c
	}
	return out
}
