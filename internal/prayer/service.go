package prayer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/dailydeen/dailydeen/internal/aladhan"
	"github.com/dailydeen/dailydeen/internal/cache"
	"github.com/dailydeen/dailydeen/internal/storage"
)

// DefaultCacheTTL is how long fetched prayer times stay fresh.
const DefaultCacheTTL = 24 * time.Hour

// Provider is the upstream prayer times API. Implemented by *aladhan.Client.
type Provider interface {
	TimingsByCoords(ctx context.Context, date time.Time, lat, lng float64, method int) (aladhan.Timings, error)
	TimingsByCity(ctx context.Context, date time.Time, city, country string, method int) (aladhan.Timings, error)
	TimingsByAddress(ctx context.Context, date time.Time, address string, method int) (aladhan.Timings, error)
	HijriDate(ctx context.Context, date time.Time) (aladhan.HijriDate, error)
	Calendar(ctx context.Context, year, month int, city, country string, method int) ([]aladhan.Timings, error)
}

// Query selects prayer times either by coordinate or by city.
type Query struct {
	Latitude  float64
	Longitude float64
	City      string
	Country   string
	Method    int
	ByCoords  bool
}

// CoordsQuery builds a coordinate query.
func CoordsQuery(lat, lng float64, method int) Query {
	return Query{Latitude: lat, Longitude: lng, Method: method, ByCoords: true}
}

// CityQuery builds a city query.
func CityQuery(city, country string, method int) Query {
	return Query{City: city, Country: country, Method: method}
}

// Key returns the normalized cache key. Coordinates are rounded to four
// decimal places and names are case-folded, so equivalent lookups share one
// entry.
func (q Query) Key() string {
	if q.ByCoords {
		return fmt.Sprintf("coords:%.4f,%.4f,%d", q.Latitude, q.Longitude, q.Method)
	}
	return fmt.Sprintf("city:%s,%s,%d",
		strings.ToLower(strings.TrimSpace(q.City)),
		strings.ToLower(strings.TrimSpace(q.Country)),
		q.Method)
}

// Options configures a Service. Zero durations select defaults. Method is
// used as given when it is a supported calculation method.
type Options struct {
	TTL      time.Duration
	Method   int
	Timeout  time.Duration
	Clock    cache.Clock
	Recorder cache.Recorder
	Logger   *slog.Logger
}

// Service serves prayer times and Hijri dates through a TTL cache in front
// of the provider.
type Service struct {
	provider Provider
	times    *cache.TTL[string, storage.PrayerTimesRecord]
	dates    *cache.TTL[string, storage.CalendarDateRecord]
	ttl      time.Duration
	method   int
	timeout  time.Duration
	clock    cache.Clock
	logger   *slog.Logger
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewService creates a Service.
func NewService(provider Provider, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if !ValidMethod(opts.Method) {
		opts.Method = aladhan.DefaultMethod
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	copts := cache.Options{Clock: opts.Clock, Recorder: opts.Recorder}
	return &Service{
		provider: provider,
		times:    cache.New[string, storage.PrayerTimesRecord]("prayer_times", copts),
		dates:    cache.New[string, storage.CalendarDateRecord]("calendar_date", copts),
		ttl:      opts.TTL,
		method:   opts.Method,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// DefaultMethod returns the configured calculation method.
func (s *Service) DefaultMethod() int { return s.method }

// GetOrFetchPrayerTimes returns cached prayer times for q, fetching today's
// timings when no live entry exists.
func (s *Service) GetOrFetchPrayerTimes(ctx context.Context, q Query) (storage.PrayerTimesRecord, error) {
	return s.times.GetOrFetch(ctx, q.Key(), s.ttl, func(ctx context.Context) (storage.PrayerTimesRecord, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		now := s.clock.Now()
		var (
			t   aladhan.Timings
			err error
		)
		if q.ByCoords {
			t, err = s.provider.TimingsByCoords(ctx, now, q.Latitude, q.Longitude, q.Method)
		} else {
			t, err = s.provider.TimingsByCity(ctx, now, q.City, q.Country, q.Method)
		}
		if err != nil {
			s.logger.Warn("prayer times fetch failed", "key", q.Key(), "error", err)
			return storage.PrayerTimesRecord{}, err
		}
		rec := timesRecord(t, now)
		if !q.ByCoords {
			rec.Meta.City, rec.Meta.Country = q.City, q.Country
		}
		return rec, nil
	})
}

// LastKnownPrayerTimes returns the stored entry for q even if it has expired.
func (s *Service) LastKnownPrayerTimes(q Query) (storage.PrayerTimesRecord, bool) {
	e, ok := s.times.Peek(q.Key())
	return e.Value, ok
}

// GetOrFetchCalendarDate returns today's Hijri date, cached per Gregorian day.
func (s *Service) GetOrFetchCalendarDate(ctx context.Context) (storage.CalendarDateRecord, error) {
	now := s.clock.Now()
	key := "hijri:" + aladhan.FormatDate(now)
	return s.dates.GetOrFetch(ctx, key, s.ttl, func(ctx context.Context) (storage.CalendarDateRecord, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		h, err := s.provider.HijriDate(ctx, now)
		if err != nil {
			s.logger.Warn("hijri date fetch failed", "error", err)
			return storage.CalendarDateRecord{}, err
		}
		return calendarRecord(h, now), nil
	})
}

// HijriDate returns the raw provider Hijri date for today.
func (s *Service) HijriDate(ctx context.Context) (aladhan.HijriDate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.provider.HijriDate(ctx, s.clock.Now())
}

// TimesByAddress fetches timings for a free-form address without caching.
func (s *Service) TimesByAddress(ctx context.Context, address string, method int) (storage.PrayerTimesRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	now := s.clock.Now()
	t, err := s.provider.TimingsByAddress(ctx, now, address, method)
	if err != nil {
		return storage.PrayerTimesRecord{}, err
	}
	return timesRecord(t, now), nil
}

// Calendar returns a month of timings for a city.
func (s *Service) Calendar(ctx context.Context, year, month int, city, country string) ([]aladhan.Timings, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.provider.Calendar(ctx, year, month, city, country, s.method)
}

// ClearCache drops every cached entry.
func (s *Service) ClearCache() {
	s.times.Clear()
	s.dates.Clear()
}

// PruneExpired drops expired entries and returns how many were removed.
func (s *Service) PruneExpired() int {
	return s.times.PruneExpired(s.ttl) + s.dates.PruneExpired(s.ttl)
}

// CacheLen returns the number of cached prayer time entries.
func (s *Service) CacheLen() int { return s.times.Len() }

// StatusFor resolves current and next prayer for rec. The reference time is
// taken in the record's time zone when it is known, server local otherwise.
func (s *Service) StatusFor(rec storage.PrayerTimesRecord) (Status, error) {
	sched, err := ParseSchedule(rec.Timings)
	if err != nil {
		return Status{}, err
	}
	now := s.clock.Now()
	if rec.Meta.Timezone != "" {
		if loc, err := time.LoadLocation(rec.Meta.Timezone); err == nil {
			now = now.In(loc)
		}
	}
	return Resolve(sched, now), nil
}

func timesRecord(t aladhan.Timings, now time.Time) storage.PrayerTimesRecord {
	timings := make(map[string]string, len(t.Timings))
	maps.Copy(timings, t.Timings)
	return storage.PrayerTimesRecord{
		Timings: timings,
		Date:    t.Date.Readable,
		Meta: storage.PrayerMeta{
			Timezone:  t.Meta.Timezone,
			Method:    t.Meta.Method.Name,
			Latitude:  t.Meta.Latitude,
			Longitude: t.Meta.Longitude,
		},
		FetchedAt: now,
	}
}

func calendarRecord(h aladhan.HijriDate, now time.Time) storage.CalendarDateRecord {
	day, _ := strconv.Atoi(h.Day)
	year, _ := strconv.Atoi(h.Year)
	return storage.CalendarDateRecord{
		Day:         day,
		Month:       h.Month.Number,
		MonthName:   h.Month.En,
		MonthNameAr: h.Month.Ar,
		Year:        year,
		Weekday:     h.Weekday.En,
		Designation: h.Designation.Abbreviated,
		FetchedAt:   now,
	}
}
