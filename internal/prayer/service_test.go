package prayer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dailydeen/dailydeen/internal/aladhan"
	"github.com/dailydeen/dailydeen/internal/cache"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockProvider struct {
	mu         sync.Mutex
	coordCalls int
	cityCalls  int
	hijriCalls int
	lastMethod int
	err        error
}

func (m *mockProvider) timings() aladhan.Timings {
	return aladhan.Timings{
		Timings: map[string]string{
			"Fajr": "05:00", "Sunrise": "06:20", "Dhuhr": "12:30", "Asr": "16:15", "Maghrib": "18:45", "Isha": "20:00",
		},
		Date: aladhan.DateInfo{Readable: "14 Mar 2025"},
		Meta: aladhan.Meta{Timezone: "UTC", Method: aladhan.MethodInfo{ID: 2, Name: "ISNA"}},
	}
}

func (m *mockProvider) TimingsByCoords(_ context.Context, _ time.Time, _, _ float64, method int) (aladhan.Timings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coordCalls++
	m.lastMethod = method
	if m.err != nil {
		return aladhan.Timings{}, m.err
	}
	return m.timings(), nil
}

func (m *mockProvider) TimingsByCity(_ context.Context, _ time.Time, _, _ string, method int) (aladhan.Timings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cityCalls++
	m.lastMethod = method
	if m.err != nil {
		return aladhan.Timings{}, m.err
	}
	return m.timings(), nil
}

func (m *mockProvider) TimingsByAddress(_ context.Context, _ time.Time, _ string, _ int) (aladhan.Timings, error) {
	return m.timings(), m.err
}

func (m *mockProvider) HijriDate(_ context.Context, _ time.Time) (aladhan.HijriDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hijriCalls++
	if m.err != nil {
		return aladhan.HijriDate{}, m.err
	}
	return aladhan.HijriDate{
		Day:         "14",
		Month:       aladhan.Month{Number: 9, En: "Ramaḍān", Ar: "رَمَضان"},
		Year:        "1446",
		Designation: aladhan.Designation{Abbreviated: "AH"},
	}, nil
}

func (m *mockProvider) Calendar(_ context.Context, _, _ int, _, _ string, _ int) ([]aladhan.Timings, error) {
	return []aladhan.Timings{m.timings()}, m.err
}

func newTestService(t *testing.T) (*Service, *mockProvider, *mockClock) {
	t.Helper()
	p := &mockProvider{}
	clock := &mockClock{now: time.Date(2025, 3, 14, 14, 45, 0, 0, time.UTC)}
	return NewService(p, Options{Method: 2, Clock: clock}), p, clock
}

func TestQueryKey_Normalized(t *testing.T) {
	a := CoordsQuery(24.86071, 67.00114, 2).Key()
	b := CoordsQuery(24.86069, 67.00106, 2).Key()
	if a != b || a != "coords:24.8607,67.0011,2" {
		t.Errorf("keys %q and %q should both be coords:24.8607,67.0011,2", a, b)
	}
	if CityQuery(" Karachi", "PAKISTAN", 1).Key() != CityQuery("karachi", "Pakistan ", 1).Key() {
		t.Error("city keys should be case and space insensitive")
	}
	if CoordsQuery(1, 2, 1).Key() == CoordsQuery(1, 2, 2).Key() {
		t.Error("method must be part of the key")
	}
}

func TestGetOrFetchPrayerTimes_Caches(t *testing.T) {
	s, p, clock := newTestService(t)
	ctx := context.Background()
	q := CoordsQuery(24.8607, 67.0011, 2)

	rec, err := s.GetOrFetchPrayerTimes(ctx, q)
	if err != nil {
		t.Fatalf("GetOrFetchPrayerTimes: %v", err)
	}
	if rec.Timings["Asr"] != "16:15" || rec.Meta.Method != "ISNA" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.FetchedAt.Equal(clock.Now()) {
		t.Errorf("FetchedAt = %v", rec.FetchedAt)
	}

	clock.Advance(23 * time.Hour)
	if _, err := s.GetOrFetchPrayerTimes(ctx, q); err != nil {
		t.Fatal(err)
	}
	if p.coordCalls != 1 {
		t.Errorf("provider calls = %d, want 1 within TTL", p.coordCalls)
	}

	clock.Advance(time.Hour)
	if _, err := s.GetOrFetchPrayerTimes(ctx, q); err != nil {
		t.Fatal(err)
	}
	if p.coordCalls != 2 {
		t.Errorf("provider calls = %d, want 2 after TTL", p.coordCalls)
	}
}

func TestGetOrFetchPrayerTimes_CityMeta(t *testing.T) {
	s, p, _ := newTestService(t)
	rec, err := s.GetOrFetchPrayerTimes(context.Background(), CityQuery("Lahore", "Pakistan", 1))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Meta.City != "Lahore" || rec.Meta.Country != "Pakistan" {
		t.Errorf("Meta = %+v", rec.Meta)
	}
	if p.cityCalls != 1 || p.lastMethod != 1 {
		t.Errorf("cityCalls = %d, method = %d", p.cityCalls, p.lastMethod)
	}
}

func TestGetOrFetchPrayerTimes_FailureKeepsLastKnown(t *testing.T) {
	s, p, clock := newTestService(t)
	ctx := context.Background()
	q := CoordsQuery(1, 2, 2)

	if _, err := s.GetOrFetchPrayerTimes(ctx, q); err != nil {
		t.Fatal(err)
	}
	clock.Advance(25 * time.Hour)
	p.err = errors.New("upstream down")

	if _, err := s.GetOrFetchPrayerTimes(ctx, q); !errors.Is(err, cache.ErrUpstreamFetchFailed) {
		t.Fatalf("err = %v, want ErrUpstreamFetchFailed", err)
	}
	last, ok := s.LastKnownPrayerTimes(q)
	if !ok || last.Timings["Fajr"] != "05:00" {
		t.Errorf("LastKnownPrayerTimes = %+v, %v", last, ok)
	}
}

func TestGetOrFetchCalendarDate(t *testing.T) {
	s, p, clock := newTestService(t)
	ctx := context.Background()

	cd, err := s.GetOrFetchCalendarDate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cd.Day != 14 || cd.Month != 9 || cd.Year != 1446 || cd.MonthName != "Ramaḍān" {
		t.Errorf("calendar date = %+v", cd)
	}
	s.GetOrFetchCalendarDate(ctx)
	if p.hijriCalls != 1 {
		t.Errorf("hijri calls = %d, want 1", p.hijriCalls)
	}

	// A new Gregorian day uses a new key.
	clock.Advance(12 * time.Hour)
	s.GetOrFetchCalendarDate(ctx)
	if p.hijriCalls != 2 {
		t.Errorf("hijri calls = %d, want 2 on a new day", p.hijriCalls)
	}
}

func TestClearCacheAndPrune(t *testing.T) {
	s, p, clock := newTestService(t)
	ctx := context.Background()

	s.GetOrFetchPrayerTimes(ctx, CoordsQuery(1, 2, 2))
	s.GetOrFetchPrayerTimes(ctx, CityQuery("a", "b", 2))
	if s.CacheLen() != 2 {
		t.Fatalf("CacheLen = %d", s.CacheLen())
	}

	s.ClearCache()
	if s.CacheLen() != 0 {
		t.Error("ClearCache should empty the cache")
	}
	s.GetOrFetchPrayerTimes(ctx, CoordsQuery(1, 2, 2))
	if p.coordCalls != 2 {
		t.Errorf("coord calls = %d, want refetch after clear", p.coordCalls)
	}

	clock.Advance(25 * time.Hour)
	if n := s.PruneExpired(); n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
}

func TestStatusFor(t *testing.T) {
	s, _, _ := newTestService(t)
	rec, err := s.GetOrFetchPrayerTimes(context.Background(), CoordsQuery(1, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	st, err := s.StatusFor(rec)
	if err != nil {
		t.Fatal(err)
	}
	if st.Current != Dhuhr || st.Next != Asr || st.TimeUntilNext != (Countdown{1, 30}) {
		t.Errorf("status = %+v", st)
	}

	rec.Timings = map[string]string{"Fajr": "05:00"}
	if _, err := s.StatusFor(rec); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("err = %v, want ErrInvalidSchedule", err)
	}
}

func TestStatusFor_RecordTimezone(t *testing.T) {
	s, _, _ := newTestService(t)
	rec, _ := s.GetOrFetchPrayerTimes(context.Background(), CoordsQuery(1, 2, 2))
	// 14:45 UTC is 19:45 in Karachi.
	rec.Meta.Timezone = "Asia/Karachi"
	st, err := s.StatusFor(rec)
	if err != nil {
		t.Fatal(err)
	}
	if st.Current != Maghrib || st.Next != Isha {
		t.Errorf("status = %s/%s, want Maghrib/Isha", st.Current, st.Next)
	}
}

func TestNewService_InvalidMethodFallsBack(t *testing.T) {
	s := NewService(&mockProvider{}, Options{Method: 6})
	if s.DefaultMethod() != aladhan.DefaultMethod {
		t.Errorf("DefaultMethod = %d", s.DefaultMethod())
	}
}
