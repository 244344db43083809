package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/rotation"
	"github.com/dailydeen/dailydeen/internal/storage"
)

// prayerRef names one prayer and its start time.
type prayerRef struct {
	Name string `json:"name"`
	Urdu string `json:"urdu"`
	Time string `json:"time"`
}

// DailyContent is the combined payload of /api/daily-content.
type DailyContent struct {
	DailyAyah     *storage.VerseRecord        `json:"dailyAyah"`
	DailyHadith   *storage.SayingRecord       `json:"dailyHadith"`
	PrayerTimes   *storage.PrayerTimesRecord  `json:"prayerTimes"`
	HijriDate     *storage.CalendarDateRecord `json:"hijriDate"`
	CurrentPrayer *prayerRef                  `json:"currentPrayer"`
	NextPrayer    *prayerRef                  `json:"nextPrayer"`
	TimeUntilNext *prayer.Countdown           `json:"timeUntilNext"`
	LastUpdated   storage.Day                 `json:"lastUpdated"`
}

func handleDailyContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := deps.DefaultQuery
		if lat, lng := r.URL.Query().Get("lat"), r.URL.Query().Get("lng"); lat != "" || lng != "" {
			cq, ok := coordsQuery(w, lat, lng, deps.Prayer.DefaultMethod())
			if !ok {
				return
			}
			q = cq
		}

		content := loadDailyContent(r.Context(), deps, q)
		if content.DailyAyah == nil && content.DailyHadith == nil {
			httpError(w, http.StatusBadGateway, "api_error", "daily content unavailable")
			return
		}
		writeJSON(w, http.StatusOK, content)
	}
}

// loadDailyContent gathers the four parts concurrently. Each part falls back
// to its last known value and is left nil when none exists, so one failing
// provider never blanks the rest.
func loadDailyContent(ctx context.Context, deps Deps, q prayer.Query) DailyContent {
	var content DailyContent
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if v, ok := dailyVerse(gctx, deps); ok {
			content.DailyAyah = &v
		}
		return nil
	})
	g.Go(func() error {
		if s, ok := dailySaying(gctx, deps); ok {
			content.DailyHadith = &s
		}
		return nil
	})
	g.Go(func() error {
		if rec, _, ok := prayerTimes(gctx, deps, q); ok {
			content.PrayerTimes = &rec
		}
		return nil
	})
	g.Go(func() error {
		if rec, ok := calendarDate(gctx, deps); ok {
			content.HijriDate = &rec
		}
		return nil
	})
	g.Wait()

	if content.PrayerTimes != nil {
		if st, err := deps.Prayer.StatusFor(*content.PrayerTimes); err == nil {
			content.CurrentPrayer, content.NextPrayer, content.TimeUntilNext = statusRefs(st)
		} else {
			deps.Logger.Warn("prayer schedule unusable", "error", err)
		}
	}
	content.LastUpdated = deps.Engine.LastRotationDay()
	return content
}

// dailyVerse returns today's verse, rotating if none is selected. A storage
// failure still yields the freshly selected verse; a fetch failure falls back
// to whatever verse is already selected.
func dailyVerse(ctx context.Context, deps Deps) (storage.VerseRecord, bool) {
	v, err := deps.Engine.DailyVerseOrRotate(ctx)
	switch {
	case err == nil:
		return v, true
	case errors.Is(err, rotation.ErrStorageWriteFailed):
		deps.Logger.Warn("daily verse not persisted", "error", err)
		return v, true
	default:
		deps.Logger.Warn("daily verse unavailable", "error", err)
		return deps.Engine.DailyVerse()
	}
}

func dailySaying(ctx context.Context, deps Deps) (storage.SayingRecord, bool) {
	s, err := deps.Engine.DailySayingOrRotate(ctx)
	switch {
	case err == nil:
		return s, true
	case errors.Is(err, rotation.ErrStorageWriteFailed):
		deps.Logger.Warn("daily saying not persisted", "error", err)
		return s, true
	default:
		deps.Logger.Warn("daily saying unavailable", "error", err)
		return deps.Engine.DailySaying()
	}
}

// prayerTimes returns fresh or cached times for q. On a provider failure it
// falls back to the expired cache entry and then, for the default query, to
// the persisted snapshot. stale reports whether a fallback was used.
func prayerTimes(ctx context.Context, deps Deps, q prayer.Query) (rec storage.PrayerTimesRecord, stale, ok bool) {
	rec, err := deps.Prayer.GetOrFetchPrayerTimes(ctx, q)
	if err == nil {
		if q.Key() == deps.DefaultQuery.Key() {
			snap := deps.Engine.Snapshot().CachedPrayerTimes
			if snap == nil || !snap.FetchedAt.Equal(rec.FetchedAt) {
				if err := deps.Engine.RecordPrayerTimes(ctx, rec); err != nil {
					deps.Logger.Warn("recording prayer times", "error", err)
				}
			}
		}
		return rec, false, true
	}
	deps.Logger.Warn("prayer times unavailable, trying last known", "key", q.Key(), "error", err)
	if rec, ok := deps.Prayer.LastKnownPrayerTimes(q); ok {
		return rec, true, true
	}
	if q.Key() == deps.DefaultQuery.Key() {
		if snap := deps.Engine.Snapshot().CachedPrayerTimes; snap != nil {
			return *snap, true, true
		}
	}
	return storage.PrayerTimesRecord{}, false, false
}

func calendarDate(ctx context.Context, deps Deps) (storage.CalendarDateRecord, bool) {
	rec, err := deps.Prayer.GetOrFetchCalendarDate(ctx)
	if err == nil {
		snap := deps.Engine.Snapshot().CachedCalendarDate
		if snap == nil || !snap.FetchedAt.Equal(rec.FetchedAt) {
			if err := deps.Engine.RecordCalendarDate(ctx, rec); err != nil {
				deps.Logger.Warn("recording calendar date", "error", err)
			}
		}
		return rec, true
	}
	deps.Logger.Warn("calendar date unavailable, trying last known", "error", err)
	if snap := deps.Engine.Snapshot().CachedCalendarDate; snap != nil {
		return *snap, true
	}
	return storage.CalendarDateRecord{}, false
}

func statusRefs(st prayer.Status) (cur, next *prayerRef, until *prayer.Countdown) {
	cur = &prayerRef{Name: string(st.Current), Urdu: st.CurrentUrdu, Time: st.CurrentTime}
	next = &prayerRef{Name: string(st.Next), Urdu: st.NextUrdu, Time: st.NextTime}
	c := st.TimeUntilNext
	return cur, next, &c
}

func handleDailyVerse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := dailyVerse(r.Context(), deps)
		if !ok {
			httpError(w, http.StatusBadGateway, "api_error", "daily verse unavailable")
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleDailySaying(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := dailySaying(r.Context(), deps)
		if !ok {
			httpError(w, http.StatusInternalServerError, "server_error", "daily saying unavailable")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

type rotateResponse struct {
	Verse     *storage.VerseRecord  `json:"verse,omitempty"`
	Saying    *storage.SayingRecord `json:"saying,omitempty"`
	Persisted bool                  `json:"persisted"`
}

func handleAdminRotate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := r.URL.Query().Get("kind")
		if kind == "" {
			kind = "all"
		}
		if kind != "verse" && kind != "saying" && kind != "all" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind must be verse, saying or all, got %q", kind)
			return
		}

		resp := rotateResponse{Persisted: true}
		if kind == "verse" || kind == "all" {
			v, err := deps.Engine.RotateVerse(r.Context())
			if err != nil && !errors.Is(err, rotation.ErrStorageWriteFailed) {
				upstreamError(w, "rotating verse", err)
				return
			}
			if err != nil {
				resp.Persisted = false
			}
			resp.Verse = &v
		}
		if kind == "saying" || kind == "all" {
			s, err := deps.Engine.RotateSaying(r.Context())
			if err != nil && !errors.Is(err, rotation.ErrStorageWriteFailed) {
				httpError(w, http.StatusInternalServerError, "server_error", "rotating saying: %v", err)
				return
			}
			if err != nil {
				resp.Persisted = false
			}
			resp.Saying = &s
		}
		if !resp.Persisted {
			deps.Logger.Warn("manual rotation not persisted", "kind", kind)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAdminReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Engine.ResetAll(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "resetting state: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

type stateResponse struct {
	storage.RotationState
	Dirty       bool `json:"dirty"`
	SeenVerses  int  `json:"seenVerses"`
	SeenSayings int  `json:"seenSayings"`
}

func handleAdminState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Engine.Snapshot()
		writeJSON(w, http.StatusOK, stateResponse{
			RotationState: st,
			Dirty:         deps.Engine.Dirty(),
			SeenVerses:    len(st.SeenVerseIndices),
			SeenSayings:   len(st.SeenSayingIndices),
		})
	}
}

// coordsQuery validates a lat/lng pair.
func coordsQuery(w http.ResponseWriter, lat, lng string, method int) (prayer.Query, bool) {
	if lat == "" || lng == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "latitude and longitude required")
		return prayer.Query{}, false
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil || la < -90 || la > 90 || lo < -180 || lo > 180 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid coordinates %q,%q", lat, lng)
		return prayer.Query{}, false
	}
	return prayer.CoordsQuery(la, lo, method), true
}
