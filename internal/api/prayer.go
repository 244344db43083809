package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/storage"
)

// calendarCity is the city whose month calendar /api/prayer/calendar returns
// when none is requested.
const (
	calendarCity    = "Mecca"
	calendarCountry = "Saudi Arabia"
)

type prayerResponse struct {
	storage.PrayerTimesRecord
	CurrentPrayer *prayerRef        `json:"currentPrayer"`
	NextPrayer    *prayerRef        `json:"nextPrayer"`
	TimeUntilNext *prayer.Countdown `json:"timeUntilNext"`
	Stale         bool              `json:"stale,omitempty"`
}

func handlePrayerTimes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method, ok := queryMethod(w, r, deps.Prayer.DefaultMethod())
		if !ok {
			return
		}
		qs := r.URL.Query()
		q := deps.DefaultQuery
		q.Method = method
		switch {
		case qs.Get("lat") != "" || qs.Get("lng") != "":
			if q, ok = coordsQuery(w, qs.Get("lat"), qs.Get("lng"), method); !ok {
				return
			}
		case qs.Get("city") != "" && qs.Get("country") != "":
			q = prayer.CityQuery(qs.Get("city"), qs.Get("country"), method)
		}
		respondPrayerTimes(w, r, deps, q)
	}
}

func handlePrayerByCoords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method, ok := queryMethod(w, r, deps.Prayer.DefaultMethod())
		if !ok {
			return
		}
		q, ok := coordsQuery(w, r.URL.Query().Get("lat"), r.URL.Query().Get("lng"), method)
		if !ok {
			return
		}
		respondPrayerTimes(w, r, deps, q)
	}
}

func handlePrayerByCity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method, ok := queryMethod(w, r, deps.Prayer.DefaultMethod())
		if !ok {
			return
		}
		city := strings.TrimSpace(r.URL.Query().Get("city"))
		if city == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "city required")
			return
		}
		respondPrayerTimes(w, r, deps, prayer.CityQuery(city, r.URL.Query().Get("country"), method))
	}
}

func handlePrayerByAddress(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method, ok := queryMethod(w, r, deps.Prayer.DefaultMethod())
		if !ok {
			return
		}
		address := strings.TrimSpace(r.URL.Query().Get("address"))
		if address == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "address required")
			return
		}
		rec, err := deps.Prayer.TimesByAddress(r.Context(), address, method)
		if err != nil {
			upstreamError(w, "fetching prayer times", err)
			return
		}
		writeJSON(w, http.StatusOK, withStatus(deps, rec, false))
	}
}

func respondPrayerTimes(w http.ResponseWriter, r *http.Request, deps Deps, q prayer.Query) {
	rec, stale, ok := prayerTimes(r.Context(), deps, q)
	if !ok {
		httpError(w, http.StatusBadGateway, "api_error", "prayer times unavailable for %s", q.Key())
		return
	}
	writeJSON(w, http.StatusOK, withStatus(deps, rec, stale))
}

func withStatus(deps Deps, rec storage.PrayerTimesRecord, stale bool) prayerResponse {
	resp := prayerResponse{PrayerTimesRecord: rec, Stale: stale}
	st, err := deps.Prayer.StatusFor(rec)
	if err != nil {
		deps.Logger.Warn("prayer schedule unusable", "date", rec.Date, "error", err)
		return resp
	}
	resp.CurrentPrayer, resp.NextPrayer, resp.TimeUntilNext = statusRefs(st)
	return resp
}

func handleHijri(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := deps.Prayer.HijriDate(r.Context())
		if err != nil {
			upstreamError(w, "fetching hijri date", err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func handleCalendar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		year, ok := queryInt(w, r, "year", now.Year())
		if !ok {
			return
		}
		month, ok := queryInt(w, r, "month", int(now.Month()))
		if !ok {
			return
		}
		if month < 1 || month > 12 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "month must be 1-12, got %d", month)
			return
		}
		city, country := r.URL.Query().Get("city"), r.URL.Query().Get("country")
		if city == "" {
			city, country = calendarCity, calendarCountry
		}
		days, err := deps.Prayer.Calendar(r.Context(), year, month, city, country)
		if err != nil {
			upstreamError(w, "fetching calendar", err)
			return
		}
		writeJSON(w, http.StatusOK, days)
	}
}

func handleMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prayer.Methods())
}

func queryMethod(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	m, ok := queryInt(w, r, "method", def)
	if !ok {
		return 0, false
	}
	if !prayer.ValidMethod(m) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown calculation method %d", m)
		return 0, false
	}
	return m, true
}
