package api

import (
	"errors"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dailydeen/dailydeen/internal/location"
)

func handleLocation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Location.FromRequest(r.Context(), r))
	}
}

func handleLocationSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		city := strings.TrimSpace(r.URL.Query().Get("city"))
		if city == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "city parameter required")
			return
		}
		place, err := deps.Location.SearchCity(r.Context(), city, r.URL.Query().Get("country"))
		if err != nil {
			upstreamError(w, "searching city", err)
			return
		}
		writeJSON(w, http.StatusOK, place)
	}
}

func handleLocationByIP(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := chi.URLParam(r, "ip")
		if _, err := netip.ParseAddr(ip); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid ip address %q", ip)
			return
		}
		writeJSON(w, http.StatusOK, deps.Location.ByIP(r.Context(), ip))
	}
}

func handleTimezone(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := coordsQuery(w, r.URL.Query().Get("lat"), r.URL.Query().Get("lng"), 0)
		if !ok {
			return
		}
		zone, err := deps.Location.Timezone(r.Context(), q.Latitude, q.Longitude)
		if errors.Is(err, location.ErrNoAPIKey) {
			httpError(w, http.StatusServiceUnavailable, "api_error", "timezone lookup is not configured")
			return
		}
		if err != nil {
			upstreamError(w, "looking up timezone", err)
			return
		}
		writeJSON(w, http.StatusOK, zone)
	}
}
