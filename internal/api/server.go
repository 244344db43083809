// Package api exposes the daily content, prayer times and lookup services
// over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dailydeen/dailydeen/internal/hadith"
	"github.com/dailydeen/dailydeen/internal/location"
	"github.com/dailydeen/dailydeen/internal/metrics"
	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/quran"
	"github.com/dailydeen/dailydeen/internal/rotation"
)

// Deps holds the services behind the HTTP and MCP surfaces.
type Deps struct {
	Engine   *rotation.Engine
	Quran    *quran.Client
	Hadith   *hadith.Corpus
	Prayer   *prayer.Service
	Location *location.Resolver
	Metrics  *metrics.Metrics // optional; nil disables /metrics

	// DefaultQuery selects prayer times when a request names no location.
	// The scheduler refreshes the same query.
	DefaultQuery prayer.Query

	Logger *slog.Logger
}

// NewHandler returns the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	var hm HTTPMetrics
	if deps.Metrics != nil {
		hm = deps.Metrics
	}
	r.Use(accessLog(deps.Logger, hm))
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Get("/api/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/api/daily-content", handleDailyContent(deps))

	r.Route("/api/quran", func(r chi.Router) {
		r.Get("/daily", handleDailyVerse(deps))
		r.Get("/random", handleRandomVerse(deps))
		r.Get("/surahs", handleSurahs(deps))
		r.Get("/surah/{number}", handleSurah(deps))
		r.Get("/ayah/{surah}/{ayah}", handleAyah(deps))
		r.Get("/search", handleQuranSearch(deps))
		r.Get("/audio/{surah}/{ayah}", handleAudio(deps))
	})

	r.Route("/api/hadith", func(r chi.Router) {
		r.Get("/", handleListHadith(deps))
		r.Get("/daily", handleDailySaying(deps))
		r.Get("/categories", handleCategories(deps))
		r.Get("/category/{category}", handleHadithByCategory(deps))
		r.Get("/{id}", handleHadithByID(deps))
	})

	r.Route("/api/prayer", func(r chi.Router) {
		r.Get("/", handlePrayerTimes(deps))
		r.Get("/coords", handlePrayerByCoords(deps))
		r.Get("/city", handlePrayerByCity(deps))
		r.Get("/address", handlePrayerByAddress(deps))
		r.Get("/hijri", handleHijri(deps))
		r.Get("/calendar", handleCalendar(deps))
		r.Get("/methods", handleMethods)
	})

	r.Route("/api/location", func(r chi.Router) {
		r.Get("/", handleLocation(deps))
		r.Get("/search", handleLocationSearch(deps))
		r.Get("/timezone", handleTimezone(deps))
		r.Get("/{ip}", handleLocationByIP(deps))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/rotate", handleAdminRotate(deps))
		r.Post("/reset", handleAdminReset(deps))
		r.Get("/state", handleAdminState(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// upstreamError maps a provider failure onto an HTTP status.
func upstreamError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, quran.ErrInvalidReference):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s: %v", what, err)
	case errors.Is(err, quran.ErrNotFound), errors.Is(err, location.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%s: %v", what, err)
	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "api_error", "%s: upstream timed out", what)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "%s: %v", what, err)
	}
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s must be an integer, got %q", name, raw)
		return 0, false
	}
	return n, true
}

// queryInt parses an optional integer query parameter, returning def when it
// is absent.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s must be an integer, got %q", name, raw)
		return 0, false
	}
	return n, true
}

// globalRand adapts the math/rand/v2 top-level source, which is safe for
// concurrent use, to sampler.Source.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }
