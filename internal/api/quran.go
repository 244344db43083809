package api

import (
	"net/http"
	"strings"
)

func handleRandomVerse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := deps.Quran.Random(r.Context(), globalRand{})
		if err != nil {
			upstreamError(w, "fetching random verse", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleSurahs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surahs, err := deps.Quran.Surahs(r.Context())
		if err != nil {
			upstreamError(w, "fetching surahs", err)
			return
		}
		writeJSON(w, http.StatusOK, surahs)
	}
}

func handleSurah(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := pathInt(w, r, "number")
		if !ok {
			return
		}
		surah, err := deps.Quran.Surah(r.Context(), n)
		if err != nil {
			upstreamError(w, "fetching surah", err)
			return
		}
		writeJSON(w, http.StatusOK, surah)
	}
}

func handleAyah(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := pathInt(w, r, "surah")
		if !ok {
			return
		}
		a, ok := pathInt(w, r, "ayah")
		if !ok {
			return
		}
		pair, err := deps.Quran.AyahInSurah(r.Context(), s, a)
		if err != nil {
			upstreamError(w, "fetching ayah", err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

func handleQuranSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query parameter q is required")
			return
		}
		res, err := deps.Quran.Search(r.Context(), q)
		if err != nil {
			upstreamError(w, "searching", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleAudio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := pathInt(w, r, "surah")
		if !ok {
			return
		}
		a, ok := pathInt(w, r, "ayah")
		if !ok {
			return
		}
		u, err := deps.Quran.Audio(r.Context(), s, a, r.URL.Query().Get("reciter"))
		if err != nil {
			upstreamError(w, "fetching audio", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"audioUrl": u})
	}
}
