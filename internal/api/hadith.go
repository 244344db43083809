package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dailydeen/dailydeen/internal/hadith"
)

const defaultPageLimit = 20

func handleListHadith(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := queryInt(w, r, "page", 1)
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit", defaultPageLimit)
		if !ok {
			return
		}

		var items []hadith.Hadith
		switch search, category := r.URL.Query().Get("search"), r.URL.Query().Get("category"); {
		case strings.TrimSpace(search) != "":
			items = deps.Hadith.Search(search)
		case category != "":
			items = deps.Hadith.ByCategory(category)
		default:
			items = deps.Hadith.All()
		}

		p, err := hadith.Paginate(items, page, limit)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleCategories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Hadith.Categories())
	}
}

func handleHadithByCategory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Hadith.ByCategory(chi.URLParam(r, "category")))
	}
}

func handleHadithByID(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInt(w, r, "id")
		if !ok {
			return
		}
		h, found := deps.Hadith.ByID(id)
		if !found {
			httpError(w, http.StatusNotFound, "not_found_error", "hadith %d not found", id)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}
