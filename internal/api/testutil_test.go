package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailydeen/dailydeen/internal/aladhan"
	"github.com/dailydeen/dailydeen/internal/hadith"
	"github.com/dailydeen/dailydeen/internal/location"
	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/quran"
	"github.com/dailydeen/dailydeen/internal/rotation"
	"github.com/dailydeen/dailydeen/internal/storage"
)

const (
	surahJSON = `{"number":2,"name":"سُورَةُ البَقَرَةِ","englishName":"Al-Baqara","englishNameTranslation":"The Cow","numberOfAyahs":286,"revelationType":"Medinan"}`

	ayahEditionsJSON = `{"code":200,"status":"OK","data":[
		{"number":262,"text":"ٱللَّهُ لَآ إِلَٰهَ إِلَّا هُوَ","surah":` + surahJSON + `,"numberInSurah":255},
		{"number":262,"text":"خدا (وہ معبود برحق ہے کہ) اس کے سوا کوئی عبادت کے لائق نہیں","surah":` + surahJSON + `,"numberInSurah":255}
	]}`

	hijriJSON = `{"date": "14-09-1446", "day": "14", "month": {"number": 9, "en": "Ramaḍān", "ar": "رَمَضان"}, "year": "1446", "weekday": {"en": "Al Juma'a", "ar": "الجمعة"}, "designation": {"abbreviated": "AH", "expanded": "Anno Hegirae"}}`

	timingsJSON = `{"code": 200, "status": "OK", "data": {
		"timings": {"Fajr": "05:21", "Sunrise": "06:38", "Dhuhr": "12:34", "Asr": "16:02", "Maghrib": "18:29", "Isha": "19:46"},
		"date": {"readable": "14 Mar 2025", "timestamp": "1741939200",
			"gregorian": {"date": "14-03-2025", "day": "14", "month": {"number": 3, "en": "March"}, "year": "2025", "weekday": {"en": "Friday"}},
			"hijri": ` + hijriJSON + `},
		"meta": {"latitude": 24.8607, "longitude": 67.0011, "timezone": "Asia/Karachi", "method": {"id": 2, "name": "Islamic Society of North America (ISNA)"}}
	}}`
)

// upstream fakes every provider behind one server, mounted under
// /quran, /aladhan, /ipapi and /nominatim.
type upstream struct {
	url        string
	fail       atomic.Bool
	ayahCalls  atomic.Int32
	timesCalls atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if u.fail.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("/quran/ayah/", guard(func(w http.ResponseWriter, r *http.Request) {
		u.ayahCalls.Add(1)
		w.Write([]byte(ayahEditionsJSON))
	}))
	mux.HandleFunc("/quran/surah", guard(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"status":"OK","data":[` + surahJSON + `]}`))
	}))
	mux.HandleFunc("/aladhan/timings/", guard(func(w http.ResponseWriter, r *http.Request) {
		u.timesCalls.Add(1)
		w.Write([]byte(timingsJSON))
	}))
	mux.HandleFunc("/aladhan/timingsByCity/", guard(func(w http.ResponseWriter, r *http.Request) {
		u.timesCalls.Add(1)
		w.Write([]byte(timingsJSON))
	}))
	mux.HandleFunc("/aladhan/gToH/", guard(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"status":"OK","data":{"hijri":` + hijriJSON + `}}`))
	}))
	mux.HandleFunc("/ipapi/", guard(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"8.8.8.8","city":"Mountain View","region":"California","country_name":"United States","country_code":"US","latitude":37.4056,"longitude":-122.0775,"timezone":"America/Los_Angeles","postal":"94043"}`))
	}))
	mux.HandleFunc("/nominatim/search", guard(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Query().Get("q"), "Lahore") {
			w.Write([]byte(`[{"display_name":"Lahore, Punjab, Pakistan","lat":"31.5656","lon":"74.3141","type":"city"}]`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	u.url = srv.URL
	return u
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDeps(t *testing.T) (Deps, *upstream) {
	t.Helper()
	up := newUpstream(t)

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	corpus, err := hadith.Load()
	if err != nil {
		t.Fatalf("loading corpus: %v", err)
	}
	qc := quran.NewClient(quran.Options{BaseURL: up.url + "/quran"})
	logger := discardLogger()

	engine, err := rotation.New(store, qc, corpus, rotation.Options{Logger: logger})
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("loading engine: %v", err)
	}

	return Deps{
		Engine:   engine,
		Quran:    qc,
		Hadith:   corpus,
		Prayer:   prayer.NewService(aladhan.NewClient(up.url+"/aladhan", nil), prayer.Options{Logger: logger}),
		Location: location.NewResolver(location.Options{
			IPAPIBaseURL:      up.url + "/ipapi",
			NominatimBaseURL:  up.url + "/nominatim",
			NominatimInterval: time.Millisecond,
			Logger:            logger,
		}),
		DefaultQuery: prayer.CityQuery("Karachi", "Pakistan", aladhan.DefaultMethod),
		Logger:       logger,
	}, up
}

func doRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding body %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}
