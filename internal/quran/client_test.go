package quran

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const surahJSON = `{"number":2,"name":"سُورَةُ البَقَرَةِ","englishName":"Al-Baqara","englishNameTranslation":"The Cow","numberOfAyahs":286,"revelationType":"Medinan"}`

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL})
}

func TestAyah(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ayah/262/editions/quran-uthmani,ur.jalandhry", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"status":"OK","data":[
			{"number":262,"text":"ٱللَّهُ لَآ إِلَٰهَ إِلَّا هُوَ","surah":` + surahJSON + `,"numberInSurah":255},
			{"number":262,"text":"خدا (وہ معبود برحق ہے کہ) اس کے سوا کوئی عبادت کے لائق نہیں","surah":` + surahJSON + `,"numberInSurah":255}
		]}`))
	})
	c := newTestClient(t, mux)

	v, err := c.Ayah(context.Background(), 262)
	if err != nil {
		t.Fatalf("Ayah: %v", err)
	}
	if v.Number != 262 || v.NumberInSurah != 255 || v.SurahNumber != 2 {
		t.Errorf("record = %+v", v)
	}
	if v.Reference != "Al-Baqara · Ayah 255" {
		t.Errorf("Reference = %q", v.Reference)
	}
	if !strings.HasPrefix(v.Translation, "خدا") {
		t.Errorf("Translation = %q", v.Translation)
	}
}

func TestAyah_OutOfRange(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	for _, n := range []int{0, -1, TotalAyahs + 1} {
		if _, err := c.Ayah(context.Background(), n); !errors.Is(err, ErrInvalidReference) {
			t.Errorf("Ayah(%d) err = %v, want ErrInvalidReference", n, err)
		}
	}
}

func TestAyah_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := newTestClient(t, mux).Ayah(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestRandom_InRange(t *testing.T) {
	var got atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		got.Add(1)
		w.Write([]byte(`{"code":200,"status":"OK","data":[{"number":1,"text":"a","numberInSurah":1},{"number":1,"text":"b","numberInSurah":1}]}`))
	})
	c := newTestClient(t, mux)
	if _, err := c.Random(context.Background(), rand.New(rand.NewPCG(3, 4))); err != nil {
		t.Fatal(err)
	}
	if got.Load() != 1 {
		t.Errorf("requests = %d", got.Load())
	}
}

func TestAyahInSurah(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ayah/2:255/quran-uthmani", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"status":"OK","data":{"number":262,"text":"arabic","surah":` + surahJSON + `,"numberInSurah":255}}`))
	})
	mux.HandleFunc("/ayah/2:255/ur.jalandhry", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"status":"OK","data":{"number":262,"text":"urdu","numberInSurah":255}}`))
	})
	c := newTestClient(t, mux)

	p, err := c.AyahInSurah(context.Background(), 2, 255)
	if err != nil {
		t.Fatalf("AyahInSurah: %v", err)
	}
	if p.Arabic.Text != "arabic" || p.Translation.Text != "urdu" {
		t.Errorf("pair = %+v", p)
	}
	if p.Reference != "Al-Baqara · Ayah 255" {
		t.Errorf("Reference = %q", p.Reference)
	}
}

func TestAyahInSurah_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":404,"status":"NOT FOUND","data":"Please specify an Ayah number"}`))
	})
	_, err := newTestClient(t, mux).AyahInSurah(context.Background(), 1, 500)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSurahs_Cached(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/surah", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"code":200,"status":"OK","data":[` + surahJSON + `]}`))
	})
	c := newTestClient(t, mux)

	for i := 0; i < 3; i++ {
		ss, err := c.Surahs(context.Background())
		if err != nil {
			t.Fatalf("Surahs: %v", err)
		}
		if len(ss) != 1 || ss[0].EnglishName != "Al-Baqara" {
			t.Errorf("surahs = %+v", ss)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestSurah(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/surah/1/quran-uthmani", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"status":"OK","data":{"number":1,"englishName":"Al-Faatiha","numberOfAyahs":7,"ayahs":[{"number":1,"text":"بِسْمِ","numberInSurah":1}]}}`))
	})
	mux.HandleFunc("/surah/1/ur.jalandhry", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"status":"OK","data":{"number":1,"englishName":"Al-Faatiha","ayahs":[{"number":1,"text":"شروع","numberInSurah":1}]}}`))
	})
	c := newTestClient(t, mux)

	p, err := c.Surah(context.Background(), 1)
	if err != nil {
		t.Fatalf("Surah: %v", err)
	}
	if p.Surah.EnglishName != "Al-Faatiha" || p.Surah.NumberOfAyahs != 7 {
		t.Errorf("Surah = %+v", p.Surah)
	}
	if len(p.ArabicAyahs) != 1 || len(p.TranslationAyahs) != 1 {
		t.Errorf("ayahs = %d/%d", len(p.ArabicAyahs), len(p.TranslationAyahs))
	}

	if _, err := c.Surah(context.Background(), 115); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Surah(115) err = %v", err)
	}
}

func TestSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "nothing") {
			w.Write([]byte(`{"code":404,"status":"Not Found","data":"Nothing matching your search was found."}`))
			return
		}
		w.Write([]byte(`{"code":200,"status":"OK","data":{"count":1,"matches":[{"number":5,"text":"صبر","numberInSurah":5}]}}`))
	})
	c := newTestClient(t, mux)

	res, err := c.Search(context.Background(), "صبر")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Count != 1 || len(res.Matches) != 1 {
		t.Errorf("result = %+v", res)
	}

	res, err = c.Search(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("Search no match: %v", err)
	}
	if res.Count != 0 || res.Matches == nil {
		t.Errorf("no-match result = %+v", res)
	}

	if _, err := c.Search(context.Background(), "  "); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("empty query err = %v", err)
	}
}

func TestAudio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ayah/1:1/ar.alafasy", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"status":"OK","data":{"number":1,"audio":"https://cdn.islamic.network/quran/audio/128/ar.alafasy/1.mp3"}}`))
	})
	c := newTestClient(t, mux)

	u, err := c.Audio(context.Background(), 1, 1, "")
	if err != nil {
		t.Fatalf("Audio: %v", err)
	}
	if !strings.HasSuffix(u, "/1.mp3") {
		t.Errorf("audio url = %q", u)
	}
}
