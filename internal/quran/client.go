// Package quran is a client for the api.alquran.cloud verse API.
package quran

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dailydeen/dailydeen/internal/cache"
	"github.com/dailydeen/dailydeen/internal/sampler"
	"github.com/dailydeen/dailydeen/internal/storage"
)

const (
	DefaultBaseURL     = "https://api.alquran.cloud/v1"
	DefaultEdition     = "quran-uthmani"
	DefaultTranslation = "ur.jalandhry"
	DefaultReciter     = "ar.alafasy"

	TotalAyahs  = 6236
	TotalSurahs = 114

	defaultTimeout = 10 * time.Second
	surahsTTL      = 30 * 24 * time.Hour
)

var (
	// ErrNotFound is returned when the API has no such ayah, surah or match.
	ErrNotFound = errors.New("not found")

	// ErrInvalidReference is returned for out-of-range surah or ayah numbers.
	ErrInvalidReference = errors.New("invalid verse reference")
)

// Surah describes one chapter.
type Surah struct {
	Number                 int    `json:"number"`
	Name                   string `json:"name"`
	EnglishName            string `json:"englishName"`
	EnglishNameTranslation string `json:"englishNameTranslation"`
	NumberOfAyahs          int    `json:"numberOfAyahs"`
	RevelationType         string `json:"revelationType"`
}

// Edition identifies a text, translation or recitation.
type Edition struct {
	Identifier  string `json:"identifier"`
	Language    string `json:"language"`
	Name        string `json:"name"`
	EnglishName string `json:"englishName"`
	Format      string `json:"format"`
	Type        string `json:"type"`
}

// Ayah is one verse in one edition.
type Ayah struct {
	Number        int      `json:"number"`
	Text          string   `json:"text"`
	Surah         *Surah   `json:"surah,omitempty"`
	NumberInSurah int      `json:"numberInSurah"`
	Juz           int      `json:"juz,omitempty"`
	Page          int      `json:"page,omitempty"`
	Audio         string   `json:"audio,omitempty"`
	Edition       *Edition `json:"edition,omitempty"`
}

// SurahText is a surah with its ayahs in one edition.
type SurahText struct {
	Surah
	Ayahs   []Ayah   `json:"ayahs"`
	Edition *Edition `json:"edition,omitempty"`
}

// AyahPair is an ayah in the Arabic edition and its translation.
type AyahPair struct {
	Arabic      Ayah   `json:"arabic"`
	Translation Ayah   `json:"translation"`
	Reference   string `json:"reference"`
}

// SurahPair is a whole surah in the Arabic edition and its translation.
type SurahPair struct {
	Surah            Surah  `json:"surah"`
	ArabicAyahs      []Ayah `json:"arabicAyahs"`
	TranslationAyahs []Ayah `json:"translationAyahs"`
}

// SearchResult lists translation matches for a query.
type SearchResult struct {
	Count   int    `json:"count"`
	Matches []Ayah `json:"matches"`
}

// Client calls the alquran.cloud API.
type Client struct {
	baseURL     string
	edition     string
	translation string
	httpClient  *http.Client
	surahs      *cache.TTL[string, []Surah]
}

// Options configures a Client. Empty fields select the defaults.
type Options struct {
	BaseURL     string
	Edition     string
	Translation string
	HTTPClient  *http.Client
	Recorder    cache.Recorder
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Edition == "" {
		opts.Edition = DefaultEdition
	}
	if opts.Translation == "" {
		opts.Translation = DefaultTranslation
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		edition:     opts.Edition,
		translation: opts.Translation,
		httpClient:  opts.HTTPClient,
		surahs:      cache.New[string, []Surah]("surahs", cache.Options{Recorder: opts.Recorder}),
	}
}

// Reference formats the display reference of an ayah.
func Reference(surahEnglishName string, numberInSurah int) string {
	return fmt.Sprintf("%s · Ayah %d", surahEnglishName, numberInSurah)
}

// Ayah fetches ayah number (1..6236) in the Arabic edition and the
// translation with a single request.
func (c *Client) Ayah(ctx context.Context, number int) (storage.VerseRecord, error) {
	if number < 1 || number > TotalAyahs {
		return storage.VerseRecord{}, fmt.Errorf("%w: ayah %d", ErrInvalidReference, number)
	}

	var editions []Ayah
	path := fmt.Sprintf("/ayah/%d/editions/%s,%s", number, c.edition, c.translation)
	if err := c.get(ctx, path, nil, &editions); err != nil {
		return storage.VerseRecord{}, fmt.Errorf("ayah %d: %w", number, err)
	}
	if len(editions) < 2 {
		return storage.VerseRecord{}, fmt.Errorf("ayah %d: expected 2 editions, got %d", number, len(editions))
	}
	return verseRecord(editions[0], editions[1]), nil
}

// Random fetches a uniformly chosen ayah.
func (c *Client) Random(ctx context.Context, rng sampler.Source) (storage.VerseRecord, error) {
	return c.Ayah(ctx, rng.IntN(TotalAyahs)+1)
}

// AyahInSurah fetches ayah a of surah s in both editions.
func (c *Client) AyahInSurah(ctx context.Context, s, a int) (AyahPair, error) {
	if s < 1 || s > TotalSurahs || a < 1 {
		return AyahPair{}, fmt.Errorf("%w: %d:%d", ErrInvalidReference, s, a)
	}

	var pair AyahPair
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, fmt.Sprintf("/ayah/%d:%d/%s", s, a, c.edition), nil, &pair.Arabic)
	})
	g.Go(func() error {
		return c.get(gctx, fmt.Sprintf("/ayah/%d:%d/%s", s, a, c.translation), nil, &pair.Translation)
	})
	if err := g.Wait(); err != nil {
		return AyahPair{}, fmt.Errorf("ayah %d:%d: %w", s, a, err)
	}
	if pair.Arabic.Surah != nil {
		pair.Reference = Reference(pair.Arabic.Surah.EnglishName, pair.Arabic.NumberInSurah)
	}
	return pair, nil
}

// Surahs lists all surahs. The list is cached for the life of the process.
func (c *Client) Surahs(ctx context.Context) ([]Surah, error) {
	return c.surahs.GetOrFetch(ctx, "all", surahsTTL, func(ctx context.Context) ([]Surah, error) {
		var out []Surah
		if err := c.get(ctx, "/surah", nil, &out); err != nil {
			return nil, fmt.Errorf("surah list: %w", err)
		}
		return out, nil
	})
}

// Surah fetches surah n in both editions.
func (c *Client) Surah(ctx context.Context, n int) (SurahPair, error) {
	if n < 1 || n > TotalSurahs {
		return SurahPair{}, fmt.Errorf("%w: surah %d", ErrInvalidReference, n)
	}

	var arabic, translation SurahText
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, fmt.Sprintf("/surah/%d/%s", n, c.edition), nil, &arabic)
	})
	g.Go(func() error {
		return c.get(gctx, fmt.Sprintf("/surah/%d/%s", n, c.translation), nil, &translation)
	})
	if err := g.Wait(); err != nil {
		return SurahPair{}, fmt.Errorf("surah %d: %w", n, err)
	}
	return SurahPair{
		Surah:            arabic.Surah,
		ArabicAyahs:      arabic.Ayahs,
		TranslationAyahs: translation.Ayahs,
	}, nil
}

// Search finds ayahs whose translation contains query.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, fmt.Errorf("%w: empty query", ErrInvalidReference)
	}
	var out SearchResult
	path := fmt.Sprintf("/search/%s/all/%s", url.PathEscape(query), c.translation)
	if err := c.get(ctx, path, nil, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return SearchResult{Matches: []Ayah{}}, nil
		}
		return SearchResult{}, fmt.Errorf("search: %w", err)
	}
	return out, nil
}

// Audio returns the recitation URL of ayah a in surah s.
func (c *Client) Audio(ctx context.Context, s, a int, reciter string) (string, error) {
	if s < 1 || s > TotalSurahs || a < 1 {
		return "", fmt.Errorf("%w: %d:%d", ErrInvalidReference, s, a)
	}
	if reciter == "" {
		reciter = DefaultReciter
	}
	var ayah Ayah
	if err := c.get(ctx, fmt.Sprintf("/ayah/%d:%d/%s", s, a, url.PathEscape(reciter)), nil, &ayah); err != nil {
		return "", fmt.Errorf("audio %d:%d: %w", s, a, err)
	}
	if ayah.Audio == "" {
		return "", fmt.Errorf("audio %d:%d: %w", s, a, ErrNotFound)
	}
	return ayah.Audio, nil
}

func verseRecord(arabic, translation Ayah) storage.VerseRecord {
	rec := storage.VerseRecord{
		Number:        arabic.Number,
		Text:          arabic.Text,
		Translation:   translation.Text,
		NumberInSurah: arabic.NumberInSurah,
	}
	if arabic.Surah != nil {
		rec.SurahNumber = arabic.Surah.Number
		rec.SurahName = arabic.Surah.Name
		rec.SurahEnglishName = arabic.Surah.EnglishName
		rec.Reference = Reference(arabic.Surah.EnglishName, arabic.NumberInSurah)
	}
	return rec
}

type envelope struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if env.Code == http.StatusNotFound {
		return ErrNotFound
	}
	if env.Code != http.StatusOK {
		return fmt.Errorf("api error %d: %s", env.Code, env.Status)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}
