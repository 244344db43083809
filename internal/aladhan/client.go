// Package aladhan is a client for the api.aladhan.com prayer times and
// Hijri calendar API.
package aladhan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.aladhan.com/v1"
	DefaultMethod  = 2 // ISNA

	defaultTimeout = 10 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond

	// school=1 selects the Hanafi Asr calculation.
	school = "1"
)

// Client calls the Aladhan API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a client. A nil httpClient gets a default with a 10s
// timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		backoff:    initialBackoff,
	}
}

// Timings is one day of prayer times for a location.
type Timings struct {
	Timings map[string]string `json:"timings"`
	Date    DateInfo          `json:"date"`
	Meta    Meta              `json:"meta"`
}

type DateInfo struct {
	Readable  string        `json:"readable"`
	Timestamp string        `json:"timestamp"`
	Gregorian GregorianDate `json:"gregorian"`
	Hijri     HijriDate     `json:"hijri"`
}

type GregorianDate struct {
	Date    string  `json:"date"`
	Day     string  `json:"day"`
	Month   Month   `json:"month"`
	Year    string  `json:"year"`
	Weekday Weekday `json:"weekday"`
}

type HijriDate struct {
	Date        string      `json:"date"`
	Day         string      `json:"day"`
	Month       Month       `json:"month"`
	Year        string      `json:"year"`
	Weekday     Weekday     `json:"weekday"`
	Designation Designation `json:"designation"`
	Holidays    []string    `json:"holidays,omitempty"`
}

type Month struct {
	Number int    `json:"number"`
	En     string `json:"en"`
	Ar     string `json:"ar,omitempty"`
}

type Weekday struct {
	En string `json:"en"`
	Ar string `json:"ar,omitempty"`
}

type Designation struct {
	Abbreviated string `json:"abbreviated"`
	Expanded    string `json:"expanded"`
}

type Meta struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timezone  string     `json:"timezone"`
	Method    MethodInfo `json:"method"`
}

type MethodInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Location returns the time zone reported in the meta block, or nil if it
// is missing or unknown.
func (t Timings) Location() *time.Location {
	if t.Meta.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(t.Meta.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// envelope is the common {code, status, data} wrapper.
type envelope[T any] struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   T      `json:"data"`
}

// FormatDate renders t as DD-MM-YYYY, the path format the API expects.
func FormatDate(t time.Time) string {
	return t.Format("02-01-2006")
}

// TimingsByCoords returns the timings for date at a coordinate.
func (c *Client) TimingsByCoords(ctx context.Context, date time.Time, lat, lng float64, method int) (Timings, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("method", strconv.Itoa(method))
	q.Set("school", school)
	q.Set("adjustment", "0")

	var out Timings
	if err := c.get(ctx, "/timings/"+FormatDate(date), q, &out); err != nil {
		return Timings{}, fmt.Errorf("timings by coords: %w", err)
	}
	return out, nil
}

// TimingsByCity returns the timings for date in a city.
func (c *Client) TimingsByCity(ctx context.Context, date time.Time, city, country string, method int) (Timings, error) {
	q := url.Values{}
	q.Set("city", city)
	q.Set("country", country)
	q.Set("method", strconv.Itoa(method))
	q.Set("school", school)

	var out Timings
	if err := c.get(ctx, "/timingsByCity/"+FormatDate(date), q, &out); err != nil {
		return Timings{}, fmt.Errorf("timings by city: %w", err)
	}
	return out, nil
}

// TimingsByAddress returns the timings for date at a free-form address.
func (c *Client) TimingsByAddress(ctx context.Context, date time.Time, address string, method int) (Timings, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("method", strconv.Itoa(method))
	q.Set("school", school)

	var out Timings
	if err := c.get(ctx, "/timingsByAddress/"+FormatDate(date), q, &out); err != nil {
		return Timings{}, fmt.Errorf("timings by address: %w", err)
	}
	return out, nil
}

// HijriDate converts a Gregorian date.
func (c *Client) HijriDate(ctx context.Context, date time.Time) (HijriDate, error) {
	var out struct {
		Hijri HijriDate `json:"hijri"`
	}
	if err := c.get(ctx, "/gToH/"+FormatDate(date), nil, &out); err != nil {
		return HijriDate{}, fmt.Errorf("hijri date: %w", err)
	}
	return out.Hijri, nil
}

// Calendar returns every day of a Gregorian month for a city.
func (c *Client) Calendar(ctx context.Context, year, month int, city, country string, method int) ([]Timings, error) {
	q := url.Values{}
	q.Set("city", city)
	q.Set("country", country)
	q.Set("method", strconv.Itoa(method))
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))

	var out []Timings
	if err := c.get(ctx, "/calendarByCity", q, &out); err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	return out, nil
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

// get fetches path and decodes the envelope's data into out, retrying 429
// responses with exponential backoff.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var lastErr error
	for attempt := range maxRetries {
		err := c.do(ctx, u, out)
		if err == nil {
			return nil
		}
		if !isRateLimit(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, u string, out any) error {
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

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return fmt.Errorf("api error %d: %s", env.Code, env.Status)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}
