// Package location resolves a caller's position from their IP address and
// geocodes city names.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultIPAPIBaseURL      = "https://ipapi.co"
	DefaultNominatimBaseURL  = "https://nominatim.openstreetmap.org"
	DefaultTimezoneDBBaseURL = "https://api.timezonedb.com/v2.1"
	DefaultUserAgent         = "dailydeen/1.0"

	defaultTimeout = 10 * time.Second
)

var (
	// ErrNotFound is returned when a city search has no match.
	ErrNotFound = errors.New("location not found")

	// ErrNoAPIKey is returned by Timezone when no timezonedb key is set.
	ErrNoAPIKey = errors.New("timezonedb api key not configured")
)

// Location is a resolved caller position.
type Location struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	Postal      string  `json:"postal"`
	Localhost   bool    `json:"isLocalhost,omitempty"`
	Fallback    bool    `json:"fallback,omitempty"`
}

// Karachi is the built-in default location.
var Karachi = Location{
	City:        "Karachi",
	Region:      "Sindh",
	Country:     "Pakistan",
	CountryCode: "PK",
	Latitude:    24.8607,
	Longitude:   67.0011,
	Timezone:    "Asia/Karachi",
	Postal:      "74000",
}

// Place is a geocoding result.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Type      string  `json:"type"`
}

// Zone is a timezonedb lookup result.
type Zone struct {
	CountryCode  string `json:"countryCode"`
	ZoneName     string `json:"zoneName"`
	Abbreviation string `json:"abbreviation"`
	GMTOffset    int    `json:"gmtOffset"`
	Timestamp    int64  `json:"timestamp"`
	Formatted    string `json:"formatted"`
}

// Options configures a Resolver. Empty fields select the defaults.
type Options struct {
	IPAPIBaseURL      string
	NominatimBaseURL  string
	TimezoneDBBaseURL string
	TimezoneDBKey     string
	UserAgent         string
	HTTPClient        *http.Client
	Default           *Location
	// NominatimInterval is the minimum gap between geocoding requests.
	NominatimInterval time.Duration
	Logger            *slog.Logger
}

// Resolver looks up locations. Every lookup that cannot be answered falls back
// to the configured default location rather than failing.
type Resolver struct {
	ipapiURL     string
	nominatimURL string
	tzdbURL      string
	tzdbKey      string
	userAgent    string
	httpClient   *http.Client
	fallback     Location
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) *Resolver {
	if opts.IPAPIBaseURL == "" {
		opts.IPAPIBaseURL = DefaultIPAPIBaseURL
	}
	if opts.NominatimBaseURL == "" {
		opts.NominatimBaseURL = DefaultNominatimBaseURL
	}
	if opts.TimezoneDBBaseURL == "" {
		opts.TimezoneDBBaseURL = DefaultTimezoneDBBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.NominatimInterval <= 0 {
		opts.NominatimInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	fallback := Karachi
	if opts.Default != nil {
		fallback = *opts.Default
	}
	return &Resolver{
		ipapiURL:     strings.TrimRight(opts.IPAPIBaseURL, "/"),
		nominatimURL: strings.TrimRight(opts.NominatimBaseURL, "/"),
		tzdbURL:      strings.TrimRight(opts.TimezoneDBBaseURL, "/"),
		tzdbKey:      opts.TimezoneDBKey,
		userAgent:    opts.UserAgent,
		httpClient:   opts.HTTPClient,
		fallback:     fallback,
		limiter:      rate.NewLimiter(rate.Every(opts.NominatimInterval), 1),
		logger:       opts.Logger,
	}
}

// Default returns the fallback location.
func (r *Resolver) Default() Location {
	return r.fallback
}

// FromRequest resolves the location of the client behind req. Loopback and
// private addresses get the default location.
func (r *Resolver) FromRequest(ctx context.Context, req *http.Request) Location {
	ip := ClientIP(req)
	if IsPrivate(ip) {
		loc := r.fallback
		loc.IP = ip
		loc.Localhost = true
		return loc
	}
	return r.ByIP(ctx, ip)
}

// ClientIP returns the originating client address of req, preferring the
// first X-Forwarded-For hop, then X-Real-IP, then the connection address.
func ClientIP(req *http.Request) string {
	ip := ""
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		ip = strings.TrimSpace(first)
	}
	if ip == "" {
		ip = strings.TrimSpace(req.Header.Get("X-Real-IP"))
	}
	if ip == "" {
		ip = req.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
	}
	if ip == "" {
		ip = "127.0.0.1"
	}
	return strings.TrimPrefix(ip, "::ffff:")
}

// IsPrivate reports whether ip is loopback, private, link-local or
// unparseable.
func IsPrivate(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}

type ipapiResponse struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryName string  `json:"country_name"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	Postal      string  `json:"postal"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

// ByIP geolocates ip with ipapi.co. Any failure yields the default location
// marked as a fallback.
func (r *Resolver) ByIP(ctx context.Context, ip string) Location {
	loc, err := r.byIP(ctx, ip)
	if err != nil {
		r.logger.Warn("ip lookup failed, using default location", "ip", ip, "error", err)
		fb := r.fallback
		fb.IP = ip
		fb.Fallback = true
		return fb
	}
	return loc
}

func (r *Resolver) byIP(ctx context.Context, ip string) (Location, error) {
	if _, err := netip.ParseAddr(ip); err != nil {
		return Location{}, fmt.Errorf("invalid ip %q", ip)
	}
	var resp ipapiResponse
	if err := r.getJSON(ctx, r.ipapiURL+"/"+ip+"/json/", &resp); err != nil {
		return Location{}, err
	}
	if resp.Error {
		return Location{}, fmt.Errorf("ipapi: %s", resp.Reason)
	}
	return Location{
		IP:          resp.IP,
		City:        resp.City,
		Region:      resp.Region,
		Country:     resp.CountryName,
		CountryCode: resp.CountryCode,
		Latitude:    resp.Latitude,
		Longitude:   resp.Longitude,
		Timezone:    resp.Timezone,
		Postal:      resp.Postal,
	}, nil
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Type        string `json:"type"`
}

// SearchCity geocodes a city with Nominatim. Requests are throttled to the
// service's usage policy of one per second.
func (r *Resolver) SearchCity(ctx context.Context, city, country string) (Place, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Place{}, fmt.Errorf("%w: empty city", ErrNotFound)
	}
	query := city
	if c := strings.TrimSpace(country); c != "" {
		query = city + ", " + c
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return Place{}, fmt.Errorf("waiting for geocoder: %w", err)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	var results []nominatimResult
	if err := r.getJSON(ctx, r.nominatimURL+"/search?"+q.Encode(), &results); err != nil {
		return Place{}, fmt.Errorf("searching %q: %w", query, err)
	}
	if len(results) == 0 {
		return Place{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return Place{}, fmt.Errorf("searching %q: bad coordinates %q,%q", query, results[0].Lat, results[0].Lon)
	}
	return Place{
		Name:      results[0].DisplayName,
		Latitude:  lat,
		Longitude: lon,
		Type:      results[0].Type,
	}, nil
}

type tzdbResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Zone
}

// Timezone looks up the zone at a coordinate with timezonedb.
func (r *Resolver) Timezone(ctx context.Context, lat, lng float64) (Zone, error) {
	if r.tzdbKey == "" {
		return Zone{}, ErrNoAPIKey
	}
	q := url.Values{}
	q.Set("key", r.tzdbKey)
	q.Set("format", "json")
	q.Set("by", "position")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))

	var resp tzdbResponse
	if err := r.getJSON(ctx, r.tzdbURL+"/get-time-zone?"+q.Encode(), &resp); err != nil {
		return Zone{}, fmt.Errorf("timezone lookup: %w", err)
	}
	if resp.Status != "OK" {
		return Zone{}, fmt.Errorf("timezone lookup: %s", resp.Message)
	}
	return resp.Zone, nil
}

func (r *Resolver) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
