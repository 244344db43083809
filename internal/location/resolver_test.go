package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:5000", "198.51.100.4"},
		{"remote addr", nil, "198.51.100.9:41234", "198.51.100.9"},
		{"mapped v6", map[string]string{"X-Forwarded-For": "::ffff:203.0.113.8"}, "", "203.0.113.8"},
		{"ipv6 remote", nil, "[2001:db8::1]:443", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPrivate(t *testing.T) {
	for ip, want := range map[string]bool{
		"127.0.0.1":    true,
		"::1":          true,
		"192.168.1.20": true,
		"10.1.2.3":     true,
		"172.16.0.1":   true,
		"garbage":      true,
		"8.8.8.8":      false,
		"2001:4860::1": false,
	} {
		if got := IsPrivate(ip); got != want {
			t.Errorf("IsPrivate(%q) = %v, want %v", ip, got, want)
		}
	}
}

func TestFromRequest_PrivateUsesDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	r := NewResolver(Options{IPAPIBaseURL: srv.URL})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"

	loc := r.FromRequest(context.Background(), req)
	if !loc.Localhost || loc.City != "Karachi" || loc.IP != "127.0.0.1" {
		t.Errorf("location = %+v", loc)
	}
	if calls.Load() != 0 {
		t.Error("private address must not hit the geolocation API")
	}
}

func TestByIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/8.8.8.8/json/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"ip":"8.8.8.8","city":"Mountain View","region":"California","country_name":"United States","country_code":"US","latitude":37.42,"longitude":-122.08,"timezone":"America/Los_Angeles","postal":"94043"}`))
	}))
	defer srv.Close()

	loc := NewResolver(Options{IPAPIBaseURL: srv.URL}).ByIP(context.Background(), "8.8.8.8")
	if loc.City != "Mountain View" || loc.CountryCode != "US" || loc.Fallback {
		t.Errorf("location = %+v", loc)
	}
}

func TestByIP_FailureFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"rate limited body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			loc := NewResolver(Options{IPAPIBaseURL: srv.URL}).ByIP(context.Background(), "8.8.4.4")
			if !loc.Fallback || loc.City != "Karachi" || loc.IP != "8.8.4.4" {
				t.Errorf("location = %+v", loc)
			}
		})
	}
}

func TestByIP_CustomDefault(t *testing.T) {
	def := Location{City: "Lahore", Country: "Pakistan", Latitude: 31.5204, Longitude: 74.3587, Timezone: "Asia/Karachi"}
	r := NewResolver(Options{IPAPIBaseURL: "http://127.0.0.1:1", Default: &def})
	loc := r.ByIP(context.Background(), "not-an-ip")
	if loc.City != "Lahore" || !loc.Fallback {
		t.Errorf("location = %+v", loc)
	}
}

func TestSearchCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		q := r.URL.Query()
		if q.Get("q") != "Lahore, Pakistan" || q.Get("limit") != "1" || q.Get("format") != "json" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"display_name":"Lahore, Punjab, Pakistan","lat":"31.5656822","lon":"74.3141829","type":"city"}]`))
	}))
	defer srv.Close()

	p, err := NewResolver(Options{NominatimBaseURL: srv.URL}).SearchCity(context.Background(), "Lahore", "Pakistan")
	if err != nil {
		t.Fatalf("SearchCity: %v", err)
	}
	if p.Name != "Lahore, Punjab, Pakistan" || p.Latitude != 31.5656822 || p.Type != "city" {
		t.Errorf("place = %+v", p)
	}
}

func TestSearchCity_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewResolver(Options{NominatimBaseURL: srv.URL}).SearchCity(context.Background(), "Atlantis", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSearchCity_Throttled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[{"display_name":"x","lat":"1","lon":"2"}]`))
	}))
	defer srv.Close()

	r := NewResolver(Options{NominatimBaseURL: srv.URL, NominatimInterval: time.Hour})
	if _, err := r.SearchCity(context.Background(), "a", ""); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.SearchCity(ctx, "b", ""); err == nil {
		t.Fatal("second search within the interval should wait and hit the deadline")
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestTimezone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" || r.URL.Query().Get("by") != "position" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"status":"OK","message":"","countryCode":"PK","zoneName":"Asia/Karachi","abbreviation":"PKT","gmtOffset":18000,"timestamp":1741950000}`))
	}))
	defer srv.Close()

	z, err := NewResolver(Options{TimezoneDBBaseURL: srv.URL, TimezoneDBKey: "secret"}).Timezone(context.Background(), 24.86, 67.0)
	if err != nil {
		t.Fatalf("Timezone: %v", err)
	}
	if z.ZoneName != "Asia/Karachi" || z.GMTOffset != 18000 {
		t.Errorf("zone = %+v", z)
	}
}

func TestTimezone_NoKey(t *testing.T) {
	if _, err := NewResolver(Options{}).Timezone(context.Background(), 1, 2); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}
