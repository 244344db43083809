package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/storage"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestDeps(t)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_DailyVerse(t *testing.T) {
	deps, _ := newTestDeps(t)

	result, err := mcpDailyVerse(deps)(context.Background(), makeCallToolRequest("daily_verse", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var v storage.VerseRecord
	if err := json.Unmarshal([]byte(toolText(t, result)), &v); err != nil {
		t.Fatalf("decoding verse: %v", err)
	}
	if v.NumberInSurah != 255 || v.SurahEnglishName != "Al-Baqara" {
		t.Errorf("verse = %+v", v)
	}
}

func TestMCPTool_DailyVerse_Unavailable(t *testing.T) {
	deps, up := newTestDeps(t)
	up.fail.Store(true)

	result, err := mcpDailyVerse(deps)(context.Background(), makeCallToolRequest("daily_verse", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error, got %s", toolText(t, result))
	}
}

func TestMCPTool_DailySaying(t *testing.T) {
	deps, _ := newTestDeps(t)

	result, err := mcpDailySaying(deps)(context.Background(), makeCallToolRequest("daily_saying", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s storage.SayingRecord
	if err := json.Unmarshal([]byte(toolText(t, result)), &s); err != nil {
		t.Fatalf("decoding saying: %v", err)
	}
	if got, ok := deps.Engine.DailySaying(); !ok || got.ID != s.ID {
		t.Errorf("tool returned %d, engine holds %d", s.ID, got.ID)
	}
}

func TestMCPTool_PrayerTimes(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpPrayerTimes(deps)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"default location", nil, ""},
		{"coordinates", map[string]any{"latitude": 24.86, "longitude": 67.0}, ""},
		{"city", map[string]any{"city": "Lahore", "country": "Pakistan", "method": float64(1)}, ""},
		{"latitude only", map[string]any{"latitude": 24.86}, "together"},
		{"out of range", map[string]any{"latitude": 100.0, "longitude": 0.0}, "invalid coordinates"},
		{"bad method", map[string]any{"method": float64(6)}, "unknown calculation method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handler(context.Background(), makeCallToolRequest("prayer_times", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			text := toolText(t, result)
			if tt.wantErr != "" {
				if !result.IsError || !strings.Contains(text, tt.wantErr) {
					t.Fatalf("result = %q (error %v), want error containing %q", text, result.IsError, tt.wantErr)
				}
				return
			}
			if result.IsError {
				t.Fatalf("unexpected tool error: %s", text)
			}
			var resp prayerResponse
			if err := json.Unmarshal([]byte(text), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if resp.Timings["Maghrib"] != "18:29" || resp.NextPrayer == nil {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestMCPTool_PrayerTimes_DefaultLocationMethod(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpPrayerTimes(deps)

	result, err := handler(context.Background(), makeCallToolRequest("prayer_times", map[string]any{"method": float64(4)}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if _, ok := deps.Prayer.LastKnownPrayerTimes(prayer.CityQuery("Karachi", "Pakistan", 4)); !ok {
		t.Error("default location with method 4 not cached under method 4")
	}
	if _, ok := deps.Prayer.LastKnownPrayerTimes(deps.DefaultQuery); ok {
		t.Error("method 4 call was served with the default method")
	}
}

func TestMCPResource_State(t *testing.T) {
	deps, _ := newTestDeps(t)
	if _, err := deps.Engine.RotateSaying(context.Background()); err != nil {
		t.Fatalf("RotateSaying: %v", err)
	}

	contents, err := mcpResourceState(deps)(context.Background(), makeReadResourceRequest(stateResourceURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != stateResourceURI || tc.MIMEType != "application/json" {
		t.Errorf("URI = %q, MIME = %q", tc.URI, tc.MIMEType)
	}

	var st stateResponse
	if err := json.Unmarshal([]byte(tc.Text), &st); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if st.SelectedSaying == nil || st.SeenSayings != 1 || st.Dirty {
		t.Errorf("state = %+v", st)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, up := newTestDeps(t)
	verse := mcpDailyVerse(deps)
	saying := mcpDailySaying(deps)

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if r, err := verse(context.Background(), makeCallToolRequest("daily_verse", nil)); err != nil || r.IsError {
				errs <- "daily_verse failed"
			}
		}()
		go func() {
			defer wg.Done()
			if r, err := saying(context.Background(), makeCallToolRequest("daily_saying", nil)); err != nil || r.IsError {
				errs <- "daily_saying failed"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
	if got := up.ayahCalls.Load(); got != 1 {
		t.Errorf("upstream ayah calls = %d, want 1", got)
	}
}
