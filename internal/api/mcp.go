package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dailydeen/dailydeen/internal/prayer"
)

const stateResourceURI = "daily://state"

// NewMCPServer creates an MCP server exposing today's content and prayer
// times as tools and the rotation state as a resource.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"dailydeen",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("dailydeen: today's verse and saying, prayer times and the Hijri date."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("daily_verse",
			mcp.WithDescription("Return today's Quran verse with its Urdu translation and reference."),
		),
		mcpDailyVerse(deps),
	)

	s.AddTool(
		mcp.NewTool("daily_saying",
			mcp.WithDescription("Return today's hadith with its Arabic text, source and narrator."),
		),
		mcpDailySaying(deps),
	)

	s.AddTool(
		mcp.NewTool("prayer_times",
			mcp.WithDescription("Return today's prayer times with the current and next prayer. "+
				"Give latitude and longitude, or city and country; with neither the default location is used."),
			mcp.WithNumber("latitude", mcp.Description("Latitude in decimal degrees")),
			mcp.WithNumber("longitude", mcp.Description("Longitude in decimal degrees")),
			mcp.WithString("city", mcp.Description("City name")),
			mcp.WithString("country", mcp.Description("Country name")),
			mcp.WithNumber("method", mcp.Description("Calculation method id (default from config)")),
		),
		mcpPrayerTimes(deps),
	)

	s.AddResource(
		mcp.NewResource(
			stateResourceURI,
			"Daily Rotation State",
			mcp.WithResourceDescription("Selected verse and saying, seen counts and last rotation day as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceState(deps),
	)

	return s
}

func mcpDailyVerse(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		v, ok := dailyVerse(ctx, deps)
		if !ok {
			return mcpError("daily verse unavailable"), nil
		}
		return mcpJSON(v)
	}
}

func mcpDailySaying(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, ok := dailySaying(ctx, deps)
		if !ok {
			return mcpError("daily saying unavailable"), nil
		}
		return mcpJSON(s)
	}
}

func mcpPrayerTimes(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		method := req.GetInt("method", deps.Prayer.DefaultMethod())
		if !prayer.ValidMethod(method) {
			return mcpError(fmt.Sprintf("unknown calculation method %d", method)), nil
		}

		q := deps.DefaultQuery
		args := req.GetArguments()
		_, hasLat := args["latitude"]
		_, hasLng := args["longitude"]
		city := strings.TrimSpace(req.GetString("city", ""))
		switch {
		case hasLat || hasLng:
			if !hasLat || !hasLng {
				return mcpError("latitude and longitude must be given together"), nil
			}
			lat, lng := req.GetFloat("latitude", 0), req.GetFloat("longitude", 0)
			if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
				return mcpError(fmt.Sprintf("invalid coordinates %v,%v", lat, lng)), nil
			}
			q = prayer.CoordsQuery(lat, lng, method)
		case city != "":
			q = prayer.CityQuery(city, req.GetString("country", ""), method)
		default:
			q.Method = method
		}

		rec, stale, ok := prayerTimes(ctx, deps, q)
		if !ok {
			return mcpError(fmt.Sprintf("prayer times unavailable for %s", q.Key())), nil
		}
		return mcpJSON(withStatus(deps, rec, stale))
	}
}

func mcpResourceState(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st := deps.Engine.Snapshot()
		b, err := json.Marshal(stateResponse{
			RotationState: st,
			Dirty:         deps.Engine.Dirty(),
			SeenVerses:    len(st.SeenVerseIndices),
			SeenSayings:   len(st.SeenSayingIndices),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal state: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
