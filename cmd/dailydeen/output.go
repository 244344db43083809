package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// heading renders a bold section title followed by its detail.
func heading(title, detail string) string {
	return colorize(colorBold, title) + "  " + detail
}

// formatCountdown renders a countdown as "2h 5m", or "5m" under an hour.
func formatCountdown(c prayer.Countdown) string {
	if c.Hours == 0 {
		return fmt.Sprintf("%dm", c.Minutes)
	}
	return fmt.Sprintf("%dh %dm", c.Hours, c.Minutes)
}

func formatHijri(h storage.CalendarDateRecord) string {
	return fmt.Sprintf("%d %s %d %s", h.Day, h.MonthName, h.Year, h.Designation)
}

// printTimings writes the five daily prayers in order under a heading naming
// the place, falling back to coordinates when the record has no city.
func printTimings(w io.Writer, rec storage.PrayerTimesRecord) {
	where := rec.Meta.City
	if where == "" {
		where = fmt.Sprintf("%.4f,%.4f", rec.Meta.Latitude, rec.Meta.Longitude)
	}
	fmt.Fprintln(w, heading("Prayer times", where+", "+rec.Date))
	for _, p := range prayer.Order {
		fmt.Fprintf(w, "  %-8s %s\n", p, rec.Timings[string(p)])
	}
}

func printNextPrayer(w io.Writer, name, at string, until prayer.Countdown) {
	fmt.Fprintf(w, "Next: %s at %s (in %s)\n", colorize(colorCyan, name), at, formatCountdown(until))
}
