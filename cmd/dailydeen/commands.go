package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dailydeen/dailydeen/internal/api"
	"github.com/dailydeen/dailydeen/internal/config"
	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/storage"
)

// --- today ---

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's verse, hadith and prayer times",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/daily-content")
		if err != nil {
			return err
		}
		var content api.DailyContent
		if err := decodeJSON(resp, &content); err != nil {
			return err
		}

		if asJSON {
			return prettyJSON(os.Stdout, content)
		}
		printDailyContent(os.Stdout, content)
		return nil
	},
}

func init() {
	todayCmd.Flags().Bool("json", false, "print the raw JSON response")
}

func printDailyContent(w io.Writer, c api.DailyContent) {
	if v := c.DailyAyah; v != nil {
		fmt.Fprintln(w, heading("Verse of the day", "("+v.Reference+")"))
		fmt.Fprintln(w, v.Text)
		fmt.Fprintln(w, v.Translation)
		fmt.Fprintln(w)
	}
	if s := c.DailyHadith; s != nil {
		fmt.Fprintln(w, heading("Hadith of the day", fmt.Sprintf("(%s #%s)", s.Source, s.HadithNumber)))
		if s.Arabic != "" {
			fmt.Fprintln(w, s.Arabic)
		}
		fmt.Fprintln(w, s.Text)
		if s.Narrator != "" {
			fmt.Fprintf(w, "Narrated by %s\n", s.Narrator)
		}
		fmt.Fprintln(w)
	}
	if h := c.HijriDate; h != nil {
		fmt.Fprintln(w, heading("Hijri date", formatHijri(*h)))
	}
	if p := c.PrayerTimes; p != nil {
		printTimings(w, *p)
	}
	if c.NextPrayer != nil && c.TimeUntilNext != nil {
		printNextPrayer(w, c.NextPrayer.Name, c.NextPrayer.Time, *c.TimeUntilNext)
	}
}

// --- prayer ---

// prayerView is the subset of GET /api/prayer the CLI prints.
type prayerView struct {
	storage.PrayerTimesRecord
	NextPrayer *struct {
		Name string `json:"name"`
		Time string `json:"time"`
	} `json:"nextPrayer"`
	TimeUntilNext *prayer.Countdown `json:"timeUntilNext"`
	Stale         bool              `json:"stale"`
}

var prayerCmd = &cobra.Command{
	Use:   "prayer",
	Short: "Show today's prayer times",
	Long: `Show today's prayer times.

Examples:
  dailydeen prayer
  dailydeen prayer --city Lahore --country Pakistan
  dailydeen prayer --lat 21.4225 --lng 39.8262 --method 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		city, _ := cmd.Flags().GetString("city")
		country, _ := cmd.Flags().GetString("country")
		lat, _ := cmd.Flags().GetString("lat")
		lng, _ := cmd.Flags().GetString("lng")
		method, _ := cmd.Flags().GetInt("method")
		path, err := prayerPath(city, country, lat, lng, method)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var v prayerView
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}

		if asJSON {
			return prettyJSON(os.Stdout, v)
		}
		printTimings(os.Stdout, v.PrayerTimesRecord)
		if v.NextPrayer != nil && v.TimeUntilNext != nil {
			printNextPrayer(os.Stdout, v.NextPrayer.Name, v.NextPrayer.Time, *v.TimeUntilNext)
		}
		if v.Stale {
			printWarning("provider unavailable, showing last known times")
		}
		return nil
	},
}

func init() {
	prayerCmd.Flags().String("city", "", "city name")
	prayerCmd.Flags().String("country", "", "country name")
	prayerCmd.Flags().String("lat", "", "latitude")
	prayerCmd.Flags().String("lng", "", "longitude")
	prayerCmd.Flags().Int("method", 0, "calculation method id (0 uses the server default)")
	prayerCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// prayerPath builds the /api/prayer request. Coordinates win over a city;
// with neither the server's default location is used.
func prayerPath(city, country, lat, lng string, method int) (string, error) {
	q := url.Values{}
	switch {
	case lat != "" || lng != "":
		if lat == "" || lng == "" {
			return "", fmt.Errorf("--lat and --lng are required together")
		}
		q.Set("lat", lat)
		q.Set("lng", lng)
	case city != "":
		q.Set("city", city)
		if country != "" {
			q.Set("country", country)
		}
	case country != "":
		return "", fmt.Errorf("--country requires --city")
	}
	if method != 0 {
		q.Set("method", strconv.Itoa(method))
	}

	if len(q) == 0 {
		return "/api/prayer", nil
	}
	return "/api/prayer?" + q.Encode(), nil
}

// --- rotate ---

type rotateResult struct {
	Verse     *storage.VerseRecord  `json:"verse"`
	Saying    *storage.SayingRecord `json:"saying"`
	Persisted bool                  `json:"persisted"`
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Pick a new verse and/or hadith now",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		switch kind {
		case "verse", "saying", "all":
		default:
			return fmt.Errorf("--kind must be verse, saying or all, got %q", kind)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/admin/rotate?kind="+kind, nil)
		if err != nil {
			return err
		}
		var result rotateResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Verse != nil {
			printSuccess("Verse rotated: %s", result.Verse.Reference)
		}
		if result.Saying != nil {
			printSuccess("Hadith rotated: #%d (%s)", result.Saying.ID, result.Saying.Source)
		}
		if !result.Persisted {
			printWarning("Rotation is live but was not saved; it will be retried")
		}
		return nil
	},
}

func init() {
	rotateCmd.Flags().String("kind", "all", "what to rotate: verse, saying or all")
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the rotation history and selections",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will clear the selected content and seen history. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Resetting rotation state...")
		resp, err := client.post(cmd.Context(), "/api/admin/reset", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Rotation state %s", result["status"])
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("confirm", false, "confirm the reset")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		printStatus("Config file", "%s", config.FilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w\nvalid keys: %s", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
