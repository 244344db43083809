package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/dailydeen/dailydeen/internal/aladhan"
	"github.com/dailydeen/dailydeen/internal/api"
	"github.com/dailydeen/dailydeen/internal/config"
	"github.com/dailydeen/dailydeen/internal/hadith"
	"github.com/dailydeen/dailydeen/internal/location"
	"github.com/dailydeen/dailydeen/internal/metrics"
	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/quran"
	"github.com/dailydeen/dailydeen/internal/rotation"
	"github.com/dailydeen/dailydeen/internal/scheduler"
	"github.com/dailydeen/dailydeen/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dailydeen server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcp, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcp)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running dailydeen server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and rotation status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "dailydeen.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// stateStore is a rotation state backend that holds resources.
type stateStore interface {
	rotation.StateStore
	io.Closer
}

func openStore(cfg config.Config) (stateStore, error) {
	switch cfg.Storage.Backend {
	case "file":
		return storage.OpenFile(cfg.Storage.DataDir)
	default:
		return storage.Open(cfg.Storage.DataDir)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func runServer(withMCP bool) error {
	fmt.Fprintln(os.Stderr, versionString())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	withMCP = withMCP || cfg.MCP.Enabled

	logger := newLogger(cfg.LogLevel())
	slog.SetDefault(logger)

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("dailydeen is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("dailydeen is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	logger.Info("storage opened", "backend", cfg.Storage.Backend, "data_dir", cfg.Storage.DataDir)

	m := metrics.New()
	providerClient := func(name string) *http.Client {
		return m.InstrumentClient(name, &http.Client{Timeout: cfg.ProviderTimeout()})
	}

	sayings, err := hadith.Load()
	if err != nil {
		return fmt.Errorf("loading hadith dataset: %w", err)
	}

	quranClient := quran.NewClient(quran.Options{
		BaseURL:     cfg.Providers.QuranBaseURL,
		Edition:     cfg.Providers.QuranEdition,
		Translation: cfg.Providers.QuranTranslation,
		HTTPClient:  providerClient("quran"),
		Recorder:    m,
	})

	engine, err := rotation.New(store, quranClient, sayings, rotation.Options{
		VerseCount:   cfg.Corpus.VerseCount,
		FetchTimeout: cfg.ProviderTimeout(),
		Logger:       logger,
		Recorder:     m,
	})
	if err != nil {
		return fmt.Errorf("creating rotation engine: %w", err)
	}
	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("loading rotation state: %w", err)
	}

	prayers := prayer.NewService(aladhan.NewClient(cfg.Providers.AladhanBaseURL, providerClient("aladhan")), prayer.Options{
		TTL:      cfg.PrayerCacheTTL(),
		Method:   cfg.Prayer.Method,
		Timeout:  cfg.ProviderTimeout(),
		Recorder: m,
		Logger:   logger,
	})

	def := cfg.DefaultLocation
	resolver := location.NewResolver(location.Options{
		IPAPIBaseURL:     cfg.Providers.IPAPIBaseURL,
		NominatimBaseURL: cfg.Providers.NominatimBaseURL,
		TimezoneDBKey:    cfg.Providers.TimezoneDBAPIKey,
		UserAgent:        "dailydeen/" + version,
		HTTPClient:       providerClient("location"),
		Default: &location.Location{
			City:      def.City,
			Country:   def.Country,
			Latitude:  def.Latitude,
			Longitude: def.Longitude,
			Timezone:  def.Timezone,
		},
		Logger: logger,
	})

	defaultQuery := prayer.CityQuery(def.City, def.Country, prayers.DefaultMethod())

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(engine, prayers, scheduler.Config{
		Location:          loc,
		RotationSpec:      cfg.Schedule.RotationCron,
		PrayerRefreshSpec: cfg.Schedule.PrayerRefreshCron,
		RetryInterval:     cfg.RetryInterval(),
		DefaultQuery:      defaultQuery,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	sched.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
		if engine.Dirty() {
			if err := engine.Flush(stopCtx); err != nil {
				logger.Warn("final state flush failed", "error", err)
			}
		}
	}()

	deps := api.Deps{
		Engine:       engine,
		Quran:        quranClient,
		Hadith:       sayings,
		Prayer:       prayers,
		Location:     resolver,
		Metrics:      m,
		DefaultQuery: defaultQuery,
		Logger:       logger,
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)

	srv := &http.Server{
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "dailydeen listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("dailydeen is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop dailydeen (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to dailydeen (PID %d)", pid)
	return nil
}

// adminState mirrors the fields of GET /api/admin/state that status prints.
type adminState struct {
	SelectedVerse *struct {
		Reference string `json:"reference"`
	} `json:"selectedVerse"`
	SelectedSaying *struct {
		ID     int    `json:"id"`
		Source string `json:"source"`
	} `json:"selectedSaying"`
	LastRotationDay string `json:"lastRotationDay"`
	Dirty           bool   `json:"dirty"`
	SeenVerses      int    `json:"seenVerses"`
	SeenSayings     int    `json:"seenSayings"`
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Timezone", "%s", cfg.Schedule.Timezone)

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	var health map[string]string
	if err := decodeJSON(resp, &health); err != nil {
		printStatus("Server", "error (%v)", err)
		return nil
	}
	printStatus("Server", "running on port %d", cfg.Server.Port)

	resp, err = client.get(ctx, "/api/admin/state")
	if err != nil {
		return err
	}
	var st adminState
	if err := decodeJSON(resp, &st); err != nil {
		return err
	}
	return printState(st)
}

func printState(st adminState) error {
	last := st.LastRotationDay
	if last == "" {
		last = "never"
	}
	printStatus("Last rotation", "%s", last)
	if st.SelectedVerse != nil {
		printStatus("Verse", "%s", st.SelectedVerse.Reference)
	} else {
		printStatus("Verse", "none")
	}
	if st.SelectedSaying != nil {
		printStatus("Hadith", "#%d (%s)", st.SelectedSaying.ID, st.SelectedSaying.Source)
	} else {
		printStatus("Hadith", "none")
	}
	printStatus("Seen", "%d verses, %d hadith", st.SeenVerses, st.SeenSayings)
	if st.Dirty {
		printWarning("rotation state has unsaved changes")
	}
	return nil
}

// prettyJSON is used by --json output.
func prettyJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
