// Package scheduler decides when the daily rotation and the prayer times
// refresh run, and drives them from cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dailydeen/dailydeen/internal/prayer"
	"github.com/dailydeen/dailydeen/internal/storage"
)

const (
	DefaultRotationSpec      = "0 0 * * *"
	DefaultPrayerRefreshSpec = "0 1 * * *"
	DefaultRetryInterval     = 15 * time.Minute

	pruneSpec = "@hourly"
)

// NeedsRotation reports whether a rotation is due: the last rotation happened
// on an earlier day, or never.
func NeedsRotation(last, today storage.Day) bool {
	return last.Before(today)
}

// Today returns the calendar day of now in loc.
func Today(now time.Time, loc *time.Location) storage.Day {
	return storage.DayOf(now.In(loc))
}

// Rotator is the part of rotation.Engine the scheduler drives.
type Rotator interface {
	InitializeForToday(ctx context.Context, today storage.Day) (bool, error)
	LastRotationDay() storage.Day
	Dirty() bool
	Flush(ctx context.Context) error
	RecordPrayerTimes(ctx context.Context, rec storage.PrayerTimesRecord) error
	RecordCalendarDate(ctx context.Context, rec storage.CalendarDateRecord) error
}

// PrayerRefresher is the part of prayer.Service the scheduler drives.
type PrayerRefresher interface {
	ClearCache()
	PruneExpired() int
	GetOrFetchPrayerTimes(ctx context.Context, q prayer.Query) (storage.PrayerTimesRecord, error)
	GetOrFetchCalendarDate(ctx context.Context) (storage.CalendarDateRecord, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds the schedule. Zero values select the defaults.
type Config struct {
	Location          *time.Location
	RotationSpec      string
	PrayerRefreshSpec string
	RetryInterval     time.Duration
	// DefaultQuery is the location whose prayer times are refreshed and
	// recorded as the last-known-good snapshot.
	DefaultQuery prayer.Query
	Clock        Clock
	Logger       *slog.Logger
}

// Scheduler runs the periodic jobs.
type Scheduler struct {
	rotator Rotator
	prayers PrayerRefresher
	cfg     Config
	cron    *cron.Cron
	logger  *slog.Logger

	ctx context.Context
}

// New validates cfg and registers the jobs. Nothing runs until Start.
func New(rotator Rotator, prayers PrayerRefresher, cfg Config) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RotationSpec == "" {
		cfg.RotationSpec = DefaultRotationSpec
	}
	if cfg.PrayerRefreshSpec == "" {
		cfg.PrayerRefreshSpec = DefaultPrayerRefreshSpec
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cl := cronLogger{cfg.Logger}
	s := &Scheduler{
		rotator: rotator,
		prayers: prayers,
		cfg:     cfg,
		logger:  cfg.Logger,
		ctx:     context.Background(),
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
	}

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"rotation", cfg.RotationSpec, s.rotateJob},
		{"rotation catch-up", "@every " + cfg.RetryInterval.String(), s.rotateJob},
		{"prayer refresh", cfg.PrayerRefreshSpec, s.refreshJob},
		{"cache prune", pruneSpec, s.pruneJob},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("scheduling %s %q: %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

// Start runs the startup rotation, then starts the cron jobs. ctx bounds every
// job run; cancel it and call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	if _, err := s.RotateIfDue(ctx); err != nil {
		s.logger.Warn("startup rotation failed, catch-up job will retry", "error", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		"location", s.cfg.Location.String(),
		"rotation", s.cfg.RotationSpec,
		"prayer_refresh", s.cfg.PrayerRefreshSpec,
		"retry_interval", s.cfg.RetryInterval,
	)
}

// Stop stops scheduling and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

// JobCount returns the number of registered cron entries.
func (s *Scheduler) JobCount() int {
	return len(s.cron.Entries())
}

// RotateIfDue rotates when the last rotation day is before today in the
// configured zone. When no rotation is due it retries any pending state write.
func (s *Scheduler) RotateIfDue(ctx context.Context) (bool, error) {
	today := Today(s.cfg.Clock.Now(), s.cfg.Location)
	if !NeedsRotation(s.rotator.LastRotationDay(), today) {
		if s.rotator.Dirty() {
			return false, s.rotator.Flush(ctx)
		}
		return false, nil
	}
	return s.rotator.InitializeForToday(ctx, today)
}

// RefreshPrayerTimes drops cached prayer data, fetches the default location's
// timings and Hijri date, and records both as the last-known-good snapshot.
// Both fetches are attempted even if one fails.
func (s *Scheduler) RefreshPrayerTimes(ctx context.Context) error {
	s.prayers.ClearCache()

	var errs []error
	times, err := s.prayers.GetOrFetchPrayerTimes(ctx, s.cfg.DefaultQuery)
	if err != nil {
		errs = append(errs, fmt.Errorf("prayer times: %w", err))
	} else if err := s.rotator.RecordPrayerTimes(ctx, times); err != nil {
		errs = append(errs, err)
	}

	date, err := s.prayers.GetOrFetchCalendarDate(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("calendar date: %w", err))
	} else if err := s.rotator.RecordCalendarDate(ctx, date); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) rotateJob() {
	rotated, err := s.RotateIfDue(s.ctx)
	if err != nil {
		s.logger.Error("scheduled rotation failed", "error", err)
		return
	}
	if rotated {
		s.logger.Info("scheduled rotation complete", "day", s.rotator.LastRotationDay())
	}
}

func (s *Scheduler) refreshJob() {
	if err := s.RefreshPrayerTimes(s.ctx); err != nil {
		s.logger.Error("prayer times refresh failed", "error", err)
		return
	}
	s.logger.Info("prayer times refreshed")
}

func (s *Scheduler) pruneJob() {
	if n := s.prayers.PruneExpired(); n > 0 {
		s.logger.Debug("pruned expired cache entries", "count", n)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
