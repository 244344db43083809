// Package rotation owns the single "today" state: the selected verse and
// saying, the no-repeat seen sets and the last rotation day.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dailydeen/dailydeen/internal/sampler"
	"github.com/dailydeen/dailydeen/internal/storage"
)

var (
	// ErrContentFetchFailed is returned when the verse provider could not
	// deliver the sampled item. State is left unchanged.
	ErrContentFetchFailed = errors.New("content fetch failed")

	// ErrStorageWriteFailed is returned when the new state was published in
	// memory but could not be persisted. The write is retried on the next
	// mutation or Flush.
	ErrStorageWriteFailed = errors.New("storage write failed")
)

// DefaultVerseCount is the number of ayahs in the Quran.
const DefaultVerseCount = 6236

const (
	KindVerse  = "verse"
	KindSaying = "saying"
	KindDaily  = "daily"
)

// StateStore persists the rotation record. Implemented by storage.Store and
// storage.FileStore.
type StateStore interface {
	LoadState(ctx context.Context) (storage.RotationState, error)
	SaveState(ctx context.Context, st storage.RotationState) error
}

// VerseProvider fetches a verse by its 1-based global number.
type VerseProvider interface {
	Ayah(ctx context.Context, number int) (storage.VerseRecord, error)
}

// SayingCorpus is the in-process saying dataset.
type SayingCorpus interface {
	Count() int
	Saying(index int) (storage.SayingRecord, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Recorder receives rotation outcomes. Implemented by metrics.Metrics.
type Recorder interface {
	ObserveRotation(kind string, err error)
	ObserveStateWrite(err error)
	ObserveCycleReset(kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRotation(string, error) {}
func (nopRecorder) ObserveStateWrite(error)       {}
func (nopRecorder) ObserveCycleReset(string)      {}

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	VerseCount   int
	FetchTimeout time.Duration
	Clock        Clock
	Rand         sampler.Source
	Logger       *slog.Logger
	Recorder     Recorder
}

// Engine serializes all mutations of the rotation state behind one mutex and
// publishes copies to readers, so reads never wait on a provider fetch.
type Engine struct {
	store   StateStore
	verses  VerseProvider
	sayings SayingCorpus

	verseCount   int
	fetchTimeout time.Duration
	clock        Clock
	rng          sampler.Source
	logger       *slog.Logger
	rec          Recorder

	mu    sync.Mutex // serializes mutators, guards rng and dirty
	dirty bool

	stateMu sync.RWMutex
	state   storage.RotationState
}

// New creates an Engine. It fails if the saying corpus is empty.
func New(store StateStore, verses VerseProvider, sayings SayingCorpus, opts Options) (*Engine, error) {
	if sayings == nil || sayings.Count() == 0 {
		return nil, fmt.Errorf("saying corpus: %w", sampler.ErrCorpusEmpty)
	}
	if opts.VerseCount <= 0 {
		opts.VerseCount = DefaultVerseCount
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Engine{
		store:        store,
		verses:       verses,
		sayings:      sayings,
		verseCount:   opts.VerseCount,
		fetchTimeout: opts.FetchTimeout,
		clock:        opts.Clock,
		rng:          opts.Rand,
		logger:       opts.Logger,
		rec:          opts.Recorder,
		state:        storage.RotationState{}.Clone(),
	}, nil
}

// Load reads the persisted state. A missing record starts from defaults.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.store.LoadState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Info("no rotation state found, starting fresh")
		e.publish(storage.RotationState{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading rotation state: %w", err)
	}
	st.SeenVerseIndices = inRange(st.SeenVerseIndices, e.verseCount)
	st.SeenSayingIndices = inRange(st.SeenSayingIndices, e.sayings.Count())
	e.publish(st)
	e.logger.Info("rotation state loaded",
		"last_rotation_day", st.LastRotationDay,
		"seen_verses", len(st.SeenVerseIndices),
		"seen_sayings", len(st.SeenSayingIndices),
	)
	return nil
}

// InitializeForToday rotates both items when the last rotation happened before
// today, persisting the result once. It reports whether a rotation happened.
// Calling it again for the same day is a no-op; an earlier day is logged and
// ignored.
func (e *Engine) InitializeForToday(ctx context.Context, today storage.Day) (bool, error) {
	if !today.Valid() {
		return false, fmt.Errorf("invalid day %q", today)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current()
	if !cur.LastRotationDay.Before(today) {
		if today.Before(cur.LastRotationDay) {
			e.logger.Warn("rotation requested for a day before the last rotation, ignoring",
				"requested", today, "last_rotation_day", cur.LastRotationDay)
		}
		return false, nil
	}

	next := cur.Clone()
	verse, seenV, err := e.pickVerse(ctx, cur.SeenVerseIndices)
	if err != nil {
		e.rec.ObserveRotation(KindDaily, err)
		return false, err
	}
	saying, seenS, err := e.pickSaying(cur.SeenSayingIndices)
	if err != nil {
		e.rec.ObserveRotation(KindDaily, err)
		return false, err
	}
	next.SelectedVerse, next.SeenVerseIndices = &verse, seenV
	next.SelectedSaying, next.SeenSayingIndices = &saying, seenS
	next.LastRotationDay = today

	err = e.commit(ctx, next)
	e.rec.ObserveRotation(KindDaily, err)
	e.logger.Info("daily content rotated",
		"day", today, "verse", verse.Reference, "saying_id", saying.ID)
	return true, err
}

// RotateVerse selects, fetches and persists a new verse.
func (e *Engine) RotateVerse(ctx context.Context) (storage.VerseRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotateVerseLocked(ctx)
}

// RotateSaying selects and persists a new saying.
func (e *Engine) RotateSaying(ctx context.Context) (storage.SayingRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotateSayingLocked(ctx)
}

// DailyVerse returns the current verse, if any.
func (e *Engine) DailyVerse() (storage.VerseRecord, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if e.state.SelectedVerse == nil {
		return storage.VerseRecord{}, false
	}
	return *e.state.SelectedVerse, true
}

// DailySaying returns the current saying, if any.
func (e *Engine) DailySaying() (storage.SayingRecord, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if e.state.SelectedSaying == nil {
		return storage.SayingRecord{}, false
	}
	return *e.state.SelectedSaying, true
}

// DailyVerseOrRotate returns the current verse, rotating first when none is
// selected. Concurrent callers rotate at most once.
func (e *Engine) DailyVerseOrRotate(ctx context.Context) (storage.VerseRecord, error) {
	if v, ok := e.DailyVerse(); ok {
		return v, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.DailyVerse(); ok {
		return v, nil
	}
	return e.rotateVerseLocked(ctx)
}

// DailySayingOrRotate is the saying counterpart of DailyVerseOrRotate.
func (e *Engine) DailySayingOrRotate(ctx context.Context) (storage.SayingRecord, error) {
	if s, ok := e.DailySaying(); ok {
		return s, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.DailySaying(); ok {
		return s, nil
	}
	return e.rotateSayingLocked(ctx)
}

// ResetAll clears every field and persists the empty record.
func (e *Engine) ResetAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger.Info("resetting rotation state")
	return e.commit(ctx, storage.RotationState{})
}

// RecordPrayerTimes stores the last-known-good prayer times snapshot.
func (e *Engine) RecordPrayerTimes(ctx context.Context, rec storage.PrayerTimesRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.current()
	next.CachedPrayerTimes = &rec
	return e.commit(ctx, next)
}

// RecordCalendarDate stores the last-known-good calendar date snapshot.
func (e *Engine) RecordCalendarDate(ctx context.Context, rec storage.CalendarDateRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.current()
	next.CachedCalendarDate = &rec
	return e.commit(ctx, next)
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() storage.RotationState {
	return e.current()
}

// LastRotationDay returns the day of the last successful daily rotation.
func (e *Engine) LastRotationDay() storage.Day {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state.LastRotationDay
}

// Flush retries a pending write left by an earlier storage failure.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return nil
	}
	return e.persist(ctx, e.current())
}

// Dirty reports whether the in-memory state is ahead of the store.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

func (e *Engine) rotateVerseLocked(ctx context.Context) (storage.VerseRecord, error) {
	cur := e.current()
	verse, seen, err := e.pickVerse(ctx, cur.SeenVerseIndices)
	if err != nil {
		e.rec.ObserveRotation(KindVerse, err)
		return storage.VerseRecord{}, err
	}
	next := cur
	next.SelectedVerse, next.SeenVerseIndices = &verse, seen

	err = e.commit(ctx, next)
	e.rec.ObserveRotation(KindVerse, err)
	e.logger.Info("verse rotated", "reference", verse.Reference, "seen", len(seen))
	return verse, err
}

func (e *Engine) rotateSayingLocked(ctx context.Context) (storage.SayingRecord, error) {
	cur := e.current()
	saying, seen, err := e.pickSaying(cur.SeenSayingIndices)
	if err != nil {
		e.rec.ObserveRotation(KindSaying, err)
		return storage.SayingRecord{}, err
	}
	next := cur
	next.SelectedSaying, next.SeenSayingIndices = &saying, seen

	err = e.commit(ctx, next)
	e.rec.ObserveRotation(KindSaying, err)
	e.logger.Info("saying rotated", "id", saying.ID, "seen", len(seen))
	return saying, err
}

// pickVerse samples an unseen index and fetches ayah index+1. Must hold e.mu.
func (e *Engine) pickVerse(ctx context.Context, seen []int) (storage.VerseRecord, []int, error) {
	cycleDone := sampler.Exhausted(e.verseCount, seen)
	idx, nextSeen, err := sampler.PickUnseen(e.verseCount, seen, e.rng)
	if err != nil {
		return storage.VerseRecord{}, nil, err
	}

	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	verse, err := e.verses.Ayah(fctx, idx+1)
	if err != nil {
		e.logger.Warn("verse fetch failed", "number", idx+1, "error", err)
		return storage.VerseRecord{}, nil, fmt.Errorf("%w: ayah %d: %w", ErrContentFetchFailed, idx+1, err)
	}
	verse.SelectedAt = e.clock.Now()
	if cycleDone {
		e.cycleReset(KindVerse, e.verseCount)
	}
	return verse, nextSeen, nil
}

// pickSaying samples an unseen saying. Must hold e.mu.
func (e *Engine) pickSaying(seen []int) (storage.SayingRecord, []int, error) {
	cycleDone := sampler.Exhausted(e.sayings.Count(), seen)
	idx, nextSeen, err := sampler.PickUnseen(e.sayings.Count(), seen, e.rng)
	if err != nil {
		return storage.SayingRecord{}, nil, err
	}
	saying, err := e.sayings.Saying(idx)
	if err != nil {
		return storage.SayingRecord{}, nil, fmt.Errorf("%w: saying %d: %w", ErrContentFetchFailed, idx, err)
	}
	saying.SelectedAt = e.clock.Now()
	if cycleDone {
		e.cycleReset(KindSaying, e.sayings.Count())
	}
	return saying, nextSeen, nil
}

// cycleReset records a pick that cleared a full seen set and started a new
// cycle.
func (e *Engine) cycleReset(kind string, n int) {
	e.logger.Info("rotation cycle complete, clearing seen set", "kind", kind, "corpus", n)
	e.rec.ObserveCycleReset(kind)
}

// commit publishes next to readers, then writes it through. On a write
// failure the engine stays dirty and the published state is kept. Must hold
// e.mu.
func (e *Engine) commit(ctx context.Context, next storage.RotationState) error {
	e.publish(next)
	return e.persist(ctx, next)
}

func (e *Engine) persist(ctx context.Context, st storage.RotationState) error {
	// A caller giving up must not abort the durable write.
	err := e.store.SaveState(context.WithoutCancel(ctx), st)
	e.rec.ObserveStateWrite(err)
	if err != nil {
		e.dirty = true
		e.logger.Error("persisting rotation state", "error", err)
		return fmt.Errorf("%w: %w", ErrStorageWriteFailed, err)
	}
	e.dirty = false
	return nil
}

func (e *Engine) publish(st storage.RotationState) {
	cp := st.Clone()
	e.stateMu.Lock()
	e.state = cp
	e.stateMu.Unlock()
}

func (e *Engine) current() storage.RotationState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state.Clone()
}

func inRange(idx []int, n int) []int {
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < n {
			out = append(out, i)
		}
	}
	return out
}
