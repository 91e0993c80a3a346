// Package attendance decides whether a recognized person is logged again.
//
// A person is logged at most once per cool-down window. The decision reads the
// newest stored record for the name and compares it with the tracker's clock,
// so the state survives restarts and is shared by every process using the same store.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// State is the dedup state of one name at a point in time.
type State int

const (
	// Eligible means the next sighting will be logged.
	Eligible State = iota
	// Cooling means the name was logged less than one window ago.
	Cooling
)

func (s State) String() string {
	switch s {
	case Eligible:
		return "eligible"
	case Cooling:
		return "cooling"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Tracker logs attendance through a store, suppressing repeats within the window.
type Tracker struct {
	store  database.AttendanceStore
	window time.Duration
	clock  Clock
	locks  *keyedMutex
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger used for logged attendance events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker. A non-positive window falls back to the default cool-down.
func NewTracker(store database.AttendanceStore, window time.Duration, opts ...Option) *Tracker {
	if window <= 0 {
		window = constants.DefaultCooldown
	}
	t := &Tracker{
		store:  store,
		window: window,
		clock:  SystemClock{},
		locks:  newKeyedMutex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the cool-down window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Log records an attendance event for name unless it was logged within the window.
// It reports whether a record was written. Unknown and empty names are never logged
// and never touch the store.
func (t *Tracker) Log(ctx context.Context, name string) (bool, error) {
	if !loggable(name) {
		return false, nil
	}

	unlock := t.locks.Lock(name)
	defer unlock()

	now := t.clock.Now()
	state, err := t.state(ctx, name, now)
	if err != nil {
		return false, err
	}
	if state == Cooling {
		return false, nil
	}

	if err := t.store.InsertAttendance(ctx, name, now); err != nil {
		return false, fmt.Errorf("log attendance for %s: %w", name, err)
	}
	t.logger.Info("attendance logged", "name", name, "timestamp", now.Format(constants.TimestampLayout))
	return true, nil
}

// State reports whether name is currently cooling down or eligible.
func (t *Tracker) State(ctx context.Context, name string) (State, error) {
	if !loggable(name) {
		return Eligible, nil
	}
	return t.state(ctx, name, t.clock.Now())
}

func (t *Tracker) state(ctx context.Context, name string, now time.Time) (State, error) {
	last, ok, err := t.store.LastAttendance(ctx, name)
	if err != nil {
		return Eligible, fmt.Errorf("read last attendance for %s: %w", name, err)
	}
	if ok && now.Sub(last) < t.window {
		return Cooling, nil
	}
	return Eligible, nil
}

func loggable(name string) bool {
	return name != "" && name != facematch.Unknown
}
