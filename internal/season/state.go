package season

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Phase string

const (
	PhaseActive Phase = "active"
	PhaseLock   Phase = "lock"
)

const (
	// MinLockMinutes and MaxLockMinutes bound the manual lock override.
	MinLockMinutes = 1
	MaxLockMinutes = 10080 // one week

	// DefaultLockMinutes applies when an operator locks without a duration.
	DefaultLockMinutes = 15

	// lockGrace tolerates imprecise scheduling: the daily check transitions
	// into lock only when "now" has just crossed the window's lock start.
	lockGrace = 10 * time.Minute
)

// State is the persisted season document. LockEndsAt is meaningful only in
// PhaseLock.
type State struct {
	Season       string     `json:"season"`
	Phase        Phase      `json:"phase"`
	LockEndsAt   *time.Time `json:"lockEndsAt,omitempty"`
	LastChangeAt time.Time  `json:"lastChangeAt"`
}

// Store persists the singleton season document. Implementations must make
// GetOrInit race-safe: two concurrent first reads may both attempt the
// initial write, and both must come back with the same stored document.
type Store interface {
	GetOrInit(ctx context.Context, def State) (State, error)
	Put(ctx context.Context, s State) error
}

// Machine drives the active/lock transitions over a Store. It never
// observes the lock deadline itself; reopening is driven by rollover.
type Machine struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewMachine(store Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store: store,
		log:   logger,
		now:   time.Now,
	}
}

// Current returns the season state, creating the default document (current
// month key, active, no lock deadline) on first ever read.
func (m *Machine) Current(ctx context.Context) (State, error) {
	now := m.now().UTC()
	return m.store.GetOrInit(ctx, State{
		Season:       Key(now),
		Phase:        PhaseActive,
		LastChangeAt: now,
	})
}

// EnterLock applies the manual lock override: phase=lock for the given
// number of minutes, clamped to [MinLockMinutes, MaxLockMinutes]. The
// season key is untouched; this override exists for operational recovery
// and testing only.
func (m *Machine) EnterLock(ctx context.Context, minutes int) (State, error) {
	if minutes < MinLockMinutes {
		minutes = MinLockMinutes
	}
	if minutes > MaxLockMinutes {
		minutes = MaxLockMinutes
	}

	st, err := m.Current(ctx)
	if err != nil {
		return State{}, err
	}
	now := m.now().UTC()
	ends := now.Add(time.Duration(minutes) * time.Minute)
	st.Phase = PhaseLock
	st.LockEndsAt = &ends
	st.LastChangeAt = now
	if err := m.store.Put(ctx, st); err != nil {
		return State{}, fmt.Errorf("persist lock state: %w", err)
	}
	m.log.Info("season locked manually", "season", st.Season, "minutes", minutes, "lock_ends_at", ends)
	return st, nil
}

// CheckLockWindow is the scheduled active->lock trigger. It transitions
// only when "now" is within the grace window after the clock's lock start;
// running it twice, or concurrently with a manual lock, re-writes the same
// state. Returns the (possibly unchanged) state and whether it transitioned.
func (m *Machine) CheckLockWindow(ctx context.Context) (State, bool, error) {
	st, err := m.Current(ctx)
	if err != nil {
		return State{}, false, err
	}
	if st.Phase == PhaseLock {
		return st, false, nil
	}

	now := m.now().UTC()
	w := WindowFor(now)
	if now.Before(w.LockStartAt) || !now.Before(w.LockStartAt.Add(lockGrace)) {
		return st, false, nil
	}

	ends := w.LockEndAt
	st.Phase = PhaseLock
	st.LockEndsAt = &ends
	st.LastChangeAt = now
	if err := m.store.Put(ctx, st); err != nil {
		return State{}, false, fmt.Errorf("persist lock state: %w", err)
	}
	m.log.Info("season lock window entered", "season", st.Season, "lock_ends_at", ends)
	return st, true, nil
}

// Reopen performs lock->active with the newly current month key. Only the
// rollover component calls this, after the closing season is snapshotted.
func (m *Machine) Reopen(ctx context.Context, newSeason string) (State, error) {
	st, err := m.Current(ctx)
	if err != nil {
		return State{}, err
	}
	now := m.now().UTC()
	st.Season = newSeason
	st.Phase = PhaseActive
	st.LockEndsAt = nil
	st.LastChangeAt = now
	if err := m.store.Put(ctx, st); err != nil {
		return State{}, fmt.Errorf("persist reopen state: %w", err)
	}
	m.log.Info("season reopened", "season", newSeason)
	return st, nil
}
