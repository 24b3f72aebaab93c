package season

import (
	"context"
	"testing"
	"time"
)

type memStore struct {
	state State
	init  bool
	puts  int
}

func (m *memStore) GetOrInit(_ context.Context, def State) (State, error) {
	if !m.init {
		m.state = def
		m.init = true
	}
	return m.state, nil
}

func (m *memStore) Put(_ context.Context, s State) error {
	m.state = s
	m.init = true
	m.puts++
	return nil
}

func machineAt(store Store, at string) *Machine {
	m := NewMachine(store, nil)
	ts, _ := time.Parse(time.RFC3339, at)
	m.now = func() time.Time { return ts }
	return m
}

func TestCurrentInitializesDefault(t *testing.T) {
	store := &memStore{}
	m := machineAt(store, "2025-10-15T10:00:00Z")

	st, err := m.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if st.Season != "202510" {
		t.Fatalf("Season = %q, want 202510", st.Season)
	}
	if st.Phase != PhaseActive {
		t.Fatalf("Phase = %q, want active", st.Phase)
	}
	if st.LockEndsAt != nil {
		t.Fatalf("LockEndsAt = %v, want nil", st.LockEndsAt)
	}
}

func TestEnterLockClampsMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		want    time.Duration
	}{
		{minutes: -3, want: time.Minute},
		{minutes: 0, want: time.Minute},
		{minutes: 15, want: 15 * time.Minute},
		{minutes: 999999, want: 10080 * time.Minute},
	}
	for _, tc := range tests {
		store := &memStore{}
		m := machineAt(store, "2025-10-15T10:00:00Z")
		st, err := m.EnterLock(context.Background(), tc.minutes)
		if err != nil {
			t.Fatalf("EnterLock(%d): %v", tc.minutes, err)
		}
		if st.Phase != PhaseLock {
			t.Fatalf("Phase = %q, want lock", st.Phase)
		}
		if st.LockEndsAt == nil {
			t.Fatal("LockEndsAt is nil")
		}
		got := st.LockEndsAt.Sub(m.now().UTC())
		if got != tc.want {
			t.Fatalf("minutes=%d lock duration = %s, want %s", tc.minutes, got, tc.want)
		}
		if st.Season != "202510" {
			t.Fatalf("manual lock must not change season, got %q", st.Season)
		}
	}
}

func TestCheckLockWindowTransitionsWithinGrace(t *testing.T) {
	// October lock starts 2025-10-27T00:00Z; the daily check fires 00:05.
	store := &memStore{}
	m := machineAt(store, "2025-10-27T00:05:00Z")

	st, transitioned, err := m.CheckLockWindow(context.Background())
	if err != nil {
		t.Fatalf("CheckLockWindow: %v", err)
	}
	if !transitioned {
		t.Fatal("expected transition into lock")
	}
	if st.Phase != PhaseLock {
		t.Fatalf("Phase = %q, want lock", st.Phase)
	}
	want, _ := time.Parse(time.RFC3339, "2025-11-01T00:05:00Z")
	if st.LockEndsAt == nil || !st.LockEndsAt.Equal(want) {
		t.Fatalf("LockEndsAt = %v, want %s", st.LockEndsAt, want)
	}
}

func TestCheckLockWindowOutsideGraceIsNoop(t *testing.T) {
	cases := []string{
		"2025-10-15T00:05:00Z", // mid-month, well before lock start
		"2025-10-26T23:59:00Z", // just before lock start
		"2025-10-27T00:15:00Z", // past the grace window
		"2025-10-28T00:05:00Z", // next day's check
	}
	for _, at := range cases {
		store := &memStore{}
		m := machineAt(store, at)
		st, transitioned, err := m.CheckLockWindow(context.Background())
		if err != nil {
			t.Fatalf("CheckLockWindow at %s: %v", at, err)
		}
		if transitioned {
			t.Fatalf("unexpected transition at %s", at)
		}
		if st.Phase != PhaseActive {
			t.Fatalf("Phase at %s = %q, want active", at, st.Phase)
		}
	}
}

func TestCheckLockWindowIdempotentWhenLocked(t *testing.T) {
	store := &memStore{}
	m := machineAt(store, "2025-10-27T00:05:00Z")

	if _, _, err := m.CheckLockWindow(context.Background()); err != nil {
		t.Fatalf("first check: %v", err)
	}
	putsAfterFirst := store.puts
	_, transitioned, err := m.CheckLockWindow(context.Background())
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if transitioned {
		t.Fatal("second check must not transition again")
	}
	if store.puts != putsAfterFirst {
		t.Fatal("second check must not write")
	}
}

func TestReopen(t *testing.T) {
	store := &memStore{}
	m := machineAt(store, "2025-10-27T00:05:00Z")
	if _, err := m.EnterLock(context.Background(), 60); err != nil {
		t.Fatalf("EnterLock: %v", err)
	}

	m2 := machineAt(store, "2025-11-01T00:05:00Z")
	st, err := m2.Reopen(context.Background(), "202511")
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if st.Phase != PhaseActive {
		t.Fatalf("Phase = %q, want active", st.Phase)
	}
	if st.Season != "202511" {
		t.Fatalf("Season = %q, want 202511", st.Season)
	}
	if st.LockEndsAt != nil {
		t.Fatalf("LockEndsAt = %v, want nil", st.LockEndsAt)
	}
}
