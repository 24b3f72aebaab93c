package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"coinrush/internal/metrics"
	"coinrush/internal/season"
)

// Rollover closes a season (immutable snapshot of its final ranking) and
// opens the next (view reset, state machine reopen). The two writes are not
// atomic; a crash in between leaves a snapshotted season with a stale view,
// which the next Refresh self-heals by rewriting the view's season key.
type Rollover struct {
	engine   *Engine
	machine  *season.Machine
	ranking  RankingStore
	snaps    SnapshotStore
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// CloseResult reports what CloseCurrent froze.
type CloseResult struct {
	Season string `json:"season"`
	Count  int    `json:"count"`
}

// OpenResult reports a completed rollover.
type OpenResult struct {
	State  season.State `json:"state"`
	Closed string       `json:"closed"`
	Opened string       `json:"opened"`
}

func NewRollover(engine *Engine, machine *season.Machine, ranking RankingStore, snaps SnapshotStore, notifier Notifier, logger *slog.Logger) *Rollover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rollover{
		engine:   engine,
		machine:  machine,
		ranking:  ranking,
		snaps:    snaps,
		notifier: notifier,
		log:      logger,
		now:      time.Now,
	}
}

// SnapshotSeason freezes seasonKey's final ranking and resets the live view
// for the now-current season. Payload precedence: a supplied well-formed
// payload, else the live view, else a fresh Refresh. A snapshot already
// holding real data is never overwritten with a different ranking; re-runs
// are idempotent no-ops.
func (r *Rollover) SnapshotSeason(ctx context.Context, seasonKey string, payload *View) (Snapshot, error) {
	if existing, ok, err := r.snaps.Get(ctx, seasonKey); err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot %s: %w", seasonKey, err)
	} else if ok && len(existing.TopPlayers) > 0 {
		r.log.Info("season already snapshotted", "season", seasonKey, "entries", len(existing.TopPlayers))
		return existing, nil
	}

	entries, err := r.resolvePayload(ctx, payload)
	if err != nil {
		return Snapshot{}, err
	}

	now := r.now().UTC()
	snap := Snapshot{Season: seasonKey, TopPlayers: entries, ClosedAt: now}
	if err := r.snaps.Put(ctx, snap); err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot %s: %w", seasonKey, err)
	}
	metrics.RecordSnapshot()

	// Reset only the cached ranking; player balances belong to the economy
	// subsystem and are never touched here.
	reset := View{
		Season:      season.Key(now),
		TopPlayers:  []Entry{},
		LastUpdated: now,
		LastSeason:  seasonKey,
	}
	if err := r.ranking.Put(ctx, reset); err != nil {
		return Snapshot{}, fmt.Errorf("reset ranking view: %w", err)
	}

	r.log.Info("season snapshotted", "season", seasonKey, "entries", len(entries))
	return snap, nil
}

func (r *Rollover) resolvePayload(ctx context.Context, payload *View) ([]Entry, error) {
	if payload != nil && payload.TopPlayers != nil && wellFormed(payload.TopPlayers) {
		return payload.TopPlayers, nil
	}
	v, ok, err := r.ranking.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ranking view: %w", err)
	}
	if ok && v.TopPlayers != nil && wellFormed(v.TopPlayers) {
		return v.TopPlayers, nil
	}
	v, err = r.engine.Refresh(ctx, DefaultLimit)
	if err != nil {
		return nil, fmt.Errorf("fallback refresh: %w", err)
	}
	return v.TopPlayers, nil
}

// CloseCurrent snapshots whatever season the state machine points at, for
// operational "close it now" use. It does not reopen.
func (r *Rollover) CloseCurrent(ctx context.Context) (CloseResult, error) {
	st, err := r.machine.Current(ctx)
	if err != nil {
		return CloseResult{}, err
	}
	snap, err := r.SnapshotSeason(ctx, st.Season, nil)
	if err != nil {
		return CloseResult{}, err
	}
	r.announce(ctx, snap)
	return CloseResult{Season: snap.Season, Count: len(snap.TopPlayers)}, nil
}

// OpenNewSeason is the single operation that both closes the old season and
// reopens the new one. The closing key is derived from the last minute of
// the previous month, so the scheduled run just after midnight on the 1st
// names the right season even exactly at the boundary. Snapshot and state
// transition are one coherent job: a concurrent duplicate run re-derives
// the same key and performs harmless idempotent re-writes.
func (r *Rollover) OpenNewSeason(ctx context.Context) (OpenResult, error) {
	now := r.now().UTC()
	closing := season.PrevKey(now)
	opening := season.Key(now)

	snap, err := r.SnapshotSeason(ctx, closing, nil)
	if err != nil {
		return OpenResult{}, err
	}

	st, err := r.machine.Reopen(ctx, opening)
	if err != nil {
		return OpenResult{}, fmt.Errorf("reopen season %s: %w", opening, err)
	}
	metrics.RecordRollover()
	r.announce(ctx, snap)

	r.log.Info("season rolled over", "closed", closing, "opened", opening, "entries", len(snap.TopPlayers))
	return OpenResult{State: st, Closed: closing, Opened: opening}, nil
}

func (r *Rollover) announce(ctx context.Context, snap Snapshot) {
	if r.notifier == nil {
		return
	}
	r.notifier.SeasonClosed(ctx, snap)
}
