// Package store persists season state, the live ranking view and season
// snapshots as JSONB documents in Postgres, and reads player balances from
// the economy-owned players table. Each document type is a small keyed
// table; writers replace the whole document (last writer wins).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coinrush/internal/leaderboard"
	"coinrush/internal/season"
)

const (
	seasonStateKey = "current"
	rankingViewKey = "live"
)

// SeasonStore holds the singleton season state document.
type SeasonStore struct {
	db *pgxpool.Pool
}

func NewSeasonStore(db *pgxpool.Pool) *SeasonStore {
	return &SeasonStore{db: db}
}

// GetOrInit returns the current state document, inserting def if none
// exists yet. The insert uses ON CONFLICT DO NOTHING and re-reads, so two
// racing initializers agree on a single winner.
func (s *SeasonStore) GetOrInit(ctx context.Context, def season.State) (season.State, error) {
	st, ok, err := s.get(ctx)
	if err != nil {
		return season.State{}, err
	}
	if ok {
		return st, nil
	}

	doc, err := json.Marshal(def)
	if err != nil {
		return season.State{}, fmt.Errorf("encode season state: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO game.season_state (key, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO NOTHING
	`, seasonStateKey, doc)
	if err != nil {
		return season.State{}, fmt.Errorf("init season state: %w", err)
	}

	st, ok, err = s.get(ctx)
	if err != nil {
		return season.State{}, err
	}
	if !ok {
		return season.State{}, fmt.Errorf("season state vanished after init")
	}
	return st, nil
}

func (s *SeasonStore) get(ctx context.Context) (season.State, bool, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `
		SELECT doc
		FROM game.season_state
		WHERE key = $1
	`, seasonStateKey).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return season.State{}, false, nil
	}
	if err != nil {
		return season.State{}, false, fmt.Errorf("read season state: %w", err)
	}

	var st season.State
	if err := json.Unmarshal(doc, &st); err != nil {
		return season.State{}, false, fmt.Errorf("%w: season state: %v", leaderboard.ErrMalformed, err)
	}
	return st, true, nil
}

func (s *SeasonStore) Put(ctx context.Context, st season.State) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode season state: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO game.season_state (key, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, seasonStateKey, doc)
	if err != nil {
		return fmt.Errorf("write season state: %w", err)
	}
	return nil
}

// RankingStore holds the singleton live leaderboard view document.
type RankingStore struct {
	db *pgxpool.Pool
}

func NewRankingStore(db *pgxpool.Pool) *RankingStore {
	return &RankingStore{db: db}
}

func (s *RankingStore) Get(ctx context.Context) (leaderboard.View, bool, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `
		SELECT doc
		FROM game.leaderboard_view
		WHERE key = $1
	`, rankingViewKey).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return leaderboard.View{}, false, nil
	}
	if err != nil {
		return leaderboard.View{}, false, fmt.Errorf("read ranking view: %w", err)
	}

	var v leaderboard.View
	if err := json.Unmarshal(doc, &v); err != nil {
		return leaderboard.View{}, false, fmt.Errorf("%w: ranking view: %v", leaderboard.ErrMalformed, err)
	}
	return v, true, nil
}

func (s *RankingStore) Put(ctx context.Context, v leaderboard.View) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode ranking view: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO game.leaderboard_view (key, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, rankingViewKey, doc)
	if err != nil {
		return fmt.Errorf("write ranking view: %w", err)
	}
	return nil
}

// SnapshotStore holds one frozen ranking document per closed season.
type SnapshotStore struct {
	db *pgxpool.Pool
}

func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Get(ctx context.Context, seasonKey string) (leaderboard.Snapshot, bool, error) {
	var (
		doc      []byte
		closedAt time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT doc, closed_at
		FROM game.season_snapshots
		WHERE season = $1
	`, seasonKey).Scan(&doc, &closedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return leaderboard.Snapshot{}, false, nil
	}
	if err != nil {
		return leaderboard.Snapshot{}, false, fmt.Errorf("read snapshot %s: %w", seasonKey, err)
	}

	var snap leaderboard.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return leaderboard.Snapshot{}, false, fmt.Errorf("%w: snapshot %s: %v", leaderboard.ErrMalformed, seasonKey, err)
	}
	snap.Season = seasonKey
	snap.ClosedAt = closedAt.UTC()
	return snap, true, nil
}

func (s *SnapshotStore) Put(ctx context.Context, snap leaderboard.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Season, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO game.season_snapshots (season, doc, closed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (season) DO UPDATE SET doc = EXCLUDED.doc, closed_at = EXCLUDED.closed_at
	`, snap.Season, doc, snap.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.Season, err)
	}
	return nil
}

// Balances reads player coin balances. The players table is owned by the
// economy subsystem; everything here is read-only.
type Balances struct {
	db *pgxpool.Pool
}

func NewBalances(db *pgxpool.Pool) *Balances {
	return &Balances{db: db}
}

func (s *Balances) TopBalances(ctx context.Context, limit int) ([]leaderboard.Balance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT player_id, coins
		FROM game.players
		ORDER BY coins DESC, player_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("read top balances: %w", err)
	}
	defer rows.Close()

	out := make([]leaderboard.Balance, 0, limit)
	for rows.Next() {
		var b leaderboard.Balance
		if err := rows.Scan(&b.Actor, &b.Coins); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return out, nil
}

func (s *Balances) CountRicher(ctx context.Context, coins int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM game.players
		WHERE coins > $1
	`, coins).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count richer players: %w", err)
	}
	return n, nil
}

func (s *Balances) Balance(ctx context.Context, actor string) (int64, bool, error) {
	var coins int64
	err := s.db.QueryRow(ctx, `
		SELECT coins
		FROM game.players
		WHERE player_id = $1
	`, actor).Scan(&coins)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read balance for %s: %w", actor, err)
	}
	return coins, true, nil
}
