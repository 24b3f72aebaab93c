package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"coinrush/internal/metrics"
	"coinrush/internal/season"
)

// Engine recomputes the live ranking from player balances and answers
// leaderboard queries. Every operation is a stateless recomputation safe to
// run twice or concurrently; divergence is bounded by last-writer-wins on
// the single view document.
type Engine struct {
	balances  BalanceSource
	ranking   RankingStore
	snapshots SnapshotStore
	log       *slog.Logger
	now       func() time.Time
}

func NewEngine(balances BalanceSource, ranking RankingStore, snapshots SnapshotStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		balances:  balances,
		ranking:   ranking,
		snapshots: snapshots,
		log:       logger,
		now:       time.Now,
	}
}

// Refresh recomputes the top-N from balances and merge-writes the live view
// stamped with the clock's current month key. The limit is clamped into
// [1, MaxLimit]. LastSeason carries over from the stored view so the most
// recently closed season stays addressable across refreshes.
func (e *Engine) Refresh(ctx context.Context, limit int) (View, error) {
	limit = ClampLimit(limit)
	now := e.now().UTC()

	top, err := e.balances.TopBalances(ctx, limit)
	if err != nil {
		return View{}, fmt.Errorf("read top balances: %w", err)
	}
	entries := make([]Entry, len(top))
	for i, b := range top {
		entries[i] = Entry{Rank: i + 1, Actor: b.Actor, Coins: b.Coins}
	}

	prev, ok, err := e.ranking.Get(ctx)
	if err != nil {
		return View{}, fmt.Errorf("read ranking view: %w", err)
	}
	lastSeason := ""
	if ok {
		lastSeason = prev.LastSeason
	}

	v := View{
		Season:      season.Key(now),
		TopPlayers:  entries,
		LastUpdated: now,
		LastSeason:  lastSeason,
	}
	if err := e.ranking.Put(ctx, v); err != nil {
		return View{}, fmt.Errorf("write ranking view: %w", err)
	}
	metrics.RecordRefresh(len(entries))
	e.log.Debug("leaderboard refreshed", "season", v.Season, "entries", len(entries))
	return v, nil
}

// RankOf computes a player's global rank as 1 + the count of strictly
// richer players, independent of the cached view. An empty actor yields a
// nil result, not an error. Unknown players rank as if holding zero coins.
func (e *Engine) RankOf(ctx context.Context, actor string) (*PlayerRank, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, nil
	}
	coins, _, err := e.balances.Balance(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("read balance for %s: %w", actor, err)
	}
	richer, err := e.balances.CountRicher(ctx, coins)
	if err != nil {
		return nil, fmt.Errorf("count richer than %d: %w", coins, err)
	}
	rank := richer + 1
	return &PlayerRank{Actor: actor, Rank: &rank, Coins: &coins}, nil
}

// Current answers a live-season leaderboard query. A missing or empty view
// is refreshed synchronously so callers never see an empty board just
// because no scheduled refresh has run yet.
func (e *Engine) Current(ctx context.Context, limit int, actor string) (Board, error) {
	limit = ClampLimit(limit)

	v, ok, err := e.ranking.Get(ctx)
	if err != nil {
		return Board{}, err
	}
	if !ok || len(v.TopPlayers) == 0 {
		v, err = e.Refresh(ctx, limit)
		if err != nil {
			return Board{}, err
		}
	}

	updated := v.LastUpdated
	board := Board{
		Season:      v.Season,
		TopPlayers:  truncate(v.TopPlayers, limit),
		LastUpdated: &updated,
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return board, nil
	}
	// Membership is judged against the board actually returned, not the
	// full cache: an actor cached at rank 4 is not "in" a top-2 request.
	for _, entry := range board.TopPlayers {
		if entry.Actor == actor {
			rank, coins := entry.Rank, entry.Coins
			board.CurrentPlayer = &PlayerRank{Actor: actor, Rank: &rank, Coins: &coins, IsInTop: true}
			return board, nil
		}
	}
	pr, err := e.RankOf(ctx, actor)
	if err != nil {
		return Board{}, err
	}
	board.CurrentPlayer = pr
	return board, nil
}

// Closed answers a query for a past season from its snapshot. An absent
// snapshot yields an empty, well-formed board; closed seasons are never
// reconstructed on the fly. A requested actor missing from the frozen top
// comes back with nil rank and coins, since the full scoreboard of a closed
// season is not retained.
func (e *Engine) Closed(ctx context.Context, seasonKey string, limit int, actor string) (Board, error) {
	limit = ClampLimit(limit)

	snap, ok, err := e.snapshots.Get(ctx, seasonKey)
	if err != nil {
		return Board{}, err
	}
	if !ok {
		return Board{Season: seasonKey, TopPlayers: []Entry{}}, nil
	}

	closedAt := snap.ClosedAt
	board := Board{
		Season:     snap.Season,
		TopPlayers: truncate(snap.TopPlayers, limit),
		ClosedAt:   &closedAt,
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return board, nil
	}
	for _, entry := range snap.TopPlayers {
		if entry.Actor == actor {
			rank, coins := entry.Rank, entry.Coins
			// The frozen rank is still reported when the row falls past
			// the requested limit, but it is not part of this board.
			board.CurrentPlayer = &PlayerRank{Actor: actor, Rank: &rank, Coins: &coins, IsInTop: rank <= limit}
			return board, nil
		}
	}
	board.CurrentPlayer = &PlayerRank{Actor: actor}
	return board, nil
}

func truncate(entries []Entry, limit int) []Entry {
	if len(entries) <= limit {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]Entry, limit)
	copy(out, entries[:limit])
	return out
}
