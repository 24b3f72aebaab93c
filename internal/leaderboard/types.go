// Package leaderboard computes and persists the ranked top-N view of
// player balances, and orchestrates the season snapshot/rollover.
package leaderboard

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	// DefaultLimit applies when a caller does not request a limit.
	DefaultLimit = 100
	// MaxLimit is the hard cap on any top-N request.
	MaxLimit = 500
)

var (
	ErrValidation = errors.New("invalid leaderboard request")
	ErrMalformed  = errors.New("malformed leaderboard document")
)

// Entry is one ranked row, rank ascending from 1.
type Entry struct {
	Rank  int    `json:"rank"`
	Actor string `json:"actor"`
	Coins int64  `json:"ingameCurrency"`
}

// View is the live ranking document for the current season. It is a cache
// over player balances, fully recomputable at any time; LastSeason survives
// the reset performed at rollover.
type View struct {
	Season      string    `json:"season"`
	TopPlayers  []Entry   `json:"topPlayers"`
	LastUpdated time.Time `json:"lastUpdated"`
	LastSeason  string    `json:"lastSeason,omitempty"`
}

// Snapshot is the immutable final ranking of a closed season.
type Snapshot struct {
	Season     string    `json:"season"`
	TopPlayers []Entry   `json:"topPlayers"`
	ClosedAt   time.Time `json:"closedAt"`
}

// PlayerRank annotates a single player's standing. Rank and Coins are nil
// when the player cannot be located (e.g. absent from a frozen snapshot).
type PlayerRank struct {
	Actor   string `json:"actor"`
	Rank    *int   `json:"rank"`
	Coins   *int64 `json:"ingameCurrency"`
	IsInTop bool   `json:"isInTop"`
}

// Board is the answer to a leaderboard query, for either the live season or
// a closed one.
type Board struct {
	Season        string      `json:"season"`
	TopPlayers    []Entry     `json:"topPlayers"`
	LastUpdated   *time.Time  `json:"lastUpdated,omitempty"`
	ClosedAt      *time.Time  `json:"closedAt,omitempty"`
	CurrentPlayer *PlayerRank `json:"currentPlayer"`
}

// Balance is a single player's currency reading from the economy subsystem.
type Balance struct {
	Actor string
	Coins int64
}

// RankingStore persists the singleton live ranking document.
type RankingStore interface {
	Get(ctx context.Context) (View, bool, error)
	Put(ctx context.Context, v View) error
}

// SnapshotStore persists one frozen ranking per closed season, keyed by the
// month key.
type SnapshotStore interface {
	Get(ctx context.Context, seasonKey string) (Snapshot, bool, error)
	Put(ctx context.Context, s Snapshot) error
}

// BalanceSource reads player balances owned by the external economy
// subsystem. All methods are read-only.
type BalanceSource interface {
	// TopBalances returns up to limit players ordered by coins descending,
	// ties broken by actor ascending.
	TopBalances(ctx context.Context, limit int) ([]Balance, error)
	// CountRicher counts players whose balance is strictly greater.
	CountRicher(ctx context.Context, coins int64) (int, error)
	// Balance reads one player's coins; ok=false when the player is unknown.
	Balance(ctx context.Context, actor string) (int64, bool, error)
}

// Notifier is told about closed seasons after a successful snapshot.
// Implementations must not block rollover; failures are theirs to log.
type Notifier interface {
	SeasonClosed(ctx context.Context, snap Snapshot)
}

// ClampLimit forces a requested top-N size into [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// wellFormed reports whether a stored or supplied ranking payload can be
// trusted: the store enforces no schema, so shape is checked at the read
// boundary.
func wellFormed(entries []Entry) bool {
	for _, e := range entries {
		if strings.TrimSpace(e.Actor) == "" || e.Rank < 1 || e.Coins < 0 {
			return false
		}
	}
	return true
}
