package leaderboard

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"
)

type memRanking struct {
	view View
	ok   bool
	puts int
}

func (m *memRanking) Get(_ context.Context) (View, bool, error) {
	return m.view, m.ok, nil
}

func (m *memRanking) Put(_ context.Context, v View) error {
	m.view = v
	m.ok = true
	m.puts++
	return nil
}

type memSnapshots struct {
	snaps map[string]Snapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{snaps: make(map[string]Snapshot)}
}

func (m *memSnapshots) Get(_ context.Context, seasonKey string) (Snapshot, bool, error) {
	s, ok := m.snaps[seasonKey]
	return s, ok, nil
}

func (m *memSnapshots) Put(_ context.Context, s Snapshot) error {
	m.snaps[s.Season] = s
	return nil
}

type memBalances struct {
	coins map[string]int64
}

func (m *memBalances) TopBalances(_ context.Context, limit int) ([]Balance, error) {
	out := make([]Balance, 0, len(m.coins))
	for actor, c := range m.coins {
		out = append(out, Balance{Actor: actor, Coins: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Coins != out[j].Coins {
			return out[i].Coins > out[j].Coins
		}
		return out[i].Actor < out[j].Actor
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memBalances) CountRicher(_ context.Context, coins int64) (int, error) {
	n := 0
	for _, c := range m.coins {
		if c > coins {
			n++
		}
	}
	return n, nil
}

func (m *memBalances) Balance(_ context.Context, actor string) (int64, bool, error) {
	c, ok := m.coins[actor]
	return c, ok, nil
}

type failingRanking struct {
	memRanking
}

func (f *failingRanking) Get(_ context.Context) (View, bool, error) {
	return View{}, false, errors.New("view store unavailable")
}

func engineAt(balances *memBalances, ranking *memRanking, snaps *memSnapshots, at string) *Engine {
	e := NewEngine(balances, ranking, snaps, nil)
	ts, _ := time.Parse(time.RFC3339, at)
	e.now = func() time.Time { return ts }
	return e
}

func fourPlayers() *memBalances {
	return &memBalances{coins: map[string]int64{
		"alice": 500,
		"bob":   300,
		"carol": 300,
		"dave":  100,
	}}
}

func TestRefreshRanksDescending(t *testing.T) {
	ranking := &memRanking{}
	e := engineAt(fourPlayers(), ranking, newMemSnapshots(), "2025-10-15T00:00:00Z")

	v, err := e.Refresh(context.Background(), 10)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if v.Season != "202510" {
		t.Fatalf("Season = %q, want 202510", v.Season)
	}
	if len(v.TopPlayers) != 4 {
		t.Fatalf("entries = %d, want 4", len(v.TopPlayers))
	}
	if v.TopPlayers[0].Actor != "alice" || v.TopPlayers[0].Rank != 1 || v.TopPlayers[0].Coins != 500 {
		t.Fatalf("first entry = %+v", v.TopPlayers[0])
	}
	// Tie between bob and carol breaks on actor ascending.
	if v.TopPlayers[1].Actor != "bob" || v.TopPlayers[2].Actor != "carol" {
		t.Fatalf("tie order = %s, %s", v.TopPlayers[1].Actor, v.TopPlayers[2].Actor)
	}
	if v.TopPlayers[3].Rank != 4 {
		t.Fatalf("last rank = %d, want 4", v.TopPlayers[3].Rank)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	ranking := &memRanking{}
	e := engineAt(fourPlayers(), ranking, newMemSnapshots(), "2025-10-15T00:00:00Z")

	first, err := e.Refresh(context.Background(), 10)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	second, err := e.Refresh(context.Background(), 10)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if !reflect.DeepEqual(first.TopPlayers, second.TopPlayers) {
		t.Fatalf("refresh not idempotent:\nfirst:  %+v\nsecond: %+v", first.TopPlayers, second.TopPlayers)
	}
}

func TestRefreshClampsLimit(t *testing.T) {
	balances := &memBalances{coins: map[string]int64{}}
	for i := 0; i < 600; i++ {
		balances.coins[actorName(i)] = int64(i)
	}
	ranking := &memRanking{}
	e := engineAt(balances, ranking, newMemSnapshots(), "2025-10-15T00:00:00Z")

	v, err := e.Refresh(context.Background(), 10000)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(v.TopPlayers) != MaxLimit {
		t.Fatalf("entries = %d, want %d", len(v.TopPlayers), MaxLimit)
	}

	v, err = e.Refresh(context.Background(), 0)
	if err != nil {
		t.Fatalf("Refresh(0): %v", err)
	}
	if len(v.TopPlayers) != 1 {
		t.Fatalf("entries = %d, want 1", len(v.TopPlayers))
	}
}

func actorName(i int) string {
	return "p" + string(rune('a'+i/26/26%26)) + string(rune('a'+i/26%26)) + string(rune('a'+i%26))
}

func TestRefreshPropagatesViewReadError(t *testing.T) {
	e := NewEngine(fourPlayers(), &failingRanking{}, newMemSnapshots(), nil)
	if _, err := e.Refresh(context.Background(), 10); err == nil {
		t.Fatal("expected error when the view store is unreachable")
	}
}

func TestRefreshPreservesLastSeason(t *testing.T) {
	ranking := &memRanking{}
	ranking.view = View{Season: "202511", TopPlayers: []Entry{}, LastSeason: "202510"}
	ranking.ok = true
	e := engineAt(fourPlayers(), ranking, newMemSnapshots(), "2025-11-02T00:00:00Z")

	v, err := e.Refresh(context.Background(), 10)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if v.LastSeason != "202510" {
		t.Fatalf("LastSeason = %q, want 202510", v.LastSeason)
	}
}

func TestRankOfProperty(t *testing.T) {
	balances := fourPlayers()
	e := engineAt(balances, &memRanking{}, newMemSnapshots(), "2025-10-15T00:00:00Z")
	ctx := context.Background()

	for actor, coins := range balances.coins {
		pr, err := e.RankOf(ctx, actor)
		if err != nil {
			t.Fatalf("RankOf(%s): %v", actor, err)
		}
		want := 1
		for _, c := range balances.coins {
			if c > coins {
				want++
			}
		}
		if pr == nil || pr.Rank == nil || *pr.Rank != want {
			t.Fatalf("RankOf(%s) = %+v, want rank %d", actor, pr, want)
		}
	}
}

func TestRankOfEmptyActor(t *testing.T) {
	e := engineAt(fourPlayers(), &memRanking{}, newMemSnapshots(), "2025-10-15T00:00:00Z")
	pr, err := e.RankOf(context.Background(), "   ")
	if err != nil {
		t.Fatalf("RankOf: %v", err)
	}
	if pr != nil {
		t.Fatalf("expected nil result for empty actor, got %+v", pr)
	}
}

func TestCurrentRefreshesEmptyCache(t *testing.T) {
	ranking := &memRanking{}
	e := engineAt(fourPlayers(), ranking, newMemSnapshots(), "2025-10-15T00:00:00Z")

	board, err := e.Current(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(board.TopPlayers) != 2 {
		t.Fatalf("entries = %d, want 2", len(board.TopPlayers))
	}
	if board.TopPlayers[0].Coins != 500 {
		t.Fatalf("first coins = %d, want 500", board.TopPlayers[0].Coins)
	}
	if ranking.puts == 0 {
		t.Fatal("expected synchronous refresh to write the view")
	}
	if board.LastUpdated == nil {
		t.Fatal("LastUpdated missing")
	}
}

func TestCurrentActorOutsideTop(t *testing.T) {
	// Full cache, small limit: dave is cached at rank 4 but a top-2 query
	// must not report him as part of the returned board.
	ranking := &memRanking{}
	e := engineAt(fourPlayers(), ranking, newMemSnapshots(), "2025-10-15T00:00:00Z")
	if _, err := e.Refresh(context.Background(), 10); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	board, err := e.Current(context.Background(), 2, "dave")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(board.TopPlayers) != 2 {
		t.Fatalf("entries = %d, want 2", len(board.TopPlayers))
	}
	cp := board.CurrentPlayer
	if cp == nil || cp.IsInTop {
		t.Fatalf("CurrentPlayer = %+v, want isInTop=false", cp)
	}
	if cp.Rank == nil || *cp.Rank != 4 {
		t.Fatalf("rank = %v, want 4", cp.Rank)
	}
	if cp.Coins == nil || *cp.Coins != 100 {
		t.Fatalf("coins = %v, want 100", cp.Coins)
	}
}

func TestCurrentActorOnTruncationBoundary(t *testing.T) {
	ranking := &memRanking{}
	e := engineAt(fourPlayers(), ranking, newMemSnapshots(), "2025-10-15T00:00:00Z")
	if _, err := e.Refresh(context.Background(), 10); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// bob holds rank 2, the last row a top-2 query returns.
	board, err := e.Current(context.Background(), 2, "bob")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	cp := board.CurrentPlayer
	if cp == nil || !cp.IsInTop {
		t.Fatalf("CurrentPlayer = %+v, want isInTop=true", cp)
	}
	if cp.Rank == nil || *cp.Rank != 2 {
		t.Fatalf("rank = %v, want 2", cp.Rank)
	}

	// carol sits just past the cut. Her standalone rank is computed from
	// strictly-richer counting, so she shares bob's rank 2 despite being
	// listed third in the cached view.
	board, err = e.Current(context.Background(), 2, "carol")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	cp = board.CurrentPlayer
	if cp == nil || cp.IsInTop {
		t.Fatalf("CurrentPlayer = %+v, want isInTop=false", cp)
	}
	if cp.Rank == nil || *cp.Rank != 2 {
		t.Fatalf("rank = %v, want 2", cp.Rank)
	}
}

func TestCurrentActorInTopUsesCache(t *testing.T) {
	ranking := &memRanking{}
	e := engineAt(fourPlayers(), ranking, newMemSnapshots(), "2025-10-15T00:00:00Z")
	if _, err := e.Refresh(context.Background(), 10); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	board, err := e.Current(context.Background(), 10, "alice")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	cp := board.CurrentPlayer
	if cp == nil || !cp.IsInTop {
		t.Fatalf("CurrentPlayer = %+v, want isInTop=true", cp)
	}
	if cp.Rank == nil || *cp.Rank != 1 {
		t.Fatalf("rank = %v, want 1", cp.Rank)
	}
}

func TestClosedSeasonWithoutSnapshot(t *testing.T) {
	e := engineAt(fourPlayers(), &memRanking{}, newMemSnapshots(), "2025-10-15T00:00:00Z")

	board, err := e.Closed(context.Background(), "202409", 100, "")
	if err != nil {
		t.Fatalf("Closed: %v", err)
	}
	if board.Season != "202409" {
		t.Fatalf("Season = %q, want 202409", board.Season)
	}
	if len(board.TopPlayers) != 0 {
		t.Fatalf("entries = %d, want 0", len(board.TopPlayers))
	}
	if board.CurrentPlayer != nil || board.ClosedAt != nil || board.LastUpdated != nil {
		t.Fatalf("expected empty board, got %+v", board)
	}
}

func TestClosedSeasonActorMissingFromTop(t *testing.T) {
	snaps := newMemSnapshots()
	closedAt, _ := time.Parse(time.RFC3339, "2025-11-01T00:05:00Z")
	snaps.snaps["202510"] = Snapshot{
		Season:     "202510",
		TopPlayers: []Entry{{Rank: 1, Actor: "alice", Coins: 500}},
		ClosedAt:   closedAt,
	}
	e := engineAt(fourPlayers(), &memRanking{}, snaps, "2025-11-15T00:00:00Z")

	board, err := e.Closed(context.Background(), "202510", 100, "dave")
	if err != nil {
		t.Fatalf("Closed: %v", err)
	}
	cp := board.CurrentPlayer
	if cp == nil || cp.IsInTop || cp.Rank != nil || cp.Coins != nil {
		t.Fatalf("CurrentPlayer = %+v, want null rank/coins, isInTop=false", cp)
	}
	if board.ClosedAt == nil || !board.ClosedAt.Equal(closedAt) {
		t.Fatalf("ClosedAt = %v, want %s", board.ClosedAt, closedAt)
	}
}

func TestClosedSeasonRespectsLimit(t *testing.T) {
	snaps := newMemSnapshots()
	snaps.snaps["202510"] = Snapshot{
		Season: "202510",
		TopPlayers: []Entry{
			{Rank: 1, Actor: "alice", Coins: 500},
			{Rank: 2, Actor: "bob", Coins: 300},
			{Rank: 3, Actor: "carol", Coins: 300},
		},
		ClosedAt: time.Now().UTC(),
	}
	e := engineAt(fourPlayers(), &memRanking{}, snaps, "2025-11-15T00:00:00Z")

	board, err := e.Closed(context.Background(), "202510", 1, "")
	if err != nil {
		t.Fatalf("Closed: %v", err)
	}
	if len(board.TopPlayers) != 1 {
		t.Fatalf("entries = %d, want 1", len(board.TopPlayers))
	}

	// An actor frozen past the cut keeps their snapshot rank but is not
	// part of the returned board.
	board, err = e.Closed(context.Background(), "202510", 1, "bob")
	if err != nil {
		t.Fatalf("Closed: %v", err)
	}
	cp := board.CurrentPlayer
	if cp == nil || cp.IsInTop {
		t.Fatalf("CurrentPlayer = %+v, want isInTop=false", cp)
	}
	if cp.Rank == nil || *cp.Rank != 2 {
		t.Fatalf("rank = %v, want 2", cp.Rank)
	}
}
