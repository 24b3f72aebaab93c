// Package notify posts season results to Discord. Announcements are best
// effort: a failed send is logged and dropped, never retried, so it can
// never block or fail a rollover.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"coinrush/internal/leaderboard"
)

const podiumSize = 3

type Discord struct {
	session   *discordgo.Session
	channelID string
	log       *slog.Logger
}

func NewDiscord(botToken, channelID string, logger *slog.Logger) (*Discord, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID, log: logger}, nil
}

func (d *Discord) SeasonClosed(_ context.Context, snap leaderboard.Snapshot) {
	msg := formatSeasonClosed(snap)
	if _, err := d.session.ChannelMessageSend(d.channelID, msg); err != nil {
		d.log.Error("discord announce failed", "season", snap.Season, "err", err)
		return
	}
	d.log.Info("season results announced", "season", snap.Season)
}

func formatSeasonClosed(snap leaderboard.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Season %s is over! Final standings:\n", snap.Season)
	medals := []string{"🥇", "🥈", "🥉"}
	for i, e := range snap.TopPlayers {
		if i >= podiumSize {
			break
		}
		fmt.Fprintf(&b, "%s %s — %d coins\n", medals[i], e.Actor, e.Coins)
	}
	if len(snap.TopPlayers) == 0 {
		b.WriteString("Nobody made the board this time.\n")
	}
	b.WriteString("A new season has begun. Good luck!")
	return b.String()
}
