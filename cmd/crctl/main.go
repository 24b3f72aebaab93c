package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "coinrush/internal/cli"
	"coinrush/internal/config"
	"coinrush/internal/season"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "crctl",
		Short:        "Coinrush season and leaderboard operations",
		SilenceUsage: true,
	}

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newBoardCmd(&apiBase),
		newSeasonCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login as an operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newBoardCmd(apiBase *string) *cobra.Command {
	var (
		seasonKey string
		limit     int
		actor     string
	)
	board := &cobra.Command{
		Use:   "board",
		Short: "Show the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Leaderboard(ctx, seasonKey, limit, actor)
			if err != nil {
				return err
			}
			return renderBoard(out)
		},
	}
	board.Flags().StringVar(&seasonKey, "season", "current", "season to show: current or YYYYMM")
	board.Flags().IntVar(&limit, "limit", 0, "number of entries (server default when 0)")
	board.Flags().StringVar(&actor, "actor", "", "also show this player's rank")

	board.AddCommand(newBoardRebuildCmd(apiBase))
	return board
}

func newBoardRebuildCmd(apiBase *string) *cobra.Command {
	var limit int
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Force a leaderboard recomputation (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Rebuild(ctx, sess.AccessToken, limit)
			if err != nil {
				return err
			}
			entries := 0
			if top, ok := out["topPlayers"].([]any); ok {
				entries = len(top)
			}
			printSuccess(fmt.Sprintf("Rebuilt season %v with %d entries.", out["season"], entries))
			return nil
		},
	}
	rebuild.Flags().IntVar(&limit, "limit", 0, "entries to keep (server default when 0)")
	return rebuild
}

func newSeasonCmd(apiBase *string) *cobra.Command {
	seasonCmd := &cobra.Command{
		Use:   "season",
		Short: "Show or control the season state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.SeasonState(ctx)
			if err != nil {
				return err
			}
			return renderSeason(out)
		},
	}

	seasonCmd.AddCommand(
		newSeasonLockCmd(apiBase),
		newSeasonCloseCmd(apiBase),
		newSeasonOpenCmd(apiBase),
	)
	return seasonCmd
}

func newSeasonLockCmd(apiBase *string) *cobra.Command {
	var minutes int
	lock := &cobra.Command{
		Use:   "lock",
		Short: "Put the season into lock mode (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Lock(ctx, sess.AccessToken, minutes)
			if err != nil {
				return err
			}
			return renderSeason(out)
		},
	}
	lock.Flags().IntVar(&minutes, "minutes", season.DefaultLockMinutes, "lock duration in minutes")
	return lock
}

func newSeasonCloseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Snapshot the current season now (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Close(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Season %v closed with %v entries.", out["season"], out["count"]))
			return nil
		},
	}
}

func newSeasonOpenCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Close last month and open a new season (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Open(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Closed %v, opened %v.", out["closed"], out["opened"]))
			return nil
		},
	}
}
