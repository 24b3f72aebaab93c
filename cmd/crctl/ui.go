package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"coinrush/internal/leaderboard"
	"coinrush/internal/season"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func renderBoard(raw map[string]any) error {
	board, err := decodeInto[leaderboard.Board](raw)
	if err != nil {
		return err
	}

	accent.Printf("\n== LEADERBOARD (Season %s) ==\n", board.Season)
	if board.ClosedAt != nil {
		printInfo("Closed at " + board.ClosedAt.Local().Format("2006-01-02 15:04"))
	} else if board.LastUpdated != nil {
		printInfo("Updated at " + board.LastUpdated.Local().Format("2006-01-02 15:04"))
	}

	if len(board.TopPlayers) == 0 {
		printInfo("Nobody on the board yet.")
	} else {
		fmt.Printf("%-6s %-28s %14s\n", "RANK", "PLAYER", "COINS")
		for _, e := range board.TopPlayers {
			fmt.Printf("%-6d %-28s %14d\n", e.Rank, truncate(e.Actor, 28), e.Coins)
		}
	}

	if cp := board.CurrentPlayer; cp != nil {
		fmt.Println()
		if cp.Rank == nil {
			printInfo(fmt.Sprintf("%s did not make this season's board.", cp.Actor))
		} else {
			fmt.Printf("%s: rank %d with %d coins\n", cp.Actor, *cp.Rank, *cp.Coins)
		}
	}
	fmt.Println()
	return nil
}

func renderSeason(raw map[string]any) error {
	st, err := decodeInto[season.State](raw)
	if err != nil {
		return err
	}

	accent.Printf("\n== SEASON %s ==\n", st.Season)
	fmt.Printf("Phase:        %s\n", st.Phase)
	if st.LockEndsAt != nil {
		fmt.Printf("Lock ends:    %s\n", st.LockEndsAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("Last change:  %s\n", st.LastChangeAt.Local().Format("2006-01-02 15:04"))
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
