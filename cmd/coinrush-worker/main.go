package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"coinrush/internal/config"
	"coinrush/internal/db"
	"coinrush/internal/leaderboard"
	"coinrush/internal/notify"
	"coinrush/internal/sched"
	"coinrush/internal/season"
	"coinrush/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	ranking := store.NewRankingStore(pool)
	snaps := store.NewSnapshotStore(pool)
	balances := store.NewBalances(pool)

	var notifier leaderboard.Notifier
	if cfg.DiscordBotToken != "" && cfg.DiscordChannelID != "" {
		discord, err := notify.NewDiscord(cfg.DiscordBotToken, cfg.DiscordChannelID, logger)
		if err != nil {
			logger.Error("discord setup failed", "err", err)
			os.Exit(1)
		}
		notifier = discord
	}

	machine := season.NewMachine(store.NewSeasonStore(pool), logger)
	engine := leaderboard.NewEngine(balances, ranking, snaps, logger)
	rollover := leaderboard.NewRollover(engine, machine, ranking, snaps, notifier, logger)

	refresh := func(ctx context.Context) error {
		_, err := engine.Refresh(ctx, cfg.TopLimit)
		return err
	}
	lockCheck := func(ctx context.Context) error {
		_, _, err := machine.CheckLockWindow(ctx)
		return err
	}
	openSeason := func(ctx context.Context) error {
		_, err := rollover.OpenNewSeason(ctx)
		return err
	}

	switch strings.ToLower(cfg.RunOnce) {
	case "":
	case "refresh":
		runOnce(ctx, logger, "refresh", refresh)
		return
	case "lock-check":
		runOnce(ctx, logger, "lock-check", lockCheck)
		return
	case "open-season":
		runOnce(ctx, logger, "open-season", openSeason)
		return
	default:
		logger.Error("unknown run-once job", "job", cfg.RunOnce)
		os.Exit(1)
	}

	if cfg.StartupRefresh {
		if err := refresh(ctx); err != nil {
			logger.Error("startup refresh failed", "err", err)
			os.Exit(1)
		}
	}

	scheduler := sched.New(logger)
	scheduler.Every(ctx, "refresh", cfg.RefreshEvery, refresh)
	scheduler.DailyAt(ctx, "lock-check", 0, 5, lockCheck)
	scheduler.MonthlyAt(ctx, "open-season", 1, 0, 5, openSeason)

	logger.Info("worker started", "refresh_every", cfg.RefreshEvery.String())
	scheduler.Wait()
	logger.Info("worker shutdown")
}

func runOnce(ctx context.Context, logger *slog.Logger, name string, job sched.Job) {
	if err := job(ctx); err != nil {
		logger.Error("job failed", "job", name, "err", err)
		os.Exit(1)
	}
	logger.Info("worker run-once completed", "job", name)
}
