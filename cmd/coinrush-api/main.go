package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinrush/internal/api"
	"coinrush/internal/auth"
	"coinrush/internal/config"
	"coinrush/internal/db"
	"coinrush/internal/leaderboard"
	"coinrush/internal/season"
	"coinrush/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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

	authClient := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)

	ranking := store.NewRankingStore(pool)
	snaps := store.NewSnapshotStore(pool)
	balances := store.NewBalances(pool)

	machine := season.NewMachine(store.NewSeasonStore(pool), logger)
	engine := leaderboard.NewEngine(balances, ranking, snaps, logger)
	rollover := leaderboard.NewRollover(engine, machine, ranking, snaps, nil, logger)

	server := api.New(cfg, logger, authClient, engine, machine, rollover)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("coinrush api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
