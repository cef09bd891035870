package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"palaver/internal/commands"
	"palaver/internal/config"
	"palaver/internal/http"
	"palaver/internal/logger"
	"palaver/internal/metrics"
	"palaver/internal/storage"
	"palaver/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("palaver", flag.ContinueOnError)
	syncUser := fs.String("sync-user", "", "External id of a user to create or refresh on a running server")
	displayName := fs.String("display-name", "", "Display name for -sync-user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel)

	if *syncUser != "" {
		return commands.SyncUser(*syncUser, *displayName, cfg)
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	m := metrics.New()
	hub := ws.NewHub(bbStorage, m)

	wsServer := ws.NewServer(hub.Relay, m, ws.ServerConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
		EventRate:      cfg.EventRate,
		EventBurst:     cfg.EventBurst,
	})

	g, gCtx := errgroup.WithContext(ctx)

	adminServer := http.NewAdminServer(bbStorage, hub, m, http.AdminServerConfig{
		Addr:     cfg.AdminAddr,
		User:     cfg.AdminUser,
		Password: cfg.AdminPassword,
	})
	apiServer := http.NewAPIServer(gCtx, wsServer, cfg.APIAddr)

	g.Go(adminServer.Start)
	g.Go(apiServer.Start)

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin server shutdown error", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}
