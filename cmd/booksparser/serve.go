package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Grigsan/booksparser-telegram-bot/internal/api"
	"github.com/Grigsan/booksparser-telegram-bot/internal/catalog"
	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/engine"
	"github.com/Grigsan/booksparser-telegram-bot/internal/fetcher"
	"github.com/Grigsan/booksparser-telegram-bot/internal/observability"
	"github.com/Grigsan/booksparser-telegram-bot/internal/storage"
)

var servePort int

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (0 = use config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
	})
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, &cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	reader, ok := store.(storage.Reader)
	if !ok {
		return fmt.Errorf("storage type %q cannot be read back, use sqlite, postgres or mongodb", cfg.Storage.Type)
	}

	set, err := fetcher.NewDefaultSet(cfg, logger)
	if err != nil {
		return fmt.Errorf("create acquirers: %w", err)
	}

	metrics := observability.NewMetrics(logger)
	eng := engine.New(cfg, set, logger, engine.WithMetrics(metrics))
	srv := api.NewServer(cfg, eng, store, catalog.New(reader, logger), metrics, logger)

	return srv.Start(ctx)
}
