package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/engine"
	"github.com/Grigsan/booksparser-telegram-bot/internal/fetcher"
	"github.com/Grigsan/booksparser-telegram-bot/internal/observability"
	"github.com/Grigsan/booksparser-telegram-bot/internal/storage"
)

var (
	globalCap   int
	sourceNames []string
	storeOutput bool
	storageType string
)

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one extraction over the configured sources",
		Long: `Run walks every configured source in order, extracts records until the
per-source and global caps are reached, and prints the deduplicated result.`,
		Args: cobra.NoArgs,
		RunE: runExtraction,
	}

	cmd.Flags().IntVarP(&globalCap, "global-cap", "n", 0, "maximum records per run (0 = use config)")
	cmd.Flags().StringSliceVarP(&sourceNames, "source", "s", nil, "only walk the named sources (repeatable)")
	cmd.Flags().BoolVar(&storeOutput, "store", false, "persist the records to the configured storage")
	cmd.Flags().StringVar(&storageType, "storage", "", "override storage.type (sqlite, postgres, mongodb, json, csv, multi)")

	return cmd
}

func applyRunOverrides(cfg *config.Config) {
	if globalCap > 0 {
		cfg.Engine.GlobalCap = globalCap
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
	}
}

func runExtraction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(applyRunOverrides)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	sources, err := cfg.ResolvedSources(sourceNames...)
	if err != nil {
		return err
	}

	set, err := fetcher.NewDefaultSet(cfg, logger)
	if err != nil {
		return fmt.Errorf("create acquirers: %w", err)
	}

	metrics := observability.NewMetrics(logger)
	eng := engine.New(cfg, set, logger, engine.WithMetrics(metrics))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting extraction",
		"sources", len(sources),
		"global_cap", cfg.Engine.GlobalCap,
		"store", storeOutput,
	)

	start := time.Now()
	records := eng.RunExtraction(ctx, sources, cfg.Engine.GlobalCap)
	elapsed := time.Since(start)

	if storeOutput {
		store, err := storage.New(context.Background(), &cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("create storage: %w", err)
		}
		storeErr := store.Store(context.Background(), records)
		closeErr := store.Close()
		if storeErr != nil {
			return fmt.Errorf("store records: %w", storeErr)
		}
		if closeErr != nil {
			return fmt.Errorf("close storage: %w", closeErr)
		}
		metrics.RecordsStored.Add(int64(len(records)))
	}

	printRecords(records)

	stats := eng.Stats().Snapshot()
	fmt.Printf("\n✅ Extraction complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Sources:   %v walked, %v failed\n", stats["sources_total"], stats["sources_failed"])
	fmt.Printf("   Items:     %v seen, %v dropped\n", stats["items_seen"], stats["items_dropped"])
	fmt.Printf("   Records:   %v emitted, %d unique\n", stats["records_emitted"], len(records))
	if storeOutput {
		fmt.Printf("   Storage:   %s\n", cfg.Storage.Type)
	}

	if len(records) == 0 {
		fmt.Println("\n💡 No records were extracted. Check the source URLs with `booksparser config`")
		fmt.Println("   and rerun with --verbose to see which sources failed.")
	}
	return nil
}
