package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Grigsan/booksparser-telegram-bot/internal/catalog"
	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/storage"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

var recordsLimit int

// recordsCmd creates the "records" subcommand.
func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List stored records, one per book, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			cat, closeStore, err := openCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := cat.Records(cmd.Context(), recordsLimit)
			if err != nil {
				return err
			}
			printRecords(records)
			return nil
		},
	}
	cmd.Flags().IntVarP(&recordsLimit, "limit", "l", 100, "maximum records to list (0 = all)")
	return cmd
}

// statsCmd creates the "stats" subcommand.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			cat, closeStore, err := openCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			st, err := cat.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(st)
			return nil
		},
	}
}

// openCatalog opens the configured storage for reading.
func openCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalog.Service, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := storage.New(ctx, &cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	reader, ok := store.(storage.Reader)
	if !ok {
		store.Close()
		return nil, nil, fmt.Errorf("storage type %q cannot be read back, use sqlite, postgres or mongodb", cfg.Storage.Type)
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage failed", "error", err)
		}
	}
	return catalog.New(reader, logger), closeStore, nil
}

func printRecords(records []types.ProductRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Name", "Price", "Brand", "Category", "Rating", "Availability"})

	for i := range records {
		r := &records[i]
		name := truncateText(r.Name, 48)
		if r.Synthetic {
			name += " *"
		}
		t.AppendRow(table.Row{i + 1, name, r.FormattedPrice(), r.Brand, r.Category, r.FormattedRating(), r.Availability})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d records", len(records))})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func printStats(st *catalog.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Unique records", st.Total})
	t.AppendRow(table.Row{"Stored rows", st.Stored})
	t.AppendRow(table.Row{"Synthetic", st.Synthetic})
	t.AppendRow(table.Row{"Average price", priceText(st.AveragePrice)})
	t.AppendRow(table.Row{"Min price", priceText(st.MinPrice)})
	t.AppendRow(table.Row{"Max price", priceText(st.MaxPrice)})
	if st.LastCapturedAt != nil {
		t.AppendRow(table.Row{"Last captured", st.LastCapturedAt.Local().Format("2006-01-02 15:04:05")})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	c := table.NewWriter()
	c.SetOutputMirror(os.Stdout)
	c.AppendHeader(table.Row{"Category", "Records"})
	for _, cc := range st.Categories {
		c.AppendRow(table.Row{cc.Category, cc.Count})
	}
	c.SetStyle(table.StyleRounded)
	c.Render()
}

func priceText(v *float64) string {
	r := types.ProductRecord{Price: v}
	return r.FormattedPrice()
}

func truncateText(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
