package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"uttervault/internal/catalog"
	"uttervault/internal/config"
	"uttervault/internal/utterance"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the utterance repository and its local SQLite mirror",
	}
	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	catalogCmd.AddCommand(newCatalogSyncCommand(ctx))
	catalogCmd.AddCommand(newCatalogMigrateCommand(ctx))
	return catalogCmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load utterance rows from a JSON array into the SQLite mirror",
		Long: "Reads a JSON array of utterance rows shaped like the remote table " +
			"(speaker and recordings may be null, an object, or an array) and upserts " +
			"them into store.sqlite_path. Use '-' to read from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			raws, err := readRawRecords(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			mirror, err := catalog.OpenSQLite(cfg.Store.SQLitePath, cfg.Store.BatchSize)
			if err != nil {
				return err
			}
			defer mirror.Close()

			count, err := upsertAll(commandCtx(cmd), mirror, utterance.Normalize(raws))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d utterances into %s\n", count, mirror.Path())
			return nil
		},
	}
}

func newCatalogSyncCommand(ctx *commandContext) *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy utterances from the PostgreSQL table into the SQLite mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Store.DSN == "" {
				return errors.New("store.dsn is required to sync from PostgreSQL (set DATABASE_URL)")
			}
			runCtx := commandCtx(cmd)
			pool, err := catalog.OpenPostgresPool(runCtx, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			remote := catalog.NewPostgresRepository(pool, cfg.Store.BatchSize)
			raws, err := remote.FetchByFilter(runCtx, catalog.Filter{Language: language})
			if err != nil {
				return err
			}

			mirror, err := catalog.OpenSQLite(cfg.Store.SQLitePath, cfg.Store.BatchSize)
			if err != nil {
				return err
			}
			defer mirror.Close()

			count, err := upsertAll(runCtx, mirror, utterance.Normalize(raws))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d utterances into %s\n", count, mirror.Path())
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Only copy rows whose language matches")
	return cmd
}

func newCatalogMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the utterance tables in the configured repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return migrateStore(commandCtx(cmd), cfg, cmd.OutOrStdout())
		},
	}
}

func migrateStore(ctx context.Context, cfg *config.Config, out io.Writer) error {
	switch cfg.Store.Driver {
	case "postgres":
		if err := cfg.RequireStore(); err != nil {
			return err
		}
		pool, err := catalog.OpenPostgresPool(ctx, cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := catalog.NewPostgresRepository(pool, cfg.Store.BatchSize).Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "PostgreSQL schema is up to date")
	default:
		mirror, err := catalog.OpenSQLite(cfg.Store.SQLitePath, cfg.Store.BatchSize)
		if err != nil {
			return err
		}
		defer mirror.Close()
		fmt.Fprintf(out, "SQLite schema is up to date at %s\n", mirror.Path())
	}
	return nil
}

func readRawRecords(stdin io.Reader, path string) ([]utterance.RawRecord, error) {
	var r io.Reader = stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open import file: %w", err)
		}
		defer file.Close()
		r = file
	}
	var raws []utterance.RawRecord
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode import file: %w", err)
	}
	for i, raw := range raws {
		if raw.ID == "" {
			return nil, fmt.Errorf("decode import file: row %d has no id", i)
		}
	}
	return raws, nil
}

func upsertAll(ctx context.Context, mirror *catalog.SQLiteRepository, records []utterance.Record) (int, error) {
	for i, rec := range records {
		if err := mirror.Upsert(ctx, rec); err != nil {
			return i, fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
	}
	return len(records), nil
}
