// Package main provides a CLI tool for confbot database maintenance.
//
// Usage:
//
//	migrate [--dry-run] up
//	migrate [--dry-run] down
//	migrate version
//	migrate [--dry-run] trim-samples [--older-than 72h]
//
// up applies the schema (versioned migrations on Postgres, embedded statements on SQLite). down
// rolls back the most recent Postgres migration. trim-samples deletes occupancy samples older than
// the given age, always keeping each channel's latest sample.
//
// Environment Variables:
//
//	DB_DRIVER: postgres (default) or sqlite
//	DB_DSN: Database connection string
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/confbot/config"
	"github.com/onnwee/confbot/db"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	database, err := db.Connect(cfg.DBDriver, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	store := db.NewStore(database, cfg.DBDriver)
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := run(ctx, os.Args[1:], store, os.Stdout); err != nil {
		slog.Error("migrate failed", slog.Any("err", err))
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: migrate [--dry-run] up|down|version|trim-samples [--older-than DURATION]")

func run(ctx context.Context, args []string, store *db.Store, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dryRun := fs.Bool("dry-run", false, "Show what would change without making changes")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		return errUsage
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	switch cmd {
	case "up":
		if *dryRun {
			fmt.Fprintf(out, "would apply %s schema\n", store.Driver())
			return nil
		}
		if err := db.Setup(ctx, store.DB(), store.Driver()); err != nil {
			return err
		}
		fmt.Fprintln(out, "schema up to date")
		return nil

	case "down":
		if store.Driver() != db.DriverPostgres {
			return fmt.Errorf("down is only supported on postgres")
		}
		if *dryRun {
			fmt.Fprintln(out, "would roll back the most recent migration")
			return nil
		}
		return db.MigrateDown(store.DB())

	case "version":
		if store.Driver() != db.DriverPostgres {
			fmt.Fprintf(out, "%s uses the embedded schema (unversioned)\n", store.Driver())
			return nil
		}
		version, dirty, err := db.GetMigrationVersion(store.DB())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version %d dirty=%t\n", version, dirty)
		return nil

	case "trim-samples":
		sub := flag.NewFlagSet("trim-samples", flag.ContinueOnError)
		sub.SetOutput(io.Discard)
		olderThan := sub.Duration("older-than", 72*time.Hour, "Delete samples older than this")
		if err := sub.Parse(rest); err != nil || *olderThan <= 0 {
			return errUsage
		}
		cutoff := time.Now().Add(-*olderThan)
		if *dryRun {
			fmt.Fprintf(out, "would delete samples before %s\n", cutoff.UTC().Format(time.RFC3339))
			return nil
		}
		n, err := store.TrimSamples(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %d samples\n", n)
		return nil
	}
	return errUsage
}
