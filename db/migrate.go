package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// schema lists the idempotent statements applied by Migrate. They are written for Postgres;
// sqliteStatement adapts them for SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGSERIAL PRIMARY KEY,
		creator TEXT NOT NULL,
		channel_name TEXT NOT NULL UNIQUE,
		meeting_link TEXT NOT NULL UNIQUE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbound_queue (
		id BIGSERIAL PRIMARY KEY,
		destination TEXT NOT NULL,
		body TEXT NOT NULL,
		enqueued_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		name TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		topic TEXT NOT NULL REFERENCES topics(name) ON DELETE CASCADE,
		member TEXT NOT NULL,
		joined_at BIGINT NOT NULL,
		PRIMARY KEY (topic, member)
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		channel TEXT NOT NULL,
		seq INTEGER NOT NULL,
		creator TEXT NOT NULL,
		body TEXT NOT NULL,
		asked_at BIGINT NOT NULL,
		PRIMARY KEY (channel, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS occupancy_samples (
		id BIGSERIAL PRIMARY KEY,
		channel TEXT NOT NULL,
		member_count INTEGER NOT NULL,
		member_list TEXT NOT NULL,
		sampled_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_cursor (
		channel TEXT PRIMARY KEY,
		last_known_count INTEGER NOT NULL,
		sample_id BIGINT NOT NULL,
		audited_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_channel_id ON occupancy_samples(channel, id)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_sampled_at ON occupancy_samples(sampled_at)`,
}

func sqliteStatement(stmt string) string {
	return strings.ReplaceAll(stmt, "BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT")
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, sqlDB *sql.DB, driver string) error {
	for i, stmt := range schema {
		if driver == DriverSQLite {
			stmt = sqliteStatement(stmt)
		}
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migrate step %d failed: %w", driver, i, err)
		}
	}
	return nil
}

// RunMigrations runs the versioned Postgres migrations embedded from db/migrations using
// golang-migrate. It is idempotent and safe to run multiple times.
//
// Migration files follow the naming convention:
//
//	000001_description.up.sql   - applies the migration
//	000001_description.down.sql - reverts the migration
func RunMigrations(sqlDB *sql.DB) error {
	m, err := newMigrator(sqlDB)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("error", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
	}

	slog.Info("migrations applied successfully",
		slog.Uint64("version", uint64(version)),
		slog.String("component", "db_migrate"))
	return nil
}

// MigrateDown rolls back the most recent migration.
// WARNING: This drops bot state; use only in development.
func MigrateDown(sqlDB *sql.DB) error {
	m, err := newMigrator(sqlDB)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no migrations to roll back", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	slog.Info("migration rolled back", slog.String("component", "db_migrate"))
	return nil
}

// GetMigrationVersion returns the current migration version and dirty state.
func GetMigrationVersion(sqlDB *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(sqlDB)
	if err != nil {
		return 0, false, err
	}
	v, d, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return v, d, nil
}

func newMigrator(sqlDB *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// Setup migrates the schema for the given driver. Postgres prefers versioned migrations and falls
// back to the embedded statements; SQLite always uses the embedded statements.
func Setup(ctx context.Context, sqlDB *sql.DB, driver string) error {
	if driver != DriverPostgres {
		return Migrate(ctx, sqlDB, driver)
	}
	if err := RunMigrations(sqlDB); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := Migrate(ctx, sqlDB, driver); err != nil {
			return fmt.Errorf("migrate db (both versioned and embedded SQL failed): %w", err)
		}
	}
	return nil
}
