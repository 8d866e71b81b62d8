package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var allTables = []string{"rooms", "outbound_queue", "topics", "subscriptions", "questions", "occupancy_samples", "audit_cursor", "kv"}

func TestMigrateSQLite(t *testing.T) {
	sqlDB, err := Connect(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	if err := Setup(ctx, sqlDB, DriverSQLite); err != nil {
		t.Fatalf("setup: %v", err)
	}
	// second run must be a no-op
	if err := Setup(ctx, sqlDB, DriverSQLite); err != nil {
		t.Fatalf("setup (second run): %v", err)
	}
	for _, table := range allTables {
		var name string
		err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestSqliteStatement(t *testing.T) {
	got := sqliteStatement(`CREATE TABLE x (id BIGSERIAL PRIMARY KEY, v TEXT)`)
	want := `CREATE TABLE x (id INTEGER PRIMARY KEY AUTOINCREMENT, v TEXT)`
	if got != want {
		t.Errorf("sqliteStatement = %q, want %q", got, want)
	}
}

// TestRunMigrations tests that migrations can be applied to an empty database
func TestRunMigrations(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping migration test")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	cleanDatabase(t, ctx, db)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	for _, table := range allTables {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s does not exist after migration", table)
		}
	}

	version, dirty, err := GetMigrationVersion(db)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if dirty {
		t.Errorf("migration version is dirty")
	}
	if version < 2 {
		t.Errorf("migration version = %d, want >= 2", version)
	}

	// Running again reports no change and keeps the version.
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() second run error = %v", err)
	}
	// Embedded statements stay compatible with the versioned schema.
	if err := Migrate(ctx, db, DriverPostgres); err != nil {
		t.Fatalf("Migrate() after RunMigrations error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	cleanDatabase(t, ctx, db)
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	before, _, _ := GetMigrationVersion(db)
	if err := MigrateDown(db); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	after, _, err := GetMigrationVersion(db)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if after != before-1 {
		t.Errorf("version after down = %d, want %d", after, before-1)
	}
	// leave the schema migrated for other tests
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() restore error = %v", err)
	}
}

func cleanDatabase(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	for _, table := range append([]string{"schema_migrations"}, allTables...) {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table+` CASCADE`); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
}
