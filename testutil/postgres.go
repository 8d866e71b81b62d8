package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/onnwee/confbot/db"
)

// SetupTestDB returns a migrated store backed by a private in-memory SQLite database.
func SetupTestDB(t *testing.T) *db.Store {
	t.Helper()
	database, err := db.Connect(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Setup(context.Background(), database, db.DriverSQLite); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return db.NewStore(database, db.DriverSQLite)
}

// SetupPostgresDB returns a migrated store on the database named by TEST_PG_DSN with every bot
// table emptied. It skips the test if TEST_PG_DSN environment variable is not set.
func SetupPostgresDB(t *testing.T) *db.Store {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(db.DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx := context.Background()
	if err := db.Setup(ctx, database, db.DriverPostgres); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	for _, table := range []string{"rooms", "outbound_queue", "subscriptions", "topics", "questions", "occupancy_samples", "audit_cursor", "kv"} {
		if _, err := database.ExecContext(ctx, `TRUNCATE `+table+` RESTART IDENTITY CASCADE`); err != nil {
			database.Close()
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
	t.Cleanup(func() {
		database.Close()
	})
	return db.NewStore(database, db.DriverPostgres)
}
