package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SetupTestDB connects to TEST_DATABASE_URL and applies the schema.
// Tests are skipped when the variable is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}
	if err = Migrate(ctx, db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		CleanupTestDB(t, db)
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})
	return db
}

// CleanupTestDB removes all rows written by tests
func CleanupTestDB(t *testing.T, db *sql.DB) {
	tables := []string{"leaderboard_entries", "user_sessions", "transactions", "holdings", "news", "stocks", "users"}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("Warning: Failed to cleanup table %s: %v", table, err)
		}
	}
}

// CreateTestUser inserts a user with the given balance and returns its id
func CreateTestUser(t *testing.T, db *sql.DB, nickname string, balance decimal.Decimal) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO users (id, nickname, provider, provider_id, balance) VALUES ($1, $2, 'test', $3, $4)`,
		id, nickname, fmt.Sprintf("%s_%d", nickname, time.Now().UnixNano()), balance,
	)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return id
}

// CreateTestStock inserts a stock priced at price and returns its id
func CreateTestStock(t *testing.T, db *sql.DB, symbol string, price decimal.Decimal) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO stocks (id, name, symbol, current_price, previous_price) VALUES ($1, $2, $3, $4, $4)`,
		id, "Test "+symbol, symbol, price,
	)
	if err != nil {
		t.Fatalf("Failed to create test stock: %v", err)
	}
	return id
}
