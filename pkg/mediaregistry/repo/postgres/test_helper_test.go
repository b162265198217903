package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// TestDB represents a test database connection
type TestDB struct {
	URL  string
	Pool *pgxpool.Pool
}

// NewTestDB connects to TEST_DATABASE_URL
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "Failed to ping test database")

	return &TestDB{URL: connString, Pool: pool}
}

// Setup applies the schema migrations
func (db *TestDB) Setup(t *testing.T) {
	t.Helper()
	require.NoError(t, Migrate(db.URL, nil), "Failed to migrate test database")
}

// Cleanup removes all test data from the database
func (db *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	_, err := db.Pool.Exec(context.Background(),
		"TRUNCATE media_record, owner_counter, registry_control")
	require.NoError(t, err, "Failed to truncate registry tables")
}

// RunTest runs a test with database setup and cleanup
func RunTest(t *testing.T, testFunc func(t *testing.T, db *TestDB)) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := NewTestDB(t)
	defer db.Pool.Close()

	db.Setup(t)

	t.Run("", func(t *testing.T) {
		db.Cleanup(t)
		testFunc(t, db)
	})
}
