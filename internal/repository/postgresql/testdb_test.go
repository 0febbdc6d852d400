package postgresql

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// testPool connects to TEST_POSTGRES_DSN and applies the migrations. Tests
// using it are skipped when the variable is unset or with -short.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("TEST_POSTGRES_DSN not set, skipping database test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(pool.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	if err := Migrate(ctx, pool, log); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return pool
}
