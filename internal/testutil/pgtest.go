// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresDB returns an open connection to a throwaway Postgres
// database for integration tests. With POSTGRES_URL set it connects
// there directly (CI provides a service container); otherwise it
// starts a disposable container, which needs a local Docker daemon.
// The test is skipped in short mode or when the container cannot be
// started.
func PostgresDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres test in short mode")
	}

	if url := os.Getenv("POSTGRES_URL"); url != "" {
		db, err := sql.Open("postgres", url)
		if err != nil {
			t.Fatalf("open POSTGRES_URL: %v", err)
		}
		if err := db.Ping(); err != nil {
			t.Fatalf("ping POSTGRES_URL: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return db
	}

	ctx := context.Background()
	if err := dockerAvailable(ctx); err != nil {
		t.Skipf("skipping: docker unavailable: %v", err)
	}

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("edutrack_test"),
		tcpostgres.WithUsername("edutrack"),
		tcpostgres.WithPassword("edutrack"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("skipping: could not start postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open container db: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping container db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// dockerAvailable pings the local Docker daemon. Host resolution in
// testcontainers panics when no daemon can be found at all, so the
// probe converts that into an error the caller can skip on.
func dockerAvailable(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	cli, err := testcontainers.NewDockerClientWithOpts(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()
	if _, err := cli.Ping(ctx); err != nil {
		return err
	}
	return nil
}
