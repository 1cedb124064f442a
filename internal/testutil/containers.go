// Package testutil starts the backing services integration and e2e tests
// run against. Every helper registers its own cleanup on t.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/reposcout/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// pgvector is needed for repo_analysis_results.embedding.
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	ObjectStoreAccessKey = "rustfsadmin"
	ObjectStoreSecretKey = "rustfsadmin"
)

// Postgres is a throwaway database with the reposcout schema applied.
type Postgres struct {
	URL  string
	Pool *pgxpool.Pool
}

// StartPostgres runs a pgvector Postgres, applies the migrations with the
// same migrator the daemon uses and opens a pool on it.
func StartPostgres(ctx context.Context, t *testing.T) *Postgres {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("reposcout"),
		tcpostgres.WithUsername("reposcout"),
		tcpostgres.WithPassword("reposcout"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	if _, err := database.Migrate(url, MigrationsSource(t)); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: url, MaxConns: 10})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return &Postgres{URL: url, Pool: pool}
}

// MigrationsSource finds the repository's migrations directory from the
// test's working directory, which is the package under test.
func MigrationsSource(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return "file://" + filepath.ToSlash(filepath.Join(dir, "migrations"))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("migrations: no go.mod above the working directory")
		}
		dir = parent
	}
}

// ObjectStore is an S3-compatible RustFS server used for the report archive.
type ObjectStore struct {
	Endpoint string
}

func StartObjectStore(ctx context.Context, t *testing.T) *ObjectStore {
	t.Helper()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        rustfsImage,
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"RUSTFS_ACCESS_KEY": ObjectStoreAccessKey,
				"RUSTFS_SECRET_KEY": ObjectStoreSecretKey,
			},
			WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start rustfs: %v", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "http")
	if err != nil {
		t.Fatalf("rustfs endpoint: %v", err)
	}
	return &ObjectStore{Endpoint: endpoint}
}
