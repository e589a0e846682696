// Package testhelpers provisions a disposable Postgres container for the
// integration tests that exercise pkg/database, pkg/audit,
// pkg/promptregistry, pkg/outputstore, and pkg/engine against the real
// store rather than a fake. Grounded on the teacher's
// pkg/testhelpers/containers.go: a process-wide shared container started
// once via sync.Once, skipped in `go test -short` so unit-test runs never
// need Docker.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver, required by golang-migrate
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/doctrail-go/enrichment-engine/pkg/database"
)

const (
	testUser = "enrichment"
	testPass = "enrichment_test"
	testDB   = "enrichment_test"
)

type sharedContainer struct {
	container testcontainers.Container
	connStr   string
}

var (
	shared     *sharedContainer
	sharedOnce sync.Once
	sharedErr  error
)

// GetDB returns a *database.DB connected to a shared Postgres test
// container with migrations applied. Skips the test (not fails) when
// running `go test -short`, since starting a container requires Docker.
func GetDB(t *testing.T) *database.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}

	sharedOnce.Do(func() {
		shared, sharedErr = startContainer()
	})
	if sharedErr != nil {
		t.Fatalf("start postgres test container: %v", sharedErr)
	}

	db, err := database.NewConnection(context.Background(), &database.Config{
		URL:            shared.connStr,
		MaxConnections: 5,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := applyMigrations(shared.connStr); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	return db
}

func startContainer() (*sharedContainer, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDB,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPass,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		testUser, testPass, host, port.Port(), testDB)

	return &sharedContainer{container: container, connStr: connStr}, nil
}

func applyMigrations(connStr string) error {
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open sql.DB for migrations: %w", err)
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, migrationsDir(), zap.NewNop())
}

// migrationsDir locates the repository's migrations/ directory relative to
// this source file, so tests work regardless of the invoking package's
// working directory.
func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}
