//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"credtrust/internal/platform/database"
)

const (
	pgImage    = "postgres:18-alpine"
	pgDatabase = "credtrust_test"
	pgUser     = "credtrust"
	pgPassword = "credtrust_test_password"
)

// serviceTables lists every table the migrations create, children first.
var serviceTables = []string{"credentials", "two_factor_config"}

// PostgresContainer is a migrated Postgres instance.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer boots Postgres, waits until it accepts SQL and applies
// the embedded migrations. Failures abort the calling test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, pgImage,
		postgres.WithDatabase(pgDatabase),
		postgres.WithUsername(pgUser),
		postgres.WithPassword(pgPassword),
		testcontainers.WithWaitStrategy(
			wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
				return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, host, port.Port(), pgDatabase)
			}).WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	pc, err := connectAndMigrate(ctx, ctr)
	if err != nil {
		_ = ctr.Terminate(ctx)
		t.Fatalf("prepare postgres: %v", err)
	}
	return pc
}

func connectAndMigrate(ctx context.Context, ctr *postgres.PostgresContainer) (*PostgresContainer, error) {
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("connection string: %w", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresContainer{Container: ctr, DSN: dsn, DB: db}, nil
}

// Reset empties every service table in one statement so each test starts
// from a blank schema.
func (p *PostgresContainer) Reset(t *testing.T) {
	t.Helper()
	stmt := "TRUNCATE TABLE " + strings.Join(serviceTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := p.DB.ExecContext(context.Background(), stmt); err != nil {
		t.Fatalf("reset postgres: %v", err)
	}
}
