package test_utils

import (
	"context"
	"fmt"

	"github.com/RitoIssei/bot-mng-ns/internal/config"
	"github.com/RitoIssei/bot-mng-ns/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	dbName     = "budget"
	dbUser     = "test_budget"
	dbPassword = "test_budget"
)

type containerStarter func(ctx context.Context) (*postgres.PostgresContainer, error)

func runPostgres(ctx context.Context) (*postgres.PostgresContainer, error) {
	return postgres.Run(
		ctx, "postgres:18.1-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.BasicWaitStrategies(),
	)
}

// startContainer turns a panic from the container provider (no Docker available) into an error.
func startContainer(ctx context.Context, start containerStarter) (container *postgres.PostgresContainer, err error) {
	defer func() {
		if r := recover(); r != nil {
			container, err = nil, fmt.Errorf("container runtime unavailable: %v", r)
		}
	}()
	return start(ctx)
}

func preparePostgresContainer() (*postgres.PostgresContainer, error) {
	pgContainer, err := startContainer(context.Background(), runPostgres)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return nil, err
	}
	return pgContainer, nil
}

// TestWithDB sets up a Postgres instance, applies all migrations and snapshots the clean state.
// When no container runtime is available it returns a nil container and repository tests skip.
func TestWithDB() (*postgres.PostgresContainer, func() *pgxpool.Pool) {
	ctx := context.Background()

	container, err := preparePostgresContainer()
	if err != nil {
		log.Warnf("Postgres container unavailable, repository tests will be skipped: %v", err)
		return nil, nil
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432/tcp")

	log.Infof("Postgres container started at %s:%d", host, port.Int())

	cfg := config.Database{
		Host:   host,
		Port:   port.Int(),
		User:   dbUser,
		Pass:   dbPassword,
		Name:   dbName,
		Schema: "public",
	}

	if err := database.Migrate(cfg); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	if err := container.Snapshot(ctx, postgres.WithSnapshotName("postgres-test-snapshot")); err != nil {
		log.Fatalf("Failed to snapshot postgres container: %v", err)
	}

	return container, func() *pgxpool.Pool {
		db, err := database.Open(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to open database connection: %v", err)
		}
		return db
	}
}
