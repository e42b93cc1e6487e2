//go:build integration

package testutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/gurudigital/pelangi/storage/database"
)

const postgresImage = "postgres:16-alpine"

// PostgresDB starts a throwaway PostgreSQL container, migrates it and returns a connection.
// The returned func closes the connection and terminates the container.
func PostgresDB(ctx context.Context) (*sqlx.DB, func(), error) {
	ctr, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("pelangi_test"),
		postgres.WithUsername("pelangi"),
		postgres.WithPassword("pelangi"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		if ctr != nil {
			_ = testcontainers.TerminateContainer(ctr)
		}
		return nil, nil, err
	}
	terminate := func() { _ = testcontainers.TerminateContainer(ctr) }

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return nil, nil, err
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		terminate()
		return nil, nil, err
	}

	return db, func() {
		_ = db.Close()
		terminate()
	}, nil
}

// TruncateAll empties every application table.
func TruncateAll(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE student_badge, badge, xp_event, student_xp, student, class, "user" CASCADE`)
	if err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}
