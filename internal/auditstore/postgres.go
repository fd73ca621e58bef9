package auditstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"

	"github.com/ocppsim/simulator/pkg/contracts"
)

// PostgresDriver persists audit records to a `command_audit` table, wired
// optionally when DATABASE_URL is configured (SPEC_FULL.md supplemented
// feature 4). Grounded on the pack's pgxpool repository pattern.
type PostgresDriver struct {
	pool *pgxpool.Pool
}

// NewPostgresDriver connects to the given DSN, creates the `command_audit`
// table and index if they do not exist, and returns a ready driver.
func NewPostgresDriver(ctx context.Context, dsn string) (*PostgresDriver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect audit postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit postgres: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate audit postgres: %w", err)
	}
	return &PostgresDriver{pool: pool}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS command_audit (
	id            UUID PRIMARY KEY,
	procedure     TEXT NOT NULL,
	hash_ids      TEXT[] NOT NULL DEFAULT '{}',
	payload       JSONB,
	succeeded     TEXT[] NOT NULL DEFAULT '{}',
	failed        TEXT[] NOT NULL DEFAULT '{}',
	dispatched_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS command_audit_dispatched_at_idx ON command_audit (dispatched_at DESC);
`

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaDDL)
	return err
}

func (d *PostgresDriver) Kind() string { return "postgres" }

// RecordCommand inserts one row into command_audit.
func (d *PostgresDriver) RecordCommand(ctx context.Context, record contracts.AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	const query = `
		INSERT INTO command_audit (id, procedure, hash_ids, payload, succeeded, failed, dispatched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = d.pool.Exec(ctx, query,
		record.ID,
		record.Procedure,
		record.HashIDs,
		payload,
		record.Succeeded,
		record.Failed,
		record.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert command_audit: %w", err)
	}
	return nil
}

func (d *PostgresDriver) HealthCheck(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close releases the connection pool.
func (d *PostgresDriver) Close() { d.pool.Close() }
