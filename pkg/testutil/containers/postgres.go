//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Schema is the full DDL for the engine's tables. Integration tests apply it
// to a fresh container instead of depending on external migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS governance_actions (
	id                 UUID PRIMARY KEY,
	owner_user_id      UUID NOT NULL,
	asset_id           UUID NOT NULL,
	asset_external_id  TEXT NOT NULL,
	action_type        TEXT NOT NULL,
	status             TEXT NOT NULL,
	requested_by_email TEXT NOT NULL,
	reason             TEXT NOT NULL,
	params             JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_message      TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	executed_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_governance_actions_status
	ON governance_actions (status, updated_at);

CREATE TABLE IF NOT EXISTS approvals (
	id             UUID PRIMARY KEY,
	action_id      UUID NOT NULL REFERENCES governance_actions (id),
	approver_email TEXT NOT NULL,
	decision       TEXT NOT NULL,
	comment        TEXT NOT NULL DEFAULT '',
	responded_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_approvals_action_id
	ON approvals (action_id);

CREATE TABLE IF NOT EXISTS audit_entries (
	id              UUID PRIMARY KEY,
	owner_user_id   UUID NOT NULL,
	event_type      TEXT NOT NULL,
	actor_email     TEXT NOT NULL,
	target_resource TEXT NOT NULL,
	request_id      TEXT NOT NULL DEFAULT '',
	metadata        JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_target
	ON audit_entries (target_resource, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_entries_owner
	ON audit_entries (owner_user_id, created_at);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id           UUID PRIMARY KEY,
	entry_id     UUID NOT NULL REFERENCES audit_entries (id),
	event_type   TEXT NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_audit_outbox_unpublished
	ON audit_outbox (created_at) WHERE published_at IS NULL;
`

// PostgresContainer wraps a testcontainers Postgres instance with the schema
// already applied.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

// NewPostgresContainer starts a new Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("custodian_test"),
		tcpostgres.WithUsername("custodian"),
		tcpostgres.WithPassword("custodian"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		URL:       url,
		DB:        db,
	}
}

// Truncate clears all engine tables. Use between tests to ensure isolation.
func (p *PostgresContainer) Truncate(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx,
		`TRUNCATE audit_outbox, audit_entries, approvals, governance_actions`)
	return err
}
