package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodian/internal/audit"
	id "custodian/pkg/domain"
	txcontext "custodian/pkg/platform/tx"
)

// Store persists ledger entries in PostgreSQL. Each append writes the
// queryable audit_entries row and a transactional-outbox row in the same
// statement batch; the relay publishes outbox rows to Kafka for SIEM fanout.
// Joining the ambient transaction (pkg/platform/tx) is what makes a ledger
// entry commit or roll back together with the state write it describes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	exec := s.execer(ctx)

	insertEntry := `
		INSERT INTO audit_entries (id, owner_user_id, event_type, actor_email, target_resource, request_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var ownerID *uuid.UUID
	if !entry.OwnerUserID.IsNil() {
		uid := uuid.UUID(entry.OwnerUserID)
		ownerID = &uid
	}
	if _, err := exec.ExecContext(ctx, insertEntry,
		entry.ID,
		ownerID,
		entry.EventType,
		entry.ActorEmail,
		entry.TargetResource,
		entry.RequestID,
		metadata,
		entry.Timestamp,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(outboxPayload{
		ID:             entry.ID.String(),
		EventType:      entry.EventType,
		ActorEmail:     entry.ActorEmail,
		TargetResource: entry.TargetResource,
		RequestID:      entry.RequestID,
		Timestamp:      entry.Timestamp.Format(time.RFC3339Nano),
		Metadata:       entry.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	insertOutbox := `
		INSERT INTO audit_outbox (id, entry_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := exec.ExecContext(ctx, insertOutbox,
		uuid.New(),
		entry.ID,
		entry.EventType,
		payload,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert audit outbox entry: %w", err)
	}
	return nil
}

// outboxPayload is the JSON structure the relay publishes to Kafka.
type outboxPayload struct {
	ID             string         `json:"id"`
	EventType      string         `json:"event_type"`
	ActorEmail     string         `json:"actor_email"`
	TargetResource string         `json:"target_resource"`
	RequestID      string         `json:"request_id,omitempty"`
	Timestamp      string         `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

const selectColumns = `
	SELECT id, owner_user_id, event_type, actor_email, target_resource, request_id, metadata, created_at
	FROM audit_entries
`

func (s *Store) ListByTarget(ctx context.Context, target string) ([]*audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE target_resource = $1 ORDER BY created_at ASC`, target)
	if err != nil {
		return nil, fmt.Errorf("query audit entries by target: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListByOwner(ctx context.Context, ownerUserID id.UserID) ([]*audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE owner_user_id = $1 ORDER BY created_at ASC`, uuid.UUID(ownerUserID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries by owner: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]*audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*audit.Entry, error) {
	var entries []*audit.Entry
	for rows.Next() {
		var (
			entry    audit.Entry
			ownerID  *uuid.UUID
			metadata []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&ownerID,
			&entry.EventType,
			&entry.ActorEmail,
			&entry.TargetResource,
			&entry.RequestID,
			&metadata,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if ownerID != nil {
			entry.OwnerUserID = id.UserID(*ownerID)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// OutboxRow is one unpublished ledger fact awaiting Kafka delivery.
type OutboxRow struct {
	ID      uuid.UUID
	EntryID uuid.UUID
	Payload []byte
}

// NextOutboxBatch returns up to limit unpublished rows, oldest first. The
// relay runs as a single instance per deployment; duplicate publishes after a
// crash are tolerated because the Kafka payload carries the entry id.
func (s *Store) NextOutboxBatch(ctx context.Context, limit int) ([]OutboxRow, error) {
	query := `
		SELECT id, entry_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var batch []OutboxRow
	for rows.Next() {
		var row OutboxRow
		if err := rows.Scan(&row.ID, &row.EntryID, &row.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return batch, nil
}

// MarkPublished stamps outbox rows as delivered. Rows are kept, not deleted,
// so delivery can be audited; a retention job may prune them externally.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, rowID := range ids {
		strIDs[i] = rowID.String()
	}
	query := `UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), strIDs); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
