package audit

import (
	"context"

	id "custodian/pkg/domain"
)

// Store persists ledger entries. Implementations must treat the ledger as
// append-only: no method updates or deletes an existing row.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	ListByTarget(ctx context.Context, target string) ([]*Entry, error)
	ListByOwner(ctx context.Context, ownerUserID id.UserID) ([]*Entry, error)
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
}
