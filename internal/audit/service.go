package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/requestcontext"
)

// Service is the ledger facade the workflow and execution services write
// through. It stamps identity, time, and request correlation so callers only
// describe the fact being recorded.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Append records one entry. A zero timestamp is stamped with the current
// time; a missing request id is filled from context when the HTTP middleware
// put one there. Storage failures are fatal to the surrounding operation so
// state writes and their ledger entries commit or fail together.
func (s *Service) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
	}
	return nil
}

// ListByTarget returns the entries referencing one resource, oldest first,
// for "who decided what, when" reconstruction.
func (s *Service) ListByTarget(ctx context.Context, target string) ([]*Entry, error) {
	entries, err := s.store.ListByTarget(ctx, target)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit entries by target")
	}
	return entries, nil
}

// ListByOwner returns the entries for all assets owned by one user.
func (s *Service) ListByOwner(ctx context.Context, ownerUserID id.UserID) ([]*Entry, error) {
	entries, err := s.store.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit entries by owner")
	}
	return entries, nil
}

// ListRecent returns the N most recent entries for the admin surface.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	entries, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list recent audit entries")
	}
	return entries, nil
}
