//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"custodian/internal/audit"
	"custodian/internal/audit/store/postgres"
	id "custodian/pkg/domain"
	"custodian/pkg/testutil/containers"
)

type AuditPostgresSuite struct {
	suite.Suite
	ctx context.Context

	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestAuditPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(AuditPostgresSuite))
}

func (s *AuditPostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.pg.DB)
}

func (s *AuditPostgresSuite) TearDownSuite() {
	_ = s.pg.DB.Close()
	_ = s.pg.Container.Terminate(s.ctx)
}

func (s *AuditPostgresSuite) SetupTest() {
	require.NoError(s.T(), s.pg.Truncate(s.ctx))
}

func (s *AuditPostgresSuite) newEntry(owner id.UserID, eventType, target string) *audit.Entry {
	return &audit.Entry{
		ID:             uuid.New(),
		OwnerUserID:    owner,
		EventType:      eventType,
		ActorEmail:     "alice@x.com",
		TargetResource: target,
		RequestID:      "req-1",
		Metadata:       map[string]any{"comment": "fine"},
		Timestamp:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *AuditPostgresSuite) TestAppend_WritesEntryAndOutboxRow() {
	owner := id.NewUserID()
	entry := s.newEntry(owner, audit.EventActionApproved, "action/abc")
	s.Require().NoError(s.store.Append(s.ctx, entry))

	entries, err := s.store.ListByTarget(s.ctx, "action/abc")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(entry.ID, entries[0].ID)
	s.Equal(owner, entries[0].OwnerUserID)
	s.Equal("req-1", entries[0].RequestID)
	s.Equal("fine", entries[0].Metadata["comment"])

	batch, err := s.store.NextOutboxBatch(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)
	s.Equal(entry.ID, batch[0].EntryID)

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(batch[0].Payload, &payload))
	s.Equal(audit.EventActionApproved, payload["event_type"])
	s.Equal(entry.ID.String(), payload["id"])
}

func (s *AuditPostgresSuite) TestMarkPublished_RemovesFromBatch() {
	entry := s.newEntry(id.NewUserID(), audit.EventActionCreated, "action/one")
	s.Require().NoError(s.store.Append(s.ctx, entry))

	batch, err := s.store.NextOutboxBatch(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)

	s.Require().NoError(s.store.MarkPublished(s.ctx, []uuid.UUID{batch[0].ID}))

	batch, err = s.store.NextOutboxBatch(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(batch)
}

func (s *AuditPostgresSuite) TestNextOutboxBatch_OldestFirstHonorsLimit() {
	for i := 0; i < 5; i++ {
		entry := s.newEntry(id.NewUserID(), audit.EventActionCreated, "action/seq")
		s.Require().NoError(s.store.Append(s.ctx, entry))
	}

	batch, err := s.store.NextOutboxBatch(s.ctx, 3)
	s.Require().NoError(err)
	s.Len(batch, 3)
}

func (s *AuditPostgresSuite) TestListByOwner_ScopedAndOrdered() {
	owner := id.NewUserID()
	other := id.NewUserID()

	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)
	for i := 0; i < 3; i++ {
		entry := s.newEntry(owner, audit.EventActionCreated, "action/mine")
		entry.Timestamp = base.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.store.Append(s.ctx, entry))
	}
	s.Require().NoError(s.store.Append(s.ctx, s.newEntry(other, audit.EventActionCreated, "action/theirs")))

	entries, err := s.store.ListByOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i := 1; i < len(entries); i++ {
		s.False(entries[i].Timestamp.Before(entries[i-1].Timestamp), "entries must be oldest first")
	}
}

func (s *AuditPostgresSuite) TestListRecent_NewestFirst() {
	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)
	for i := 0; i < 4; i++ {
		entry := s.newEntry(id.NewUserID(), audit.EventActionCreated, "action/recent")
		entry.Timestamp = base.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.store.Append(s.ctx, entry))
	}

	entries, err := s.store.ListRecent(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.True(entries[0].Timestamp.After(entries[1].Timestamp))
}

func (s *AuditPostgresSuite) TestAppend_NilOwnerAllowed() {
	entry := s.newEntry(id.UserID{}, audit.EventActionCreated, "action/system")
	s.Require().NoError(s.store.Append(s.ctx, entry))

	entries, err := s.store.ListByTarget(s.ctx, "action/system")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.True(entries[0].OwnerUserID.IsNil())
}
