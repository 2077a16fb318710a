// Package relay drains the audit outbox into Kafka. The ledger table stays
// the queryable source of truth; the Kafka topic feeds downstream SIEM and
// compliance consumers.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"custodian/internal/audit/store/postgres"
)

// Publisher delivers one batch of serialized ledger facts. Satisfied by
// KafkaPublisher in production and by fakes in tests.
type Publisher interface {
	Publish(ctx context.Context, keys []string, payloads [][]byte) error
}

// Outbox is the slice of the postgres audit store the relay needs.
type Outbox interface {
	NextOutboxBatch(ctx context.Context, limit int) ([]postgres.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

const (
	defaultBatchSize    = 100
	defaultPollInterval = 2 * time.Second
)

// Relay polls the outbox and publishes pending rows. Rows are marked
// published only after Kafka acknowledges the batch, so a crash replays
// rather than drops entries.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger

	batchSize    int
	pollInterval time.Duration
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		r.batchSize = n
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		r.pollInterval = d
	}
}

func New(outbox Outbox, publisher Publisher, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		outbox:       outbox,
		publisher:    publisher,
		logger:       logger,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick instead of crashing the server; the outbox keeps the
// backlog durable in the meantime.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.logger.ErrorContext(ctx, "audit relay drain failed", "error", err)
			}
		}
	}
}

// Drain publishes every currently pending outbox row, batch by batch.
func (r *Relay) Drain(ctx context.Context) error {
	for {
		batch, err := r.outbox.NextOutboxBatch(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(batch))
		keys := make([]string, len(batch))
		payloads := make([][]byte, len(batch))
		for i, row := range batch {
			ids[i] = row.ID
			keys[i] = row.EntryID.String()
			payloads[i] = row.Payload
		}

		if err := r.publisher.Publish(ctx, keys, payloads); err != nil {
			return err
		}
		if err := r.outbox.MarkPublished(ctx, ids); err != nil {
			return err
		}
		if len(batch) < r.batchSize {
			return nil
		}
	}
}

// Start launches the relay on an errgroup tied to ctx; the returned wait
// function blocks until the relay stops.
func (r *Relay) Start(ctx context.Context) (wait func() error) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := r.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait
}
