package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sessionguard/platform/internal/domain"
	"github.com/sessionguard/platform/internal/repository"
)

// RelayOptions tunes an OutboxRelay. Zero values take defaults.
type RelayOptions struct {
	TopicPrefix string        // default "sessionguard"
	Interval    time.Duration // default 2s
	BatchSize   int           // default 100
}

// OutboxRelay drains event_outbox into a Publisher. Rows are deleted only
// after they were published, so delivery is at-least-once.
type OutboxRelay struct {
	outbox    repository.OutboxRepository
	publisher Publisher
	logger    *slog.Logger
	opts      RelayOptions
}

// NewOutboxRelay creates a relay over the given outbox repository.
func NewOutboxRelay(outbox repository.OutboxRepository, publisher Publisher, logger *slog.Logger, opts RelayOptions) *OutboxRelay {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "sessionguard"
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &OutboxRelay{outbox: outbox, publisher: publisher, logger: logger, opts: opts}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	r.logger.Info("outbox relay started", "interval", r.opts.Interval, "batch_size", r.opts.BatchSize)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil {
				r.logger.Error("outbox relay error", "error", err)
			}
		}
	}
}

// Drain publishes one batch and reports how many events were delivered.
// It stops at the first publish failure so later events never overtake an
// undelivered one.
func (r *OutboxRelay) Drain(ctx context.Context) (int, error) {
	records, err := r.outbox.FetchUnpublished(ctx, r.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(records))
	var publishErr error
	for _, rec := range records {
		msg, err := envelope(rec)
		if err != nil {
			publishErr = fmt.Errorf("encode event %s: %w", rec.EventID, err)
			break
		}
		if err := r.publisher.Publish(ctx, rec.Topic(r.opts.TopicPrefix), []byte(rec.PartitionKey), msg); err != nil {
			publishErr = fmt.Errorf("publish event %s: %w", rec.EventID, err)
			break
		}
		ids = append(ids, rec.SeqID)
	}

	if err := r.outbox.MarkPublished(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}
	if len(ids) > 0 {
		r.logger.Debug("outbox batch relayed", "count", len(ids))
	}
	return len(ids), publishErr
}

func envelope(rec domain.OutboxRecord) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event_id":       rec.EventID,
		"aggregate_type": rec.AggregateType,
		"aggregate_id":   rec.AggregateID,
		"event_type":     rec.EventType,
		"headers":        rec.Headers,
		"payload":        rec.Payload,
		"occurred_at":    rec.OccurredAt,
	})
}
