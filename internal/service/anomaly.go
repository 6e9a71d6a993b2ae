package service

import (
	"context"
	"fmt"

	"github.com/sessionguard/platform/internal/domain"
	"github.com/sessionguard/platform/internal/repository"
)

// AnomalyLog appends risk evidence. Every entry is mirrored to the outbox in
// the same unit of work, and failures always propagate.
type AnomalyLog struct {
	entries repository.AnomalyRepository
	outbox  repository.OutboxRepository
}

// NewAnomalyLog binds an AnomalyLog to the given unit of work.
func NewAnomalyLog(store repository.Store) *AnomalyLog {
	return &AnomalyLog{entries: store.Anomalies(), outbox: store.Outbox()}
}

func (l *AnomalyLog) Record(ctx context.Context, entry *domain.AnomalyLogEntry) error {
	if err := l.entries.Append(ctx, entry); err != nil {
		return fmt.Errorf("append anomaly: %w", err)
	}
	if err := l.outbox.Insert(ctx, domain.NewAnomalyDetectedEvent(entry)); err != nil {
		return fmt.Errorf("outbox anomaly event: %w", err)
	}
	return nil
}
