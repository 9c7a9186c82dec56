package lister

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// reporterBatchSize bounds one scheduler upsert call. Not user-tunable.
const reporterBatchSize = 100

// Journal receives a copy of every origin batch the scheduler acknowledged,
// e.g. to feed a Kafka topic of listed origins.
type Journal interface {
	Publish(ctx context.Context, origins []Origin) error
}

// reporter delivers one page's origins to the scheduler in bounded batches.
// It performs no dedup of its own; the scheduler's idempotent upsert absorbs
// duplicates, within a page and across runs alike.
type reporter struct {
	scheduler Scheduler
	listerID  uuid.UUID
	journal   Journal
	logger    *zap.Logger
}

// send forwards origins to the scheduler and returns the count accepted.
// A scheduler rejection aborts the page; its checkpoint must not be
// committed by the caller.
func (r *reporter) send(ctx context.Context, origins []Origin) (int, error) {
	count := 0
	for start := 0; start < len(origins); start += reporterBatchSize {
		end := start + reporterBatchSize
		if end > len(origins) {
			end = len(origins)
		}
		batch := make([]Origin, end-start)
		copy(batch, origins[start:end])
		for i := range batch {
			batch[i].ListerID = r.listerID
		}

		accepted, err := r.scheduler.RecordListedOrigins(ctx, batch)
		if err != nil {
			return count, fmt.Errorf("recording %d origins: %w", len(batch), err)
		}
		count += accepted

		if r.journal != nil {
			// The scheduler is the system of record; a journal hiccup
			// is logged, not fatal.
			if err := r.journal.Publish(ctx, batch); err != nil {
				r.logger.Error("Failed to publish origins to journal",
					zap.Int("origins", len(batch)),
					zap.Error(err))
			}
		}
	}
	return count, nil
}
