package lister

import (
	"context"

	"github.com/google/uuid"
)

// ListerInfo is the scheduler-side record for one (name, instance) pair.
type ListerInfo struct {
	ID       uuid.UUID
	Name     string
	Instance string

	// CurrentState is the checkpoint blob stored by a previous run,
	// nil if this lister has never persisted state. Its schema is
	// private to the Source implementation.
	CurrentState []byte
}

// Scheduler is the external system of record for lister identities,
// checkpoint state and listed origins.
type Scheduler interface {
	// GetOrCreateLister returns the stable identity for (name, instance),
	// creating the record on first use.
	GetOrCreateLister(ctx context.Context, name, instance string) (ListerInfo, error)

	// UpdateListerState stores the checkpoint blob for a lister.
	UpdateListerState(ctx context.Context, id uuid.UUID, state []byte) error

	// RecordListedOrigins upserts a batch of origins. The upsert is
	// idempotent by (lister id, visit type, URL): re-reporting updates
	// last-seen metadata, never duplicates. Returns the number of
	// origins accepted.
	RecordListedOrigins(ctx context.Context, origins []Origin) (int, error)
}
