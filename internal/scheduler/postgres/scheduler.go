// Package postgres is the Postgres-backed Scheduler client. Lister
// identities and their checkpoint blobs live in the listers table; origins
// land in listed_origins through an idempotent upsert keyed by
// (lister_id, visit_type, url).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/originwatch/originwatch/pkg/lister"
)

const schema = `
CREATE TABLE IF NOT EXISTS listers (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	instance TEXT NOT NULL,
	current_state BYTEA,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, instance)
);

CREATE TABLE IF NOT EXISTS listed_origins (
	lister_id UUID NOT NULL REFERENCES listers (id),
	visit_type TEXT NOT NULL,
	url TEXT NOT NULL,
	last_update TIMESTAMPTZ,
	extra_loader_arguments JSONB,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (lister_id, visit_type, url)
);
`

type Scheduler struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func New(ctx context.Context, connString string, logger *zap.Logger) (*Scheduler, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to scheduler database: %w", err)
	}
	return &Scheduler{
		pool:   pool,
		logger: logger,
	}, nil
}

// Migrate creates the scheduler tables if they do not exist.
func (s *Scheduler) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating scheduler tables: %w", err)
	}
	return nil
}

func (s *Scheduler) Close() {
	s.pool.Close()
}

func (s *Scheduler) GetOrCreateLister(ctx context.Context, name, instance string) (lister.ListerInfo, error) {
	info := lister.ListerInfo{Name: name, Instance: instance}

	// The no-op DO UPDATE makes RETURNING yield the existing row on
	// conflict.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO listers (id, name, instance)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, instance) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, current_state`,
		uuid.New(), name, instance)

	if err := row.Scan(&info.ID, &info.CurrentState); err != nil {
		return lister.ListerInfo{}, fmt.Errorf("getting or creating lister %s/%s: %w", name, instance, err)
	}
	return info, nil
}

func (s *Scheduler) UpdateListerState(ctx context.Context, id uuid.UUID, state []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE listers SET current_state = $2, updated_at = now() WHERE id = $1`,
		id, state)
	if err != nil {
		return fmt.Errorf("updating state for lister %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no lister with id %s", id)
	}
	return nil
}

func (s *Scheduler) RecordListedOrigins(ctx context.Context, origins []lister.Origin) (int, error) {
	batch := &pgx.Batch{}
	for _, o := range origins {
		var extra []byte
		if o.ExtraLoaderArguments != nil {
			var err error
			extra, err = json.Marshal(o.ExtraLoaderArguments)
			if err != nil {
				return 0, fmt.Errorf("encoding loader arguments for %s: %w", o.URL, err)
			}
		}
		batch.Queue(`
			INSERT INTO listed_origins (lister_id, visit_type, url, last_update, extra_loader_arguments)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (lister_id, visit_type, url) DO UPDATE
			SET last_update = EXCLUDED.last_update,
			    extra_loader_arguments = EXCLUDED.extra_loader_arguments,
			    last_seen = now()`,
			o.ListerID, o.VisitType, o.URL, o.LastUpdate, extra)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	count := 0
	for range origins {
		if _, err := results.Exec(); err != nil {
			return count, fmt.Errorf("upserting origins: %w", err)
		}
		count++
	}
	return count, nil
}
