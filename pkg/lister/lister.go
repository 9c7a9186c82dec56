// Package lister implements the generic listing execution engine: it drives
// a per-service Source page by page, reports discovered origins to the
// scheduler in batches, and manages the opaque checkpoint state that makes
// long listings resumable across runs.
package lister

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Lister runs exactly one listing pass end-to-end against one configured
// (name, instance, url) target. The target and its credentials are fixed at
// construction; Run takes no page-level arguments.
type Lister struct {
	Name     string
	Instance string
	URL      string

	State *FSM

	scheduler   Scheduler
	source      Source
	secretStore SecretStore
	credentials []Credential
	journal     Journal
	logger      *zap.Logger

	info        ListerInfo
	loadedState []byte

	// statsMu guards stats: the admin server reads them while the run
	// goroutine increments.
	statsMu sync.Mutex
	stats   Stats
}

type Option func(*Lister)

func WithScheduler(scheduler Scheduler) Option {
	return func(l *Lister) {
		l.scheduler = scheduler
	}
}

func WithSource(source Source) Option {
	return func(l *Lister) {
		l.source = source
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Lister) {
		l.logger = logger
	}
}

// WithCredentials supplies explicit credentials. When non-empty they are
// used verbatim and the secret store is never consulted.
func WithCredentials(credentials []Credential) Option {
	return func(l *Lister) {
		l.credentials = credentials
	}
}

func WithSecretStore(store SecretStore) Option {
	return func(l *Lister) {
		l.secretStore = store
	}
}

// WithJournal tees acknowledged origin batches to a journal publisher.
func WithJournal(journal Journal) Option {
	return func(l *Lister) {
		l.journal = journal
	}
}

func New(name, instance, url string, opts ...Option) (*Lister, error) {
	if name == "" {
		return nil, errors.New("lister name must not be empty")
	}
	l := &Lister{
		Name:     name,
		Instance: instance,
		URL:      url,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.scheduler == nil {
		return nil, errors.New("a scheduler is required")
	}
	if l.source == nil {
		return nil, errors.New("a source is required")
	}

	l.State = NewFSM(
		FSMWithInitialState(StateInit),
		FSMWithLogger(l.logger.Named("fsm")),
	)

	return l, nil
}

// Run executes one full listing pass and returns the run's statistics.
//
// Pages are fetched, extracted, reported and committed strictly in order;
// a page's checkpoint is advanced only after the scheduler acknowledged its
// origins. On any failure the run stops, finalize still executes
// (persisting whatever earlier pages already committed), the error
// propagates and the partial statistics are discarded. Re-running after a
// failure resumes from the last committed page; re-processing the page in
// flight at the time of the failure is expected, the scheduler's idempotent
// upsert absorbs the duplicates.
func (l *Lister) Run(ctx context.Context) (Stats, error) {
	if err := l.State.Transition(StateLoadingState); err != nil {
		return Stats{}, err
	}

	l.logger.Info("Starting listing run",
		zap.String("lister", l.Name),
		zap.String("instance", l.Instance),
		zap.String("url", l.URL))

	info, err := l.scheduler.GetOrCreateLister(ctx, l.Name, l.Instance)
	if err != nil {
		l.State.Transition(StateTerminated)
		return Stats{}, fmt.Errorf("loading lister state: %w", err)
	}
	l.info = info
	l.loadedState = info.CurrentState

	credentials, err := ResolveCredentials(ctx, l.credentials, l.secretStore, l.Name, l.Instance)
	if err != nil {
		l.State.Transition(StateTerminated)
		return Stats{}, err
	}

	if err := l.source.Connect(ctx, l.loadedState, credentials); err != nil {
		l.State.Transition(StateTerminated)
		return Stats{}, fmt.Errorf("connecting source: %w", err)
	}

	rep := &reporter{
		scheduler: l.scheduler,
		listerID:  l.info.ID,
		journal:   l.journal,
		logger:    l.logger,
	}

	runErr := l.pages(ctx, rep)
	finErr := l.finalize(ctx)

	if runErr != nil {
		if finErr != nil {
			// The page-loop error wins; a failed checkpoint persist
			// must still be visible in the logs.
			l.logger.Warn("Finalize failed after run error",
				zap.String("lister", l.Name),
				zap.String("instance", l.Instance),
				zap.Error(finErr))
		}
		return Stats{}, runErr
	}
	if finErr != nil {
		return Stats{}, finErr
	}

	stats := l.Stats()
	l.logger.Info("Listing run finished",
		zap.String("lister", l.Name),
		zap.String("instance", l.Instance),
		zap.Int("pages", stats.Pages),
		zap.Int("origins", stats.Origins))

	return stats, nil
}

// pages is the main loop: fetch, extract, report, commit, repeat.
func (l *Lister) pages(ctx context.Context, rep *reporter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.State.Transition(StateFetching); err != nil {
			return err
		}
		page, err := l.source.Next(ctx)
		if errors.Is(err, ErrEndOfListing) {
			return l.State.Transition(StateDone)
		}
		if err != nil {
			return fmt.Errorf("fetching page: %w", err)
		}
		l.addStats(Stats{Pages: 1})
		pagesProcessedTotal.WithLabelValues(l.Name, l.Instance).Inc()

		if err := l.State.Transition(StateExtracting); err != nil {
			return err
		}
		origins, err := l.source.Origins(page)
		if err != nil {
			return fmt.Errorf("extracting origins: %w", err)
		}

		if err := l.State.Transition(StateReporting); err != nil {
			return err
		}
		recorded, err := rep.send(ctx, origins)
		if err != nil {
			return err
		}
		l.addStats(Stats{Origins: recorded})
		originsRecordedTotal.WithLabelValues(l.Name, l.Instance).Add(float64(recorded))

		if err := l.State.Transition(StateCommitting); err != nil {
			return err
		}
		l.source.Commit(page)
	}
}

// finalize runs on every exit path. It invokes the source's finalize hook,
// persists the checkpoint if and only if it advanced since load, and
// disconnects the source. Persistence deliberately survives context
// cancellation: a graceful shutdown must not lose progress already
// committed.
func (l *Lister) finalize(ctx context.Context) error {
	if err := l.State.Transition(StateFinalizing); err != nil {
		return err
	}

	// Checkpoint persistence and disconnect use a detached context so a
	// cancelled run can still record its progress.
	ctx = context.WithoutCancel(ctx)

	defer func() {
		if err := l.source.Disconnect(ctx); err != nil {
			l.logger.Warn("Error disconnecting source", zap.Error(err))
		}
	}()

	if f, ok := l.source.(Finalizer); ok {
		f.Finalize(ctx)
	}

	checkpoint, err := l.source.Checkpoint()
	if err != nil {
		l.State.Transition(StateTerminated)
		return fmt.Errorf("serializing checkpoint: %w", err)
	}

	// Stateless source, or nothing advanced since load: skip the write.
	if checkpoint == nil || bytes.Equal(checkpoint, l.loadedState) {
		return l.State.Transition(StateTerminated)
	}

	if err := l.State.Transition(StatePersisting); err != nil {
		return err
	}
	if err := l.scheduler.UpdateListerState(ctx, l.info.ID, checkpoint); err != nil {
		l.State.Transition(StateTerminated)
		return fmt.Errorf("persisting checkpoint: %w", err)
	}
	stateStoresTotal.WithLabelValues(l.Name, l.Instance).Inc()

	l.logger.Info("Checkpoint persisted",
		zap.String("lister", l.Name),
		zap.String("instance", l.Instance))

	return l.State.Transition(StateTerminated)
}

func (l *Lister) addStats(delta Stats) {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	l.stats = l.stats.Add(delta)
}

// Stats returns the counters accumulated so far. They are monotonic within
// one run and only meaningful to outside observers (the admin server) while
// a run is in flight or after it succeeded. Safe to call concurrently with
// a running Run.
func (l *Lister) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}
