// Package memory holds an in-process Scheduler used by tests and local
// development. It mirrors the semantics the real backends provide: stable
// lister identities, an opaque state blob per lister, and idempotent origin
// upsert by (lister id, visit type, URL).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/originwatch/originwatch/pkg/lister"
)

type originKey struct {
	listerID  uuid.UUID
	visitType string
	url       string
}

type storedOrigin struct {
	origin   lister.Origin
	lastSeen time.Time
}

type Scheduler struct {
	mu      sync.Mutex
	listers map[string]*lister.ListerInfo
	origins map[originKey]storedOrigin

	// Call counters, observable by tests.
	stateWrites int
	upsertCalls int
}

func New() *Scheduler {
	return &Scheduler{
		listers: make(map[string]*lister.ListerInfo),
		origins: make(map[originKey]storedOrigin),
	}
}

func key(name, instance string) string {
	return name + "/" + instance
}

func (s *Scheduler) GetOrCreateLister(ctx context.Context, name, instance string) (lister.ListerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.listers[key(name, instance)]; ok {
		return *info, nil
	}
	info := &lister.ListerInfo{
		ID:       uuid.New(),
		Name:     name,
		Instance: instance,
	}
	s.listers[key(name, instance)] = info
	return *info, nil
}

func (s *Scheduler) UpdateListerState(ctx context.Context, id uuid.UUID, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateWrites++
	for _, info := range s.listers {
		if info.ID == id {
			info.CurrentState = append([]byte(nil), state...)
			return nil
		}
	}
	return nil
}

func (s *Scheduler) RecordListedOrigins(ctx context.Context, origins []lister.Origin) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertCalls++
	now := time.Now()
	for _, o := range origins {
		k := originKey{listerID: o.ListerID, visitType: o.VisitType, url: o.URL}
		s.origins[k] = storedOrigin{origin: o, lastSeen: now}
	}
	return len(origins), nil
}

// Origins returns every stored origin, ordered by URL.
func (s *Scheduler) Origins() []lister.Origin {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]lister.Origin, 0, len(s.origins))
	for _, stored := range s.origins {
		out = append(out, stored.origin)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// StateWrites returns how many UpdateListerState calls were made.
func (s *Scheduler) StateWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateWrites
}

// UpsertCalls returns how many RecordListedOrigins calls were made.
func (s *Scheduler) UpsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertCalls
}
