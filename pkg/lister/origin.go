package lister

import (
	"time"

	"github.com/google/uuid"
)

// Origin is one discoverable software source, as recorded by the scheduler.
// (VisitType, URL) is the natural dedup key; the scheduler's upsert keeps a
// single record per (lister, visit type, URL) no matter how many times the
// same origin is reported.
type Origin struct {
	// ListerID is the scheduler-assigned identity of the lister that saw
	// this origin. Stamped by the reporter, sources leave it zero.
	ListerID uuid.UUID `json:"lister_id"`

	// VisitType names the protocol the downstream loader must speak
	// ("git", "hg", "npm", "pypi", ...).
	VisitType string `json:"visit_type"`

	URL string `json:"url"`

	// LastUpdate is the last modification time advertised by the remote
	// service, when it provides one.
	LastUpdate *time.Time `json:"last_update,omitempty"`

	// ExtraLoaderArguments carries additional key/value arguments some
	// loaders need (e.g. artifact lists for package loaders).
	ExtraLoaderArguments map[string]any `json:"extra_loader_arguments,omitempty"`
}
