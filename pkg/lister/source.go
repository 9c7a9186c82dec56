package lister

import (
	"context"
	"errors"
)

// Page is one unit of remote listing data. It is produced by a Source,
// consumed within a single loop iteration and never persisted.
type Page any

// ErrEndOfListing is returned by Source.Next when the remote listing is
// exhausted for this run.
var ErrEndOfListing = errors.New("end of listing")

// Source produces pages from one remote service and extracts origins from
// them. One implementation exists per supported forge or package index; the
// engine depends only on this interface.
//
// The checkpoint blob handed to Connect and returned by Checkpoint is owned
// entirely by the implementation. The engine forwards it between the
// scheduler and the Source and byte-compares it to detect progress, but
// never inspects it.
type Source interface {
	// Connect prepares the source for a run. checkpoint is the blob
	// persisted by a previous run (nil on a fresh start) and credentials
	// the full candidate set resolved for this lister; how to pick among
	// several is the source's business.
	Connect(ctx context.Context, checkpoint []byte, credentials []Credential) error

	// Disconnect releases any resources held by the source.
	Disconnect(ctx context.Context) error

	// Next returns the next page, ErrEndOfListing once the remote data
	// is exhausted. Pages are produced strictly in order.
	Next(ctx context.Context) (Page, error)

	// Origins extracts the origin records present on a page.
	Origins(page Page) ([]Origin, error)

	// Commit advances the in-memory checkpoint past the given page. It is
	// called only after the page's origins have been acknowledged by the
	// scheduler.
	Commit(page Page)

	// Checkpoint serializes the in-memory checkpoint. A nil blob marks a
	// stateless source: every run re-lists from the beginning and nothing
	// is ever persisted.
	Checkpoint() ([]byte, error)
}

// Finalizer is an optional Source hook invoked once at run teardown, before
// the engine decides whether to persist state. It runs on failure paths too.
type Finalizer interface {
	Finalize(ctx context.Context)
}
