// Package storage defines types supporting the persistent process-status store.
package storage

import (
	"context"
	"errors"

	"github.com/dentalrpa/journalize/process"
)

// ErrNotFound is returned when no record exists for an item reference.
var ErrNotFound = errors.New("no status record for reference")

// Fragment is a structured per-step response payload, e.g.
// {"DocumentCreated": true}.
type Fragment map[string]interface{}

type ReadStorage interface {
	// RetrieveProcessStatus returns the persisted status for an item
	// reference, or ErrNotFound.
	RetrieveProcessStatus(ctx context.Context, reference string) (process.Status, error)

	// RetrieveResponseMetadata returns the per-step response fragments
	// for an item reference, keyed by step name.
	RetrieveResponseMetadata(ctx context.Context, reference string) (map[string]Fragment, error)
}

// Storage persists process status and step response metadata by item
// reference. Statuses are only ever moved forward by the pipeline;
// backends never roll a written status back.
type Storage interface {
	ReadStorage

	UpdateProcessStatus(ctx context.Context, reference string, status process.Status) error

	// UpdateResponseMetadata merges fragment into the response metadata
	// stored for reference under stepName, replacing any prior fragment
	// for that step.
	UpdateResponseMetadata(ctx context.Context, reference, stepName string, fragment Fragment) error
}
