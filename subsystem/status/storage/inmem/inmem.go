// Package inmem implements an in-memory process-status store.
package inmem

import (
	"context"
	"sync"

	"github.com/dentalrpa/journalize/process"
	"github.com/dentalrpa/journalize/subsystem/status/storage"
)

type record struct {
	status    process.Status
	responses map[string]storage.Fragment
}

// InMem is an in-memory process-status store.
type InMem struct {
	mu      sync.RWMutex
	records map[string]*record
}

func New() *InMem {
	return &InMem{records: make(map[string]*record)}
}

func (s *InMem) record(reference string) *record {
	r, ok := s.records[reference]
	if !ok {
		r = &record{responses: make(map[string]storage.Fragment)}
		s.records[reference] = r
	}
	return r
}

func (s *InMem) UpdateProcessStatus(_ context.Context, reference string, status process.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(reference).status = status
	return nil
}

func (s *InMem) UpdateResponseMetadata(_ context.Context, reference, stepName string, fragment storage.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := make(storage.Fragment, len(fragment))
	for k, v := range fragment {
		f[k] = v
	}
	s.record(reference).responses[stepName] = f
	return nil
}

func (s *InMem) RetrieveProcessStatus(_ context.Context, reference string) (process.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[reference]
	if !ok || r.status == "" {
		return "", storage.ErrNotFound
	}
	return r.status, nil
}

func (s *InMem) RetrieveResponseMetadata(_ context.Context, reference string) (map[string]storage.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[reference]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make(map[string]storage.Fragment, len(r.responses))
	for step, f := range r.responses {
		cp := make(storage.Fragment, len(f))
		for k, v := range f {
			cp[k] = v
		}
		out[step] = cp
	}
	return out, nil
}
