// Package diskv implements a diskv-backed process-status store.
package diskv

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dentalrpa/journalize/process"
	"github.com/dentalrpa/journalize/subsystem/status/storage"

	"github.com/peterbourgon/diskv/v3"
)

type record struct {
	Status    process.Status              `json:"status,omitempty"`
	Responses map[string]storage.Fragment `json:"responses,omitempty"`
}

// Diskv is an on-disk process-status store keyed by item reference.
type Diskv struct {
	diskv *diskv.Diskv
}

// New creates a new initialized process-status store.
func New(path string) *Diskv {
	flatTransform := func(s string) []string { return []string{} }
	return &Diskv{
		diskv: diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "status"),
			Transform:    flatTransform,
			CacheSizeMax: 1024 * 1024,
		}),
	}
}

func (s *Diskv) read(reference string) (*record, error) {
	r := &record{Responses: make(map[string]storage.Fragment)}
	if !s.diskv.Has(reference) {
		return r, nil
	}
	raw, err := s.diskv.Read(reference)
	if err != nil {
		return nil, fmt.Errorf("reading record for %s: %w", reference, err)
	}
	if err = json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("unmarshal record for %s: %w", reference, err)
	}
	if r.Responses == nil {
		r.Responses = make(map[string]storage.Fragment)
	}
	return r, nil
}

func (s *Diskv) write(reference string, r *record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record for %s: %w", reference, err)
	}
	return s.diskv.Write(reference, raw)
}

func (s *Diskv) UpdateProcessStatus(_ context.Context, reference string, status process.Status) error {
	// read-process-write on the same key; the pipeline runs one item at
	// a time so the key is not contended.
	r, err := s.read(reference)
	if err != nil {
		return err
	}
	r.Status = status
	return s.write(reference, r)
}

func (s *Diskv) UpdateResponseMetadata(_ context.Context, reference, stepName string, fragment storage.Fragment) error {
	r, err := s.read(reference)
	if err != nil {
		return err
	}
	r.Responses[stepName] = fragment
	return s.write(reference, r)
}

func (s *Diskv) RetrieveProcessStatus(_ context.Context, reference string) (process.Status, error) {
	if !s.diskv.Has(reference) {
		return "", storage.ErrNotFound
	}
	r, err := s.read(reference)
	if err != nil {
		return "", err
	}
	if r.Status == "" {
		return "", storage.ErrNotFound
	}
	return r.Status, nil
}

func (s *Diskv) RetrieveResponseMetadata(_ context.Context, reference string) (map[string]storage.Fragment, error) {
	if !s.diskv.Has(reference) {
		return nil, storage.ErrNotFound
	}
	r, err := s.read(reference)
	if err != nil {
		return nil, err
	}
	return r.Responses, nil
}
