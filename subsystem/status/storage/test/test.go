// Package test exercises process-status store implementations.
package test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dentalrpa/journalize/process"
	"github.com/dentalrpa/journalize/subsystem/status/storage"
)

func TestStatusStorage(t *testing.T, newStorage func() storage.Storage) {
	s := newStorage()
	ctx := context.Background()

	_, err := s.RetrieveProcessStatus(ctx, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err = s.UpdateProcessStatus(ctx, "F-100", process.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	status, err := s.RetrieveProcessStatus(ctx, "F-100")
	if err != nil {
		t.Fatal(err)
	}
	if status != process.StatusInProgress {
		t.Errorf("got %q", status)
	}

	// status moves forward, last write wins
	if err = s.UpdateProcessStatus(ctx, "F-100", process.StatusFailed); err != nil {
		t.Fatal(err)
	}
	status, err = s.RetrieveProcessStatus(ctx, "F-100")
	if err != nil {
		t.Fatal(err)
	}
	if status != process.StatusFailed {
		t.Errorf("got %q", status)
	}

	frag := storage.Fragment{"DocumentCreated": true}
	if err = s.UpdateResponseMetadata(ctx, "F-100", "Document", frag); err != nil {
		t.Fatal(err)
	}
	if err = s.UpdateResponseMetadata(ctx, "F-100", "JournalNote", storage.Fragment{"JournalNoteCreated": false}); err != nil {
		t.Fatal(err)
	}
	// a step's fragment is replaced, not merged with the old one
	if err = s.UpdateResponseMetadata(ctx, "F-100", "JournalNote", storage.Fragment{"JournalNoteCreated": true}); err != nil {
		t.Fatal(err)
	}

	meta, err := s.RetrieveResponseMetadata(ctx, "F-100")
	if err != nil {
		t.Fatal(err)
	}
	if len(meta) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(meta))
	}
	if !reflect.DeepEqual(meta["Document"], storage.Fragment{"DocumentCreated": true}) {
		t.Errorf("document fragment: %v", meta["Document"])
	}
	if v, ok := meta["JournalNote"]["JournalNoteCreated"].(bool); !ok || !v {
		t.Errorf("journal note fragment: %v", meta["JournalNote"])
	}

	// statuses are per reference
	if err = s.UpdateProcessStatus(ctx, "F-200", process.StatusSuccessful); err != nil {
		t.Fatal(err)
	}
	status, err = s.RetrieveProcessStatus(ctx, "F-100")
	if err != nil {
		t.Fatal(err)
	}
	if status != process.StatusFailed {
		t.Errorf("cross-reference bleed: %q", status)
	}
}
