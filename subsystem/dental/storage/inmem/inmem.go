// Package inmem implements an in-memory dental records store. It backs
// tests and doubles as the storage for demo deployments without a target
// system connection.
package inmem

import (
	"context"
	"strings"
	"sync"

	"github.com/dentalrpa/journalize/subsystem/dental/storage"
)

type document struct {
	nationalID   string
	fileName     string
	documentType string
	description  string
}

type note struct {
	nationalID  string
	description string
}

// InMem is an in-memory dental records store.
type InMem struct {
	mu       sync.RWMutex
	clinics  []storage.Clinic
	docs     []document
	notes    []note
	dentists map[string][]storage.ExternDentist
}

func New() *InMem {
	return &InMem{dentists: make(map[string][]storage.ExternDentist)}
}

// AddClinic registers a clinic.
func (s *InMem) AddClinic(c storage.Clinic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clinics = append(s.clinics, c)
}

// AddDocument records a journalized document.
func (s *InMem) AddDocument(nationalID, fileName, documentType, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, document{nationalID, fileName, documentType, description})
}

// AddJournalNote records a journal note.
func (s *InMem) AddJournalNote(nationalID, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, note{nationalID, description})
}

// SetExternDentists sets the extern dentists assigned to a citizen.
func (s *InMem) SetExternDentists(nationalID string, dentists ...storage.ExternDentist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dentists[nationalID] = dentists
}

func (s *InMem) ListClinics(_ context.Context, filters []storage.ClinicFilter) ([]storage.Clinic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.Clinic
	for _, c := range s.clinics {
		for _, f := range filters {
			if (f.Phone != "" && c.Phone == f.Phone) ||
				(f.ContractorID != "" && c.ContractorID == f.ContractorID) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (s *InMem) DocumentExists(_ context.Context, f *storage.DocumentFilter) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.nationalID == f.NationalID &&
			d.fileName == f.FileName &&
			d.documentType == f.DocumentType &&
			strings.Contains(d.description, f.DescriptionMatch) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMem) JournalNoteExists(_ context.Context, f *storage.NoteFilter) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notes {
		if n.nationalID == f.NationalID && n.description == f.Description {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMem) ListExternDentists(_ context.Context, nationalID string) ([]storage.ExternDentist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.ExternDentist(nil), s.dentists[nationalID]...), nil
}
