// Package storage defines read-side queries against the target dental
// records system. The pipeline only ever reads here; writes happen through
// the desktop application so the target system applies its own business
// rules.
package storage

import "context"

// Clinic is a private dental clinic as registered in the target system.
type Clinic struct {
	Name         string
	Address      string
	Phone        string
	ContractorID string // provider ("yder") number
}

// ClinicFilter matches clinics by phone number OR contractor id.
// Empty fields do not match.
type ClinicFilter struct {
	Phone        string
	ContractorID string
}

// DocumentFilter deterministically identifies a journalized document for
// one item: the citizen, the fixed receipt file, and the item reference
// recorded in the document description.
type DocumentFilter struct {
	NationalID       string
	FileName         string
	DocumentType     string
	DescriptionMatch string // substring match against the description
}

// NoteFilter identifies a journal note by citizen and note text.
type NoteFilter struct {
	NationalID  string
	Description string
}

// ExternDentist is the contractor currently assigned on a citizen's record.
type ExternDentist struct {
	ContractorID string
	Phone        string
}

type Storage interface {
	// ListClinics returns clinics matching any of the filters, where a
	// filter matches on phone number or contractor id.
	ListClinics(ctx context.Context, filters []ClinicFilter) ([]Clinic, error)

	// DocumentExists reports whether an active journalized document
	// matches the filter.
	DocumentExists(ctx context.Context, f *DocumentFilter) (bool, error)

	// JournalNoteExists reports whether a journal note matches the filter.
	JournalNoteExists(ctx context.Context, f *NoteFilter) (bool, error)

	// ListExternDentists returns the extern dentists assigned on the
	// citizen's record, most recently assigned first.
	ListExternDentists(ctx context.Context, nationalID string) ([]ExternDentist, error)
}
