// Package app defines the capability surface of the desktop dental
// records application. The application is a single exclusively-owned
// resource: it is acquired before an item is processed and unconditionally
// torn down after, so no stuck dialogs or modifier keys leak into the
// next item.
package app

import (
	"context"
	"errors"
)

var ErrNotRunning = errors.New("application not running")

// App drives one instance of the dental records desktop application.
type App interface {
	// Start launches the application.
	Start(ctx context.Context) error

	// Login authenticates the application session.
	Login(ctx context.Context) error

	// OpenPatient opens the citizen's record by national id.
	OpenPatient(ctx context.Context, nationalID string) error

	// CreateDocument journalizes the document at path into the open
	// patient record.
	CreateDocument(ctx context.Context, path, documentType, description string) error

	// CreateJournalNote adds a journal note to the open patient record,
	// optionally marking it complete.
	CreateJournalNote(ctx context.Context, message string, markComplete bool) error

	// ChangeClinic reassigns the open patient record to the named clinic.
	ChangeClinic(ctx context.Context, clinicName string) error

	// ReleaseKeys releases stuck modifier keys left by a previous run.
	ReleaseKeys(ctx context.Context) error

	// Close attempts a soft application shutdown.
	Close(ctx context.Context) error

	// Terminate forcefully kills the application process.
	Terminate(ctx context.Context) error

	// Running reports whether the application process is alive.
	Running(ctx context.Context) bool
}
