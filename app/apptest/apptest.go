// Package apptest provides a scripted application fake for tests.
package apptest

import (
	"context"
	"sync"
)

// Calls counts capability invocations on the fake.
type Calls struct {
	Start        int
	Login        int
	OpenPatient  int
	CreateDoc    int
	CreateNote   int
	ChangeClinic int
	ReleaseKeys  int
	Close        int
	Terminate    int
}

// Fake is an app.App implementation recording calls. Errors can be
// injected per capability; a soft-close error leaves the fake "running"
// so Shutdown escalates to Terminate.
type Fake struct {
	mu      sync.Mutex
	calls   Calls
	running bool

	ErrStart        error
	ErrOpenPatient  error
	ErrCreateDoc    error
	ErrCreateNote   error
	ErrChangeClinic error
	ErrClose        error

	// OnCreateDoc runs while a document create is in flight, letting
	// tests register the created record in their fake store.
	OnCreateDoc func(path, documentType, description string)
	// OnCreateNote is the journal-note counterpart of OnCreateDoc.
	OnCreateNote func(message string, markComplete bool)
}

func New() *Fake {
	return &Fake{}
}

// CallCounts returns a snapshot of the recorded calls.
func (f *Fake) CallCounts() Calls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Start++
	if f.ErrStart != nil {
		return f.ErrStart
	}
	f.running = true
	return nil
}

func (f *Fake) Login(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Login++
	return nil
}

func (f *Fake) OpenPatient(_ context.Context, nationalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.OpenPatient++
	return f.ErrOpenPatient
}

func (f *Fake) CreateDocument(_ context.Context, path, documentType, description string) error {
	f.mu.Lock()
	f.calls.CreateDoc++
	err := f.ErrCreateDoc
	cb := f.OnCreateDoc
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if cb != nil {
		cb(path, documentType, description)
	}
	return nil
}

func (f *Fake) CreateJournalNote(_ context.Context, message string, markComplete bool) error {
	f.mu.Lock()
	f.calls.CreateNote++
	err := f.ErrCreateNote
	cb := f.OnCreateNote
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if cb != nil {
		cb(message, markComplete)
	}
	return nil
}

func (f *Fake) ChangeClinic(_ context.Context, clinicName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.ChangeClinic++
	return f.ErrChangeClinic
}

func (f *Fake) ReleaseKeys(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.ReleaseKeys++
	return nil
}

func (f *Fake) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Close++
	if f.ErrClose != nil {
		return f.ErrClose
	}
	f.running = false
	return nil
}

func (f *Fake) Terminate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Terminate++
	f.running = false
	return nil
}

func (f *Fake) Running(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
