// Package inmem implements an in-memory credential/constant resolver.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/dentalrpa/journalize/subsystem/creds/storage"
)

// InMem is an in-memory credential/constant resolver. Useful for tests
// and for deployments that inject secrets through the environment.
type InMem struct {
	mu          sync.RWMutex
	constants   map[string]string
	credentials map[string]storage.Credential
}

func New() *InMem {
	return &InMem{
		constants:   make(map[string]string),
		credentials: make(map[string]storage.Credential),
	}
}

// SetConstant stores a named constant.
func (s *InMem) SetConstant(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constants[name] = value
}

// SetCredential stores a named credential.
func (s *InMem) SetCredential(name string, c storage.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[name] = c
}

func (s *InMem) Constant(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.constants[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return v, nil
}

func (s *InMem) Credential(_ context.Context, name string) (*storage.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return &storage.Credential{Username: c.Username, Password: c.Password}, nil
}
