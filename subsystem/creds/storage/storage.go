// Package storage defines the credential/constant resolver used to fetch
// named secrets and configuration constants from the automation vault.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no constant or credential exists by name.
var ErrNotFound = errors.New("no such credential or constant")

// Credential is a named username/secret pair. Password holds the
// decrypted secret.
type Credential struct {
	Username string
	Password string
}

type Storage interface {
	// Constant resolves a named scalar constant.
	Constant(ctx context.Context, name string) (string, error)

	// Credential resolves a named structured credential.
	Credential(ctx context.Context, name string) (*Credential, error)
}
