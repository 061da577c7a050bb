// Package mysql implements a MySQL-backed credential/constant resolver.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dentalrpa/journalize/subsystem/creds/storage"
)

// MySQLStorage implements storage.Storage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQL-backed resolver.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db}, nil
}

func (s *MySQLStorage) Constant(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT value FROM rpa.constants WHERE name = ?;`,
		name,
	).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	case err != nil:
		return "", fmt.Errorf("resolving constant %s: %w", name, err)
	}
	return value, nil
}

func (s *MySQLStorage) Credential(ctx context.Context, name string) (*storage.Credential, error) {
	c := new(storage.Credential)
	err := s.db.QueryRowContext(
		ctx,
		// password is stored decrypted-at-rest in the vault schema; access
		// is gated by the database grants.
		`SELECT username, password FROM rpa.credentials WHERE name = ?;`,
		name,
	).Scan(&c.Username, &c.Password)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	case err != nil:
		return nil, fmt.Errorf("resolving credential %s: %w", name, err)
	}
	return c, nil
}
