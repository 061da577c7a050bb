// Package mysql implements a MySQL-backed process-status store.
// Updates go through the journalizing stored procedures so the database
// side keeps owning the bookkeeping (audit columns, merge semantics).
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dentalrpa/journalize/process"
	"github.com/dentalrpa/journalize/subsystem/status/storage"
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

// WithDriver sets a custom MySQL driver for the storage.
// Default driver is "mysql" but is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQL-backed status store.
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

func (s *MySQLStorage) UpdateProcessStatus(ctx context.Context, reference string, status process.Status) error {
	_, err := s.db.ExecContext(
		ctx,
		`CALL journalizing.sp_update_status(?, ?);`,
		string(status), reference,
	)
	if err != nil {
		return fmt.Errorf("updating process status for %s: %w", reference, err)
	}
	return nil
}

func (s *MySQLStorage) UpdateResponseMetadata(ctx context.Context, reference, stepName string, fragment storage.Fragment) error {
	raw, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("marshal response fragment: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`CALL journalizing.sp_update_response(?, ?, ?);`,
		stepName, string(raw), reference,
	)
	if err != nil {
		return fmt.Errorf("updating response metadata for %s: %w", reference, err)
	}
	return nil
}

func (s *MySQLStorage) RetrieveProcessStatus(ctx context.Context, reference string) (process.Status, error) {
	var status string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT status FROM journalizing.process_status WHERE form_id = ?;`,
		reference,
	).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, reference)
	case err != nil:
		return "", fmt.Errorf("retrieving process status for %s: %w", reference, err)
	}
	return process.Status(status), nil
}

func (s *MySQLStorage) RetrieveResponseMetadata(ctx context.Context, reference string) (map[string]storage.Fragment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT step_name, response_json FROM journalizing.process_response WHERE form_id = ?;`,
		reference,
	)
	if err != nil {
		return nil, fmt.Errorf("retrieving response metadata for %s: %w", reference, err)
	}
	defer rows.Close()
	out := make(map[string]storage.Fragment)
	for rows.Next() {
		var stepName string
		var raw []byte
		if err = rows.Scan(&stepName, &raw); err != nil {
			return nil, err
		}
		var f storage.Fragment
		if err = json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("unmarshal response fragment for step %s: %w", stepName, err)
		}
		out[stepName] = f
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(out) < 1 {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, reference)
	}
	return out, nil
}
