// Package mysql implements the dental records store against the target
// system's reporting database.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dentalrpa/journalize/subsystem/dental/storage"
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

// New creates and returns a new MySQL-backed dental records store.
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

func (s *MySQLStorage) ListClinics(ctx context.Context, filters []storage.ClinicFilter) ([]storage.Clinic, error) {
	var preds []string
	var args []interface{}
	for _, f := range filters {
		if f.Phone != "" {
			preds = append(preds, "c.phone_number = ?")
			args = append(args, f.Phone)
		}
		if f.ContractorID != "" {
			preds = append(preds, "c.contractor_id = ?")
			args = append(args, f.ContractorID)
		}
	}
	if len(preds) < 1 {
		return nil, nil
	}
	q := `SELECT c.name, c.address, c.phone_number, c.contractor_id
FROM dental.clinics c
WHERE ` + strings.Join(preds, " OR ") + `;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing clinics: %w", err)
	}
	defer rows.Close()
	var out []storage.Clinic
	for rows.Next() {
		var c storage.Clinic
		if err = rows.Scan(&c.Name, &c.Address, &c.Phone, &c.ContractorID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *MySQLStorage) DocumentExists(ctx context.Context, f *storage.DocumentFilter) (bool, error) {
	var ct int
	err := s.db.QueryRowContext(
		ctx,
		// status 1 = active; superseded revisions are filtered out
		`SELECT COUNT(*)
FROM dental.document_store ds
	INNER JOIN dental.patients p ON p.id = ds.patient_id
WHERE p.national_id = ? AND
	ds.original_filename = ? AND
	ds.document_type = ? AND
	ds.description LIKE ? AND
	ds.status_id = 1;`,
		f.NationalID, f.FileName, f.DocumentType, "%"+f.DescriptionMatch+"%",
	).Scan(&ct)
	if err != nil {
		return false, fmt.Errorf("checking document: %w", err)
	}
	return ct > 0, nil
}

func (s *MySQLStorage) JournalNoteExists(ctx context.Context, f *storage.NoteFilter) (bool, error) {
	var ct int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*)
FROM dental.journal_notes dn
	INNER JOIN dental.patients p ON p.id = dn.patient_id
WHERE p.national_id = ? AND dn.description = ?;`,
		f.NationalID, f.Description,
	).Scan(&ct)
	if err != nil {
		return false, fmt.Errorf("checking journal note: %w", err)
	}
	return ct > 0, nil
}

func (s *MySQLStorage) ListExternDentists(ctx context.Context, nationalID string) ([]storage.ExternDentist, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT ed.contractor_id, ed.phone_number
FROM dental.extern_dentists ed
	INNER JOIN dental.patients p ON p.id = ed.patient_id
WHERE p.national_id = ?
ORDER BY ed.assigned_at DESC;`,
		nationalID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing extern dentists: %w", err)
	}
	defer rows.Close()
	var out []storage.ExternDentist
	for rows.Next() {
		var d storage.ExternDentist
		if err = rows.Scan(&d.ContractorID, &d.Phone); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
