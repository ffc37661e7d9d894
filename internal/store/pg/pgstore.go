// Package pg backs every store interface with Postgres through
// database/sql and the pgx stdlib driver.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

// Open connects to Postgres and configures the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection (tests use sqlmock here).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// ViewStore persists views.
type ViewStore struct{ db *sql.DB }

// ShareStore persists shares.
type ShareStore struct{ db *sql.DB }

// PreferenceStore persists per-user effective-view preferences.
type PreferenceStore struct{ db *sql.DB }

// TrailStore persists audit entries, append-only.
type TrailStore struct{ db *sql.DB }

// AutofillStore persists autofill decisions.
type AutofillStore struct{ db *sql.DB }

func (s *Store) Views() *ViewStore             { return &ViewStore{db: s.db} }
func (s *Store) Shares() *ShareStore           { return &ShareStore{db: s.db} }
func (s *Store) Preferences() *PreferenceStore { return &PreferenceStore{db: s.db} }
func (s *Store) Trail() *TrailStore            { return &TrailStore{db: s.db} }
func (s *Store) Autofill() *AutofillStore      { return &AutofillStore{db: s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
