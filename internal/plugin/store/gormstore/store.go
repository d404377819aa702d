// Package gormstore implements the record store on top of gorm. The postgres and
// sqlite plugins differ only in the Dialect they pass to New.
package gormstore

import (
	"database/sql"
	"errors"
	"time"

	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dialect captures the driver-specific behavior of the record store.
type Dialect struct {
	Name string
	// IsUniqueViolation reports whether err is a unique/primary key violation.
	IsUniqueViolation func(error) bool
	// LockRows enables SELECT ... FOR UPDATE row locks.
	LockRows bool
	// SnapshotTx are the transaction options for consistent multi-table reads.
	SnapshotTx *sql.TxOptions
}

// Store implements registrystore.RecordStore using gorm.
type Store struct {
	db      *gorm.DB
	dialect Dialect
	now     func() time.Time
}

var _ registrystore.RecordStore = (*Store)(nil)

// New wraps an open gorm connection.
func New(db *gorm.DB, dialect Dialect) *Store {
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(err error) bool { return errors.Is(err, gorm.ErrDuplicatedKey) }
	}
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// DB exposes the underlying connection to migrators and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// SetClock replaces the store's time source.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// timestamp returns the current time at the precision every backend can round-trip.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) forUpdate(tx *gorm.DB) *gorm.DB {
	if s.dialect.LockRows {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *Store) snapshot(tx *gorm.DB, fc func(tx *gorm.DB) error) error {
	if s.dialect.SnapshotTx != nil {
		return tx.Transaction(fc, s.dialect.SnapshotTx)
	}
	return tx.Transaction(fc)
}

func notFound(err error, resource string, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &registrystore.NotFoundError{Resource: resource, ID: id}
	}
	return err
}

func idString(id uuid.UUID) string { return id.String() }
