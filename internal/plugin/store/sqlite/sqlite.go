// Package sqlite registers the single-node record store backed by SQLite.
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/config"
	"github.com/chirino/coaching-service/internal/model"
	"github.com/chirino/coaching-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/coaching-service/internal/registry/migrate"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialect is the SQLite flavour of the gorm record store. SQLite serializes
// writers and runs every transaction as SERIALIZABLE, so no row locks are emitted.
var Dialect = gormstore.Dialect{
	Name:              "sqlite",
	IsUniqueViolation: isUniqueViolation,
}

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.RecordStore, error) {
			cfg := config.FromContext(ctx)
			store, err := Open(cfg.DBURL)
			if err != nil {
				return nil, err
			}
			if cfg.DatastoreMigrateAtStart {
				if err := Migrate(store.DB()); err != nil {
					return nil, err
				}
			}
			return store, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 110, Migrator: &sqliteMigrator{}})
}

// Open connects to the SQLite database at dsn. A single connection is used so
// that in-memory databases survive and writers never contend for the lock.
func Open(dsn string) (*gormstore.Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: database url is required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, fmt.Errorf("sqlite pragma failed: %w", err)
	}
	return gormstore.New(db, Dialect), nil
}

// Migrate creates or updates every table of the record store.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Lesson{},
		&model.Session{},
		&model.Turn{},
		&model.MemoryRecord{},
		&model.ProgressReport{},
		&model.Task{},
	)
	if err != nil {
		return fmt.Errorf("sqlite migration failed: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	store, err := Open(cfg.DBURL)
	if err != nil {
		return err
	}
	defer store.Close()
	return Migrate(store.DB().WithContext(ctx))
}
