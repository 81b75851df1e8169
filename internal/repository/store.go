// Package repository holds the gorm-backed graph store, fragment store and pgvector index.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options selects the database. A non-empty DatabaseURL means postgres, otherwise SQLitePath is used.
type Options struct {
	DatabaseURL string
	SQLitePath  string
}

// Store holds the DB handle and repositories.
type Store struct {
	db        *gorm.DB
	postgres  bool
	Graph     *GraphStore
	Fragments *FragmentRepo
}

// NewStore opens the database, migrates the schema and wires the repositories.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	var (
		dialector gorm.Dialector
		isPG      bool
	)
	switch {
	case opts.DatabaseURL != "":
		dialector = postgres.Open(opts.DatabaseURL)
		isPG = true
	case opts.SQLitePath != "":
		dialector = sqlite.Open(sqliteDSN(opts.SQLitePath))
	default:
		return nil, fmt.Errorf("failed to open database: no database url or sqlite path")
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if !isPG {
		// sqlite allows a single writer; in-memory databases are per connection.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&characterModel{},
		&factModel{},
		&relationshipModel{},
		&sessionModel{},
		&turnModel{},
		&fragmentModel{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	store := &Store{
		db:        db,
		postgres:  isPG,
		Graph:     NewGraphStore(db),
		Fragments: NewFragmentRepo(db),
	}
	return store, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// IsPostgres reports whether the store is backed by postgres.
func (s *Store) IsPostgres() bool {
	return s.postgres
}

func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
