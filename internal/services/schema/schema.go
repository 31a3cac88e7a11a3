// Package schema owns the versioned migration runner. Migrations are keyed
// by the version they upgrade from and applied strictly in order, all inside
// one transaction per Initialize call.
package schema

import (
	"context"
	"fmt"

	"github.com/crosslink-io/crosslink/pkg/database"
	"github.com/crosslink-io/crosslink/pkg/logger"
	"github.com/jackc/pgx/v5"
)

const (
	createVersionTableQuery = `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	getSchemaVersionQuery = `SELECT COALESCE(MAX(version), 0) AS version FROM schema_versions`

	insertSchemaVersionQuery = `INSERT INTO schema_versions (version) VALUES ($1)`
)

// MigrationFunc applies one schema step inside the supplied transaction.
// Steps must be idempotent (IF NOT EXISTS forms) so that re-running
// initialization after a prior failure is safe.
type MigrationFunc func(ctx context.Context, tx pgx.Tx) error

// Service handles schema migration operations
type Service struct {
	db         *database.PostgreSQL
	logger     *logger.Logger
	migrations map[int]MigrationFunc
}

// NewService creates a new schema service with the default migration chain
// registered. Callers may register additional steps before Initialize.
func NewService(db *database.PostgreSQL, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		db:         db,
		logger:     log,
		migrations: make(map[int]MigrationFunc),
	}
	registerDefaults(s)
	return s
}

// RegisterMigration records a step keyed by the version it upgrades from.
// Registering the same version again replaces the previous step.
func (s *Service) RegisterMigration(fromVersion int, fn MigrationFunc) {
	s.migrations[fromVersion] = fn
}

// applyOrder returns the versions whose steps would run starting at from,
// in application order. The walk stops at the first unregistered version,
// so gaps are never skipped over.
func (s *Service) applyOrder(from int) []int {
	var order []int
	for {
		if _, ok := s.migrations[from]; !ok {
			return order
		}
		order = append(order, from)
		from++
	}
}

// Initialize brings the database to the expected schema version. The whole
// sequence runs in one transaction: any step failure rolls everything back,
// including the version advancement of earlier steps.
func (s *Service) Initialize(ctx context.Context) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, createVersionTableQuery); err != nil {
		return fmt.Errorf("failed to ensure schema version table: %w", err)
	}

	var currentVersion int
	if err := tx.QueryRow(ctx, getSchemaVersionQuery).Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, version := range s.applyOrder(currentVersion) {
		s.logger.Infof("Upgrading schema from version %d to %d", version, version+1)
		if err := s.migrations[version](ctx, tx); err != nil {
			return fmt.Errorf("migration from version %d failed: %w", version, err)
		}
		currentVersion = version + 1
		if _, err := tx.Exec(ctx, insertSchemaVersionQuery, currentVersion); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", currentVersion, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema migrations: %w", err)
	}

	s.logger.Infof("Database schema is at version %d", currentVersion)
	return nil
}

// Version reads the currently persisted schema version
func (s *Service) Version(ctx context.Context) (int, error) {
	var version int
	err := s.db.Pool().QueryRow(ctx, getSchemaVersionQuery).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
