package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/ratelimits/internal/ruleset"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added append-only and immutability triggers
const currentSchemaVersion = 1

// Compile-time contract assertions.
var (
	_ ruleset.Store       = (*Store)(nil)
	_ ruleset.StatsReader = (*Store)(nil)
)

// Store provides durable storage for rule configurations.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. One connection also makes
	// every Update a strictly serialized unit of work.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Update runs fn inside one transaction and commits it if fn returns nil.
// Any error from fn rolls back every write fn made.
func (s *Store) Update(ctx context.Context, fn func(tx ruleset.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&sqlTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update: commit: %w", err)
	}
	return nil
}

// View runs fn inside a transaction that is always rolled back, giving fn
// a consistent snapshot.
func (s *Store) View(ctx context.Context, fn func(r ruleset.Reader) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("view: begin tx: %w", err)
	}
	defer tx.Rollback()

	return fn(&sqlTx{q: tx})
}

// Stats counts stored entities.
func (s *Store) Stats(ctx context.Context) (ruleset.Stats, error) {
	var stats ruleset.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM configs),
			(SELECT COUNT(*) FROM rules),
			(SELECT COUNT(*) FROM rules WHERE removed_in_version IS NULL),
			(SELECT COUNT(*) FROM incidents)
	`).Scan(&stats.Configs, &stats.Rules, &stats.ActiveRules, &stats.Incidents)
	if err != nil {
		return ruleset.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 installs the triggers that make history append-only.
// CREATE TRIGGER IF NOT EXISTS is a no-op for triggers already present.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TRIGGER IF NOT EXISTS configs_no_update BEFORE UPDATE ON configs
		BEGIN SELECT RAISE(ABORT, 'configs are append-only'); END;

		CREATE TRIGGER IF NOT EXISTS configs_no_delete BEFORE DELETE ON configs
		BEGIN SELECT RAISE(ABORT, 'configs are append-only'); END;

		CREATE TRIGGER IF NOT EXISTS config_rules_no_update BEFORE UPDATE ON config_rules
		BEGIN SELECT RAISE(ABORT, 'config rules are append-only'); END;

		CREATE TRIGGER IF NOT EXISTS config_rules_no_delete BEFORE DELETE ON config_rules
		BEGIN SELECT RAISE(ABORT, 'config rules are append-only'); END;

		CREATE TRIGGER IF NOT EXISTS rules_no_delete BEFORE DELETE ON rules
		BEGIN SELECT RAISE(ABORT, 'rules are never deleted'); END;

		CREATE TRIGGER IF NOT EXISTS rules_content_immutable BEFORE UPDATE ON rules
		WHEN OLD.incident_id IS NOT NEW.incident_id
			OR OLD.rule_raw IS NOT NEW.rule_raw
			OR OLD.description IS NOT NEW.description
			OR OLD.added_in_version IS NOT NEW.added_in_version
		BEGIN SELECT RAISE(ABORT, 'rule content is immutable'); END;

		CREATE TRIGGER IF NOT EXISTS rules_removal_final BEFORE UPDATE ON rules
		WHEN OLD.removed_in_version IS NOT NULL
			AND NEW.removed_in_version IS NOT OLD.removed_in_version
		BEGIN SELECT RAISE(ABORT, 'removed_in_version is final'); END;
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
