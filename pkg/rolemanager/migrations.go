package rolemanager

import (
	"context"
	"crypto/md5"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"
)

// Migrator applies and tracks schema migrations against a *sql.DB.
type Migrator struct {
	db     *sql.DB
	logger *log.Logger
}

// dropSchema tears down every table this package owns, in dependency order.
const dropSchema = `
DROP TABLE IF EXISTS role_manager_logs CASCADE;
DROP TABLE IF EXISTS role_manager_config CASCADE;
DROP TABLE IF EXISTS role_manager_group_context_roles CASCADE;
DROP TABLE IF EXISTS role_manager_user_context_roles CASCADE;
DROP TABLE IF EXISTS role_manager_group_subgroups CASCADE;
DROP TABLE IF EXISTS role_manager_user_groups CASCADE;
DROP TABLE IF EXISTS role_manager_role_rights CASCADE;
DROP TABLE IF EXISTS role_manager_contexts CASCADE;
DROP TABLE IF EXISTS role_manager_roles CASCADE;
DROP TABLE IF EXISTS role_manager_rights CASCADE;
DROP TABLE IF EXISTS role_manager_righttype_ranges CASCADE;
DROP TABLE IF EXISTS role_manager_rightgroups CASCADE;
DROP TABLE IF EXISTS role_manager_groups CASCADE;
DROP TABLE IF EXISTS role_manager_users CASCADE;
DROP TABLE IF EXISTS schema_migrations CASCADE;
`

// NewMigrator creates a new database migrator.
func NewMigrator(db *sql.DB, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[rolemanager-migrator] ", log.LstdFlags)
	}
	return &Migrator{db: db, logger: logger}
}

// MigrationOptions configures migration behavior.
type MigrationOptions struct {
	TargetVersion int  // migrate to a specific version (0 = latest)
	DryRun        bool // print what would run without executing
	Force         bool // not read by Init: recorded checksums are never compared, so this has no effect
}

// DefaultMigrationOptions returns sensible defaults.
func DefaultMigrationOptions() *MigrationOptions {
	return &MigrationOptions{TargetVersion: 0, DryRun: false, Force: false}
}

// Init brings the database up to the latest (or target) schema version.
func (m *Migrator) Init(ctx context.Context, opts *MigrationOptions) error {
	if opts == nil {
		opts = DefaultMigrationOptions()
	}

	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	migrations := GetMigrations()
	targetVersion := opts.TargetVersion
	if targetVersion == 0 {
		targetVersion = len(migrations)
	}

	m.logger.Printf("current version: %d, target version: %d", currentVersion, targetVersion)

	if currentVersion == targetVersion {
		m.logger.Println("schema already up to date")
		return nil
	}

	if currentVersion > targetVersion {
		return m.migrate(ctx, migrations, currentVersion, targetVersion, opts, false)
	}
	return m.migrate(ctx, migrations, currentVersion, targetVersion, opts, true)
}

func (m *Migrator) migrate(ctx context.Context, migrations []Migration, from, to int, opts *MigrationOptions, up bool) error {
	if opts.DryRun {
		m.logger.Println("dry run: no changes will be made")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if up {
		for i := from; i < to; i++ {
			migration := migrations[i]
			m.logger.Printf("applying migration %d: %s", migration.Version, migration.Name)

			if opts.DryRun {
				m.logger.Printf("would execute:\n%s", migration.UpScript)
				continue
			}

			start := time.Now()
			if err := m.executeMigration(ctx, tx, migration.UpScript); err != nil {
				return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
			}

			duration := time.Since(start)
			if err := m.recordMigration(ctx, tx, migration, duration); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}

			m.logger.Printf("applied migration %d in %v", migration.Version, duration)
		}
	} else {
		for i := from - 1; i >= to; i-- {
			migration := migrations[i]
			m.logger.Printf("rolling back migration %d: %s", migration.Version, migration.Name)

			if opts.DryRun {
				m.logger.Printf("would execute:\n%s", migration.DownScript)
				continue
			}

			if err := m.executeMigration(ctx, tx, migration.DownScript); err != nil {
				return fmt.Errorf("failed to roll back migration %d (%s): %w", migration.Version, migration.Name, err)
			}

			if err := m.removeMigration(ctx, tx, migration.Version); err != nil {
				return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
			}

			m.logger.Printf("rolled back migration %d", migration.Version)
		}
	}

	if !opts.DryRun {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		m.logger.Println("migration completed successfully")
	}

	return nil
}

// Reset drops every table this package owns. Init must be re-run afterward.
func (m *Migrator) Reset(ctx context.Context) error {
	m.logger.Println("WARNING: resetting the database will delete all role manager data")

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, dropSchema); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}

	m.logger.Println("reset complete; run Init to recreate schema")
	return nil
}

// Status reports the current migration version and history.
func (m *Migrator) Status(ctx context.Context) (*MigrationStatus, error) {
	status := &MigrationStatus{AppliedMigrations: []AppliedMigration{}}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	status.CurrentVersion = currentVersion

	migrations := GetMigrations()
	status.LatestVersion = len(migrations)
	status.PendingCount = status.LatestVersion - status.CurrentVersion

	query := `
        SELECT version, name, applied_at, execution_time_ms, checksum
        FROM schema_migrations
        ORDER BY version
    `
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return status, nil // table might not exist yet
	}
	defer rows.Close()

	for rows.Next() {
		var am AppliedMigration
		if err := rows.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.ExecutionTimeMs, &am.Checksum); err != nil {
			continue
		}
		status.AppliedMigrations = append(status.AppliedMigrations, am)
	}

	return status, nil
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            applied_at TIMESTAMP NOT NULL DEFAULT NOW(),
            execution_time_ms INTEGER,
            checksum VARCHAR(64)
        )
    `
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	var version int
	query := `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`
	if err := m.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, nil // table doesn't exist yet
	}
	return version, nil
}

func (m *Migrator) executeMigration(ctx context.Context, tx *sql.Tx, script string) error {
	statements := strings.Split(script, ";")
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

func (m *Migrator) recordMigration(ctx context.Context, tx *sql.Tx, migration Migration, duration time.Duration) error {
	checksum := m.calculateChecksum(migration.UpScript)
	query := `
        INSERT INTO schema_migrations (version, name, applied_at, execution_time_ms, checksum)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := tx.ExecContext(ctx, query, migration.Version, migration.Name, time.Now(), duration.Milliseconds(), checksum)
	return err
}

func (m *Migrator) removeMigration(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
	return err
}

func (m *Migrator) calculateChecksum(content string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(content)))
}

// MigrationStatus reports the database's current position in the migration sequence.
type MigrationStatus struct {
	CurrentVersion    int
	LatestVersion     int
	PendingCount      int
	AppliedMigrations []AppliedMigration
}

// AppliedMigration records one migration that has already run.
type AppliedMigration struct {
	Version         int
	Name            string
	AppliedAt       time.Time
	ExecutionTimeMs int
	Checksum        string
}
