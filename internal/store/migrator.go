package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Migrator applies versioned SQL files to the postgres store, recording
// each applied version in a schema_migrations table. The sqlite store
// creates its schema directly in NewDB and never runs migrations.
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewMigrator(db *sql.DB, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, logger: logger}
}

// migration files are named NNN_description.sql and applied in version order.
type migration struct {
	version string
	name    string
	sql     string
}

// MigrationStatus pairs a migration file with whether it has been applied.
type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

// Run applies every pending migration under dir, each in its own
// transaction.
func (m *Migrator) Run(dir string) error {
	if err := m.ensureTable(); err != nil {
		return err
	}
	applied, err := m.applied()
	if err != nil {
		return err
	}
	migrations, err := loadMigrations(dir)
	if err != nil {
		return err
	}

	ran := 0
	for _, mig := range migrations {
		if applied[mig.version] {
			continue
		}
		if err := m.apply(mig); err != nil {
			return err
		}
		ran++
	}
	m.logger.Info("schema up to date", zap.Int("applied", ran), zap.Int("total", len(migrations)))
	return nil
}

// Status reports every migration under dir and whether it has run.
func (m *Migrator) Status(dir string) ([]MigrationStatus, error) {
	if err := m.ensureTable(); err != nil {
		return nil, err
	}
	applied, err := m.applied()
	if err != nil {
		return nil, err
	}
	migrations, err := loadMigrations(dir)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.version,
			Name:    mig.name,
			Applied: applied[mig.version],
		})
	}
	return statuses, nil
}

func (m *Migrator) ensureTable() error {
	_, err := m.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) apply(mig migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.sql); err != nil {
		return fmt.Errorf("apply %s: %w", mig.name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", mig.version); err != nil {
		return fmt.Errorf("record %s: %w", mig.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", mig.name, err)
	}

	m.logger.Info("applied migration", zap.String("name", mig.name))
	return nil
}

func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: name must be NNN_description.sql", name)
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: version, name: name, sql: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

// RunMigrations applies pending postgres migrations. Callers gate on the
// configured store type; sqlite needs none.
func (db *DB) RunMigrations(dir string, logger *zap.Logger) error {
	return NewMigrator(db.conn, logger).Run(dir)
}
