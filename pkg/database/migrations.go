package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Migration is one numbered schema file, e.g. 001_initial_schema.sql
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Migrator applies embedded schema files in version order
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// RunMigrations applies every pending *.sql file in fsys. A file whose
// contents changed after it was applied is an error.
func (m *Migrator) RunMigrations(fsys fs.FS) error {
	ctx := context.Background()

	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	all, err := loadMigrations(fsys)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending := 0
	for _, mig := range all {
		if sum, ok := applied[mig.Version]; ok {
			if sum != "" && sum != mig.Checksum {
				return fmt.Errorf("migration %d (%s) was modified after being applied", mig.Version, mig.Name)
			}
			continue
		}

		m.logger.Info("Applying migration", zap.Int("version", mig.Version), zap.String("name", mig.Name))
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
		}
		pending++
	}

	m.logger.Info("Database schema up to date", zap.Int("applied", pending), zap.Int("total", len(all)))
	return nil
}

// applied maps version to recorded checksum
func (m *Migrator) applied(ctx context.Context) (map[int]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var version int
		var sum string
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, err
		}
		out[version] = sum
	}
	return out, rows.Err()
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	return m.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
			mig.Version, mig.Name, mig.Checksum,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

func loadMigrations(fsys fs.FS) ([]Migration, error) {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int]string, len(files))
	out := make([]Migration, 0, len(files))
	for _, file := range files {
		base := path.Base(file)
		prefix, rest, _ := strings.Cut(strings.TrimSuffix(base, ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("invalid migration filename format: %s", base)
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", version, prev, base)
		}
		byVersion[version] = base

		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", base, err)
		}
		sum := sha256.Sum256(content)

		out = append(out, Migration{
			Version:  version,
			Name:     rest,
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
