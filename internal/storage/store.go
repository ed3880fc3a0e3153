// Package storage persists histogram checkpoints: a snapshot of a Composite
// distance histogram plus the engine settings that
// produced it, keyed by an opaque molecule identifier. It follows the
// teacher's internal/db package: a schema.sql baseline for fresh databases,
// golang-migrate/migrate/v4 with an embedded migrations/ filesystem for
// existing ones, and gob+gzip blob serialization grounded on
// internal/lidar/l3grid/background_persistence.go's serializeGrid /
// deserializeGrid pair.
package storage

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"embed"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/openstructure/saxsengine/internal/config"
	"github.com/openstructure/saxsengine/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a sqlite database holding histogram checkpoints.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path, applying
// schema.sql on a fresh database and the embedded migrations otherwise.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("storage: %s: %w", p, err)
		}
	}

	var hasMigrationsTable bool
	err = db.QueryRow(`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name='schema_migrations'`).Scan(&hasMigrationsTable)
	if err != nil {
		return nil, fmt.Errorf("storage: checking schema_migrations: %w", err)
	}

	s := &Store{db: db}
	if !hasMigrationsTable {
		if _, err := db.Exec(schemaSQL); err != nil {
			return nil, fmt.Errorf("storage: applying schema.sql: %w", err)
		}
		if err := s.baselineAtLatest(); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := s.migrateUp(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrationsSubFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	sub, err := s.migrationsSubFS()
	if err != nil {
		return nil, fmt.Errorf("storage: migrations sub-fs: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("storage: iofs source driver: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("storage: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("storage: migrate instance: %w", err)
	}
	return m, nil
}

// migrateUp brings an existing database up to the latest migration,
// tolerating the already-current case.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("storage: migrate up: %w", err)
	}
	return nil
}

// baselineAtLatest records schema_migrations as already at the latest
// version, for a database just initialized from schema.sql.
func (s *Store) baselineAtLatest() error {
	sub, err := s.migrationsSubFS()
	if err != nil {
		return err
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return fmt.Errorf("storage: reading embedded migrations: %w", err)
	}
	var latest uint
	for _, e := range entries {
		var v uint
		if _, err := fmt.Sscanf(e.Name(), "%d_", &v); err == nil && v > latest {
			latest = v
		}
	}
	if _, err := s.db.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)`, latest); err != nil {
		return fmt.Errorf("storage: baselining schema_migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Checkpoint persists composite (and the settings that produced it) under
// moleculeID, tagged with reason (e.g. "after-fit-iteration", "manual"), and
// returns the new checkpoint's id.
func (s *Store) Checkpoint(moleculeID string, settings config.EngineSettings, composite *engine.Composite, takenUnixNanos int64, reason string) (int64, error) {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return 0, fmt.Errorf("storage: marshal settings: %w", err)
	}
	blob, err := serializeComposite(composite)
	if err != nil {
		return 0, fmt.Errorf("storage: serialize composite: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO histogram_checkpoints (molecule_id, taken_unix_nanos, settings_json, composite_blob, reason)
		 VALUES (?, ?, ?, ?, ?)`,
		moleculeID, takenUnixNanos, string(settingsJSON), blob, reason,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: insert checkpoint: %w", err)
	}
	return res.LastInsertId()
}

// Restore loads the checkpoint by id, returning the composite and the
// settings it was computed under.
func (s *Store) Restore(checkpointID int64) (*engine.Composite, config.EngineSettings, error) {
	var settingsJSON string
	var blob []byte
	row := s.db.QueryRow(`SELECT settings_json, composite_blob FROM histogram_checkpoints WHERE checkpoint_id = ?`, checkpointID)
	if err := row.Scan(&settingsJSON, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, config.EngineSettings{}, fmt.Errorf("storage: no checkpoint %d", checkpointID)
		}
		return nil, config.EngineSettings{}, fmt.Errorf("storage: query checkpoint %d: %w", checkpointID, err)
	}

	var settings config.EngineSettings
	if err := json.Unmarshal([]byte(settingsJSON), &settings); err != nil {
		return nil, config.EngineSettings{}, fmt.Errorf("storage: unmarshal settings: %w", err)
	}
	composite, err := deserializeComposite(blob)
	if err != nil {
		return nil, config.EngineSettings{}, fmt.Errorf("storage: deserialize composite: %w", err)
	}
	return composite, settings, nil
}

// LatestCheckpoint returns the most recent checkpoint id for moleculeID, or
// 0 if none exists.
func (s *Store) LatestCheckpoint(moleculeID string) (int64, error) {
	var id int64
	row := s.db.QueryRow(`SELECT checkpoint_id FROM histogram_checkpoints WHERE molecule_id = ? ORDER BY checkpoint_id DESC LIMIT 1`, moleculeID)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: latest checkpoint for %s: %w", moleculeID, err)
	}
	return id, nil
}

// DeleteCheckpoints removes every checkpoint for moleculeID except the
// newest keep ones.
func (s *Store) DeleteCheckpoints(moleculeID string, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("storage: keep must be non-negative")
	}
	res, err := s.db.Exec(`
		DELETE FROM histogram_checkpoints
		WHERE molecule_id = ? AND checkpoint_id NOT IN (
			SELECT checkpoint_id FROM histogram_checkpoints
			WHERE molecule_id = ?
			ORDER BY checkpoint_id DESC
			LIMIT ?
		)`, moleculeID, moleculeID, keep)
	if err != nil {
		return 0, fmt.Errorf("storage: pruning checkpoints for %s: %w", moleculeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		log.Printf("storage: pruning %s: rows affected unavailable: %v", moleculeID, err)
	}
	return n, nil
}

func serializeComposite(c *engine.Composite) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(c); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializeComposite(blob []byte) (*engine.Composite, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	var c engine.Composite
	if err := gob.NewDecoder(gz).Decode(&c); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return &c, nil
}
