// Package store persists system trees and sampled ephemerides in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when a stored system does not exist.
var ErrNotFound = errors.New("not found")

// Sample is one stored absolute position.
type Sample struct {
	System   string
	Mode     string
	T        float64
	Body     string
	Position model.Vector2D
}

// Store wraps the SQLite connection.
type Store struct {
	db   *sql.DB
	path string
	log  logging.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite doesn't handle concurrent writes well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info(ctx, "snapshot store ready", logging.String("path", path))
	return &Store{db: db, path: path, log: log}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSystem stores the JSON projection of root under name, replacing any
// previous version.
func (s *Store) SaveSystem(ctx context.Context, name string, root *core.Node) error {
	data, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode system %q: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO systems (name, definition_json) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET definition_json = excluded.definition_json, created_at = CURRENT_TIMESTAMP`,
		name, string(data))
	if err != nil {
		return fmt.Errorf("save system %q: %w", name, err)
	}
	return nil
}

// LoadSystemJSON returns the stored projection of the named system.
func (s *Store) LoadSystemJSON(ctx context.Context, name string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT definition_json FROM systems WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("system %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load system %q: %w", name, err)
	}
	return []byte(data), nil
}

// ListSystems returns the stored system names in lexical order.
func (s *Store) ListSystems(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM systems ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan system name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RecordEphemeris stores the absolute position of every body of eph in a
// single transaction.
func (s *Store) RecordEphemeris(ctx context.Context, eph model.Ephemeris) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO ephemeris_samples (system, mode, t, body, x, y)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range eph.Bodies {
		if _, err = stmt.ExecContext(ctx, eph.System, eph.Mode, eph.T, b.Name, b.Absolute.X, b.Absolute.Y); err != nil {
			return fmt.Errorf("insert sample %s/%s: %w", eph.System, b.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit samples: %w", err)
	}
	return nil
}

// SamplesFor returns the stored samples of one body ordered by time.
func (s *Store) SamplesFor(ctx context.Context, system, body string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT system, mode, t, body, x, y FROM ephemeris_samples
		WHERE system = ? AND body = ?
		ORDER BY t`, system, body)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.System, &smp.Mode, &smp.T, &smp.Body, &smp.Position.X, &smp.Position.Y); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}
