package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("store: not found")

// Schema for the keyrx daemon store.
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    source_hash      BLOB PRIMARY KEY,
    compiled         BLOB NOT NULL,
    compiler_version TEXT NOT NULL,
    compiled_at      INTEGER NOT NULL,
    source_size      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS activations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    source_hash  BLOB NOT NULL REFERENCES profiles(source_hash),
    activated_at INTEGER NOT NULL,
    reason       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activations_time ON activations(activated_at);

CREATE TABLE IF NOT EXISTS devices (
    device_id  BLOB PRIMARY KEY,
    name       TEXT NOT NULL,
    first_seen INTEGER NOT NULL,
    last_seen  INTEGER NOT NULL
);
`

// Store is the SQLite-backed compile cache and history store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutProfile stores a compiled artifact, replacing any prior artifact for
// the same source hash.
func (s *Store) PutProfile(p *CachedProfile) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO profiles (source_hash, compiled, compiler_version, compiled_at, source_size)
		VALUES (?, ?, ?, ?, ?)`,
		p.SourceHash[:], p.Compiled, p.CompilerVersion, p.CompiledAt.UnixMicro(), p.SourceSize,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfile fetches the artifact compiled from the given source hash.
func (s *Store) GetProfile(sourceHash [32]byte) (*CachedProfile, error) {
	row := s.db.QueryRow(`
		SELECT compiled, compiler_version, compiled_at, source_size
		FROM profiles WHERE source_hash = ?`, sourceHash[:])

	p := &CachedProfile{SourceHash: sourceHash}
	var compiledAt int64
	err := row.Scan(&p.Compiled, &p.CompilerVersion, &compiledAt, &p.SourceSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	p.CompiledAt = time.UnixMicro(compiledAt)
	return p, nil
}

// HasProfile reports whether an artifact exists for the source hash.
func (s *Store) HasProfile(sourceHash [32]byte) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM profiles WHERE source_hash = ?`, sourceHash[:]).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query profile: %w", err)
	}
	return true, nil
}

// DeleteProfile removes an artifact and its activation history.
func (s *Store) DeleteProfile(sourceHash [32]byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM activations WHERE source_hash = ?`, sourceHash[:]); err != nil {
		return fmt.Errorf("delete activations: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM profiles WHERE source_hash = ?`, sourceHash[:]); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return tx.Commit()
}

// RecordActivation appends an activation history row.
func (s *Store) RecordActivation(sourceHash [32]byte, reason string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO activations (source_hash, activated_at, reason)
		VALUES (?, ?, ?)`, sourceHash[:], at.UnixMicro(), reason)
	if err != nil {
		return fmt.Errorf("insert activation: %w", err)
	}
	return nil
}

// Activations returns the newest activation rows, most recent first.
func (s *Store) Activations(limit int) ([]Activation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, source_hash, activated_at, reason
		FROM activations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activations: %w", err)
	}
	defer rows.Close()

	var out []Activation
	for rows.Next() {
		var a Activation
		var hash []byte
		var at int64
		if err := rows.Scan(&a.ID, &hash, &at, &a.Reason); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		copy(a.SourceHash[:], hash)
		a.ActivatedAt = time.UnixMicro(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneActivations drops all but the newest max rows.
func (s *Store) PruneActivations(max int) error {
	if max <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM activations WHERE id NOT IN (
			SELECT id FROM activations ORDER BY id DESC LIMIT ?
		)`, max)
	if err != nil {
		return fmt.Errorf("prune activations: %w", err)
	}
	return nil
}

// TouchDevice upserts a device row, updating its name and last-seen time.
func (s *Store) TouchDevice(deviceID [16]byte, name string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO devices (device_id, name, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen`,
		deviceID[:], name, at.UnixMicro(), at.UnixMicro())
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}

// Devices returns every known device, most recently seen first.
func (s *Store) Devices() ([]DeviceRecord, error) {
	rows, err := s.db.Query(`
		SELECT device_id, name, first_seen, last_seen
		FROM devices ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		var d DeviceRecord
		var id []byte
		var first, last int64
		if err := rows.Scan(&id, &d.Name, &first, &last); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		copy(d.DeviceID[:], id)
		d.FirstSeen = time.UnixMicro(first)
		d.LastSeen = time.UnixMicro(last)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats summarizes the store contents.
type Stats struct {
	Profiles    int64
	Activations int64
	Devices     int64
}

// Stats counts the rows in each table.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&st.Profiles); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM activations`).Scan(&st.Activations); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&st.Devices); err != nil {
		return st, err
	}
	return st, nil
}
