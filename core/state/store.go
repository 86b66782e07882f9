package state

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "modernc.org/sqlite"

	"github.com/indielab/kaish/core/interp"
)

// BlobThreshold is the serialized size above which a variable's value is
// moved into the blobs table and referenced by content hash.
const BlobThreshold = 1024

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS variables (
	name      TEXT PRIMARY KEY,
	value     TEXT,
	blob_hash TEXT
);
CREATE TABLE IF NOT EXISTS tools (
	name   TEXT PRIMARY KEY,
	source TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mounts (
	path      TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	spec      TEXT NOT NULL,
	read_only INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS servers (
	name    TEXT PRIMARY KEY,
	address TEXT NOT NULL,
	schemas TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS last_result (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS blobs (
	hash       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store is a per-session state database. All mutating kernel operations
// commit incrementally through it so a restarted session resumes where
// it left off.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenSession opens the database for a named session under the data dir.
func OpenSession(session string) (*Store, error) {
	path, err := DBPath(session)
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// OpenMemory opens a throwaway in-memory database.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

func (s *Store) Close() error { return s.db.Close() }

// --- meta ---

// SetMeta stores one key under meta; the kernel keeps cwd and the errexit
// flag here.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetMeta fetches one meta key; ok is false when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// --- variables ---

// SaveVar persists one variable. Values whose JSON form exceeds
// BlobThreshold go to the blobs table and are referenced by hash.
func (s *Store) SaveVar(ctx context.Context, name string, v interp.Value) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode variable %s: %w", name, err)
	}
	if len(data) > BlobThreshold {
		hash, err := s.WriteBlob(ctx, data)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO variables (name, value, blob_hash) VALUES (?, NULL, ?)
			 ON CONFLICT(name) DO UPDATE SET value = NULL, blob_hash = excluded.blob_hash`,
			name, hash)
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO variables (name, value, blob_hash) VALUES (?, ?, NULL)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, blob_hash = NULL`,
		name, string(data))
	return err
}

// DeleteVar removes one variable.
func (s *Store) DeleteVar(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM variables WHERE name = ?`, name)
	return err
}

// LoadVars returns every persisted variable, resolving blob references.
func (s *Store) LoadVars(ctx context.Context) (map[string]interp.Value, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value, blob_hash FROM variables`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]interp.Value{}
	for rows.Next() {
		var name string
		var value, hash sql.NullString
		if err := rows.Scan(&name, &value, &hash); err != nil {
			return nil, err
		}
		raw := []byte(value.String)
		if hash.Valid {
			if raw, err = s.ReadBlob(ctx, hash.String); err != nil {
				return nil, fmt.Errorf("variable %s: %w", name, err)
			}
		}
		v, err := interp.ParseJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("decode variable %s: %w", name, err)
		}
		out[name] = v
	}
	return out, rows.Err()
}

// --- user tools ---

// SaveTool persists a user-defined tool's source so it can be
// re-registered on restore.
func (s *Store) SaveTool(ctx context.Context, name, source string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tools (name, source) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET source = excluded.source`, name, source)
	return err
}

// DeleteTool removes one user tool.
func (s *Store) DeleteTool(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE name = ?`, name)
	return err
}

// LoadTools returns user tool sources keyed by name.
func (s *Store) LoadTools(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, source FROM tools`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, src string
		if err := rows.Scan(&name, &src); err != nil {
			return nil, err
		}
		out[name] = src
	}
	return out, rows.Err()
}

// --- mounts ---

// MountRow is one persisted mount table entry.
type MountRow struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Spec     string `json:"spec"`
	ReadOnly bool   `json:"read_only"`
}

// SaveMount persists one mount.
func (s *Store) SaveMount(ctx context.Context, m MountRow) error {
	ro := 0
	if m.ReadOnly {
		ro = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mounts (path, type, spec, read_only) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		 type = excluded.type, spec = excluded.spec, read_only = excluded.read_only`,
		m.Path, m.Type, m.Spec, ro)
	return err
}

// DeleteMount removes one mount.
func (s *Store) DeleteMount(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mounts WHERE path = ?`, path)
	return err
}

// LoadMounts returns persisted mounts ordered by path.
func (s *Store) LoadMounts(ctx context.Context) ([]MountRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, type, spec, read_only FROM mounts ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MountRow
	for rows.Next() {
		var m MountRow
		var ro int
		if err := rows.Scan(&m.Path, &m.Type, &m.Spec, &ro); err != nil {
			return nil, err
		}
		m.ReadOnly = ro != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- tool servers ---

// ServerRow is one persisted remote tool server registration.
type ServerRow struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	// Schemas holds the server's tool schemas as JSON.
	Schemas string `json:"schemas"`
}

// SaveServer persists one server registration.
func (s *Store) SaveServer(ctx context.Context, srv ServerRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (name, address, schemas) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		 address = excluded.address, schemas = excluded.schemas`,
		srv.Name, srv.Address, srv.Schemas)
	return err
}

// DeleteServer removes one server registration.
func (s *Store) DeleteServer(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE name = ?`, name)
	return err
}

// LoadServers returns persisted server registrations ordered by name.
func (s *Store) LoadServers(ctx context.Context) ([]ServerRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, address, schemas FROM servers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServerRow
	for rows.Next() {
		var srv ServerRow
		if err := rows.Scan(&srv.Name, &srv.Address, &srv.Schemas); err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

// --- last result ---

// SaveLast persists the last command result backing $?.
func (s *Store) SaveLast(ctx context.Context, r *interp.ExecResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode last result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO last_result (id, value) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET value = excluded.value`, string(data))
	return err
}

// LoadLast returns the persisted last result, or nil when none exists.
func (s *Store) LoadLast(ctx context.Context) (*interp.ExecResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM last_result WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r interp.ExecResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode last result: %w", err)
	}
	r.ParseData()
	return &r, nil
}

// --- blobs ---

// WriteBlob stores data keyed by its SHA-256 and returns the hash.
// Writing the same content twice is a no-op.
func (s *Store) WriteBlob(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (hash, data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		hash, data, time.Now().UTC().Format(time.RFC3339))
	return hash, err
}

// ReadBlob fetches blob content by hash.
func (s *Store) ReadBlob(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE hash = ?`, hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no blob %s", hash)
	}
	return data, err
}

// DeleteBlob removes one blob.
func (s *Store) DeleteBlob(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE hash = ?`, hash)
	return err
}

// --- whole-state operations ---

// Snapshot is a portable JSON dump of the whole database.
type Snapshot struct {
	Meta      map[string]string          `json:"meta,omitempty"`
	Variables map[string]json.RawMessage `json:"variables,omitempty"`
	Tools     map[string]string          `json:"tools,omitempty"`
	Mounts    []MountRow                 `json:"mounts,omitempty"`
	Servers   []ServerRow                `json:"servers,omitempty"`
	Last      json.RawMessage            `json:"last_result,omitempty"`
}

// Dump collects the current state into a Snapshot.
func (s *Store) Dump(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Meta:      map[string]string{},
		Variables: map[string]json.RawMessage{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Meta[k] = v
	}
	rows.Close()

	vars, err := s.LoadVars(ctx)
	if err != nil {
		return nil, err
	}
	for name, v := range vars {
		data, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		snap.Variables[name] = data
	}

	if snap.Tools, err = s.LoadTools(ctx); err != nil {
		return nil, err
	}
	if snap.Mounts, err = s.LoadMounts(ctx); err != nil {
		return nil, err
	}
	if snap.Servers, err = s.LoadServers(ctx); err != nil {
		return nil, err
	}
	last, err := s.LoadLast(ctx)
	if err != nil {
		return nil, err
	}
	if last != nil {
		if snap.Last, err = json.Marshal(last); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// WriteSnapshot serializes the state to w as indented JSON.
func (s *Store) WriteSnapshot(ctx context.Context, w io.Writer) error {
	snap, err := s.Dump(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Restore replaces the whole state with the snapshot's contents in one
// transaction; a failed restore leaves the previous state in place.
func (s *Store) Restore(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := clearTables(ctx, tx); err != nil {
		return err
	}
	for k, v := range snap.Meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return err
		}
	}
	for name, raw := range snap.Variables {
		v, err := interp.ParseJSON(raw)
		if err != nil {
			return fmt.Errorf("snapshot variable %s: %w", name, err)
		}
		data, err := v.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode variable %s: %w", name, err)
		}
		if len(data) > BlobThreshold {
			sum := sha256.Sum256(data)
			hash := hex.EncodeToString(sum[:])
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO blobs (hash, data, created_at) VALUES (?, ?, ?)
				 ON CONFLICT(hash) DO NOTHING`,
				hash, data, time.Now().UTC().Format(time.RFC3339)); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO variables (name, value, blob_hash) VALUES (?, NULL, ?)`,
				name, hash); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO variables (name, value, blob_hash) VALUES (?, ?, NULL)`,
			name, string(data)); err != nil {
			return err
		}
	}
	for name, src := range snap.Tools {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tools (name, source) VALUES (?, ?)`, name, src); err != nil {
			return err
		}
	}
	for _, m := range snap.Mounts {
		ro := 0
		if m.ReadOnly {
			ro = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mounts (path, type, spec, read_only) VALUES (?, ?, ?, ?)`,
			m.Path, m.Type, m.Spec, ro); err != nil {
			return err
		}
	}
	for _, srv := range snap.Servers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO servers (name, address, schemas) VALUES (?, ?, ?)`,
			srv.Name, srv.Address, srv.Schemas); err != nil {
			return err
		}
	}
	if len(snap.Last) > 0 {
		var r interp.ExecResult
		if err := json.Unmarshal(snap.Last, &r); err != nil {
			return fmt.Errorf("snapshot last result: %w", err)
		}
		data, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("encode last result: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO last_result (id, value) VALUES (1, ?)`, string(data)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReadSnapshot restores state from JSON read off r.
func (s *Store) ReadSnapshot(ctx context.Context, r io.Reader) error {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return s.Restore(ctx, &snap)
}

// Reset deletes every row, returning the session to a blank slate.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := clearTables(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{
		"meta", "variables", "tools", "mounts", "servers", "last_result", "blobs",
	} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return nil
}
