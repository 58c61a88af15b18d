// Package sqlite implements index.Store on top of an embedded,
// pure-Go SQLite database (modernc.org/sqlite), one database file per
// dictionary or resource container.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"mdictd.org/pkg/container"
	"mdictd.org/pkg/index"
)

// Store is a sqlite-backed index.Store. SQLite serializes writers
// itself, but its driver returns "database is locked" under
// concurrent access more readily than callers expect, so reads and
// writes both take a Go-level mutex the same way Store's
// Serial-guarded counterparts in other embedded-sqlite callers do.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	unique bool
}

var _ index.Store = (*Store)(nil)

// Open opens an existing index database file and verifies its schema
// version, returning ErrSchemaMismatch if the file's recorded version
// differs from the current layout's.
func Open(path string, unique bool) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, unique: unique}
	version, err := s.schemaVersion(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	if version != requiredSchemaVersion {
		db.Close()
		return nil, fmt.Errorf("%w: on-disk version %d, want %d", index.ErrSchemaMismatch, version, requiredSchemaVersion)
	}
	return s, nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE metakey='version'`).Scan(&v)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Build walks every record in cr, writing one row per headword to a
// fresh database at path, then reports meta alongside it. The database
// is built under a temporary name and renamed into place once
// complete, so a reader opening path never observes a partially built
// index.
func Build(ctx context.Context, path string, cr *container.Reader, meta index.Meta, unique bool) (*Store, error) {
	tmp := path + ".tmp"
	os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db, unique); err != nil {
		db.Close()
		os.Remove(tmp)
		return nil, err
	}

	if err := populate(ctx, db, cr, meta); err != nil {
		db.Close()
		os.Remove(tmp)
		return nil, err
	}

	if err := db.Close(); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	return Open(path, unique)
}

func initSchema(ctx context.Context, db *sql.DB, unique bool) error {
	for _, stmt := range sqlCreateTables(unique) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index: creating schema: %w", err)
		}
	}
	_, err := db.ExecContext(ctx, `INSERT INTO meta (metakey, value) VALUES ('version', ?)`, requiredSchemaVersion)
	return err
}

func populate(ctx context.Context, db *sql.DB, cr *container.Reader, meta index.Meta) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rows
		(key_text, file_pos, compressed_size, decompressed_size, record_block_type, record_start, record_end, offset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	err = cr.WalkRecords(func(e container.Entry, _ []byte) error {
		_, err := stmt.ExecContext(ctx, e.KeyText, e.FilePos, e.CompressedSize, e.DecompressedSize, int(e.RecordBlockType), e.RecordStart, e.RecordEnd, e.Offset)
		return err
	})
	if err != nil {
		return fmt.Errorf("index: walking container records: %w", err)
	}

	stylesheet := meta.Stylesheet
	if stylesheet == "" {
		stylesheet = "{}"
	}
	metaRows := []struct{ key, value string }{
		{"encoding", meta.Encoding},
		{"title", meta.Title},
		{"description", meta.Description},
		{"stylesheet", stylesheet},
	}
	for _, r := range metaRows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (metakey, value) VALUES (?, ?)`, r.key, r.value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) Lookup(ctx context.Context, key string) ([]index.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key_text, file_pos, compressed_size, decompressed_size, record_block_type, record_start, record_end, offset
		FROM rows WHERE key_text = ? ORDER BY rowid`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []index.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, index.ErrNotFound
	}
	return out, nil
}

func scanRow(rows *sql.Rows) (index.Row, error) {
	var r index.Row
	var blockType int
	if err := rows.Scan(&r.KeyText, &r.FilePos, &r.CompressedSize, &r.DecompressedSize, &blockType, &r.RecordStart, &r.RecordEnd, &r.Offset); err != nil {
		return index.Row{}, err
	}
	r.RecordBlockType = container.BlockType(blockType)
	return r, nil
}

// Keys returns headwords matching pattern: an empty pattern returns
// every distinct headword; a pattern containing "*" has every "*"
// translated to a SQL "%" wildcard; a pattern with no "*" is treated
// as a prefix (a "%" is appended), matching the original query tool's
// behavior where a bare word is always a prefix search, never an
// implicit exact match.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	var err error
	switch {
	case pattern == "":
		rows, err = s.db.QueryContext(ctx, `SELECT DISTINCT key_text FROM rows ORDER BY key_text`)
	case strings.Contains(pattern, "*"):
		like := strings.ReplaceAll(pattern, "*", "%")
		rows, err = s.db.QueryContext(ctx, `SELECT DISTINCT key_text FROM rows WHERE key_text LIKE ? ORDER BY key_text`, like)
	default:
		rows, err = s.db.QueryContext(ctx, `SELECT DISTINCT key_text FROM rows WHERE key_text LIKE ? ORDER BY key_text`, pattern+"%")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) Meta(ctx context.Context) (index.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT metakey, value FROM meta`)
	if err != nil {
		return index.Meta{}, err
	}
	defer rows.Close()

	m := index.Meta{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return index.Meta{}, err
		}
		switch k {
		case "encoding":
			m.Encoding = v
		case "title":
			m.Title = v
		case "description":
			m.Description = v
		case "stylesheet":
			m.Stylesheet = v
		}
	}
	return m, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StylesheetJSON marshals a container-style (prefix, suffix) map into
// the JSON form stored in the meta table, matching the shape the
// original index builder persisted.
func StylesheetJSON(stylesheet map[string][2]string) (string, error) {
	b, err := json.Marshal(stylesheet)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
