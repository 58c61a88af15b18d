// Package index defines the persistent secondary index that sits in
// front of a container.Reader: one row per headword, backed by an
// embedded relational store so lookups, prefix scans and wildcard
// queries do not require re-walking the binary container.
package index

import (
	"context"
	"errors"

	"mdictd.org/pkg/container"
)

// ErrNotFound is returned by Store.Lookup when no row matches a key.
var ErrNotFound = errors.New("index: key not found")

// ErrSchemaMismatch is returned when an on-disk index was built by a
// different schema version and must be rebuilt before use.
var ErrSchemaMismatch = errors.New("index: schema version mismatch")

// Row is one persisted entry: a headword plus everything needed to
// seek to, decompress and slice its record bytes out of the
// container's record-block catalog without touching the key blocks
// again.
type Row struct {
	KeyText          string
	FilePos          int64
	CompressedSize   int64
	DecompressedSize int64
	RecordBlockType  container.BlockType
	RecordStart      int64
	RecordEnd        int64
	Offset           int64
}

// ToEntry converts a persisted Row back into a container.Entry so it
// can be passed to container.Reader.ReadRecord for a single
// random-access record fetch.
func (r Row) ToEntry() container.Entry {
	return container.Entry{
		KeyText:          r.KeyText,
		FilePos:          r.FilePos,
		CompressedSize:   r.CompressedSize,
		DecompressedSize: r.DecompressedSize,
		RecordBlockType:  r.RecordBlockType,
		RecordStart:      r.RecordStart,
		RecordEnd:        r.RecordEnd,
		Offset:           r.Offset,
	}
}

// Meta is the small set of container-level attributes worth caching
// alongside the index so that serving a lookup never needs to reopen
// the container just to answer "what encoding is this?" or "what's
// the stylesheet?".
type Meta struct {
	Encoding    string
	Title       string
	Description string
	// Stylesheet is the JSON-encoded form of container.Header.Stylesheet,
	// stored as a single opaque string in the meta table.
	Stylesheet string
}

// Store is a persistent, queryable index over one container's
// headwords. Implementations must be safe for concurrent Lookup/Keys
// calls; Build/Rebuild are exclusive operations.
type Store interface {
	// Lookup returns every row whose KeyText exactly equals key. MDX
	// dictionaries may legitimately have more than one row per
	// headword (homographs); MDD resource stores are effectively
	// unique by path.
	Lookup(ctx context.Context, key string) ([]Row, error)

	// Keys returns headwords matching pattern, where a trailing "*"
	// is treated as a prefix wildcard and an empty pattern matches
	// every row, in ascending order.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Meta returns the cached container metadata.
	Meta(ctx context.Context) (Meta, error)

	Close() error
}
