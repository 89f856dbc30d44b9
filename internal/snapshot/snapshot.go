// Package snapshot turns a classified archive into an opened, read-only collection store.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/archive"
	"github.com/starford/decksmith/internal/models"
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// IsZstdFrame reports whether data begins with a zstd frame header.
func IsZstdFrame(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// Decompress decodes zstd-framed data.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, apperr.E(apperr.KindDecompression, "snapshot: zstd reader", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, apperr.E(apperr.KindDecompression, "snapshot: zstd decode", err)
	}
	return out, nil
}

// Decode extracts the collection member for the archive's variant and
// decompresses it when the variant requires it.
func Decode(a *archive.Archive) ([]byte, error) {
	member := archive.CollectionMember(a.Variant())
	data, err := a.Read(member)
	if err != nil {
		return nil, err
	}
	if a.Variant() != models.VariantCompressedModern {
		return data, nil
	}
	return Decompress(data)
}

// Materialize persists store bytes at path, creating parent directories.
func Materialize(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.E(apperr.KindIO, "snapshot: mkdir", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.E(apperr.KindIO, "snapshot: write store", err)
	}
	return nil
}

// Store is a read-only handle on a materialized collection.
// It is owned by one request and must be closed when that request is done.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens the SQLite file at path read-only and checks that it parses as a database.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.E(apperr.KindIO, "snapshot: stat store", err)
	}
	dsn, err := storeDSN(path)
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "snapshot: store path", err)
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.E(apperr.KindDatabaseOpen, "snapshot: open db", err)
	}
	// A single connection keeps the handle request-scoped and sequential.
	conn.SetMaxOpenConns(1)

	var n int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master`).Scan(&n); err != nil {
		conn.Close()
		return nil, apperr.E(apperr.KindDatabaseOpen, "snapshot: probe db", err)
	}
	return &Store{conn: conn, path: path}, nil
}

// storeDSN builds a read-only SQLite URI for path. The path is escaped so
// '#', '?' and '%' in directory names stay part of the file name.
func storeDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "mode=ro&_busy_timeout=5000",
	}
	return u.String(), nil
}

// Conn returns the underlying connection pool.
func (s *Store) Conn() *sql.DB { return s.conn }

// Path returns the file the store was opened from.
func (s *Store) Path() string { return s.path }

// Close releases the handle.
func (s *Store) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	return nil
}
