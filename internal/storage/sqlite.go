package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/draftsync/internal/db"
	"github.com/debemdeboas/draftsync/internal/util/compression"
)

// SQLiteStore keeps values in the kv table, compressed.
type SQLiteStore struct {
	db         db.DB
	compressor compression.Compressor
}

func NewSQLiteStore(d db.DB, compressor compression.Compressor) *SQLiteStore {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &SQLiteStore{
		db:         d,
		compressor: compressor,
	}
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string, compressor compression.Compressor) (*SQLiteStore, error) {
	d := db.NewSQLite(path)
	if err := d.InitDB(); err != nil {
		d.Close()
		return nil, fmt.Errorf("error initializing local storage: %w", err)
	}
	return NewSQLiteStore(d, compressor), nil
}

func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key %q: %w", key, err)
	}

	value, err := s.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing key %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(key string, value []byte) error {
	compressed, err := s.compressor.Compress(value)
	if err != nil {
		return fmt.Errorf("%w: compressing key %q: %v", ErrWrite, key, err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, compressed, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("%w: key %q: %v", ErrWrite, key, err)
	}

	storageLogger.Debug().Str("key", key).Int("bytes", len(compressed)).Msg("Value stored")
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: deleting key %q: %v", ErrWrite, key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
