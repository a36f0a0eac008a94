package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/draftsync/internal/db"
	"github.com/debemdeboas/draftsync/internal/util/compression"
)

func openTestSQLite(t *testing.T, c compression.Compressor) *SQLiteStore {
	t.Helper()
	db.SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "drafts.db"), c)
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testStoreContract(t *testing.T, s Store) {
	t.Run("Get missing key", func(t *testing.T) {
		_, err := s.Get("missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Set and Get", func(t *testing.T) {
		if err := s.Set("drafts", []byte(`{"conv-1":{}}`)); err != nil {
			t.Fatalf("Failed to set: %v", err)
		}
		got, err := s.Get("drafts")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if string(got) != `{"conv-1":{}}` {
			t.Errorf("Expected stored value, got %q", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := s.Set("drafts", []byte(`{}`)); err != nil {
			t.Fatalf("Failed to overwrite: %v", err)
		}
		got, err := s.Get("drafts")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if string(got) != `{}` {
			t.Errorf("Expected overwritten value, got %q", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete("drafts"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if _, err := s.Get("drafts"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete("drafts"); err != nil {
			t.Errorf("Expected deleting a missing key to succeed, got %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())

	t.Run("Values are copied", func(t *testing.T) {
		s := NewMemoryStore()
		value := []byte("abc")
		s.Set("k", value)
		value[0] = 'z'

		got, _ := s.Get("k")
		if string(got) != "abc" {
			t.Errorf("Expected stored copy to be unaffected, got %q", got)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	for _, name := range []string{compression.Zstd, compression.Gzip, compression.None} {
		t.Run(name, func(t *testing.T) {
			c, err := compression.New(name)
			if err != nil {
				t.Fatalf("Failed to create compressor: %v", err)
			}
			testStoreContract(t, openTestSQLite(t, c))
		})
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	db.SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))
	path := filepath.Join(t.TempDir(), "drafts.db")

	first, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := first.Set("drafts", []byte("persisted")); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	first.Close()

	second, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer second.Close()

	got, err := second.Get("drafts")
	if err != nil {
		t.Fatalf("Failed to get after reopen: %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("Expected 'persisted', got %q", got)
	}
}

func TestSQLiteStoreWriteFailure(t *testing.T) {
	s := openTestSQLite(t, nil)
	s.db.Get().Close()

	err := s.Set("drafts", []byte("x"))
	if !errors.Is(err, ErrWrite) {
		t.Errorf("Expected ErrWrite on closed database, got %v", err)
	}
}

func TestSQLiteStore_SetLog(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	defer SetLogger(zerolog.Nop())

	s := openTestSQLite(t, compression.NopCompressor{})
	if err := s.Set("drafts", []byte(`{}`)); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte(`"key":"drafts"`)) {
		t.Errorf("Expected the key to be logged, got %s", buf.String())
	}
	if bytes.Contains(buf.Bytes(), []byte(`"result"`)) {
		t.Errorf("Expected no opaque result field, got %s", buf.String())
	}
}
