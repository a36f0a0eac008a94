package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const failedToInitDB = "Failed to initialize database: %v"

const select1 = `SELECT 1`

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	return NewSQLite(filepath.Join(t.TempDir(), "drafts.db"))
}

func TestSetLogger(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.InfoLevel)
	SetLogger(logger)

	// This test mainly ensures the function doesn't panic
}

func TestNewSQLite(t *testing.T) {
	db := NewSQLite("")

	if db == nil {
		t.Fatal("Expected non-nil SQLite instance")
	}
	if db.conn != nil {
		t.Error("Expected connection to be nil initially")
	}
	if db.Path() != DefaultPath {
		t.Errorf("Expected default path %q, got %q", DefaultPath, db.Path())
	}
}

func TestSQLiteBasicOperations(t *testing.T) {
	SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))

	db := newTestSQLite(t)
	defer db.Close()

	t.Run("InitDB creates kv table", func(t *testing.T) {
		if err := db.InitDB(); err != nil {
			t.Fatalf(failedToInitDB, err)
		}
		if db.Get() == nil {
			t.Fatal("Expected database connection to be established")
		}
		if err := db.Get().Ping(); err != nil {
			t.Errorf("Failed to ping database: %v", err)
		}

		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", "kv").Scan(&name)
		if err != nil {
			t.Fatalf("Expected kv table to exist: %v", err)
		}
	})

	t.Run("Verify table schema", func(t *testing.T) {
		rows, err := db.Query("PRAGMA table_info(kv)")
		if err != nil {
			t.Fatalf("Failed to get kv table info: %v", err)
		}
		defer rows.Close()

		columns := make(map[string]bool)
		for rows.Next() {
			var cid int
			var name, dataType string
			var notNull, pk int
			var defaultValue sql.NullString

			if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
				t.Errorf("Failed to scan column info: %v", err)
				continue
			}
			columns[name] = true
		}

		for _, col := range []string{"key", "value", "updated_at"} {
			if !columns[col] {
				t.Errorf("Expected kv table to have column %s", col)
			}
		}
	})

	t.Run("InitDB is idempotent", func(t *testing.T) {
		again := NewSQLite(db.Path())
		defer again.Close()
		if err := again.InitDB(); err != nil {
			t.Fatalf(failedToInitDB, err)
		}
	})
}

func TestSQLiteQueryAndExec(t *testing.T) {
	SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))

	db := newTestSQLite(t)
	defer db.Close()

	if err := db.InitDB(); err != nil {
		t.Fatalf(failedToInitDB, err)
	}

	t.Run("Exec inserts data", func(t *testing.T) {
		result, err := db.Exec("INSERT INTO kv (key, value) VALUES (?, ?)", "drafts", []byte("{}"))
		if err != nil {
			t.Fatalf("Failed to insert value: %v", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			t.Errorf("Failed to get rows affected: %v", err)
		}
		if rowsAffected != 1 {
			t.Errorf("Expected 1 row affected, got %d", rowsAffected)
		}
	})

	t.Run("QueryRow retrieves data", func(t *testing.T) {
		var value []byte
		if err := db.QueryRow("SELECT value FROM kv WHERE key = ?", "drafts").Scan(&value); err != nil {
			t.Fatalf("Failed to query value: %v", err)
		}
		if string(value) != "{}" {
			t.Errorf("Expected value '{}', got %q", value)
		}
	})

	t.Run("Primary key violation", func(t *testing.T) {
		_, err := db.Exec("INSERT INTO kv (key, value) VALUES (?, ?)", "drafts", []byte("{}"))
		if err == nil {
			t.Error("Expected constraint violation for duplicate key")
		}
	})
}

func TestSQLiteErrorHandling(t *testing.T) {
	SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))

	t.Run("Query on uninitialized database", func(t *testing.T) {
		db := newTestSQLite(t)
		defer db.Close()

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic when querying uninitialized database")
			}
		}()

		db.Query(select1)
	})

	t.Run("Invalid SQL exec", func(t *testing.T) {
		db := newTestSQLite(t)
		defer db.Close()

		if err := db.InitDB(); err != nil {
			t.Fatalf(failedToInitDB, err)
		}

		if _, err := db.Exec("INVALID SQL SYNTAX"); err == nil {
			t.Error("Expected error for invalid SQL")
		}
	})

	t.Run("Unwritable path", func(t *testing.T) {
		db := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "drafts.db"))
		defer db.Close()

		if err := db.InitDB(); err == nil {
			t.Error("Expected error opening database in a missing directory")
		}
	})
}

func TestSQLiteClose(t *testing.T) {
	SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))

	t.Run("Close database twice", func(t *testing.T) {
		db := newTestSQLite(t)

		if err := db.InitDB(); err != nil {
			t.Fatalf(failedToInitDB, err)
		}
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database first time: %v", err)
		}
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database second time: %v", err)
		}
		if db.Get() != nil {
			t.Error("Expected nil connection after close")
		}
	})

	t.Run("Close uninitialized database", func(t *testing.T) {
		db := newTestSQLite(t)
		if err := db.Close(); err != nil {
			t.Errorf("Expected no error closing uninitialized database, got: %v", err)
		}
	})
}
