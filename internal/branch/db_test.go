package branch

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b", "c")
	path := filepath.Join(nested, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file should exist")
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var count int
	row := db.queryRow("SELECT COUNT(*) FROM schema_version")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan schema_version count: %v", err)
	}
	if count != 2 {
		t.Errorf("schema_version rows = %d, want 2", count)
	}
}

var errBoom = errors.New("boom")

func TestTransaction_RollsBackOnError(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	err = db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO branches (id, name, session_id, status, created_at, config_blob) VALUES (?, ?, ?, ?, ?, ?)`,
			"b1", "name", "s1", "pending", "2024-01-01T00:00:00Z", []byte("{}")); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Transaction err = %v, want errBoom", err)
	}

	var count int
	row := db.queryRow("SELECT COUNT(*) FROM branches")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan branches count: %v", err)
	}
	if count != 0 {
		t.Errorf("branches rows = %d, want 0 after rollback", count)
	}
}

func TestTransaction_CommitsOnSuccess(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	err = db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO branches (id, name, session_id, status, created_at, config_blob) VALUES (?, ?, ?, ?, ?, ?)`,
			"b1", "name", "s1", "pending", "2024-01-01T00:00:00Z", []byte("{}"))
		return err
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}

	var count int
	row := db.queryRow("SELECT COUNT(*) FROM branches")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan branches count: %v", err)
	}
	if count != 1 {
		t.Errorf("branches rows = %d, want 1 after commit", count)
	}
}
