package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/nerrad567/floorheat-core/internal/infrastructure/config"
)

// openTestDB opens a database in a per-test temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestOpen(t *testing.T) {
	t.Run("creates file and directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "floorheat.db")
		db, err := Open(config.DatabaseConfig{Path: path, BusyTimeout: 1})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if err := db.HealthCheck(testContext(t)); err != nil {
			t.Fatalf("HealthCheck() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if db.Path() != path {
			t.Errorf("Path() = %q, want %q", db.Path(), path)
		}
	})

	t.Run("unwritable directory", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		if err := os.WriteFile(blocker, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Open(config.DatabaseConfig{Path: filepath.Join(blocker, "x.db")}); err == nil {
			t.Error("Open() under a regular file error = nil, want error")
		}
	})
}

func TestClose_Nil(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file    string
		version int
		name    string
		ok      bool
	}{
		{"0001_audit_log.sql", 1, "audit_log", true},
		{"0012_add_index.sql", 12, "add_index", true},
		{"0001_audit_log.txt", 0, "", false},
		{"audit_log.sql", 0, "", false},
		{"0000_zero.sql", 0, "", false},
		{"0003_.sql", 0, "", false},
		{"0004.sql", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, ok := parseMigrationName(tt.file)
			if ok != tt.ok || version != tt.version || name != tt.name {
				t.Errorf("parseMigrationName(%q) = %d, %q, %v; want %d, %q, %v",
					tt.file, version, name, ok, tt.version, tt.name, tt.ok)
			}
		})
	}
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_second.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"0001_first.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"README.md":       {Data: []byte("not a migration")},
	}
	got, err := LoadMigrations(fsys)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 || got[0].Version != 1 || got[1].Version != 2 {
		t.Fatalf("LoadMigrations() = %+v, want versions 1, 2", got)
	}
	if got[0].Name != "first" {
		t.Errorf("Name = %q, want first", got[0].Name)
	}

	dup := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := LoadMigrations(dup); err == nil {
		t.Error("LoadMigrations() with duplicate versions error = nil")
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)

	fsys := fstest.MapFS{
		"0001_widgets.sql": {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);")},
	}
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != 1 {
		t.Errorf("SchemaVersion() = %d, want 1", v)
	}

	// Re-running is a no-op; a new file is picked up.
	fsys["0002_gadgets.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE gadgets (id TEXT PRIMARY KEY);")}
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != 2 {
		t.Errorf("SchemaVersion() = %d, want 2", v)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("schema_migrations rows = %d, want 2", n)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)

	fsys := fstest.MapFS{
		"0001_ok.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"0002_broken.sql": {Data: []byte("CREATE TABLE broken (id INTEGER); INSERT INTO nowhere VALUES (1);")},
	}
	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() with broken migration error = nil")
	}
	if v, _ := db.SchemaVersion(ctx); v != 1 {
		t.Errorf("SchemaVersion() = %d, want 1", v)
	}

	var name string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='broken'").Scan(&name)
	if err == nil {
		t.Error("table from failed migration was committed")
	}
}

func TestMigrate_EmbeddedSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)

	if err := db.Migrate(ctx, os.DirFS("../../../migrations")); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	var name string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='audit_logs'").Scan(&name)
	if err != nil {
		t.Fatalf("audit_logs table not created: %v", err)
	}
}
