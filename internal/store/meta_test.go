package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// createMetaDB builds a metadata database with the server dump schema and
// a few rows.
func createMetaDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE Instance (
			iid          INTEGER PRIMARY KEY,
			data_did     INTEGER NOT NULL,
			nodes        INTEGER NOT NULL,
			edges        INTEGER NOT NULL,
			best_score   INTEGER,
			diameter     INTEGER,
			treewidth    INTEGER,
			planar       BOOLEAN,
			bipartite    BOOLEAN,
			name         TEXT,
			description  TEXT,
			submitted_by TEXT
		);
		INSERT INTO Instance VALUES (10, 100, 3, 2, 1, 2, 1, 1, 1, 'path3', NULL, NULL);
		INSERT INTO Instance VALUES (20, 200, 9, 8, NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL);
		INSERT INTO Instance VALUES (40, 400, 4, 3, 2, NULL, NULL, 0, NULL, 'path4', 'a path', 'tester');
	`)
	if err != nil {
		t.Fatalf("populate fixture db: %v", err)
	}
}

func openTestMeta(t *testing.T) *MetaStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	createMetaDB(t, path)
	s, err := OpenMeta(path)
	if err != nil {
		t.Fatalf("OpenMeta() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMeta_Missing(t *testing.T) {
	_, err := OpenMeta(filepath.Join(t.TempDir(), "nope.db"))
	if !errors.Is(err, ErrMissingStore) {
		t.Fatalf("OpenMeta() = %v, want ErrMissingStore", err)
	}
}

func TestOpenMeta_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	if err := os.WriteFile(path, []byte("this is not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := OpenMeta(path)
	if !IsCorruptStore(err) {
		t.Fatalf("OpenMeta() = %v, want CorruptStoreError", err)
	}
}

func TestOpenMeta_MissingInstanceTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE Other (x INTEGER)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	_, err = OpenMeta(path)
	if !IsCorruptStore(err) {
		t.Fatalf("OpenMeta() = %v, want CorruptStoreError", err)
	}
}

func TestMetaStore_Instance(t *testing.T) {
	s := openTestMeta(t)
	ctx := context.Background()

	m, err := s.Instance(ctx, 10)
	if err != nil {
		t.Fatalf("Instance(10) failed: %v", err)
	}
	if m.Nodes != 3 || m.Edges != 2 || m.DataDID != 100 {
		t.Errorf("Instance(10) = %+v", m)
	}
	if m.BestScore == nil || *m.BestScore != 1 {
		t.Errorf("BestScore = %v, want 1", m.BestScore)
	}
	if m.Planar == nil || !*m.Planar {
		t.Errorf("Planar = %v, want true", m.Planar)
	}
	if m.Name == nil || *m.Name != "path3" {
		t.Errorf("Name = %v, want path3", m.Name)
	}

	m, err = s.Instance(ctx, 20)
	if err != nil {
		t.Fatalf("Instance(20) failed: %v", err)
	}
	if m.BestScore != nil || m.Diameter != nil || m.Planar != nil || m.Name != nil {
		t.Errorf("nullable columns should be absent: %+v", m)
	}

	_, err = s.Instance(ctx, 999)
	if !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("Instance(999) = %v, want ErrUnknownInstance", err)
	}
}

func TestMetaStore_SelectIIDs(t *testing.T) {
	s := openTestMeta(t)
	ctx := context.Background()

	iids, err := s.SelectIIDs(ctx, "nodes <= 4 ORDER BY iid DESC")
	if err != nil {
		t.Fatalf("SelectIIDs() failed: %v", err)
	}
	if len(iids) != 2 || iids[0] != 40 || iids[1] != 10 {
		t.Errorf("SelectIIDs() = %v, want [40 10]", iids)
	}

	iids, err = s.SelectIIDs(ctx, "1=1")
	if err != nil {
		t.Fatalf("SelectIIDs(1=1) failed: %v", err)
	}
	if len(iids) != 3 {
		t.Errorf("SelectIIDs(1=1) = %v, want all three", iids)
	}

	if _, err := s.SelectIIDs(ctx, "no_such_column = 1"); err == nil {
		t.Error("SelectIIDs(bad clause) succeeded, want error")
	}
}

func TestReplaceMetaFromDump(t *testing.T) {
	dir := t.TempDir()
	canonical := filepath.Join(dir, "metadata.db")
	createMetaDB(t, canonical)

	// the new dump has an extra row
	dump := filepath.Join(dir, "download.db")
	createMetaDB(t, dump)
	db, err := sql.Open("sqlite3", dump)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO Instance (iid, data_did, nodes, edges) VALUES (50, 500, 1, 0)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if err := ReplaceMetaFromDump(dump, canonical); err != nil {
		t.Fatalf("ReplaceMetaFromDump() failed: %v", err)
	}
	if _, err := os.Stat(dump); !os.IsNotExist(err) {
		t.Error("dump file should have been renamed away")
	}

	s, err := OpenMeta(canonical)
	if err != nil {
		t.Fatalf("OpenMeta(after swap) failed: %v", err)
	}
	defer s.Close()
	if _, err := s.Instance(context.Background(), 50); err != nil {
		t.Errorf("new row not visible after swap: %v", err)
	}
}

func TestReplaceMetaFromDump_RejectsBadDump(t *testing.T) {
	dir := t.TempDir()
	canonical := filepath.Join(dir, "metadata.db")
	createMetaDB(t, canonical)

	dump := filepath.Join(dir, "download.db")
	if err := os.WriteFile(dump, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ReplaceMetaFromDump(dump, canonical); err == nil {
		t.Fatal("ReplaceMetaFromDump(garbage) succeeded, want error")
	}

	// canonical snapshot must be untouched
	s, err := OpenMeta(canonical)
	if err != nil {
		t.Fatalf("canonical store damaged by failed swap: %v", err)
	}
	s.Close()
}
