package engine

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/domset-tools/stride-runner/internal/store"
)

// newMetaFixture creates a metadata database whose Instance table holds the
// given iids (nodes = iid so clauses can discriminate).
func newMetaFixture(t *testing.T, iids ...uint32) *store.MetaStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE Instance (
		iid INTEGER PRIMARY KEY, data_did INTEGER NOT NULL,
		nodes INTEGER NOT NULL, edges INTEGER NOT NULL,
		best_score INTEGER, diameter INTEGER, treewidth INTEGER,
		planar BOOLEAN, bipartite BOOLEAN,
		name TEXT, description TEXT, submitted_by TEXT
	)`); err != nil {
		t.Fatal(err)
	}
	for _, iid := range iids {
		if _, err := db.Exec(
			"INSERT INTO Instance (iid, data_did, nodes, edges) VALUES (?, ?, ?, 0)",
			iid, iid, iid,
		); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	s, err := store.OpenMeta(path)
	if err != nil {
		t.Fatalf("OpenMeta() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeListFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instances.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadInstanceList(t *testing.T) {
	in := "c comment\n 1\n\n712 \n 4\n  \n# hash comment\n5\n712\n"
	iids, err := ReadInstanceList(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadInstanceList() failed: %v", err)
	}
	want := []uint32{1, 712, 4, 5}
	if len(iids) != len(want) {
		t.Fatalf("got %v, want %v", iids, want)
	}
	for i := range want {
		if iids[i] != want[i] {
			t.Fatalf("got %v, want %v", iids, want)
		}
	}
}

func TestReadInstanceList_Garbage(t *testing.T) {
	if _, err := ReadInstanceList(strings.NewReader("1\nnope\n")); err == nil {
		t.Fatal("ReadInstanceList(garbage) succeeded, want error")
	}
}

func TestSelectJobs_NoSelection(t *testing.T) {
	meta := newMetaFixture(t, 1)
	_, _, err := SelectJobs(context.Background(), meta, "", "", false)
	if !errors.Is(err, ErrNoSelection) {
		t.Fatalf("SelectJobs() = %v, want ErrNoSelection", err)
	}
}

func TestSelectJobs_FileOnly(t *testing.T) {
	meta := newMetaFixture(t, 10, 20, 30)
	file := writeListFile(t, "30\n10\n30\n")

	iids, unknown, err := SelectJobs(context.Background(), meta, file, "", false)
	if err != nil {
		t.Fatalf("SelectJobs() failed: %v", err)
	}
	if len(iids) != 2 || iids[0] != 30 || iids[1] != 10 {
		t.Errorf("iids = %v, want [30 10] (file order, deduplicated)", iids)
	}
	if len(unknown) != 0 {
		t.Errorf("unknown = %v, want none", unknown)
	}
}

func TestSelectJobs_WhereOnly(t *testing.T) {
	meta := newMetaFixture(t, 10, 20, 30)

	iids, _, err := SelectJobs(context.Background(), meta, "", "nodes >= 20 ORDER BY iid", false)
	if err != nil {
		t.Fatalf("SelectJobs() failed: %v", err)
	}
	if len(iids) != 2 || iids[0] != 20 || iids[1] != 30 {
		t.Errorf("iids = %v, want [20 30]", iids)
	}
}

func TestSelectJobs_Intersection(t *testing.T) {
	// file [10,20,30,40] ∩ where {20,40,50} -> [20,40] in file order
	meta := newMetaFixture(t, 10, 20, 30, 40, 50)
	file := writeListFile(t, "10\n20\n30\n40\n")

	iids, _, err := SelectJobs(context.Background(), meta, file, "iid IN (20, 40, 50)", false)
	if err != nil {
		t.Fatalf("SelectJobs() failed: %v", err)
	}
	if len(iids) != 2 || iids[0] != 20 || iids[1] != 40 {
		t.Errorf("iids = %v, want [20 40]", iids)
	}
}

func TestSelectJobs_UnknownIIDsReported(t *testing.T) {
	meta := newMetaFixture(t, 10)
	file := writeListFile(t, "99\n10\n7\n")

	iids, unknown, err := SelectJobs(context.Background(), meta, file, "", false)
	if err != nil {
		t.Fatalf("SelectJobs() failed: %v", err)
	}
	if len(iids) != 3 {
		t.Errorf("iids = %v, want all three dispatched", iids)
	}
	if len(unknown) != 2 || unknown[0] != 7 || unknown[1] != 99 {
		t.Errorf("unknown = %v, want [7 99] sorted", unknown)
	}
}

func TestSelectJobs_Sorted(t *testing.T) {
	meta := newMetaFixture(t, 10, 20, 30)
	file := writeListFile(t, "30\n10\n20\n")

	iids, _, err := SelectJobs(context.Background(), meta, file, "", true)
	if err != nil {
		t.Fatalf("SelectJobs() failed: %v", err)
	}
	if len(iids) != 3 || iids[0] != 10 || iids[1] != 20 || iids[2] != 30 {
		t.Errorf("iids = %v, want ascending", iids)
	}
}

func TestWriteInstanceList_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInstanceList(&buf, []uint32{3, 1, 2}); err != nil {
		t.Fatalf("WriteInstanceList() failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "c 3 instances\n") {
		t.Errorf("missing count header: %q", buf.String())
	}

	back, err := ReadInstanceList(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadInstanceList(emitted) failed: %v", err)
	}
	if len(back) != 3 || back[0] != 3 || back[1] != 1 || back[2] != 2 {
		t.Errorf("round trip = %v, want [3 1 2]", back)
	}
}
