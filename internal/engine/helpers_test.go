package engine

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/domset-tools/stride-runner/internal/server"
)

// buildMetaFixture creates the metadata snapshot used by the engine tests:
// iid 10 is the 3-path with best score 1, iid 40 the 4-path with best
// score 2.
func buildMetaFixture(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE Instance (
			iid INTEGER PRIMARY KEY, data_did INTEGER NOT NULL,
			nodes INTEGER NOT NULL, edges INTEGER NOT NULL,
			best_score INTEGER, diameter INTEGER, treewidth INTEGER,
			planar BOOLEAN, bipartite BOOLEAN,
			name TEXT, description TEXT, submitted_by TEXT
		);
		INSERT INTO Instance (iid, data_did, nodes, edges, best_score)
			VALUES (10, 100, 3, 2, 1);
		INSERT INTO Instance (iid, data_did, nodes, edges, best_score)
			VALUES (40, 400, 4, 3, 2);
	`)
	require.NoError(t, err)
}

// newRecordingServer runs an httptest server that accepts solution uploads
// and records them.
func newRecordingServer(t *testing.T) (*server.Client, func() []server.SolutionUpload) {
	t.Helper()
	var mu sync.Mutex
	var got []server.SolutionUpload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var up server.SolutionUpload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&up))
		mu.Lock()
		got = append(got, up)
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	c, err := server.New(srv.URL)
	require.NoError(t, err)
	return c, func() []server.SolutionUpload {
		mu.Lock()
		defer mu.Unlock()
		out := make([]server.SolutionUpload, len(got))
		copy(out, got)
		return out
	}
}
