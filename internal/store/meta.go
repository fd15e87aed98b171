package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// InstanceMetadata is one row of the Instance table. Nullable columns are
// genuinely absent, not zero.
type InstanceMetadata struct {
	IID     uint32
	DataDID uint32
	Nodes   uint32
	Edges   uint32

	BestScore *uint32
	Diameter  *uint32
	Treewidth *uint32
	Planar    *bool
	Bipartite *bool

	Name        *string
	Description *string
	SubmittedBy *string
}

// MetaStore is a read-only handle on the metadata snapshot. During a run
// the file is never written; dump updates happen on a separate file that is
// renamed over the canonical path.
type MetaStore struct {
	db *sql.DB
}

// OpenMeta opens the metadata database read-only and verifies its
// integrity. A missing file is ErrMissingStore; a failing integrity check
// is a CorruptStoreError.
func OpenMeta(path string) (*MetaStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingStore)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	if err := checkIntegrity(db, path); err != nil {
		db.Close()
		return nil, err
	}

	return &MetaStore{db: db}, nil
}

// Close closes the underlying connection.
func (s *MetaStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func checkIntegrity(db *sql.DB, path string) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return &CorruptStoreError{Path: path, Detail: err.Error()}
	}
	if result != "ok" {
		return &CorruptStoreError{Path: path, Detail: result}
	}
	if err := requireInstanceTable(db); err != nil {
		return &CorruptStoreError{Path: path, Detail: err.Error()}
	}
	return nil
}

func requireInstanceTable(db *sql.DB) error {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'Instance'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		return fmt.Errorf("missing table Instance")
	}
	return err
}

// Instance fetches the metadata row for iid. Returns ErrUnknownInstance if
// no row exists.
func (s *MetaStore) Instance(ctx context.Context, iid uint32) (*InstanceMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT iid, data_did, nodes, edges, best_score, diameter, treewidth,
		       planar, bipartite, name, description, submitted_by
		FROM Instance
		WHERE iid = ?
	`, iid)

	var m InstanceMetadata
	err := row.Scan(
		&m.IID, &m.DataDID, &m.Nodes, &m.Edges,
		&m.BestScore, &m.Diameter, &m.Treewidth,
		&m.Planar, &m.Bipartite,
		&m.Name, &m.Description, &m.SubmittedBy,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("iid %d: %w", iid, ErrUnknownInstance)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch instance %d: %w", iid, err)
	}
	return &m, nil
}

// SelectIIDs evaluates `SELECT iid FROM Instance WHERE <where>` and returns
// the iids in SQLite's result order.
//
// The clause is embedded verbatim. The database is fully under the user's
// control and worst case they re-pull it after messing it up, so no
// sanitisation is attempted; this is a documented power-user surface.
func (s *MetaStore) SelectIIDs(ctx context.Context, where string) ([]uint32, error) {
	query := "SELECT iid FROM Instance WHERE " + where

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("evaluate where clause %q: %w", where, err)
	}
	defer rows.Close()

	var iids []uint32
	for rows.Next() {
		var iid uint32
		if err := rows.Scan(&iid); err != nil {
			return nil, fmt.Errorf("scan iid: %w", err)
		}
		iids = append(iids, iid)
	}
	return iids, rows.Err()
}

// ReplaceMetaFromDump validates a freshly downloaded metadata dump and
// atomically swaps it into the canonical path via rename-over. Readers with
// the old file open keep seeing the old snapshot until they reopen.
func ReplaceMetaFromDump(dumpPath, canonicalPath string) error {
	db, err := sql.Open("sqlite3", "file:"+dumpPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open downloaded dump: %w", err)
	}
	err = checkIntegrity(db, dumpPath)
	db.Close()
	if err != nil {
		return fmt.Errorf("downloaded dump is unusable: %w", err)
	}

	if err := os.Rename(dumpPath, canonicalPath); err != nil {
		return fmt.Errorf("swap metadata database: %w", err)
	}
	return nil
}
