package store

import (
	"bytes"
	"context"
	"crypto/sha1"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/domset-tools/stride-runner/internal/pace"
)

//go:embed schema.sql
var schemaSQL string

// Fetcher retrieves a single instance body from the server on a cache
// miss. The returned sha1 is the server-reported hex digest (from the ETag)
// and may be empty if the server did not send one.
type Fetcher interface {
	FetchInstance(ctx context.Context, iid uint32) (body []byte, sha1hex string, err error)
}

// InstanceCache stores instance bodies keyed by iid. Reads run through WAL;
// inserts are serialized by SQLite's single writer. Concurrent misses on
// the same iid are collapsed to one server request in-process, and inserts
// are conflict-ignored so even racing processes stay consistent.
type InstanceCache struct {
	db      *sql.DB
	fetcher Fetcher

	mu       sync.Mutex
	inflight map[uint32]chan struct{}
}

// OpenInstanceCache creates or opens instances.db and applies the schema.
func OpenInstanceCache(path string, fetcher Fetcher) (*InstanceCache, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open instance cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to instance cache: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY on the cold path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply instance cache schema: %w", err)
	}

	return &InstanceCache{
		db:       db,
		fetcher:  fetcher,
		inflight: make(map[uint32]chan struct{}),
	}, nil
}

// Close closes the underlying connection.
func (c *InstanceCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Body returns the cached body for iid, with ok=false on a miss.
func (c *InstanceCache) Body(ctx context.Context, iid uint32) ([]byte, bool, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT body FROM InstanceBody WHERE iid = ?", iid,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("probe instance %d: %w", iid, err)
	}
	return body, true, nil
}

// GetOrFetch returns the parsed graph and raw body for iid, pulling the
// body from the server and inserting it on a miss.
func (c *InstanceCache) GetOrFetch(ctx context.Context, iid uint32) (*pace.Graph, []byte, error) {
	body, ok, err := c.Body(ctx, iid)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		body, err = c.fetchMiss(ctx, iid)
		if err != nil {
			return nil, nil, err
		}
	}

	g, err := pace.ParseGraph(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("instance %d: %w", iid, err)
	}
	return g, body, nil
}

// fetchMiss collapses concurrent misses for the same iid: the first caller
// performs the fetch, later callers wait and re-probe the cache.
func (c *InstanceCache) fetchMiss(ctx context.Context, iid uint32) ([]byte, error) {
	for {
		c.mu.Lock()
		wait, busy := c.inflight[iid]
		if !busy {
			done := make(chan struct{})
			c.inflight[iid] = done
			c.mu.Unlock()

			body, err := c.fetchAndInsert(ctx, iid)

			c.mu.Lock()
			delete(c.inflight, iid)
			c.mu.Unlock()
			close(done)
			return body, err
		}
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		body, ok, err := c.Body(ctx, iid)
		if err != nil {
			return nil, err
		}
		if ok {
			return body, nil
		}
		// the fetch we waited on failed; take our own turn
	}
}

func (c *InstanceCache) fetchAndInsert(ctx context.Context, iid uint32) ([]byte, error) {
	body, serverSha, err := c.fetcher.FetchInstance(ctx, iid)
	if err != nil {
		return nil, err
	}

	sum := sha1.Sum(body)
	digest := hex.EncodeToString(sum[:])
	if serverSha != "" && serverSha != digest {
		return nil, fmt.Errorf("instance %d: body digest %s does not match server etag %s", iid, digest, serverSha)
	}

	// conflict-ignored so concurrent misses across processes are safe
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO InstanceBody (iid, sha1, body)
		VALUES (?, ?, ?)
		ON CONFLICT(iid) DO NOTHING
	`, iid, sum[:], body)
	if err != nil {
		return nil, fmt.Errorf("cache instance %d: %w", iid, err)
	}

	slog.Debug("fetched instance from server", "iid", iid, "bytes", len(body))
	return body, nil
}

// BulkImport additively merges rows from a downloaded instance dump. Rows
// already present win; nothing is ever deleted, since bodies are immutable
// and union is correct.
func (c *InstanceCache) BulkImport(ctx context.Context, dumpPath string) error {
	if _, err := c.db.ExecContext(ctx, "ATTACH ? AS dump", dumpPath); err != nil {
		return fmt.Errorf("attach instance dump %s: %w", dumpPath, err)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO InstanceBody (iid, sha1, body)
		SELECT iid, sha1, body FROM dump.InstanceBody
	`)
	if derr := c.detach(ctx); err == nil {
		err = derr
	}
	if err != nil {
		return fmt.Errorf("merge instance dump %s: %w", dumpPath, err)
	}
	return nil
}

func (c *InstanceCache) detach(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DETACH dump")
	return err
}

// Count returns the number of cached bodies.
func (c *InstanceCache) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM InstanceBody").Scan(&n)
	return n, err
}
