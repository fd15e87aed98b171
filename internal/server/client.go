// Package server is the HTTPS client for the instance server: metadata and
// instance-data dumps, single-instance fetch, and solution upload.
//
// Transient failures (network errors and 5xx responses) are retried with
// exponential backoff; 4xx responses are never retried and surface as a
// RejectedError.
package server

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBaseURL is the public instance server.
const DefaultBaseURL = "https://domset.algorithm.engineering"

// Server paths; a contract with the server.
const (
	PathMetadataDump     = "db_meta.db.gz"
	PathInstanceDumpPart = "db_partial.db.gz"
	PathInstanceDumpFull = "db_full.db.gz"
	pathInstanceDownload = "api/instances/download/%d"
	pathSolutionUpload   = "api/solutions/new"
	pathSolutionDownload = "api/solutions/download"
)

const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
	maxAttempts          = 5
)

// RejectedError is a non-retryable server response (4xx, or 5xx after all
// retries were exhausted).
type RejectedError struct {
	URL    string
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("server rejected %s: status %d: %s", e.URL, e.Status, e.Body)
}

// IsRejected reports whether err is a RejectedError, unwrapping as needed.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// ProgressFunc observes a streaming download. total is -1 when the server
// did not announce a length.
type ProgressFunc func(downloaded, total int64)

// Client talks to one instance server. Safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// New builds a client for the given base URL.
func New(baseURL string) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", baseURL, err)
	}
	return &Client{
		base: base,
		http: &http.Client{},
	}, nil
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() *url.URL { return c.base }

// SolverWebsiteURL returns the page listing a solver's recorded runs.
func (c *Client) SolverWebsiteURL(solverUUID string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/runs.html"
	u.RawQuery = "solver=" + url.QueryEscape(solverUUID)
	return u.String()
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, u.RawQuery = path[:i], path[i+1:]
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + path
	return u.String()
}

// newBackOff implements the retry contract: base 500 ms, cap 30 s, jitter,
// at most maxAttempts tries in total.
func newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)
}

// checkStatus classifies a non-2xx response. 5xx is returned as a plain
// (retryable) error; 4xx is wrapped in backoff.Permanent so the retry loop
// stops immediately.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	rejected := &RejectedError{
		URL:    resp.Request.URL.String(),
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
	if resp.StatusCode >= 500 {
		return rejected
	}
	return backoff.Permanent(rejected)
}

// DownloadFile streams a server file to dstPath. Files ending in .gz are
// decompressed on the fly; progress reports raw (compressed) bytes so it
// matches the announced content length. The whole transfer restarts on a
// transient failure.
func (c *Client) DownloadFile(ctx context.Context, remotePath, dstPath string, progress ProgressFunc) error {
	u := c.endpoint(remotePath)
	op := func() error {
		return c.downloadOnce(ctx, u, remotePath, dstPath, progress)
	}
	return backoff.Retry(op, newBackOff(ctx))
}

func (c *Client) downloadOnce(ctx context.Context, u, remotePath, dstPath string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	slog.Debug("downloading", "url", u, "to", dstPath, "bytes", resp.ContentLength)

	dst, err := os.Create(dstPath)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer dst.Close()

	var src io.Reader = &countingReader{r: resp.Body, total: resp.ContentLength, progress: progress}
	if strings.HasSuffix(remotePath, ".gz") {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return err
		}
		defer gz.Close()
		src = gz
	}

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}

type countingReader struct {
	r        io.Reader
	n        int64
	total    int64
	progress ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	if cr.progress != nil && n > 0 {
		cr.progress(cr.n, cr.total)
	}
	return n, err
}

// FetchInstance downloads one instance body. The returned digest is the
// hex SHA-1 from the ETag header, empty if the server did not send one.
func (c *Client) FetchInstance(ctx context.Context, iid uint32) ([]byte, string, error) {
	u := c.endpoint(fmt.Sprintf(pathInstanceDownload, iid))

	var body []byte
	var etag string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		etag = strings.Trim(resp.Header.Get("ETag"), `"`)
		return nil
	}
	if err := backoff.Retry(op, newBackOff(ctx)); err != nil {
		return nil, "", fmt.Errorf("fetch instance %d: %w", iid, err)
	}
	return body, etag, nil
}

// DownloadSolution fetches one recorded solution by instance, solver, and
// run identity, streaming it to dstPath.
func (c *Client) DownloadSolution(ctx context.Context, iid uint32, solverUUID, runUUID, dstPath string, progress ProgressFunc) error {
	remote := fmt.Sprintf("%s?iid=%d&solver=%s&run=%s",
		pathSolutionDownload, iid, url.QueryEscape(solverUUID), url.QueryEscape(runUUID))
	return c.DownloadFile(ctx, remote, dstPath, progress)
}
