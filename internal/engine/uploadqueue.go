package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/domset-tools/stride-runner/internal/server"
)

// UploadQueue decouples workers from the network: a bounded channel whose
// full state blocks the publishing worker, giving natural backpressure when
// uploads cannot keep up. Terminal upload failures are logged and dropped;
// they never fail the run.
type UploadQueue struct {
	ch     chan *server.SolutionUpload
	wg     sync.WaitGroup
	client *server.Client

	closeOnce sync.Once
}

// NewUploadQueue starts drainers goroutines consuming the queue.
func NewUploadQueue(client *server.Client, capacity, drainers int) *UploadQueue {
	if capacity < 1 {
		capacity = 1
	}
	if drainers < 1 {
		drainers = 1
	}
	q := &UploadQueue{
		ch:     make(chan *server.SolutionUpload, capacity),
		client: client,
	}
	for i := 0; i < drainers; i++ {
		q.wg.Add(1)
		go q.drain()
	}
	return q
}

func (q *UploadQueue) drain() {
	defer q.wg.Done()
	for up := range q.ch {
		// retries happen inside the client; an error here is terminal
		if err := q.client.UploadSolution(context.Background(), up); err != nil {
			slog.Warn("dropping failed upload", "iid", up.InstanceID, "error", err)
		} else {
			slog.Debug("uploaded solution", "iid", up.InstanceID, "state", up.State)
		}
	}
}

// Enqueue submits one upload, blocking while the queue is full. It gives
// up when ctx is cancelled.
func (q *UploadQueue) Enqueue(ctx context.Context, up *server.SolutionUpload) {
	select {
	case q.ch <- up:
	case <-ctx.Done():
		slog.Debug("discarding upload on shutdown", "iid", up.InstanceID)
	}
}

// Drain stops accepting work and waits for in-flight uploads, at most
// deadline. Leftover uploads after the deadline are abandoned.
func (q *UploadQueue) Drain(deadline time.Duration) {
	q.closeOnce.Do(func() { close(q.ch) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		slog.Warn("upload queue drain deadline reached; abandoning remaining uploads")
	}
}
