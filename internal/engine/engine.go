package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/domset-tools/stride-runner/internal/server"
	"github.com/domset-tools/stride-runner/internal/store"
	"github.com/domset-tools/stride-runner/internal/verify"
)

// DefaultDrainDeadline bounds the upload-queue drain on shutdown.
const DefaultDrainDeadline = 10 * time.Second

// Options configure one run.
type Options struct {
	SolverBin  string
	SolverArgs []string
	SolverUUID *uuid.UUID

	Timeout time.Duration
	Grace   time.Duration
	Jobs    int // worker pool size; 0 means hardware concurrency

	KeepLogsOnSuccess bool
	SuboptimalIsError bool
	NoEnv             bool
	NoUpload          bool

	LogBase       string // parent of the per-run log directory
	DrainDeadline time.Duration
}

// Engine owns the worker pool, the run context (log directory, run UUID),
// the upload queue, and the summary writer for one `run` invocation.
type Engine struct {
	meta  *store.MetaStore
	cache *store.InstanceCache
	opts  Options

	runUUID uuid.UUID
	logDir  string

	summary *SummaryWriter
	uploads *UploadQueue

	// OnOutcome, when set, observes every published outcome; the progress
	// renderer hangs off this.
	OnOutcome func(*Outcome)

	statsMu sync.Mutex
	stats   Stats
}

// New prepares a run: validates the solver binary, stamps a fresh run
// UUID, creates the log directory and summary.csv, and starts the upload
// drainers.
func New(meta *store.MetaStore, cache *store.InstanceCache, client *server.Client, opts Options) (*Engine, error) {
	info, err := os.Stat(opts.SolverBin)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("solver binary %s not found", opts.SolverBin)
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.DrainDeadline <= 0 {
		opts.DrainDeadline = DefaultDrainDeadline
	}

	e := &Engine{
		meta:    meta,
		cache:   cache,
		opts:    opts,
		runUUID: uuid.New(),
	}

	e.logDir = filepath.Join(opts.LogBase,
		fmt.Sprintf("%s_%s", time.Now().Format("2006-01-02_15-04-05"), e.runUUID))
	if err := os.MkdirAll(e.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	e.summary, err = NewSummaryWriter(filepath.Join(e.logDir, "summary.csv"))
	if err != nil {
		return nil, err
	}

	e.uploads = NewUploadQueue(client, 4*opts.Jobs, 2)
	return e, nil
}

// RunUUID returns the fresh v4 identity of this run.
func (e *Engine) RunUUID() uuid.UUID { return e.runUUID }

// LogDir returns the per-run log directory.
func (e *Engine) LogDir() string { return e.logDir }

// Run dispatches the iids to the worker pool and blocks until every job
// finished or ctx was cancelled. It always drains the upload queue (up to
// the drain deadline) before returning.
func (e *Engine) Run(ctx context.Context, iids []uint32) (Stats, error) {
	queue := make(chan uint32)
	go func() {
		defer close(queue)
		for _, iid := range iids {
			select {
			case queue <- iid:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for iid := range queue {
				if ctx.Err() != nil {
					return
				}
				if o := e.runJob(ctx, iid); o != nil {
					e.publish(o)
				}
			}
		}()
	}
	wg.Wait()

	e.uploads.Drain(e.opts.DrainDeadline)
	e.summary.Close()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats, ctx.Err()
}

func (e *Engine) publish(o *Outcome) {
	if err := e.summary.Append(o); err != nil {
		slog.Error("writing run summary failed", "iid", o.IID, "error", err)
	}

	e.statsMu.Lock()
	e.stats.Count(o.State)
	e.statsMu.Unlock()

	if e.OnOutcome != nil {
		e.OnOutcome(o)
	}
}

func (e *Engine) logFile(iid uint32, suffix string) string {
	return filepath.Join(e.logDir, fmt.Sprintf("iid%d.%s", iid, suffix))
}

// runJob drives one instance through fetch, supervision, verification,
// retention, and the upload gate. A nil return means the job was cut short
// by cancellation and publishes nothing.
func (e *Engine) runJob(ctx context.Context, iid uint32) *Outcome {
	meta, err := e.meta.Instance(ctx, iid)
	if err != nil {
		slog.Warn("skipping instance without metadata", "iid", iid, "error", err)
		return &Outcome{IID: iid, State: StateError}
	}
	var bestKnown *int
	if meta.BestScore != nil {
		v := int(*meta.BestScore)
		bestKnown = &v
	}

	graph, body, err := e.cache.GetOrFetch(ctx, iid)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("fetching instance failed", "iid", iid, "error", err)
		return &Outcome{IID: iid, State: StateError, BestKnown: bestKnown}
	}

	// the stdin log is written before the child runs so a wedged solver
	// still leaves a reproducible input behind
	if err := os.WriteFile(e.logFile(iid, "stdin.gr"), body, 0o644); err != nil {
		slog.Warn("writing stdin log failed", "iid", iid, "error", err)
		return &Outcome{IID: iid, State: StateError, BestKnown: bestKnown}
	}

	res, err := Supervise(ctx, SuperviseSpec{
		Path:    e.opts.SolverBin,
		Args:    e.opts.SolverArgs,
		Env:     e.solverEnv(meta),
		Stdin:   body,
		Timeout: e.opts.Timeout,
		Grace:   e.opts.Grace,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("spawning solver failed", "iid", iid, "error", err)
		return &Outcome{IID: iid, State: StateError, BestKnown: bestKnown}
	}

	writeLog := func(suffix string, data []byte) {
		if err := os.WriteFile(e.logFile(iid, suffix), data, 0o644); err != nil {
			slog.Warn("writing solver log failed", "iid", iid, "file", suffix, "error", err)
		}
	}
	writeLog("stdout", res.Stdout)
	writeLog("stderr", res.Stderr)

	o := &Outcome{
		IID:             iid,
		Wall:            res.Wall,
		BestKnown:       bestKnown,
		StdoutTruncated: res.StdoutTruncated,
	}

	var vertices []int
	switch {
	case res.Phase == PhaseTimedOut || res.Phase == PhaseKilled:
		o.State = StateTimeout
	case res.Phase == PhaseSignaled || res.ExitCode != 0:
		o.State = StateError
	default:
		v := verify.Check(graph, res.Stdout, bestKnown)
		switch v.State {
		case verify.Best:
			o.State = StateBest
		case verify.Suboptimal:
			o.State = StateSuboptimal
		case verify.Infeasible:
			o.State = StateInfeasible
		case verify.Incomplete:
			o.State = StateIncomplete
		}
		if v.State == verify.Best || v.State == verify.Suboptimal {
			score := v.Score
			o.Score = &score
			vertices = v.Vertices
		}
	}

	e.applyRetention(iid, o.State)
	e.maybeUpload(ctx, o, vertices)
	return o
}

// applyRetention deletes the three per-job log files for a clean Best run.
// Any failure state keeps its logs, and both -k and -o disable deletion
// entirely.
func (e *Engine) applyRetention(iid uint32, state State) {
	if state != StateBest || e.opts.KeepLogsOnSuccess || e.opts.SuboptimalIsError {
		return
	}
	for _, suffix := range []string{"stdin.gr", "stdout", "stderr"} {
		if err := os.Remove(e.logFile(iid, suffix)); err != nil {
			slog.Debug("removing log file failed", "iid", iid, "file", suffix, "error", err)
		}
	}
}

// maybeUpload applies the upload gate. Valid solutions go up when the
// score is near or better than the best known score, or unconditionally
// for registered solvers; failure metadata goes up only for registered
// solvers.
func (e *Engine) maybeUpload(ctx context.Context, o *Outcome, vertices []int) {
	if e.opts.NoUpload {
		return
	}

	registered := e.opts.SolverUUID != nil
	solution := o.State == StateBest || o.State == StateSuboptimal

	if solution {
		if !UploadWorthy(*o.Score, o.BestKnown) && !registered {
			return
		}
	} else if !registered {
		return
	}

	up := &server.SolutionUpload{
		InstanceID:      o.IID,
		RunUUID:         e.runUUID,
		SolverUUID:      e.opts.SolverUUID,
		SecondsComputed: o.Wall.Seconds(),
		State:           o.State.String(),
	}
	if solution {
		up.Score = o.Score
		up.Vertices = vertices
	}
	e.uploads.Enqueue(ctx, up)
}
