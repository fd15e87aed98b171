package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/domset-tools/stride-runner/internal/engine"
	"github.com/domset-tools/stride-runner/internal/runcfg"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	SolverBin  string
	SolverUUID string

	Instances string
	Where     string
	Export    string

	Timeout int
	Grace   int
	Jobs    int

	KeepLogsOnSuccess bool
	SuboptimalIsError bool
	SortInstances     bool
	NoEnv             bool
	NoUpload          bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [flags] [-- solver-args...]",
		Short: "Execute the solver on selected instances and verify its output",
		Long: `Select instances via -i/--instances and/or -w/--where, feed each one to the
solver on stdin, enforce the timeout/grace deadlines, verify every reported
dominating set, and record the results in stride-logs/.

Example:
  stride-runner run -b ./my-solver -T 300 -G 5 -w "nodes < 10000"
  stride-runner run -b ./my-solver -T 60 -G 5 -i instances.txt -- --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolver(cmd.Context(), opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.SolverBin, "solver-bin", "b", "", "solver executable (default from config)")
	cmd.Flags().StringVarP(&opts.SolverUUID, "solver-uuid", "S", "", "persistent solver identity (default from config)")
	cmd.Flags().StringVarP(&opts.Instances, "instances", "i", "", "file with one instance id per line")
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "SQL predicate for the Instance table")
	cmd.Flags().StringVarP(&opts.Export, "export", "e", "", "write the selected ids to a file instead of running")
	cmd.Flags().IntVarP(&opts.Timeout, "timeout", "T", 0, "seconds until SIGTERM (default from config)")
	cmd.Flags().IntVarP(&opts.Grace, "grace", "G", -1, "seconds between SIGTERM and SIGKILL (default from config)")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "parallel workers (default from config, else hardware concurrency)")
	cmd.Flags().BoolVarP(&opts.KeepLogsOnSuccess, "keep-logs-on-success", "k", false, "retain logs of best runs")
	cmd.Flags().BoolVarP(&opts.SuboptimalIsError, "suboptimal-is-error", "o", false, "treat suboptimal results as failures (retain logs)")
	cmd.Flags().BoolVar(&opts.SortInstances, "sort-instances", false, "dispatch in ascending iid order")
	cmd.Flags().BoolVarP(&opts.NoEnv, "no-env", "E", false, "do not inject STRIDE_* environment variables")
	cmd.Flags().BoolVar(&opts.NoUpload, "no-upload", false, "disable all uploads")

	return cmd
}

// resolve fills unset flags from config.json and validates the result.
func (o *RunOptions) resolve() (engine.Options, error) {
	if o.SolverBin == "" {
		o.SolverBin = o.settings.SolverBin
	}
	if o.SolverBin == "" {
		return engine.Options{}, NewExitError(ExitCommandError, "no solver binary; pass -b/--solver-bin or set it in config.json")
	}
	if o.Timeout == 0 {
		o.Timeout = int(o.settings.Timeout)
	}
	if o.Grace < 0 {
		o.Grace = int(o.settings.Grace)
	}
	if o.Timeout <= 0 {
		return engine.Options{}, NewExitError(ExitCommandError, "timeout must be positive; pass -T/--timeout or set it in config.json")
	}
	if o.Jobs == 0 {
		o.Jobs = o.settings.ParallelJobs
	}

	eopts := engine.Options{
		SolverBin:         o.SolverBin,
		Timeout:           time.Duration(o.Timeout) * time.Second,
		Grace:             time.Duration(o.Grace) * time.Second,
		Jobs:              o.Jobs,
		KeepLogsOnSuccess: o.KeepLogsOnSuccess,
		SuboptimalIsError: o.SuboptimalIsError,
		NoEnv:             o.NoEnv,
		NoUpload:          o.NoUpload,
		LogBase:           o.settings.RunLogDir,
	}
	if eopts.LogBase == "" {
		eopts.LogBase = runcfg.DefaultLogDir
	}

	switch {
	case o.SolverUUID != "":
		id, err := uuid.Parse(o.SolverUUID)
		if err != nil {
			return engine.Options{}, WrapExitError(ExitCommandError, "invalid solver UUID", err)
		}
		eopts.SolverUUID = &id
	case o.settings.SolverUUID != nil:
		eopts.SolverUUID = o.settings.SolverUUID
	}
	return eopts, nil
}

func runSolver(ctx context.Context, opts *RunOptions, solverArgs []string) error {
	eopts, err := opts.resolve()
	if err != nil {
		return err
	}
	eopts.SolverArgs = solverArgs

	meta, err := opts.openMeta()
	if err != nil {
		return err
	}
	defer meta.Close()

	iids, unknown, err := engine.SelectJobs(ctx, meta, opts.Instances, opts.Where, opts.SortInstances)
	if err != nil {
		if errors.Is(err, engine.ErrNoSelection) {
			return WrapExitError(ExitCommandError, "selecting instances", err)
		}
		return WrapExitError(ExitFailure, "selecting instances", err)
	}
	warnUnknown(unknown)
	if len(iids) == 0 {
		return NewExitError(ExitCommandError, "selection matched no instances")
	}

	if opts.Export != "" {
		return exportSelection(opts.Export, iids)
	}

	client, err := opts.serverClient()
	if err != nil {
		return err
	}
	cache, err := opts.openCache(client)
	if err != nil {
		return err
	}
	defer cache.Close()

	eng, err := engine.New(meta, cache, client, eopts)
	if err != nil {
		return WrapExitError(ExitCommandError, "preparing run", err)
	}

	// first SIGINT cancels cooperatively: dispatch stops, in-flight
	// children get the SIGTERM-grace-SIGKILL treatment, uploads drain
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("starting run",
		"instances", len(iids), "jobs", eopts.Jobs, "run_uuid", eng.RunUUID(), "log_dir", eng.LogDir())

	stats, runErr := eng.Run(ctx, iids)
	printStats(&stats)
	fmt.Printf("Results recorded in %s\n", eng.LogDir())

	if runErr != nil && stats.Attempted() == 0 {
		return WrapExitError(ExitFailure, "run cancelled before any job finished", runErr)
	}
	if stats.Attempted() == 0 {
		return NewExitError(ExitFailure, "no job could be attempted")
	}
	return nil
}

func warnUnknown(unknown []uint32) {
	if len(unknown) == 0 {
		return
	}
	shown := unknown
	if len(shown) > 20 {
		shown = shown[:20]
	}
	fmt.Fprintf(os.Stderr,
		"Warning: %d listed instance ids are not in metadata.db (try `stride-runner update`): %v\n",
		len(unknown), shown)
}

func exportSelection(path string, iids []uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return WrapExitError(ExitFailure, "creating export file", err)
	}
	defer f.Close()
	if err := engine.WriteInstanceList(f, iids); err != nil {
		return WrapExitError(ExitFailure, "writing export file", err)
	}
	fmt.Printf("Wrote %d instance ids to %s\n", len(iids), path)
	return nil
}

func printStats(s *engine.Stats) {
	fmt.Printf("Best: %d | Suboptimal: %d | Incomplete: %d | Timeout: %d | Error: %d | Infeasible: %d\n",
		s.Best, s.Suboptimal, s.Incomplete, s.Timeout, s.Error, s.Infeasible)
}
