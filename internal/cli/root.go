// Package cli wires the stride-runner subcommands: run, update, register,
// export-instance, export-solution, import-solution, and init.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/domset-tools/stride-runner/internal/runcfg"
	"github.com/domset-tools/stride-runner/internal/server"
	"github.com/domset-tools/stride-runner/internal/store"
)

// LogLevels are the accepted values of -l/--logging.
var LogLevels = []string{"off", "info", "debug", "trace"}

// RootOptions holds global flags and the resolved environment shared by
// all commands.
type RootOptions struct {
	ServerURL string
	DataDir   string
	Logging   string

	dir      *runcfg.Dir
	settings runcfg.Settings
}

// NewRootCommand creates the stride-runner root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stride-runner",
		Short: "Run and verify dominating-set solvers against the shared instance corpus",
		Long: `stride-runner executes a local dominating-set solver against curated graph
instances, verifies every reported solution, and uploads certified results
to the instance server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidLogLevel(opts.Logging) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid logging level %q: must be one of %v", opts.Logging, LogLevels))
			}
			configureLogging(opts.Logging)

			dir, err := runcfg.OpenDir(opts.DataDir)
			if err != nil {
				return WrapExitError(ExitCommandError, "opening data directory", err)
			}
			opts.dir = dir

			opts.settings, err = runcfg.LoadSettings(dir.ConfigFile())
			if err != nil {
				return WrapExitError(ExitCommandError, "loading config", err)
			}
			if opts.ServerURL == "" {
				opts.ServerURL = opts.settings.ServerURL
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server-url", "", "instance server base URL (default from config)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", ".stride", "local data directory")
	cmd.PersistentFlags().StringVarP(&opts.Logging, "logging", "l", "off", "log level (off|info|debug|trace)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewExportInstanceCommand(opts))
	cmd.AddCommand(NewExportSolutionCommand(opts))
	cmd.AddCommand(NewImportSolutionCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))

	return cmd
}

func isValidLogLevel(level string) bool {
	for _, l := range LogLevels {
		if l == level {
			return true
		}
	}
	return false
}

func configureLogging(level string) {
	logLevel := slog.LevelError
	switch level {
	case "info":
		logLevel = slog.LevelInfo
	case "debug", "trace":
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// serverClient builds the HTTP client for the configured server.
func (o *RootOptions) serverClient() (*server.Client, error) {
	c, err := server.New(o.ServerURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid server URL", err)
	}
	return c, nil
}

// openMeta opens the metadata snapshot with actionable failures.
func (o *RootOptions) openMeta() (*store.MetaStore, error) {
	meta, err := store.OpenMeta(o.dir.MetaDBFile())
	if err != nil {
		if store.IsCorruptStore(err) {
			return nil, WrapExitError(ExitFailure, "metadata database is corrupt", err)
		}
		return nil, WrapExitError(ExitCommandError, "opening metadata database", err)
	}
	return meta, nil
}

// openCache opens the instance body cache backed by the server for misses.
func (o *RootOptions) openCache(client *server.Client) (*store.InstanceCache, error) {
	cache, err := store.OpenInstanceCache(o.dir.InstanceDBFile(), client)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "opening instance cache", err)
	}
	return cache, nil
}
