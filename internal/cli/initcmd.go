package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/domset-tools/stride-runner/internal/runcfg"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Force bool
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data directory and a default config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite an existing config.json")

	return cmd
}

func runInit(opts *InitOptions) error {
	path := opts.dir.ConfigFile()
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("config %s already exists; use -f/--force to overwrite", path))
	}

	if err := runcfg.DefaultSettings().Store(path); err != nil {
		return WrapExitError(ExitFailure, "writing config", err)
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}
