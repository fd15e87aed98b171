package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// ExportOptions holds the shared flags of the two export commands.
type ExportOptions struct {
	*RootOptions
	Output string
	Force  bool
}

// NewExportInstanceCommand creates the export-instance command.
func NewExportInstanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export-instance <iid>",
		Short: "Download one instance to a local .gr file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iid, err := parseIID(args[0])
			if err != nil {
				return err
			}
			return downloadTo(cmd.Context(), opts, fmt.Sprintf("api/instances/download/%d", iid))
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "O", "", "destination file")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite an existing file")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// ExportSolutionOptions adds the solution identity flags.
type ExportSolutionOptions struct {
	*ExportOptions
	Solver string
	Run    string
}

// NewExportSolutionCommand creates the export-solution command.
func NewExportSolutionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportSolutionOptions{ExportOptions: &ExportOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "export-solution <iid>",
		Short: "Download one recorded solution to a local .sol file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iid, err := parseIID(args[0])
			if err != nil {
				return err
			}
			client, err := opts.serverClient()
			if err != nil {
				return err
			}
			if err := refuseOverwrite(opts.ExportOptions); err != nil {
				return err
			}
			if err := client.DownloadSolution(cmd.Context(), iid, opts.Solver, opts.Run, opts.Output, nil); err != nil {
				return WrapExitError(ExitFailure, "downloading solution", err)
			}
			fmt.Printf("Downloaded to: %s\n", opts.Output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "O", "", "destination file")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite an existing file")
	cmd.Flags().StringVar(&opts.Solver, "solver", "", "solver UUID the solution belongs to")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run UUID the solution belongs to")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("solver")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func parseIID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("%q is not an instance id", s))
	}
	return uint32(v), nil
}

func refuseOverwrite(opts *ExportOptions) error {
	if opts.Force {
		return nil
	}
	if _, err := os.Stat(opts.Output); err == nil {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("file %s already exists; change the output path or use -f/--force", opts.Output))
	}
	return nil
}

func downloadTo(ctx context.Context, opts *ExportOptions, remotePath string) error {
	client, err := opts.serverClient()
	if err != nil {
		return err
	}
	if err := refuseOverwrite(opts); err != nil {
		return err
	}
	if err := client.DownloadFile(ctx, remotePath, opts.Output, nil); err != nil {
		return WrapExitError(ExitFailure, "downloading", err)
	}
	fmt.Printf("Downloaded to: %s\n", opts.Output)
	return nil
}
