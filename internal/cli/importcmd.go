package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/domset-tools/stride-runner/internal/engine"
	"github.com/domset-tools/stride-runner/internal/server"
	"github.com/domset-tools/stride-runner/internal/verify"
)

// ImportSolutionOptions holds flags for the import-solution command.
type ImportSolutionOptions struct {
	*RootOptions
	Solution string
}

// NewImportSolutionCommand creates the import-solution command.
func NewImportSolutionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportSolutionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import-solution <iid>",
		Short: "Verify a local solution file and upload it",
		Long: `Reads a solution from --solution (or stdin), verifies it against the cached
instance, and uploads it when the score is near or better than the best
known one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iid, err := parseIID(args[0])
			if err != nil {
				return err
			}
			return runImportSolution(cmd.Context(), opts, iid)
		},
	}

	cmd.Flags().StringVarP(&opts.Solution, "solution", "s", "", "solution file (default: stdin)")

	return cmd
}

func runImportSolution(ctx context.Context, opts *ImportSolutionOptions, iid uint32) error {
	meta, err := opts.openMeta()
	if err != nil {
		return err
	}
	defer meta.Close()

	info, err := meta.Instance(ctx, iid)
	if err != nil {
		return WrapExitError(ExitCommandError, "looking up instance", err)
	}

	raw, err := readSolutionInput(opts.Solution)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading solution", err)
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

	graph, _, err := cache.GetOrFetch(ctx, iid)
	if err != nil {
		return WrapExitError(ExitFailure, "loading instance data", err)
	}

	var bestKnown *int
	if info.BestScore != nil {
		v := int(*info.BestScore)
		bestKnown = &v
	}

	res := verify.Check(graph, raw, bestKnown)
	if res.State != verify.Best && res.State != verify.Suboptimal {
		return NewExitError(ExitFailure,
			fmt.Sprintf("solution is %s for instance %d", res.State, iid))
	}
	fmt.Printf("The solution is feasible for instance %d and has cardinality %d\n", iid, res.Score)

	if !engine.UploadWorthy(res.Score, bestKnown) {
		fmt.Printf("Score is not good enough for upload. Best known score: %d\n", *bestKnown)
		return nil
	}

	score := res.Score
	up := &server.SolutionUpload{
		InstanceID:      iid,
		RunUUID:         uuid.New(),
		SolverUUID:      opts.settings.SolverUUID,
		SecondsComputed: 0,
		State:           res.State.String(),
		Score:           &score,
		Vertices:        res.Vertices,
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := client.UploadSolution(uploadCtx, up); err != nil {
		return WrapExitError(ExitFailure, "uploading solution", err)
	}
	fmt.Println("Upload complete")
	return nil
}

func readSolutionInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
