package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/domset-tools/stride-runner/internal/server"
	"github.com/domset-tools/stride-runner/internal/store"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	AllInstances bool
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the metadata snapshot and merge the instance dump",
		Long: `Fetches the current metadata dump and swaps it in atomically, then merges
the instance-data dump into the local cache. The partial instance dump is
used unless --all-instances is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.AllInstances, "all-instances", "a", false, "download the full instance dump (needs >10GB)")

	return cmd
}

func runUpdate(ctx context.Context, opts *UpdateOptions) error {
	client, err := opts.serverClient()
	if err != nil {
		return err
	}

	// metadata: download beside the canonical file, validate, rename over
	metaTmp := opts.dir.MetaDBFile() + ".download"
	defer os.Remove(metaTmp)

	fmt.Println("Downloading metadata snapshot ...")
	if err := client.DownloadFile(ctx, server.PathMetadataDump, metaTmp, printProgress); err != nil {
		return WrapExitError(ExitFailure, "downloading metadata dump", err)
	}
	if err := store.ReplaceMetaFromDump(metaTmp, opts.dir.MetaDBFile()); err != nil {
		return WrapExitError(ExitFailure, "swapping metadata database", err)
	}
	fmt.Println("Metadata snapshot updated.")

	// instance bodies: download to temp, merge additively
	dumpName := server.PathInstanceDumpPart
	if opts.AllInstances {
		dumpName = server.PathInstanceDumpFull
	}
	instTmp := opts.dir.InstanceDBFile() + ".download"
	defer os.Remove(instTmp)

	fmt.Println("Downloading instance dump ...")
	if err := client.DownloadFile(ctx, dumpName, instTmp, printProgress); err != nil {
		return WrapExitError(ExitFailure, "downloading instance dump", err)
	}

	cache, err := opts.openCache(client)
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.BulkImport(ctx, instTmp); err != nil {
		return WrapExitError(ExitFailure, "merging instance dump", err)
	}

	n, err := cache.Count(ctx)
	if err == nil {
		fmt.Printf("Instance cache now holds %d bodies.\n", n)
	}
	return nil
}

// printProgress is a plain single-line progress indicator; fancy rendering
// belongs to the terminal frontend, not here.
func printProgress(downloaded, total int64) {
	if total > 0 {
		fmt.Fprintf(os.Stderr, "\r%6.1f%% of %d bytes", float64(downloaded)*100/float64(total), total)
		if downloaded >= total {
			fmt.Fprintln(os.Stderr)
		}
	}
}
