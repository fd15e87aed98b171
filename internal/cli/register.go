package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	DeleteOldUUID bool
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Generate a new anonymous solver UUID",
		Long: `Generates a fresh solver UUID and stores it in config.json. The UUID is the
only key to your uploaded runs on the website, so an existing one is never
replaced without --delete-old-uuid; the old value is appended to
solver_uuid_backup.log first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DeleteOldUUID, "delete-old-uuid", false, "replace an existing solver UUID")

	return cmd
}

func runRegister(opts *RegisterOptions) error {
	settings := opts.settings

	if settings.SolverUUID != nil {
		if !opts.DeleteOldUUID {
			fmt.Printf("The config file currently contains the solver UUID %s.\n", settings.SolverUUID)
			fmt.Println("This UUID is required to access previous uploads on the website.")
			fmt.Println("If you saved it and really want a new one, pass --delete-old-uuid.")
			return NewExitError(ExitCommandError, "solver UUID present; refusing to replace it")
		}
		if err := backupSolverUUID(opts, *settings.SolverUUID); err != nil {
			return WrapExitError(ExitFailure, "backing up old solver UUID", err)
		}
	}

	id := uuid.New()
	settings.SolverUUID = &id
	if err := settings.Store(opts.dir.ConfigFile()); err != nil {
		return WrapExitError(ExitFailure, "storing config", err)
	}

	client, err := opts.serverClient()
	if err != nil {
		return err
	}
	fmt.Printf("The new solver UUID is: %s\n", id)
	fmt.Printf("Once you recorded a run, your results appear at:\n  %s\n", client.SolverWebsiteURL(id.String()))
	return nil
}

func backupSolverUUID(opts *RegisterOptions, old uuid.UUID) error {
	f, err := os.OpenFile(opts.dir.SolverUUIDBackupFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s Reregister. The old UUID was %s\n",
		time.Now().Format("2006-01-02 15:04:05"), old)
	return err
}
