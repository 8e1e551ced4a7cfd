package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/patdav1503/securelog-msg-network/internal/fixture"
	"github.com/patdav1503/securelog-msg-network/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Fixture string
}

// InitResult summarises a provisioned network.
type InitResult struct {
	Database     string `json:"database"`
	Participants int    `json:"participants"`
	Messages     int    `json:"messages"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and provision a network",
		Long: `Create the SQLite database and provision participants and seed
messages from a YAML fixture.

Provisioning is administrative: it bypasses access control and emits no
events. It fails without writing anything if a record already exists.

Example:
  securelog init --db ./securelog.db --fixture ./network.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Fixture, "fixture", "", "network fixture YAML (required)")
	_ = cmd.MarkFlagRequired("fixture")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	network, err := fixture.Load(opts.Fixture)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixture", err)
	}

	st, err := store.Open(opts.Config.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.Logger().Error("error closing database", "error", closeErr)
		}
	}()

	if err := fixture.Provision(cmd.Context(), st, network); err != nil {
		return WrapExitError(ExitFailure, "failed to provision network", err)
	}
	opts.Logger().Info("network provisioned",
		"db", opts.Config.DBPath,
		"participants", len(network.Participants),
		"messages", len(network.Messages))

	result := InitResult{
		Database:     opts.Config.DBPath,
		Participants: len(network.Participants),
		Messages:     len(network.Messages),
	}
	return out.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Provisioned %d participants and %d messages in %s\n",
			result.Participants, result.Messages, result.Database)
	})
}
