package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/patdav1503/securelog-msg-network/internal/acl"
	"github.com/patdav1503/securelog-msg-network/internal/config"
	"github.com/patdav1503/securelog-msg-network/internal/engine"
	"github.com/patdav1503/securelog-msg-network/internal/store"
	"github.com/patdav1503/securelog-msg-network/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Database  string
	Policy    string
	LogFormat string // "json" | "text"

	// Config is loaded from the environment before any command runs.
	// Flags above override it.
	Config config.Config

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the securelog CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "securelog",
		Short: "securelog - permissioned error message network",
		Long: `A permissioned ledger of error messages.

Participants post, hand over and resolve error messages under an
ordered access control rule table. Every committed change is appended
to a hash-chained event log that can be audited.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.prepare(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $SECURELOG_DB_PATH or securelog.db)")
	cmd.PersistentFlags().StringVar(&opts.Policy, "policy", "", "CUE policy file replacing the default rule table")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format on stderr (json|text)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewExistsCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// prepare loads the environment, applies flag overrides and installs
// the logger.
func (o *RootOptions) prepare(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Database != "" {
		cfg.DBPath = o.Database
	}
	if o.Policy != "" {
		cfg.PolicyPath = o.Policy
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.logger = newLogger(cmd.ErrOrStderr(), cfg.LogFormat, level)
	slog.SetDefault(o.logger)
	return nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// Logger returns the configured logger, or the default before prepare.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// session is an open database with an engine over it.
type session struct {
	graph  *store.SQLite
	engine *engine.Engine
	close  func()
}

// openSession opens the existing database and builds an engine over it
// with the configured policy, logger and tracing.
func (o *RootOptions) openSession(ctx context.Context, extra ...engine.EngineOption) (*session, error) {
	if _, err := os.Stat(o.Config.DBPath); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s (run securelog init first)", o.Config.DBPath))
	}

	var policy *acl.Table
	if o.Config.PolicyPath != "" {
		t, err := acl.LoadPolicy(o.Config.PolicyPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load policy", err)
		}
		policy = t
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:  o.Config.OTelEnabled,
		Endpoint: o.Config.OTelEndpoint,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}

	st, err := store.Open(o.Config.DBPath)
	if err != nil {
		_ = shutdown(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	logger := o.Logger()
	opts := []engine.EngineOption{
		engine.WithPolicy(policy),
		engine.WithLogger(logger),
		engine.WithPollInterval(o.Config.PollInterval),
	}
	eng, err := engine.New(ctx, st, append(opts, extra...)...)
	if err != nil {
		_ = st.Close()
		_ = shutdown(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	return &session{
		graph:  st,
		engine: eng,
		close: func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing database", "error", err)
			}
			if err := shutdown(context.Background()); err != nil {
				logger.Error("error flushing traces", "error", err)
			}
		},
	}, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
