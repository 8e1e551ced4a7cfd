package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	From   int64
	Follow bool
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the event log",
		Long: `Print committed events in sequence order.

With --follow the command keeps running and prints events as other
processes commit them, until interrupted. In JSON format each followed
event is one line.

Examples:
  securelog events
  securelog events --from 10 --format json
  securelog events --follow`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.From, "from", 0, "print events with seq greater than this")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "keep printing new events")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if opts.From < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --from %d", opts.From))
	}

	s, err := opts.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	if !opts.Follow {
		events, err := s.engine.Events(cmd.Context(), opts.From)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
		if events == nil {
			events = []model.Event{}
		}
		return out.Emit(events, func(w io.Writer) {
			if len(events) == 0 {
				fmt.Fprintln(w, "No events.")
			}
			for _, e := range events {
				writeEvent(w, e)
			}
		})
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	sub, err := s.engine.SubscribeEvents(ctx, opts.From)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to subscribe", err)
	}
	defer sub.Close()

	enc := json.NewEncoder(out.Writer)
	for e, err := range sub.All(ctx) {
		if err != nil {
			return WrapExitError(ExitCommandError, "subscription failed", err)
		}
		if out.Format == "json" {
			if err := enc.Encode(e); err != nil {
				return err
			}
			continue
		}
		writeEvent(out.Writer, e)
	}
	opts.Logger().Debug("event follow stopped", "cursor", sub.Cursor())
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
