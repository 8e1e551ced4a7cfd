package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	As          string
	Payload     string
	PayloadFile string
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <transaction>",
		Short: "Submit a named transaction",
		Long: `Submit a named transaction as a participant and print the events
it committed.

Transactions:
  postErrorMessage             messageId, owner, errorType, errorSeverity, errorText
  updateErrorMessageOwner      oldMessage, newOwner
  updateErrorMessageStatus     oldMessage, newStatus
  updateErrorMessageSeverity   oldMessage, newSeverity

Examples:
  securelog submit postErrorMessage --as System#system@email.com \
    --payload '{"messageId":"51","owner":"Member#alice@email.com","errorType":"Math Module","errorSeverity":"WARNING","errorText":"overflow"}'
  securelog submit updateErrorMessageStatus --as Member#alice@email.com --payload-file status.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	addCallerFlag(cmd, &opts.As)
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "transaction parameters as JSON")
	cmd.Flags().StringVar(&opts.PayloadFile, "payload-file", "", "transaction parameters as a YAML or JSON file")

	return cmd
}

func runSubmit(opts *SubmitOptions, name string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	caller, err := parseCaller(opts.As)
	if err != nil {
		return err
	}
	params, err := parsePayload(opts.Payload, opts.PayloadFile)
	if err != nil {
		return err
	}

	s, err := opts.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	events, err := s.engine.Submit(cmd.Context(), caller, name, params)
	if err != nil {
		return out.Fail(err)
	}
	return out.Emit(events, func(w io.Writer) {
		fmt.Fprintf(w, "%s committed %d event(s)\n", name, len(events))
		for _, e := range events {
			writeEvent(w, e)
		}
	})
}
