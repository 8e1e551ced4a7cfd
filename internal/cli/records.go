package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// RecordOptions holds flags shared by the record commands.
type RecordOptions struct {
	*RootOptions
	As     string
	Record string            // create
	Set    map[string]string // update
}

// ExistsResult is the answer of the exists command.
type ExistsResult struct {
	Resource string `json:"resource"`
	Exists   bool   `json:"exists"`
}

func newRecordCommand(rootOpts *RootOptions, use, short, long string, args cobra.PositionalArgs,
	run func(opts *RecordOptions, args []string, cmd *cobra.Command) error) (*cobra.Command, *RecordOptions) {
	opts := &RecordOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args, cmd)
		},
	}
	addCallerFlag(cmd, &opts.As)
	return cmd, opts
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newRecordCommand(rootOpts, "get <type> <id>", "Read one record",
		`Read one record as a participant.

A record the caller may not read is a denial, not an absence.

Example:
  securelog get ErrorMessage 1 --as Member#alice@email.com`,
		cobra.ExactArgs(2), runGet)
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newRecordCommand(rootOpts, "list <type>", "List readable records of a type",
		`List the records of a type that the caller may read, in insertion order.
Unreadable records are left out silently.

Example:
  securelog list ErrorMessage --as Level3#george@email.com`,
		cobra.ExactArgs(1), runList)
	return cmd
}

// NewExistsCommand creates the exists command.
func NewExistsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newRecordCommand(rootOpts, "exists <type> <id>", "Check whether a readable record exists",
		`Report whether a record exists and the caller may read it. A record
hidden from the caller is reported as absent.

Example:
  securelog exists ErrorMessage 2 --as Member#alice@email.com`,
		cobra.ExactArgs(2), runExists)
	return cmd
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, opts := newRecordCommand(rootOpts, "create <type>", "Create a record",
		`Create a record from its JSON form. References take Type#id.

Example:
  securelog create ErrorMessage --as System#system@email.com \
    --record '{"messageId":"60","creator":"System#system@email.com","owner":"Member#alice@email.com","errorSeverity":"ERROR"}'`,
		cobra.ExactArgs(1), runCreate)
	cmd.Flags().StringVar(&opts.Record, "record", "", "record as JSON (required)")
	_ = cmd.MarkFlagRequired("record")
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, opts := newRecordCommand(rootOpts, "update <type> <id>", "Patch a record",
		`Patch fields of a record. Every patched field is authorized separately.

Example:
  securelog update ErrorMessage 1 --as Member#alice@email.com --set errorStatus=WORKING`,
		cobra.ExactArgs(2), runUpdate)
	cmd.Flags().StringToStringVar(&opts.Set, "set", nil, "field=value pairs to patch")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newRecordCommand(rootOpts, "delete <type> <id>", "Delete a record",
		`Delete a record as a participant.

Example:
  securelog delete ErrorMessage 1 --as Member#alice@email.com`,
		cobra.ExactArgs(2), runDelete)
	return cmd
}

func runGet(opts *RecordOptions, args []string, cmd *cobra.Command) error {
	return withCaller(opts, cmd, func(s *session, caller model.Ref, out *OutputFormatter) error {
		rec, err := s.engine.ReadRecord(cmd.Context(), caller, args[0], args[1])
		if err != nil {
			return out.Fail(err)
		}
		return out.Emit(rec, func(w io.Writer) { writeRecord(w, rec) })
	})
}

func runList(opts *RecordOptions, args []string, cmd *cobra.Command) error {
	return withCaller(opts, cmd, func(s *session, caller model.Ref, out *OutputFormatter) error {
		recs, err := s.engine.ReadAll(cmd.Context(), caller, args[0])
		if err != nil {
			return out.Fail(err)
		}
		if recs == nil {
			recs = []model.Record{}
		}
		return out.Emit(recs, func(w io.Writer) {
			if len(recs) == 0 {
				fmt.Fprintf(w, "No readable %s records.\n", args[0])
			}
			for _, rec := range recs {
				writeRecord(w, rec)
			}
		})
	})
}

func runExists(opts *RecordOptions, args []string, cmd *cobra.Command) error {
	return withCaller(opts, cmd, func(s *session, caller model.Ref, out *OutputFormatter) error {
		ok, err := s.engine.Exists(cmd.Context(), caller, args[0], args[1])
		if err != nil {
			return out.Fail(err)
		}
		result := ExistsResult{Resource: model.NewRef(args[0], args[1]).String(), Exists: ok}
		return out.Emit(result, func(w io.Writer) { fmt.Fprintln(w, ok) })
	})
}

func runCreate(opts *RecordOptions, args []string, cmd *cobra.Command) error {
	rec, err := decodeRecord(args[0], opts.Record)
	if err != nil {
		return opts.formatter(cmd).Fail(err)
	}
	return withCaller(opts, cmd, func(s *session, caller model.Ref, out *OutputFormatter) error {
		if err := s.engine.CreateRecord(cmd.Context(), caller, args[0], rec); err != nil {
			return out.Fail(err)
		}
		return out.Emit(rec, func(w io.Writer) { fmt.Fprintf(w, "Created %s\n", rec.Ref()) })
	})
}

func runUpdate(opts *RecordOptions, args []string, cmd *cobra.Command) error {
	return withCaller(opts, cmd, func(s *session, caller model.Ref, out *OutputFormatter) error {
		ref := model.NewRef(args[0], args[1])
		before := s.engine.Head()
		if err := s.engine.UpdateRecord(cmd.Context(), caller, ref.Type, ref.ID, model.Patch(opts.Set)); err != nil {
			return out.Fail(err)
		}
		changed := s.engine.Head() > before
		return out.Emit(map[string]any{"resource": ref.String(), "changed": changed}, func(w io.Writer) {
			if changed {
				fmt.Fprintf(w, "Updated %s\n", ref)
			} else {
				fmt.Fprintf(w, "No changes to %s\n", ref)
			}
		})
	})
}

func runDelete(opts *RecordOptions, args []string, cmd *cobra.Command) error {
	return withCaller(opts, cmd, func(s *session, caller model.Ref, out *OutputFormatter) error {
		ref := model.NewRef(args[0], args[1])
		if err := s.engine.DeleteRecord(cmd.Context(), caller, ref.Type, ref.ID); err != nil {
			return out.Fail(err)
		}
		return out.Emit(map[string]any{"resource": ref.String()}, func(w io.Writer) {
			fmt.Fprintf(w, "Deleted %s\n", ref)
		})
	})
}

// withCaller parses --as, opens a session and runs fn.
func withCaller(opts *RecordOptions, cmd *cobra.Command, fn func(s *session, caller model.Ref, out *OutputFormatter) error) error {
	caller, err := parseCaller(opts.As)
	if err != nil {
		return err
	}
	s, err := opts.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s, caller, opts.formatter(cmd))
}
