package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patdav1503/securelog-msg-network/internal/acl"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// PolicyCheckOptions holds flags for the policy check command.
type PolicyCheckOptions struct {
	*RootOptions
	As    string
	Field string
}

// RuleView is the listing form of a rule.
type RuleView struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Summary     string `json:"summary"`
}

// Explanation is the outcome of policy check.
type Explanation struct {
	Caller    string `json:"caller"`
	Operation string `json:"operation"`
	Resource  string `json:"resource"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
	Rule      string `json:"rule,omitempty"`
	Evaluated int    `json:"evaluated"`
	Cause     string `json:"cause,omitempty"`
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the access control rule table",
	}
	cmd.AddCommand(newPolicyShowCommand(rootOpts))
	cmd.AddCommand(newPolicyCheckCommand(rootOpts))
	return cmd
}

func newPolicyShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active rule table in evaluation order",
		Long: `Print the active rule table in evaluation order. Without --policy this
is the built-in default table. The first matching rule decides.

Examples:
  securelog policy show
  securelog policy show --policy policies/observed.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyShow(rootOpts, cmd)
		},
	}
}

func newPolicyCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PolicyCheckOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "check <operation> <type|transaction> [id]",
		Short: "Explain the decision for one request",
		Long: `Explain which rule decides a request without performing it.

For record operations the optional id names the target record. For
SUBMIT the resource is a transaction name and the id names the message
an update transaction refers to.

Examples:
  securelog policy check READ ErrorMessage 2 --as Level3#george@email.com
  securelog policy check UPDATE ErrorMessage 1 --field owner --as Member#alice@email.com
  securelog policy check SUBMIT postErrorMessage --as Member#alice@email.com`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyCheck(opts, args, cmd)
		},
	}
	addCallerFlag(cmd, &opts.As)
	cmd.Flags().StringVar(&opts.Field, "field", "", "accessed field for UPDATE")
	return cmd
}

func activeTable(opts *RootOptions) (*acl.Table, error) {
	if opts.Config.PolicyPath == "" {
		return acl.DefaultTable(), nil
	}
	t, err := acl.LoadPolicy(opts.Config.PolicyPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load policy", err)
	}
	return t, nil
}

func runPolicyShow(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	table, err := activeTable(opts)
	if err != nil {
		return err
	}

	views := make([]RuleView, len(table.Rules))
	for i, r := range table.Rules {
		views[i] = RuleView{Name: r.Name, Description: r.Description, Summary: r.Summary()}
	}
	if out.Format == "json" {
		return out.Success(views)
	}
	return acl.Render(out.Writer, table)
}

func runPolicyCheck(opts *PolicyCheckOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	caller, err := parseCaller(opts.As)
	if err != nil {
		return err
	}
	op, err := model.ParseOperation(args[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid operation", err)
	}

	s, err := opts.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	req := acl.Request{Caller: caller, Operation: op, Resource: args[1], Field: opts.Field}
	if len(args) == 3 {
		typ := args[1]
		if op == model.OpSubmit {
			typ = model.AssetType
		}
		// Administrative read: the explanation needs the target whether
		// or not the caller may see it.
		target, err := s.graph.Get(cmd.Context(), typ, args[2])
		if err != nil {
			return out.Fail(err)
		}
		req.Target = target
	}

	res, err := s.engine.Explain(cmd.Context(), req)
	if err != nil {
		return out.Fail(err)
	}

	exp := Explanation{
		Caller:    caller.FQI(),
		Operation: string(op),
		Resource:  req.ResourceFQI(),
		Decision:  res.Decision.String(),
		Reason:    string(res.Reason),
		Rule:      res.Rule,
		Evaluated: res.Evaluated,
	}
	if res.Cause != nil {
		exp.Cause = res.Cause.Error()
	}
	return out.Emit(exp, func(w io.Writer) {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s %s: %s", exp.Caller, exp.Operation, exp.Resource, exp.Decision)
		if exp.Reason != "" {
			fmt.Fprintf(&b, "(%s)", exp.Reason)
		}
		if exp.Rule != "" {
			fmt.Fprintf(&b, " by rule %s", exp.Rule)
		} else {
			b.WriteString(" by default")
		}
		fmt.Fprintf(&b, " after %d rule(s)", exp.Evaluated)
		if exp.Cause != "" {
			fmt.Fprintf(&b, ": %s", exp.Cause)
		}
		fmt.Fprintln(w, b.String())
	})
}
