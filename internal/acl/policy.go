package acl

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// LoadPolicy reads a CUE policy file and returns the table it describes.
func LoadPolicy(path string) (*Table, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(path, src)
}

// ParsePolicy compiles src, unifies it with #Policy and builds the table.
// filename is used only for error positions.
func ParsePolicy(filename string, src []byte) (*Table, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile policy schema: %w", err)
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, fmt.Errorf("compile policy: %s", formatCUEError(err))
	}

	policy := schema.LookupPath(cue.ParsePath("#Policy")).Unify(user)
	if err := policy.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid policy: %s", formatCUEError(err))
	}

	base, err := policy.LookupPath(cue.ParsePath("base")).String()
	if err != nil {
		return nil, fmt.Errorf("policy base: %s", formatCUEError(err))
	}

	rules, err := parseRules(policy.LookupPath(cue.ParsePath("rules")))
	if err != nil {
		return nil, err
	}

	table := &Table{Rules: rules}
	if base == "default" {
		table = DefaultTable().Append(rules...)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return table, nil
}

func parseRules(v cue.Value) ([]Rule, error) {
	iter, err := v.List()
	if err != nil {
		return nil, fmt.Errorf("policy rules: %s", formatCUEError(err))
	}

	var rules []Rule
	for iter.Next() {
		rule, err := parseRule(iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRule(v cue.Value) (Rule, error) {
	var r Rule
	var err error

	if r.Name, err = v.LookupPath(cue.ParsePath("name")).String(); err != nil {
		return r, fmt.Errorf("rule name: %s", formatCUEError(err))
	}
	wrap := func(field string, err error) error {
		return fmt.Errorf("rule %s: %s: %s", r.Name, field, formatCUEError(err))
	}

	if desc := v.LookupPath(cue.ParsePath("description")); desc.Exists() {
		if r.Description, err = desc.String(); err != nil {
			return r, wrap("description", err)
		}
	}

	var ops []string
	if err := v.LookupPath(cue.ParsePath("operations")).Decode(&ops); err != nil {
		return r, wrap("operations", err)
	}
	for _, op := range ops {
		r.Operations = append(r.Operations, model.Operation(op))
	}

	if r.Resource, err = v.LookupPath(cue.ParsePath("resource")).String(); err != nil {
		return r, wrap("resource", err)
	}

	if p := v.LookupPath(cue.ParsePath("participants")); p.Exists() {
		if err := p.Decode(&r.Participants); err != nil {
			return r, wrap("participants", err)
		}
	}
	if f := v.LookupPath(cue.ParsePath("fields")); f.Exists() {
		if err := f.Decode(&r.Fields); err != nil {
			return r, wrap("fields", err)
		}
	}

	if r.Condition, err = parseCondition(v.LookupPath(cue.ParsePath("condition"))); err != nil {
		return r, wrap("condition", err)
	}

	effect, err := v.LookupPath(cue.ParsePath("effect")).String()
	if err != nil {
		return r, wrap("effect", err)
	}
	if r.Effect, err = ParseDecision(effect); err != nil {
		return r, wrap("effect", err)
	}

	if reason := v.LookupPath(cue.ParsePath("reason")); reason.Exists() {
		s, err := reason.String()
		if err != nil {
			return r, wrap("reason", err)
		}
		r.Reason = model.DenyReason(s)
	}
	return r, nil
}

// parseCondition accepts a condition name or a {fieldEquals: {...}} struct.
func parseCondition(v cue.Value) (Condition, error) {
	// Try as a plain name first
	if name, err := v.String(); err == nil {
		return Condition{Kind: ConditionKind(name)}, nil
	}

	fe := v.LookupPath(cue.ParsePath("fieldEquals"))
	if !fe.Exists() {
		return Condition{}, fmt.Errorf("expected a condition name or fieldEquals")
	}
	c := Condition{Kind: CondFieldEquals}
	var err error
	if c.Field, err = fe.LookupPath(cue.ParsePath("field")).String(); err != nil {
		return c, err
	}
	if c.Value, err = fe.LookupPath(cue.ParsePath("value")).String(); err != nil {
		return c, err
	}
	return c, nil
}

// formatCUEError flattens a CUE error list with positions.
func formatCUEError(err error) string {
	return cueerrors.Details(err, nil)
}
