package acl

import (
	"fmt"
	"slices"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny is the zero value so an unset Result never grants access.
	Deny Decision = iota
	Allow
)

// String returns "ALLOW" or "DENY".
func (d Decision) String() string {
	if d == Allow {
		return "ALLOW"
	}
	return "DENY"
}

// ParseDecision accepts "ALLOW" or "DENY".
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "ALLOW":
		return Allow, nil
	case "DENY":
		return Deny, nil
	}
	return Deny, fmt.Errorf("unknown effect %q", s)
}

// ConditionKind names a predicate over the caller and target.
type ConditionKind string

const (
	// CondAlways matches unconditionally.
	CondAlways ConditionKind = "always"

	// CondOwner matches when the caller is the target's resolved owner.
	CondOwner ConditionKind = "owner"

	// CondSelf matches when the target is the caller's own participant record.
	CondSelf ConditionKind = "self"

	// CondCreatorNotSystem matches when the target's creator resolves to
	// a participant that is not of the System kind.
	CondCreatorNotSystem ConditionKind = "creatorNotSystem"

	// CondFieldEquals matches when a target field has a given value.
	CondFieldEquals ConditionKind = "fieldEquals"
)

// Condition is a named predicate. Field and Value are used only by
// CondFieldEquals.
type Condition struct {
	Kind  ConditionKind
	Field string
	Value string
}

// String renders the condition for policy listings.
func (c Condition) String() string {
	if c.Kind == CondFieldEquals {
		return fmt.Sprintf("fieldEquals(%s=%s)", c.Field, c.Value)
	}
	if c.Kind == "" {
		return string(CondAlways)
	}
	return string(c.Kind)
}

func (c Condition) validate() error {
	switch c.Kind {
	case "", CondAlways, CondOwner, CondSelf, CondCreatorNotSystem:
		return nil
	case CondFieldEquals:
		if c.Field == "" {
			return fmt.Errorf("fieldEquals requires a field")
		}
		return nil
	}
	return fmt.Errorf("unknown condition %q", c.Kind)
}

// AnyResource matches every record type and transaction name.
const AnyResource = "*"

// Rule is one entry of a policy table.
type Rule struct {
	Name        string
	Description string
	Operations  []model.Operation

	// Resource is a record type, a transaction name, or AnyResource.
	Resource string

	// Participants restricts the caller's kind. Empty matches any kind.
	Participants []string

	// Fields restricts the accessed field. Empty matches any access,
	// including whole-record access.
	Fields []string

	Condition Condition
	Effect    Decision

	// Reason is the denial reason reported by DENY rules.
	Reason model.DenyReason
}

// applies reports whether r's static selectors cover req. The condition
// is evaluated separately because it may need the store.
func (r *Rule) applies(req Request) bool {
	if !slices.Contains(r.Operations, req.Operation) {
		return false
	}
	if r.Resource != AnyResource && r.Resource != req.Resource {
		return false
	}
	if len(r.Participants) > 0 && !slices.Contains(r.Participants, req.Caller.Type) {
		return false
	}
	if len(r.Fields) > 0 && !slices.Contains(r.Fields, req.Field) {
		return false
	}
	return true
}

// Table is an ordered rule list evaluated first-match-wins.
type Table struct {
	Rules []Rule
}

// Validate checks every rule for well-formedness and unique names.
func (t *Table) Validate() error {
	seen := make(map[string]bool, len(t.Rules))
	for i, r := range t.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("rule %s: duplicate name", r.Name)
		}
		seen[r.Name] = true

		if len(r.Operations) == 0 {
			return fmt.Errorf("rule %s: at least one operation is required", r.Name)
		}
		for _, op := range r.Operations {
			if !slices.Contains(model.Operations, op) {
				return fmt.Errorf("rule %s: unknown operation %q", r.Name, op)
			}
		}
		if r.Resource == "" {
			return fmt.Errorf("rule %s: resource is required", r.Name)
		}
		for _, kind := range r.Participants {
			if !model.IsParticipantKind(kind) {
				return fmt.Errorf("rule %s: unknown participant kind %q", r.Name, kind)
			}
		}
		if err := r.Condition.validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
		if r.Effect == Deny && !r.Reason.Valid() {
			return fmt.Errorf("rule %s: DENY rules need a reason", r.Name)
		}
	}
	return nil
}

// Append returns a new table with rules added after t's rules.
func (t *Table) Append(rules ...Rule) *Table {
	out := &Table{Rules: make([]Rule, 0, len(t.Rules)+len(rules))}
	out.Rules = append(out.Rules, t.Rules...)
	out.Rules = append(out.Rules, rules...)
	return out
}

// Rule returns the rule with the given name.
func (t *Table) Rule(name string) (Rule, bool) {
	for _, r := range t.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}
