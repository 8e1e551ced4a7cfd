package acl

import (
	"fmt"
	"io"
	"strings"
)

// Summary renders r on one line, e.g.
//
//	DENY(invalid-creator) CREATE ErrorMessage by any when creatorNotSystem
func (r Rule) Summary() string {
	var b strings.Builder
	b.WriteString(r.Effect.String())
	if r.Effect == Deny {
		fmt.Fprintf(&b, "(%s)", r.Reason)
	}
	ops := make([]string, len(r.Operations))
	for i, op := range r.Operations {
		ops[i] = string(op)
	}
	fmt.Fprintf(&b, " %s %s by ", strings.Join(ops, ","), r.Resource)
	if len(r.Participants) == 0 {
		b.WriteString("any")
	} else {
		b.WriteString(strings.Join(r.Participants, ","))
	}
	if len(r.Fields) > 0 {
		fmt.Fprintf(&b, " fields %s", strings.Join(r.Fields, ","))
	}
	fmt.Fprintf(&b, " when %s", r.Condition)
	return b.String()
}

// Render writes the table in evaluation order followed by the
// fallthrough behaviour.
func Render(w io.Writer, t *Table) error {
	for i, r := range t.Rules {
		if _, err := fmt.Fprintf(w, "%2d. %s\n    %s\n", i+1, r.Name, r.Summary()); err != nil {
			return err
		}
		if r.Description != "" {
			if _, err := fmt.Fprintf(w, "    %s\n", r.Description); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "    otherwise DENY(unauthorized-submitter) for SUBMIT, DENY(insufficient-access) for everything else")
	return err
}
