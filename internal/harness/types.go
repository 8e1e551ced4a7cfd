package harness

import "github.com/patdav1503/securelog-msg-network/internal/model"

// TraceEvent records what one step did.
type TraceEvent struct {
	Step    int      `json:"step"`
	Phase   string   `json:"phase"` // "setup" or "flow"
	Caller  string   `json:"caller"`
	Action  string   `json:"action"`
	Target  string   `json:"target"`
	Outcome string   `json:"outcome"`
	Reason  string   `json:"reason,omitempty"`
	Error   string   `json:"error,omitempty"`
	Events  []int64  `json:"events,omitempty"`
	Records []string `json:"records,omitempty"`
	Exists  *bool    `json:"exists,omitempty"`

	// fields of the record returned by get, for expect.fields
	fields map[string]string
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace has one entry per executed step, setup first.
	Trace []TraceEvent `json:"trace"`

	// Events is the committed event log in sequence order.
	Events []model.Event `json:"events"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Events: []model.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// EventsOf returns the committed events of the given kind.
func (r *Result) EventsOf(kind string) []model.Event {
	var out []model.Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
