// Package metrics exposes Prometheus counters for access decisions,
// transactions, committed events and audit verification.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the network's collectors.
type Recorder struct {
	Decisions    *prometheus.CounterVec
	Transactions *prometheus.CounterVec
	Events       *prometheus.CounterVec
	Verified     prometheus.Counter
	ChainBreaks  prometheus.Counter
	AuditHead    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securelog_access_decisions_total",
				Help: "Number of access control decisions by operation, decision and deny reason",
			},
			[]string{"operation", "decision", "reason"},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securelog_transactions_total",
				Help: "Number of processed operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securelog_events_committed_total",
				Help: "Number of events appended to the log by kind",
			},
			[]string{"kind"},
		),
		Verified: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "securelog_audit_verified_events_total",
				Help: "Number of events whose hash chain link was verified",
			},
		),
		ChainBreaks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "securelog_audit_chain_breaks_total",
				Help: "Number of hash chain breaks detected by audit",
			},
		),
		AuditHead: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "securelog_audit_head_seq",
				Help: "Sequence number of the last verified event",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(r.Decisions)
		reg.MustRegister(r.Transactions)
		reg.MustRegister(r.Events)
		reg.MustRegister(r.Verified)
		reg.MustRegister(r.ChainBreaks)
		reg.MustRegister(r.AuditHead)
	}
	return r
}

// Decision counts one access decision. reason is empty for ALLOW.
func (r *Recorder) Decision(operation, decision, reason string) {
	if r == nil {
		return
	}
	r.Decisions.WithLabelValues(operation, decision, reason).Inc()
}

// Outcome labels.
const (
	OutcomeCommitted = "committed"
	OutcomeDenied    = "denied"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Transaction counts one processed operation.
func (r *Recorder) Transaction(operation, outcome string) {
	if r == nil {
		return
	}
	r.Transactions.WithLabelValues(operation, outcome).Inc()
}

// EventCommitted counts one appended event.
func (r *Recorder) EventCommitted(kind string) {
	if r == nil {
		return
	}
	r.Events.WithLabelValues(kind).Inc()
}

// AuditVerified records n verified events and the new verified head.
func (r *Recorder) AuditVerified(n int, head int64) {
	if r == nil {
		return
	}
	r.Verified.Add(float64(n))
	r.AuditHead.Set(float64(head))
}

// AuditBreak counts a detected chain break.
func (r *Recorder) AuditBreak() {
	if r == nil {
		return
	}
	r.ChainBreaks.Inc()
}
