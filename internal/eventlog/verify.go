package eventlog

import (
	"context"
	"fmt"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// ChainError reports the first event that breaks the hash chain.
type ChainError struct {
	Seq    int64
	Reason string
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	return fmt.Sprintf("event chain broken at seq %d: %s", e.Seq, e.Reason)
}

// Verifier checks events one at a time against the running chain state.
// The zero value expects the chain to start at seq 1.
type Verifier struct {
	seq  int64
	hash string
}

// Seq returns the last verified sequence number.
func (v *Verifier) Seq() int64 { return v.seq }

// Hash returns the last verified hash.
func (v *Verifier) Hash() string { return v.hash }

// Check verifies e continues the chain and advances the verifier.
func (v *Verifier) Check(e model.Event) error {
	if e.Seq != v.seq+1 {
		return &ChainError{Seq: e.Seq, Reason: fmt.Sprintf("expected seq %d", v.seq+1)}
	}
	if e.PrevHash != v.hash {
		return &ChainError{Seq: e.Seq, Reason: "prevHash does not match the previous event"}
	}
	hash, err := e.ComputeHash()
	if err != nil {
		return &ChainError{Seq: e.Seq, Reason: err.Error()}
	}
	if hash != e.Hash {
		return &ChainError{Seq: e.Seq, Reason: "content does not match hash"}
	}
	v.seq = e.Seq
	v.hash = e.Hash
	return nil
}

// Report summarises a successful verification.
type Report struct {
	Events int64  `json:"events"`
	Head   string `json:"head"`
}

// HeadSeq returns the seq of the last verified event. Verification
// rejects gaps from seq 1, so it always equals Events.
func (r Report) HeadSeq() int64 {
	return r.Events
}

// Verify recomputes the whole hash chain from the store.
// A break is reported as a *ChainError.
func (l *Log) Verify(ctx context.Context) (Report, error) {
	var v Verifier
	for {
		page, err := l.graph.Events(ctx, v.Seq(), pageSize)
		if err != nil {
			return Report{}, fmt.Errorf("verify: %w", err)
		}
		if len(page) == 0 {
			return Report{Events: v.Seq(), Head: v.Hash()}, nil
		}
		for _, e := range page {
			if err := v.Check(e); err != nil {
				return Report{Events: v.Seq(), Head: v.Hash()}, err
			}
		}
	}
}
