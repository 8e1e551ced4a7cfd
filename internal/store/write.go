package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// Apply implements Graph. Record writes and event appends share one
// transaction; either all of them are visible or none is. A batch whose
// first event does not follow the stored head fails with
// ErrSequenceConflict before anything is written.
func (s *SQLite) Apply(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply: begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// The head is read before any write so a batch stamped against a
	// stale head leaves the records untouched.
	if len(b.Events) > 0 {
		var head int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&head); err != nil {
			return fmt.Errorf("apply: read head: %w", err)
		}
		if err := checkSequence(head, b.Events); err != nil {
			return err
		}
	}

	for _, rec := range b.Puts {
		body, err := marshalRecord(rec)
		if err != nil {
			return fmt.Errorf("apply: %w", err)
		}
		// ON CONFLICT keeps the original row, and with it the
		// record's insertion position.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (type, id, body)
			VALUES (?, ?, ?)
			ON CONFLICT(type, id) DO UPDATE SET body = excluded.body
		`, rec.RecordType(), rec.RecordID(), body)
		if err != nil {
			return fmt.Errorf("apply: put %s: %w", rec.Ref(), err)
		}
	}

	for _, ref := range b.Deletes {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE type = ? AND id = ?`, ref.Type, ref.ID)
		if err != nil {
			return fmt.Errorf("apply: delete %s: %w", ref, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("apply: delete %s: %w", ref, err)
		}
		if n == 0 {
			return &model.NotFoundError{Type: ref.Type, ID: ref.ID}
		}
	}

	for _, e := range b.Events {
		if err := insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply: commit: %w", err)
	}
	return nil
}

// insertEvent appends one event row. Fields are stored as canonical JSON
// so the chain hash can be recomputed from the row alone.
func insertEvent(ctx context.Context, tx *sql.Tx, e model.Event) error {
	fields, err := marshalFields(e.Fields)
	if err != nil {
		return fmt.Errorf("apply: event %d: %w", e.Seq, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
		(seq, id, timestamp, kind, transaction_id, caller, fields, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Seq,
		e.ID,
		formatTimestamp(e.Timestamp),
		e.Kind,
		e.TransactionID,
		e.Caller,
		fields,
		e.PrevHash,
		e.Hash,
	)
	if err != nil {
		return fmt.Errorf("apply: insert event %d: %w", e.Seq, err)
	}
	return nil
}
