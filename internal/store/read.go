package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// Get implements Graph.
func (s *SQLite) Get(ctx context.Context, typ, id string) (model.Record, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM records WHERE type = ? AND id = ?
	`, typ, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Type: typ, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s#%s: %w", typ, id, err)
	}
	return unmarshalRecord(typ, body)
}

// List implements Graph.
//
// Returns an empty slice (not nil) if no records of typ exist.
func (s *SQLite) List(ctx context.Context, typ string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM records WHERE type = ? ORDER BY seq ASC
	`, typ)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := unmarshalRecord(typ, body)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Events implements Graph.
//
// Returns an empty slice (not nil) if no events follow afterSeq.
func (s *SQLite) Events(ctx context.Context, afterSeq int64, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, timestamp, kind, transaction_id, caller, fields, prev_hash, hash
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Head implements Graph.
func (s *SQLite) Head(ctx context.Context) (int64, string, error) {
	var (
		seq  int64
		hash string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, hash FROM events ORDER BY seq DESC LIMIT 1
	`).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("read head: %w", err)
	}
	return seq, hash, nil
}

func scanEvent(rows *sql.Rows) (model.Event, error) {
	var (
		e         model.Event
		timestamp string
		fields    string
	)
	err := rows.Scan(&e.Seq, &e.ID, &timestamp, &e.Kind, &e.TransactionID, &e.Caller, &fields, &e.PrevHash, &e.Hash)
	if err != nil {
		return model.Event{}, fmt.Errorf("scan event: %w", err)
	}
	if e.Timestamp, err = parseTimestamp(timestamp); err != nil {
		return model.Event{}, err
	}
	if e.Fields, err = unmarshalFields(fields); err != nil {
		return model.Event{}, fmt.Errorf("event %d: %w", e.Seq, err)
	}
	return e, nil
}
