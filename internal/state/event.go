// internal/state/event.go
package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/labkeeper/internal/types"
)

// EventStore implements types.EventStore on the state database.
// Events are append-only; Seq is assigned per session at append time.
type EventStore struct {
	db *sql.DB
}

// Append assigns the next per-session sequence number and inserts the event.
func (e *EventStore) Append(ctx context.Context, event *types.Event) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE session_id = ?`,
		string(event.SessionID)).Scan(&seq); err != nil {
		return fmt.Errorf("next event seq: %w", err)
	}
	event.Seq = seq

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, session_id, turn_id, seq, kind, at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(event.ID), string(event.SessionID), string(event.TurnID),
		event.Seq, string(event.Kind), event.At, []byte(event.Payload)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_event_seq = ?, updated_at = ? WHERE session_id = ?`,
		seq, event.At, string(event.SessionID)); err != nil {
		return fmt.Errorf("bump session seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Tail returns up to limit most recent events in chronological order.
func (e *EventStore) Tail(ctx context.Context, sessionID types.SessionID, limit int) ([]*types.Event, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, session_id, turn_id, seq, kind, at, payload
		 FROM (SELECT * FROM events WHERE session_id = ? ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq ASC`,
		string(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("tail events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		var ev types.Event
		var id, sid, tid, kind string
		var payload []byte
		if err := rows.Scan(&id, &sid, &tid, &ev.Seq, &kind, &ev.At, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.ID = types.EventID(id)
		ev.SessionID = types.SessionID(sid)
		ev.TurnID = types.TurnID(tid)
		ev.Kind = types.EventKind(kind)
		ev.Payload = payload
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Count returns the number of events recorded for the session.
func (e *EventStore) Count(ctx context.Context, sessionID types.SessionID) (int64, error) {
	var n int64
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE session_id = ?`, string(sessionID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
