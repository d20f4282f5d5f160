// internal/state/session.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/labkeeper/internal/types"
)

// SessionStore implements types.SessionStore on the state database.
type SessionStore struct {
	db *sql.DB
}

// ResolveOrCreate returns the session id for the given key, creating the
// session if it does not exist. Resuming with an existing key continues the
// same conversation rather than starting a new one.
func (s *SessionStore) ResolveOrCreate(ctx context.Context, key types.SessionKey, app, userID string) (types.SessionID, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM sessions WHERE session_key = ?`, string(key)).Scan(&id)
	if err == nil {
		return types.SessionID(id), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolve session: %w", err)
	}

	sid := types.NewSessionID()
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, session_key, app, user_id, status, created_at, updated_at, last_event_seq)
		 VALUES (?, ?, ?, ?, 'active', ?, ?, 0)`,
		string(sid), string(key), app, userID, now, now)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sid, nil
}

// Get returns the session index for the given id.
func (s *SessionStore) Get(ctx context.Context, id types.SessionID) (*types.SessionIndex, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, session_key, app, user_id, status, created_at, updated_at,
		        COALESCE(last_turn_id, ''), last_event_seq
		 FROM sessions WHERE session_id = ?`, string(id))
	return scanSession(row)
}

// List returns all sessions ordered by most recently updated first.
func (s *SessionStore) List(ctx context.Context) ([]*types.SessionIndex, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, session_key, app, user_id, status, created_at, updated_at,
		        COALESCE(last_turn_id, ''), last_event_seq
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.SessionIndex
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Update persists mutable session fields and bumps updated_at.
func (s *SessionStore) Update(ctx context.Context, sess *types.SessionIndex) error {
	sess.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ?, last_turn_id = ?, last_event_seq = ?
		 WHERE session_id = ?`,
		sess.Status, sess.UpdatedAt, string(sess.LastTurnID), sess.LastEventSeq, string(sess.SessionID))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes a session and, via foreign keys, its events and any
// pending approval.
func (s *SessionStore) Delete(ctx context.Context, id types.SessionID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.SessionIndex, error) {
	var sess types.SessionIndex
	var id, key, lastTurn string
	if err := row.Scan(&id, &key, &sess.App, &sess.UserID, &sess.Status,
		&sess.CreatedAt, &sess.UpdatedAt, &lastTurn, &sess.LastEventSeq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found")
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.SessionID = types.SessionID(id)
	sess.SessionKey = types.SessionKey(key)
	sess.LastTurnID = types.TurnID(lastTurn)
	return &sess, nil
}
