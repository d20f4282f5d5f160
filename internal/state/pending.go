// internal/state/pending.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/labkeeper/internal/types"
)

// PendingStore implements types.PendingStore on the state database.
// One row per session; the row is deleted when the approval is consumed.
type PendingStore struct {
	db *sql.DB
}

// Put records the pending approval for the session, replacing any stale one.
func (p *PendingStore) Put(ctx context.Context, approval *types.PendingApproval) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO pending_approvals (session_id, approval_id, invocation_id, tool, hint, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   approval_id = excluded.approval_id,
		   invocation_id = excluded.invocation_id,
		   tool = excluded.tool,
		   hint = excluded.hint,
		   payload = excluded.payload,
		   created_at = excluded.created_at`,
		string(approval.SessionID), string(approval.ApprovalID), string(approval.InvocationID),
		approval.Tool, approval.Hint, []byte(approval.Payload), approval.CreatedAt)
	if err != nil {
		return fmt.Errorf("put pending approval: %w", err)
	}
	return nil
}

// Get returns the session's pending approval, or ErrNoPendingApproval.
func (p *PendingStore) Get(ctx context.Context, sessionID types.SessionID) (*types.PendingApproval, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT session_id, approval_id, invocation_id, tool, hint, payload, created_at
		 FROM pending_approvals WHERE session_id = ?`, string(sessionID))

	var pa types.PendingApproval
	var sid, aid, iid string
	var payload []byte
	err := row.Scan(&sid, &aid, &iid, &pa.Tool, &pa.Hint, &payload, &pa.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNoPendingApproval
	}
	if err != nil {
		return nil, fmt.Errorf("get pending approval: %w", err)
	}
	pa.SessionID = types.SessionID(sid)
	pa.ApprovalID = types.ApprovalID(aid)
	pa.InvocationID = types.InvocationID(iid)
	pa.Payload = payload
	return &pa, nil
}

// Consume atomically removes and returns the pending approval matching the
// given approval id. A second call with the same id, or a call with a stale
// id, fails with ErrNoPendingApproval: at most one resume per approval.
func (p *PendingStore) Consume(ctx context.Context, sessionID types.SessionID, approvalID types.ApprovalID) (*types.PendingApproval, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT session_id, approval_id, invocation_id, tool, hint, payload, created_at
		 FROM pending_approvals WHERE session_id = ? AND approval_id = ?`,
		string(sessionID), string(approvalID))

	var pa types.PendingApproval
	var sid, aid, iid string
	var payload []byte
	err = row.Scan(&sid, &aid, &iid, &pa.Tool, &pa.Hint, &payload, &pa.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNoPendingApproval
	}
	if err != nil {
		return nil, fmt.Errorf("load pending approval: %w", err)
	}
	pa.SessionID = types.SessionID(sid)
	pa.ApprovalID = types.ApprovalID(aid)
	pa.InvocationID = types.InvocationID(iid)
	pa.Payload = payload

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_approvals WHERE session_id = ? AND approval_id = ?`,
		string(sessionID), string(approvalID)); err != nil {
		return nil, fmt.Errorf("consume pending approval: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume: %w", err)
	}
	return &pa, nil
}
