package dbconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ClipFinance/bridge-relay/common/types"
)

// Enqueue stores a failed relay action for manual reconciliation.
// An empty action ID is replaced by a new UUID.
//
// Parameters:
// - ctx: the context for managing the request.
// - action: the failed action.
//
// Returns:
// - error: an error if the database operation fails.
func (r *DBConfig) Enqueue(ctx context.Context, action *types.FailedAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.Status == "" {
		action.Status = types.StatusPending
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(action.Payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}

	_, err = r.db.ExecContext(ctx, `
       INSERT INTO failed_actions (
           id,
           origin_nonce,
           destination_nonce,
           action_id,
           kind,
           recipient,
           payload,
           reason,
           error,
           status,
           created_at
       ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		action.ID,
		uint32(action.Origin),
		uint32(action.Destination),
		action.ActionID,
		string(action.Kind),
		action.Recipient,
		string(payload),
		string(action.Reason),
		action.Error,
		string(action.Status),
		action.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert failed action")
	}

	return nil
}

// ListPending returns the oldest pending failed actions.
//
// Parameters:
// - ctx: the context for managing the request.
// - limit: the maximum number of actions to return.
//
// Returns:
// - []*types.FailedAction: the pending actions, oldest first.
// - error: an error if the database operation fails.
func (r *DBConfig) ListPending(ctx context.Context, limit int) ([]*types.FailedAction, error) {
	rows, err := r.db.QueryContext(ctx, `
       SELECT
           id,
           origin_nonce,
           destination_nonce,
           action_id,
           kind,
           recipient,
           payload,
           reason,
           error,
           status,
           created_at
       FROM failed_actions
       WHERE status = $1
       ORDER BY created_at ASC
       LIMIT $2`,
		string(types.StatusPending),
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query failed actions")
	}
	defer rows.Close()

	var actions []*types.FailedAction
	for rows.Next() {
		var (
			action      types.FailedAction
			origin      uint32
			destination uint32
			kind        string
			payload     []byte
			reason      string
			status      string
			errorText   sql.NullString
		)

		err := rows.Scan(
			&action.ID,
			&origin,
			&destination,
			&action.ActionID,
			&kind,
			&action.Recipient,
			&payload,
			&reason,
			&errorText,
			&status,
			&action.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan failed action")
		}

		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &action.Payload); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal payload of %s", action.ID)
			}
		}

		action.Origin = types.ChainNonce(origin)
		action.Destination = types.ChainNonce(destination)
		action.Kind = types.EventKind(kind)
		action.Reason = types.FailureReason(reason)
		action.Status = types.FailedActionStatus(status)
		action.Error = errorText.String

		actions = append(actions, &action)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate failed actions")
	}

	return actions, nil
}

// MarkResolved marks a failed action as reconciled.
//
// Parameters:
// - ctx: the context for managing the request.
// - id: the failed action id.
//
// Returns:
// - error: ErrFailedActionNotFound if no pending action has the id.
func (r *DBConfig) MarkResolved(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
       UPDATE failed_actions
       SET status = $1, resolved_at = NOW()
       WHERE id = $2 AND status = $3`,
		string(types.StatusResolved),
		id,
		string(types.StatusPending),
	)
	if err != nil {
		return errors.Wrap(err, "failed to resolve failed action")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get affected rows")
	}
	if affected == 0 {
		return errors.Wrapf(ErrFailedActionNotFound, "id %s", id)
	}

	return nil
}
