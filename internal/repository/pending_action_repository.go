package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// PendingActionRepositoryImpl implements the PendingActionRepository interface
type PendingActionRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewPendingActionRepository creates a new PendingActionRepository
func NewPendingActionRepository(db *pgxpool.Pool) domain.PendingActionRepository {
	return &PendingActionRepositoryImpl{db: db}
}

// CreateIfIdle inserts the action only if the trade has no action in
// flight. The INSERT ... WHERE NOT EXISTS is the check-and-set that
// backs the single-flight invariant; two concurrent dispatches cannot
// both pass it.
func (r *PendingActionRepositoryImpl) CreateIfIdle(ctx context.Context, action *domain.PendingAction) (bool, error) {
	query := `
		INSERT INTO pending_actions (
			id, trade_id, agent_account_id, requested_by, action_type,
			new_value, new_status, note, created_at, expires_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE NOT EXISTS (
			SELECT 1 FROM pending_actions
			WHERE trade_id = $2 AND resolution IS NULL
		)
	`
	cmdTag, err := r.db.Exec(ctx, query,
		action.ID,
		action.TradeID,
		action.AgentAccountID,
		action.RequestedBy,
		string(action.ActionType),
		action.NewValue,
		action.NewStatus,
		action.Note,
		action.CreatedAt,
		action.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create pending action: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

const actionColumns = `
	id, trade_id, agent_account_id, requested_by, action_type,
	new_value, new_status, note, resolution, error_message,
	created_at, expires_at, resolved_at
`

func scanAction(row pgx.Row) (*domain.PendingAction, error) {
	action := &domain.PendingAction{}
	var actionType string
	err := row.Scan(
		&action.ID,
		&action.TradeID,
		&action.AgentAccountID,
		&action.RequestedBy,
		&actionType,
		&action.NewValue,
		&action.NewStatus,
		&action.Note,
		&action.Resolution,
		&action.ErrorMessage,
		&action.CreatedAt,
		&action.ExpiresAt,
		&action.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	action.ActionType = domain.ActionType(actionType)
	return action, nil
}

// GetByID retrieves an action by its ID.
func (r *PendingActionRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingAction, error) {
	query := `SELECT ` + actionColumns + ` FROM pending_actions WHERE id = $1`
	action, err := scanAction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get pending action by ID: %w", err)
	}
	return action, nil
}

// Resolve sets the resolution only while the action is still in flight,
// so an agent report racing the expiry sweep settles exactly once.
func (r *PendingActionRepositoryImpl) Resolve(ctx context.Context, id uuid.UUID, resolution string, errMsg *string, at time.Time) (bool, error) {
	query := `
		UPDATE pending_actions
		SET resolution = $1, error_message = $2, resolved_at = $3
		WHERE id = $4 AND resolution IS NULL
	`
	cmdTag, err := r.db.Exec(ctx, query, resolution, errMsg, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve pending action: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// GetOutstanding retrieves in-flight, unexpired actions for an account,
// oldest first — the agent applies them in dispatch order.
func (r *PendingActionRepositoryImpl) GetOutstanding(ctx context.Context, accountID uuid.UUID, now time.Time) ([]*domain.PendingAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM pending_actions
		WHERE agent_account_id = $1 AND resolution IS NULL AND expires_at > $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding actions: %w", err)
	}
	defer rows.Close()

	var actions []*domain.PendingAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending actions: %w", err)
	}
	return actions, nil
}

// ExpireOverdue marks every in-flight action past its deadline as
// TIMED_OUT and returns the expired rows.
func (r *PendingActionRepositoryImpl) ExpireOverdue(ctx context.Context, now time.Time) ([]*domain.PendingAction, error) {
	query := `
		UPDATE pending_actions
		SET resolution = 'TIMED_OUT', resolved_at = $1
		WHERE resolution IS NULL AND expires_at <= $1
		RETURNING ` + actionColumns + `
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire overdue actions: %w", err)
	}
	defer rows.Close()

	var actions []*domain.PendingAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired actions: %w", err)
	}
	return actions, nil
}
