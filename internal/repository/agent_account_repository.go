package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// AgentAccountRepositoryImpl implements the AgentAccountRepository interface
type AgentAccountRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewAgentAccountRepository creates a new AgentAccountRepository
func NewAgentAccountRepository(db *pgxpool.Pool) domain.AgentAccountRepository {
	return &AgentAccountRepositoryImpl{db: db}
}

// GetByID retrieves an agent account by its ID, including the key hash
// used to authenticate the EA bridge.
func (r *AgentAccountRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.AgentAccount, error) {
	query := `
		SELECT id, user_id, broker, account_number, key_hash,
		       balance, equity, open_positions, last_heartbeat, created_at
		FROM agent_accounts
		WHERE id = $1
	`
	account := &domain.AgentAccount{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.UserID,
		&account.Broker,
		&account.AccountNumber,
		&account.KeyHash,
		&account.Balance,
		&account.Equity,
		&account.OpenPositions,
		&account.LastHeartbeat,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent account by ID: %w", err)
	}
	return account, nil
}

// UpdateSnapshot stores the latest heartbeat balance/equity snapshot.
func (r *AgentAccountRepositoryImpl) UpdateSnapshot(ctx context.Context, id uuid.UUID, balance, equity float64, openPositions int, at time.Time) error {
	query := `
		UPDATE agent_accounts
		SET balance = $1, equity = $2, open_positions = $3, last_heartbeat = $4
		WHERE id = $5
	`
	cmdTag, err := r.db.Exec(ctx, query, balance, equity, openPositions, at, id)
	if err != nil {
		return fmt.Errorf("failed to update agent account snapshot: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("agent account not found")
	}
	return nil
}
