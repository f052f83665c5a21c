package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageRepository defines the data-access layer for chat messages.
type MessageRepository interface {
	// Save persists a new message (and its trade card, if attached).
	Save(ctx context.Context, message *Message) error

	// GetByID retrieves a message by ID. Soft-deleted messages are not
	// returned.
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)

	// Update persists content, reactions, pinned and edited flags.
	Update(ctx context.Context, message *Message) error

	// SoftDelete removes the message from live reads but retains the row.
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// CountPinned returns the number of pinned messages in a room.
	CountPinned(ctx context.Context, room RoomKey) (int, error)

	// GetRecent retrieves the most recent messages for a room.
	GetRecent(ctx context.Context, room RoomKey, limit int) ([]*Message, error)
}

// TradeCardRepository defines card persistence. Cards are created with
// their message; edits replace fields and append a version record.
type TradeCardRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*TradeCard, error)

	// UpdateFields replaces the card's fields, bumps the version, and
	// appends a version record in the same transaction.
	UpdateFields(ctx context.Context, card *TradeCard) error
}

// TradeRepository defines the data-access layer for tracked trades.
type TradeRepository interface {
	// Save creates a new trade. Fails with a unique violation if the card
	// is already tracked.
	Save(ctx context.Context, trade *Trade) error

	// GetByID retrieves a trade by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Trade, error)

	// GetByCardID retrieves the trade tracking a card, nil if untracked.
	GetByCardID(ctx context.Context, cardID uuid.UUID) (*Trade, error)

	// GetByAgentTicket retrieves an agent-linked trade by terminal ticket.
	GetByAgentTicket(ctx context.Context, accountID uuid.UUID, ticket int64) (*Trade, error)

	// Update persists status, result fields and the pending-action pointer.
	Update(ctx context.Context, trade *Trade) error

	// GetByTracker retrieves a user's trades, most recent first.
	GetByTracker(ctx context.Context, trackerID uuid.UUID, limit int) ([]*Trade, error)

	// AppendHistory appends a status-history row. History is never mutated.
	AppendHistory(ctx context.Context, h *TradeStatusHistory) error

	// GetHistory retrieves a trade's status history, oldest first.
	GetHistory(ctx context.Context, tradeID uuid.UUID) ([]*TradeStatusHistory, error)
}

// PendingActionRepository defines persistence for dispatched actions.
type PendingActionRepository interface {
	// CreateIfIdle inserts the action only if the trade has no action
	// currently in flight. Returns false without inserting otherwise.
	// This is the check-and-set backing the single-flight invariant.
	CreateIfIdle(ctx context.Context, action *PendingAction) (bool, error)

	// GetByID retrieves an action by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*PendingAction, error)

	// Resolve sets the resolution and error message if the action is still
	// in flight. Returns false if it was already resolved.
	Resolve(ctx context.Context, id uuid.UUID, resolution string, errMsg *string, at time.Time) (bool, error)

	// GetOutstanding retrieves in-flight, unexpired actions for an account.
	GetOutstanding(ctx context.Context, accountID uuid.UUID, now time.Time) ([]*PendingAction, error)

	// ExpireOverdue marks every in-flight action past its deadline as
	// TIMED_OUT and returns the expired rows.
	ExpireOverdue(ctx context.Context, now time.Time) ([]*PendingAction, error)
}

// AgentAccountRepository defines persistence for linked EA accounts.
type AgentAccountRepository interface {
	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*AgentAccount, error)

	// UpdateSnapshot stores the latest heartbeat balance/equity snapshot.
	UpdateSnapshot(ctx context.Context, id uuid.UUID, balance, equity float64, openPositions int, at time.Time) error
}
