package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// TradeRepositoryImpl implements the TradeRepository interface
type TradeRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewTradeRepository creates a new TradeRepository
func NewTradeRepository(db *pgxpool.Pool) domain.TradeRepository {
	return &TradeRepositoryImpl{db: db}
}

// Save creates a new trade. The unique index on card_id enforces
// at-most-one trade per card; a losing racer gets a constraint error.
func (r *TradeRepositoryImpl) Save(ctx context.Context, trade *domain.Trade) error {
	query := `
		INSERT INTO trades (
			id, card_id, message_id, room_key, tracker_id, direction, status,
			mt_linked, agent_account_id, agent_ticket,
			snap_entry, snap_stop, snap_target, snap_risk,
			live_stop, live_target, integrity_status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`
	_, err := r.db.Exec(ctx, query,
		trade.ID,
		trade.CardID,
		trade.MessageID,
		string(trade.RoomKey),
		trade.TrackerID,
		trade.Direction,
		trade.Status,
		trade.MTLinked,
		trade.AgentAccountID,
		trade.AgentTicket,
		trade.SnapEntry,
		trade.SnapStop,
		trade.SnapTarget,
		trade.SnapRisk,
		trade.LiveStop,
		trade.LiveTarget,
		trade.IntegrityStatus,
		trade.CreatedAt,
		trade.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

const tradeColumns = `
	id, card_id, message_id, room_key, tracker_id, direction, status,
	mt_linked, agent_account_id, agent_ticket,
	snap_entry, snap_stop, snap_target, snap_risk,
	live_stop, live_target,
	close_price, final_r, net_profit, integrity_status,
	pending_action_id, created_at, updated_at
`

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	trade := &domain.Trade{}
	var roomKey string
	err := row.Scan(
		&trade.ID,
		&trade.CardID,
		&trade.MessageID,
		&roomKey,
		&trade.TrackerID,
		&trade.Direction,
		&trade.Status,
		&trade.MTLinked,
		&trade.AgentAccountID,
		&trade.AgentTicket,
		&trade.SnapEntry,
		&trade.SnapStop,
		&trade.SnapTarget,
		&trade.SnapRisk,
		&trade.LiveStop,
		&trade.LiveTarget,
		&trade.ClosePrice,
		&trade.FinalR,
		&trade.NetProfit,
		&trade.IntegrityStatus,
		&trade.PendingActionID,
		&trade.CreatedAt,
		&trade.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	trade.RoomKey = domain.RoomKey(roomKey)
	return trade, nil
}

// GetByID retrieves a trade by its ID.
func (r *TradeRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`
	trade, err := scanTrade(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get trade by ID: %w", err)
	}
	return trade, nil
}

// GetByCardID retrieves the trade tracking a card, nil if untracked.
func (r *TradeRepositoryImpl) GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE card_id = $1`
	trade, err := scanTrade(r.db.QueryRow(ctx, query, cardID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trade by card ID: %w", err)
	}
	return trade, nil
}

// GetByAgentTicket retrieves an agent-linked trade by terminal ticket.
func (r *TradeRepositoryImpl) GetByAgentTicket(ctx context.Context, accountID uuid.UUID, ticket int64) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE agent_account_id = $1 AND agent_ticket = $2`
	trade, err := scanTrade(r.db.QueryRow(ctx, query, accountID, ticket))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trade by agent ticket: %w", err)
	}
	return trade, nil
}

// Update persists status, levels, result fields and the pending pointer.
func (r *TradeRepositoryImpl) Update(ctx context.Context, trade *domain.Trade) error {
	query := `
		UPDATE trades
		SET status = $1, live_stop = $2, live_target = $3,
		    close_price = $4, final_r = $5, net_profit = $6,
		    integrity_status = $7, pending_action_id = $8, updated_at = $9
		WHERE id = $10
	`
	cmdTag, err := r.db.Exec(ctx, query,
		trade.Status,
		trade.LiveStop,
		trade.LiveTarget,
		trade.ClosePrice,
		trade.FinalR,
		trade.NetProfit,
		trade.IntegrityStatus,
		trade.PendingActionID,
		trade.UpdatedAt,
		trade.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("trade not found")
	}
	return nil
}

// GetByTracker retrieves a user's trades, most recent first.
func (r *TradeRepositoryImpl) GetByTracker(ctx context.Context, trackerID uuid.UUID, limit int) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE tracker_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, trackerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades by tracker: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// AppendHistory appends a status-history row. History is never mutated.
func (r *TradeRepositoryImpl) AppendHistory(ctx context.Context, h *domain.TradeStatusHistory) error {
	query := `
		INSERT INTO trade_status_history (
			id, trade_id, from_status, to_status, changed_by, note, at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		h.ID,
		h.TradeID,
		h.FromStatus,
		h.ToStatus,
		h.ChangedBy,
		h.Note,
		h.At,
	)
	if err != nil {
		return fmt.Errorf("failed to append trade history: %w", err)
	}
	return nil
}

// GetHistory retrieves a trade's status history, oldest first.
func (r *TradeRepositoryImpl) GetHistory(ctx context.Context, tradeID uuid.UUID) ([]*domain.TradeStatusHistory, error) {
	query := `
		SELECT id, trade_id, from_status, to_status, changed_by, note, at
		FROM trade_status_history
		WHERE trade_id = $1
		ORDER BY at ASC
	`
	rows, err := r.db.Query(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history: %w", err)
	}
	defer rows.Close()

	var history []*domain.TradeStatusHistory
	for rows.Next() {
		h := &domain.TradeStatusHistory{}
		err := rows.Scan(&h.ID, &h.TradeID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &h.Note, &h.At)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade history: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade history: %w", err)
	}
	return history, nil
}
