package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// MessageRepositoryImpl implements the MessageRepository interface
type MessageRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *pgxpool.Pool) domain.MessageRepository {
	return &MessageRepositoryImpl{db: db}
}

// Save persists a new message; if a trade card is attached, both rows go
// in the same transaction.
func (r *MessageRepositoryImpl) Save(ctx context.Context, message *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// System messages carry no author; the column is nullable for them.
	var authorID *uuid.UUID
	if message.AuthorID != uuid.Nil {
		authorID = &message.AuthorID
	}

	query := `
		INSERT INTO messages (
			id, room_key, author_id, content, type, reply_to_id,
			reactions, pinned, edited, deleted, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`
	_, err = tx.Exec(ctx, query,
		message.ID,
		string(message.RoomKey),
		authorID,
		message.Content,
		message.Type,
		message.ReplyToID,
		message.Reactions,
		message.Pinned,
		message.Edited,
		message.Deleted,
		message.CreatedAt,
		message.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if message.Card != nil {
		card := message.Card
		cardQuery := `
			INSERT INTO trade_cards (
				id, message_id, author_id, instrument, direction,
				entry_price, stop_loss, target, timeframe, risk_percent,
				note, tags, card_type, version, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
			)
		`
		_, err = tx.Exec(ctx, cardQuery,
			card.ID,
			card.MessageID,
			card.AuthorID,
			card.Instrument,
			card.Direction,
			card.EntryPrice,
			card.StopLoss,
			card.Target,
			card.Timeframe,
			card.RiskPercent,
			card.Note,
			card.Tags,
			card.CardType,
			card.Version,
			card.CreatedAt,
			card.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save trade card: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

const messageColumns = `
	m.id, m.room_key, m.author_id, m.content, m.type, m.reply_to_id,
	m.reactions, m.pinned, m.edited, m.created_at, m.updated_at
`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	var roomKey string
	var authorID *uuid.UUID
	err := row.Scan(
		&msg.ID,
		&roomKey,
		&authorID,
		&msg.Content,
		&msg.Type,
		&msg.ReplyToID,
		&msg.Reactions,
		&msg.Pinned,
		&msg.Edited,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.RoomKey = domain.RoomKey(roomKey)
	if authorID != nil {
		msg.AuthorID = *authorID
	}
	if msg.Reactions == nil {
		msg.Reactions = domain.Reactions{}
	}
	return msg, nil
}

// GetByID retrieves a message by ID. Soft-deleted messages are excluded.
func (r *MessageRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.id = $1 AND m.deleted = FALSE
	`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get message by ID: %w", err)
	}

	card, err := r.getCardByMessageID(ctx, msg.ID)
	if err == nil {
		msg.Card = card
	}
	return msg, nil
}

// Update persists content, reactions, pinned and edited flags.
func (r *MessageRepositoryImpl) Update(ctx context.Context, message *domain.Message) error {
	query := `
		UPDATE messages
		SET content = $1, reactions = $2, pinned = $3, edited = $4, updated_at = $5
		WHERE id = $6 AND deleted = FALSE
	`
	cmdTag, err := r.db.Exec(ctx, query,
		message.Content,
		message.Reactions,
		message.Pinned,
		message.Edited,
		message.UpdatedAt,
		message.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("message not found or deleted")
	}
	return nil
}

// SoftDelete removes the message from live reads but keeps the row for
// audit. The pin is cleared so deleted messages never count toward the cap.
func (r *MessageRepositoryImpl) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE messages
		SET deleted = TRUE, pinned = FALSE, updated_at = NOW()
		WHERE id = $1 AND deleted = FALSE
	`
	cmdTag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("message not found or already deleted")
	}
	return nil
}

// CountPinned returns the number of pinned messages in a room.
func (r *MessageRepositoryImpl) CountPinned(ctx context.Context, room domain.RoomKey) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE room_key = $1 AND pinned = TRUE AND deleted = FALSE
	`
	if err := r.db.QueryRow(ctx, query, string(room)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pinned messages: %w", err)
	}
	return count, nil
}

// GetRecent retrieves the most recent live messages for a room.
func (r *MessageRepositoryImpl) GetRecent(ctx context.Context, room domain.RoomKey, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.room_key = $1 AND m.deleted = FALSE
		ORDER BY m.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, string(room), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func (r *MessageRepositoryImpl) getCardByMessageID(ctx context.Context, messageID uuid.UUID) (*domain.TradeCard, error) {
	query := `
		SELECT id, message_id, author_id, instrument, direction,
		       entry_price, stop_loss, target, timeframe, risk_percent,
		       note, tags, card_type, version, created_at, updated_at
		FROM trade_cards
		WHERE message_id = $1
	`
	card := &domain.TradeCard{}
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&card.ID,
		&card.MessageID,
		&card.AuthorID,
		&card.Instrument,
		&card.Direction,
		&card.EntryPrice,
		&card.StopLoss,
		&card.Target,
		&card.Timeframe,
		&card.RiskPercent,
		&card.Note,
		&card.Tags,
		&card.CardType,
		&card.Version,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return card, nil
}
