package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// TradeCardRepositoryImpl implements the TradeCardRepository interface
type TradeCardRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewTradeCardRepository creates a new TradeCardRepository
func NewTradeCardRepository(db *pgxpool.Pool) domain.TradeCardRepository {
	return &TradeCardRepositoryImpl{db: db}
}

// GetByID retrieves a card by its ID.
func (r *TradeCardRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.TradeCard, error) {
	query := `
		SELECT id, message_id, author_id, instrument, direction,
		       entry_price, stop_loss, target, timeframe, risk_percent,
		       note, tags, card_type, version, created_at, updated_at
		FROM trade_cards
		WHERE id = $1
	`
	card := &domain.TradeCard{}
	err := r.db.QueryRow(ctx, query, id).Scan(
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
		return nil, fmt.Errorf("failed to get trade card by ID: %w", err)
	}
	return card, nil
}

// UpdateFields replaces the card's fields, bumps the version, and appends
// a version record in the same transaction. The card keeps its identity.
func (r *TradeCardRepositoryImpl) UpdateFields(ctx context.Context, card *domain.TradeCard) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := `
		UPDATE trade_cards
		SET instrument = $1, direction = $2, entry_price = $3, stop_loss = $4,
		    target = $5, timeframe = $6, risk_percent = $7, note = $8,
		    tags = $9, card_type = $10, version = version + 1, updated_at = $11
		WHERE id = $12
		RETURNING version
	`
	err = tx.QueryRow(ctx, updateQuery,
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
		card.UpdatedAt,
		card.ID,
	).Scan(&card.Version)
	if err != nil {
		return fmt.Errorf("failed to update trade card: %w", err)
	}

	versionQuery := `
		INSERT INTO trade_card_versions (
			id, card_id, version, instrument, direction, entry_price,
			stop_loss, target, timeframe, card_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(ctx, versionQuery,
		uuid.New(),
		card.ID,
		card.Version,
		card.Instrument,
		card.Direction,
		card.EntryPrice,
		card.StopLoss,
		card.Target,
		card.Timeframe,
		card.CardType,
		card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append card version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit card update: %w", err)
	}
	return nil
}
