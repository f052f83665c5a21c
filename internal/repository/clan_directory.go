package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// ClanDirectoryImpl implements the ClanDirectory collaborator against the
// relational store. The clan/user tables themselves are owned by the
// CRUD side of the platform; this reads them only.
type ClanDirectoryImpl struct {
	db *pgxpool.Pool
}

// NewClanDirectory creates a new ClanDirectory
func NewClanDirectory(db *pgxpool.Pool) domain.ClanDirectory {
	return &ClanDirectoryImpl{db: db}
}

// IsClanMember reports whether the user belongs to the clan.
func (r *ClanDirectoryImpl) IsClanMember(ctx context.Context, userID, clanID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM clan_members
			WHERE user_id = $1 AND clan_id = $2
		)
	`
	if err := r.db.QueryRow(ctx, query, userID, clanID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check clan membership: %w", err)
	}
	return exists, nil
}

// ResolveTopic returns the topic if it exists, nil otherwise.
func (r *ClanDirectoryImpl) ResolveTopic(ctx context.Context, clanID, topicID uuid.UUID) (*domain.Topic, error) {
	query := `
		SELECT id, clan_id, name, is_active
		FROM clan_topics
		WHERE id = $1 AND clan_id = $2
	`
	topic := &domain.Topic{}
	err := r.db.QueryRow(ctx, query, topicID, clanID).Scan(
		&topic.ID,
		&topic.ClanID,
		&topic.Name,
		&topic.IsActive,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve topic: %w", err)
	}
	return topic, nil
}

// GetUserDisplay returns denormalized author info for broadcasts.
func (r *ClanDirectoryImpl) GetUserDisplay(ctx context.Context, userID uuid.UUID) (*domain.UserDisplay, error) {
	query := `
		SELECT u.id, u.display_name, COALESCE(u.avatar_url, ''), COALESCE(cm.role, 'MEMBER')
		FROM users u
		LEFT JOIN clan_members cm ON cm.user_id = u.id
		WHERE u.id = $1
		LIMIT 1
	`
	display := &domain.UserDisplay{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&display.ID,
		&display.Name,
		&display.Avatar,
		&display.Role,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user display: %w", err)
	}
	return display, nil
}
