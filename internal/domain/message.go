package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType constants
const (
	MessageTypeText          = "TEXT"
	MessageTypeTradeCard     = "TRADE_CARD"
	MessageTypeTradeAction   = "TRADE_ACTION"
	MessageTypeSystemSummary = "SYSTEM_SUMMARY"
)

const (
	// MaxContentLength bounds chat message content.
	MaxContentLength = 2000

	// MaxPinnedPerRoom is a hard cap; exceeding it rejects the pin rather
	// than evicting the oldest.
	MaxPinnedPerRoom = 5
)

// Reactions maps emoji to the set of user ids that reacted with it.
type Reactions map[string][]uuid.UUID

// Toggle flips userID's membership in the emoji's reaction set:
// present becomes absent, absent becomes present.
func (r Reactions) Toggle(emoji string, userID uuid.UUID) {
	users := r[emoji]
	for i, id := range users {
		if id == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(r, emoji)
			} else {
				r[emoji] = users
			}
			return
		}
	}
	r[emoji] = append(users, userID)
}

// Has reports whether userID is in the emoji's reaction set.
func (r Reactions) Has(emoji string, userID uuid.UUID) bool {
	for _, id := range r[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message in a clan topic or DM room.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	RoomKey   RoomKey    `json:"room_key"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	ReplyToID *uuid.UUID `json:"reply_to_id,omitempty"`
	Reactions Reactions  `json:"reactions,omitempty"`
	Card      *TradeCard `json:"card,omitempty"`
	Pinned    bool       `json:"pinned"`
	Edited    bool       `json:"edited"`
	Deleted   bool       `json:"-"` // soft-deleted, retained for audit
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
