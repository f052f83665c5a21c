package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoomKey identifies a broadcast group. Rooms have no standalone lifecycle;
// they exist while at least one session is joined.
type RoomKey string

// NewClanRoomKey builds the key for a clan topic room.
func NewClanRoomKey(clanID, topicID uuid.UUID) RoomKey {
	return RoomKey(fmt.Sprintf("clan:%s:%s", clanID, topicID))
}

// NewDMRoomKey builds the key for a direct-message room. The key is
// order-independent: both participants resolve to the same room.
func NewDMRoomKey(a, b uuid.UUID) RoomKey {
	if a.String() > b.String() {
		a, b = b, a
	}
	return RoomKey(fmt.Sprintf("dm:%s:%s", a, b))
}

// IsDM reports whether the key addresses a direct-message room.
func (k RoomKey) IsDM() bool {
	return strings.HasPrefix(string(k), "dm:")
}

// ClanID extracts the clan id from a clan room key. Returns uuid.Nil for
// DM rooms or malformed keys.
func (k RoomKey) ClanID() uuid.UUID {
	parts := strings.Split(string(k), ":")
	if len(parts) != 3 || parts[0] != "clan" {
		return uuid.Nil
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil
	}
	return id
}

// DMPeers extracts both participant ids from a DM room key.
func (k RoomKey) DMPeers() (uuid.UUID, uuid.UUID, bool) {
	parts := strings.Split(string(k), ":")
	if len(parts) != 3 || parts[0] != "dm" {
		return uuid.Nil, uuid.Nil, false
	}
	a, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	b, err := uuid.Parse(parts[2])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return a, b, true
}

// Topic is a named sub-channel within a clan's chat.
type Topic struct {
	ID       uuid.UUID `json:"id"`
	ClanID   uuid.UUID `json:"clan_id"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
}

// PresenceEntry is the ephemeral record of a user joined to a room.
// Presence is a view, never authoritative membership.
type PresenceEntry struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ClanDirectory is the external membership collaborator. Room-access
// authorization is always re-checked here, never cached from presence.
type ClanDirectory interface {
	// IsClanMember reports whether the user belongs to the clan.
	IsClanMember(ctx context.Context, userID, clanID uuid.UUID) (bool, error)

	// ResolveTopic returns the topic if it exists, nil otherwise.
	ResolveTopic(ctx context.Context, clanID, topicID uuid.UUID) (*Topic, error)

	// GetUserDisplay returns denormalized author info for broadcasts.
	GetUserDisplay(ctx context.Context, userID uuid.UUID) (*UserDisplay, error)
}

// Broadcaster pushes authoritative events to all session members of a room.
// Implemented by the hub; services call it only after a successful commit.
type Broadcaster interface {
	Broadcast(room RoomKey, event string, payload interface{})
}
