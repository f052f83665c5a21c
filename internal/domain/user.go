package domain

import (
	"github.com/google/uuid"
)

// UserDisplay is the denormalized author info attached to broadcasts.
type UserDisplay struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar,omitempty"`
	Role   string    `json:"role"`
}

// Clan role constants
const (
	RoleLeader   = "LEADER"
	RoleCoLeader = "CO_LEADER"
	RoleMember   = "MEMBER"
)

// IsModerator reports whether the role carries moderation rights
// (message deletion, pin/unpin).
func IsModerator(role string) bool {
	return role == RoleLeader || role == RoleCoLeader
}
