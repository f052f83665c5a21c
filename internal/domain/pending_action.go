package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionType is a closed enum of trade modifications an agent can apply.
// Adding a variant requires a handler in the trade service apply switch.
type ActionType string

const (
	ActionSetBE        ActionType = "SET_BE"
	ActionMoveSL       ActionType = "MOVE_SL"
	ActionChangeTP     ActionType = "CHANGE_TP"
	ActionClose        ActionType = "CLOSE"
	ActionAddNote      ActionType = "ADD_NOTE"
	ActionStatusChange ActionType = "STATUS_CHANGE"
)

// Valid reports whether the action type is a known variant.
func (a ActionType) Valid() bool {
	switch a {
	case ActionSetBE, ActionMoveSL, ActionChangeTP, ActionClose,
		ActionAddNote, ActionStatusChange:
		return true
	}
	return false
}

// RequiresAgent reports whether the action must round-trip through the
// execution agent. ADD_NOTE is chat-only even on agent-linked trades.
func (a ActionType) RequiresAgent() bool {
	return a != ActionAddNote
}

// Resolution status constants. A nil resolution means in flight.
const (
	ActionSucceeded = "SUCCEEDED"
	ActionFailed    = "FAILED"
	ActionTimedOut  = "TIMED_OUT"
)

// PendingAction is an in-flight trade-modification request dispatched to
// the external execution agent. At most one is active per trade.
type PendingAction struct {
	ID             uuid.UUID  `json:"id"`
	TradeID        uuid.UUID  `json:"trade_id"`
	AgentAccountID uuid.UUID  `json:"agent_account_id"`
	RequestedBy    uuid.UUID  `json:"requested_by"`
	ActionType     ActionType `json:"action_type"`
	NewValue       *float64   `json:"new_value,omitempty"`
	NewStatus      *string    `json:"new_status,omitempty"`
	Note           string     `json:"note,omitempty"`
	Resolution     *string    `json:"resolution"` // nil while in flight
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// InFlight reports whether the action is still awaiting a result.
func (p *PendingAction) InFlight() bool {
	return p.Resolution == nil
}

// Expired reports whether the expiry deadline has passed without a result.
func (p *PendingAction) Expired(now time.Time) bool {
	return p.InFlight() && now.After(p.ExpiresAt)
}

// AgentAccount is a linked trading-terminal bridge account. The EA
// authenticates its HTTP calls with the account's API key.
type AgentAccount struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Broker        string     `json:"broker"`
	AccountNumber string     `json:"account_number"`
	KeyHash       string     `json:"-"` // bcrypt hash of the API key
	Balance       *float64   `json:"balance,omitempty"`
	Equity        *float64   `json:"equity,omitempty"`
	OpenPositions int        `json:"open_positions"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
