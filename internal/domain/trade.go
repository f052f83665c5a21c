package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Direction constants
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Card type constants
const (
	CardTypeSignal   = "SIGNAL"   // requires stop-loss and target > 0
	CardTypeAnalysis = "ANALYSIS" // a thesis; levels may be zero
)

// TradeCard is an immutable trading idea attached to a message. Edits
// replace the fields but not the identity, and append a version record.
type TradeCard struct {
	ID          uuid.UUID `json:"id"`
	MessageID   uuid.UUID `json:"message_id"`
	AuthorID    uuid.UUID `json:"author_id"`
	Instrument  string    `json:"instrument"`
	Direction   string    `json:"direction"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	Target      float64   `json:"target"` // exactly one take-profit target in v1
	Timeframe   string    `json:"timeframe"`
	RiskPercent *float64  `json:"risk_percent,omitempty"`
	Note        string    `json:"note,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CardType    string    `json:"card_type"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks card invariants for its type.
func (c *TradeCard) Validate() error {
	if c.Instrument == "" {
		return NewValidationError("instrument is required")
	}
	if c.Direction != DirectionLong && c.Direction != DirectionShort {
		return NewValidationError("direction must be LONG or SHORT")
	}
	switch c.CardType {
	case CardTypeSignal:
		if c.StopLoss <= 0 || c.Target <= 0 {
			return NewValidationError("signal cards require stop loss and target above zero")
		}
	case CardTypeAnalysis:
		// levels optional
	default:
		return NewValidationError("card type must be SIGNAL or ANALYSIS")
	}
	if c.EntryPrice <= 0 {
		return NewValidationError("entry price must be above zero")
	}
	return nil
}

// StaticRR is the display risk-reward computed from the card's levels,
// independent of trade status. Returns 0 when the ratio is non-positive
// or undefined; callers render that as unavailable.
func (c *TradeCard) StaticRR() float64 {
	risk := math.Abs(c.EntryPrice - c.StopLoss)
	if risk == 0 {
		return 0
	}
	rr := math.Abs(c.Target-c.EntryPrice) / risk
	if rr <= 0 {
		return 0
	}
	return rr
}

// Trade status constants
const (
	TradeStatusPending    = "PENDING" // entry price not yet reached
	TradeStatusOpen       = "OPEN"    // live risk in play
	TradeStatusTPHit      = "TP_HIT"
	TradeStatusSLHit      = "SL_HIT"
	TradeStatusBreakEven  = "BE"
	TradeStatusClosed     = "CLOSED"
	TradeStatusUnverified = "UNVERIFIED" // agent close could not be reconciled
)

// IsTerminalTradeStatus reports whether the status is a resolution outcome.
func IsTerminalTradeStatus(status string) bool {
	switch status {
	case TradeStatusTPHit, TradeStatusSLHit, TradeStatusBreakEven,
		TradeStatusClosed, TradeStatusUnverified:
		return true
	}
	return false
}

// Integrity status constants
const (
	IntegrityVerified   = "VERIFIED"
	IntegrityManual     = "MANUAL"
	IntegrityUnverified = "UNVERIFIED"
)

// Trade is the tracked, mutable counterpart of a TradeCard. At most one
// Trade exists per card; transitions are owned by the trade service.
type Trade struct {
	ID        uuid.UUID `json:"id"`
	CardID    uuid.UUID `json:"card_id"`
	MessageID uuid.UUID `json:"message_id"`
	RoomKey   RoomKey   `json:"room_key"`
	TrackerID uuid.UUID `json:"tracker_id"`
	Direction string    `json:"direction"`
	Status    string    `json:"status"`

	// MTLinked marks the trade as driven by the external execution agent.
	// Manual status edits are rejected while it is set.
	MTLinked       bool       `json:"mt_linked"`
	AgentAccountID *uuid.UUID `json:"agent_account_id,omitempty"`
	AgentTicket    *int64     `json:"agent_ticket,omitempty"`

	// Initial risk snapshot, captured once at first tracking so later
	// R-multiple math stays stable even if the card is edited.
	SnapEntry  float64 `json:"snap_entry"`
	SnapStop   float64 `json:"snap_stop"`
	SnapTarget float64 `json:"snap_target"`
	SnapRisk   float64 `json:"snap_risk"` // |entry - stop| in price units

	// Live levels start at the snapshot and move with applied agent
	// actions (SET_BE, MOVE_SL, CHANGE_TP).
	LiveStop   float64 `json:"live_stop"`
	LiveTarget float64 `json:"live_target"`

	ClosePrice      *float64 `json:"close_price,omitempty"`
	FinalR          *float64 `json:"final_r,omitempty"`
	NetProfit       *float64 `json:"net_profit,omitempty"`
	IntegrityStatus string   `json:"integrity_status"`

	PendingActionID *uuid.UUID `json:"pending_action_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLong reports whether the trade rides a LONG card.
func (t *Trade) IsLong() bool {
	return t.Direction == DirectionLong
}

// RMultiple computes profit or loss at closePrice as a multiple of the
// initial risk distance, sign-adjusted for direction.
func (t *Trade) RMultiple(closePrice float64) float64 {
	if t.SnapRisk == 0 {
		return 0
	}
	r := (closePrice - t.SnapEntry) / t.SnapRisk
	if !t.IsLong() {
		r = -r
	}
	return r
}

// TradeStatusHistory is an append-only audit row for a status transition.
type TradeStatusHistory struct {
	ID         uuid.UUID `json:"id"`
	TradeID    uuid.UUID `json:"trade_id"`
	FromStatus *string   `json:"from_status,omitempty"` // nil on the tracking row
	ToStatus   string    `json:"to_status"`
	ChangedBy  uuid.UUID `json:"changed_by"`
	Note       string    `json:"note,omitempty"`
	At         time.Time `json:"at"`
}
