package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

const (
	evtTradeStatusUpdated = "trade_status_updated"
)

// summaryPoster posts system-generated messages into a room. Satisfied
// by MessageService.
type summaryPoster interface {
	SendSystemSummary(ctx context.Context, room domain.RoomKey, content string) error
}

// TradeService owns the trade-card to tracked-trade state machine. All
// status transitions flow through here; nothing else mutates a trade.
type TradeService struct {
	messages  domain.MessageRepository
	cards     domain.TradeCardRepository
	trades    domain.TradeRepository
	directory domain.ClanDirectory
	bcast     domain.Broadcaster
	summaries summaryPoster
}

// NewTradeService creates a new TradeService.
func NewTradeService(
	messages domain.MessageRepository,
	cards domain.TradeCardRepository,
	trades domain.TradeRepository,
	directory domain.ClanDirectory,
	bcast domain.Broadcaster,
	summaries summaryPoster,
) *TradeService {
	return &TradeService{
		messages:  messages,
		cards:     cards,
		trades:    trades,
		directory: directory,
		bcast:     bcast,
		summaries: summaries,
	}
}

// CardInput carries the client-supplied fields of a trade card.
type CardInput struct {
	Instrument  string   `json:"instrument"`
	Direction   string   `json:"direction"`
	EntryPrice  float64  `json:"entry_price"`
	StopLoss    float64  `json:"stop_loss"`
	Target      float64  `json:"target"`
	Timeframe   string   `json:"timeframe"`
	RiskPercent *float64 `json:"risk_percent,omitempty"`
	Note        string   `json:"note,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CardType    string   `json:"card_type"`
}

// SendCard creates a trade-card message atomically with its card and
// broadcasts it to the room.
func (s *TradeService) SendCard(ctx context.Context, room domain.RoomKey, authorID uuid.UUID, input CardInput, comment string) (*domain.Message, error) {
	if room.IsDM() {
		return nil, domain.NewValidationError("Trade cards can only be posted in clan rooms")
	}
	member, err := s.directory.IsClanMember(ctx, authorID, room.ClanID())
	if err != nil {
		log.Printf("[ERR] TradeService: membership lookup failed: %v", err)
		return nil, domain.NewInternalError()
	}
	if !member {
		return nil, domain.NewAccessDeniedError("You are not a member of this clan")
	}

	now := time.Now()
	messageID := uuid.New()
	card := &domain.TradeCard{
		ID:          uuid.New(),
		MessageID:   messageID,
		AuthorID:    authorID,
		Instrument:  input.Instrument,
		Direction:   input.Direction,
		EntryPrice:  input.EntryPrice,
		StopLoss:    input.StopLoss,
		Target:      input.Target,
		Timeframe:   input.Timeframe,
		RiskPercent: input.RiskPercent,
		Note:        input.Note,
		Tags:        input.Tags,
		CardType:    input.CardType,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateContent(comment, true); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:        messageID,
		RoomKey:   room,
		AuthorID:  authorID,
		Content:   comment,
		Type:      domain.MessageTypeTradeCard,
		Reactions: domain.Reactions{},
		Card:      card,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		log.Printf("[ERR] TradeService: failed to save trade card: %v", err)
		return nil, domain.NewInternalError()
	}

	author, err := s.directory.GetUserDisplay(ctx, authorID)
	if err != nil {
		author = &domain.UserDisplay{ID: authorID}
	}
	s.bcast.Broadcast(room, evtReceiveMessage, MessagePayload{
		Message: msg,
		Author:  author,
		RR:      card.StaticRR(),
	})
	return msg, nil
}

// EditCard replaces the card's fields but not its identity. The card
// keeps its id and message; a version record is appended by the store.
func (s *TradeService) EditCard(ctx context.Context, cardID, editorID uuid.UUID, input CardInput) (*domain.TradeCard, error) {
	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		return nil, domain.NewNotFoundError("Trade card not found")
	}
	if card.AuthorID != editorID {
		return nil, domain.NewAccessDeniedError("Only the author can edit this trade card")
	}

	msg, err := s.messages.GetByID(ctx, card.MessageID)
	if err != nil {
		return nil, domain.NewNotFoundError("Trade card message not found")
	}
	member, err := s.directory.IsClanMember(ctx, editorID, msg.RoomKey.ClanID())
	if err != nil {
		log.Printf("[ERR] TradeService: membership lookup failed: %v", err)
		return nil, domain.NewInternalError()
	}
	if !member {
		return nil, domain.NewAccessDeniedError("You are not a member of this clan")
	}

	card.Instrument = input.Instrument
	card.Direction = input.Direction
	card.EntryPrice = input.EntryPrice
	card.StopLoss = input.StopLoss
	card.Target = input.Target
	card.Timeframe = input.Timeframe
	card.RiskPercent = input.RiskPercent
	card.Note = input.Note
	card.Tags = input.Tags
	card.CardType = input.CardType
	card.UpdatedAt = time.Now()
	if err := card.Validate(); err != nil {
		return nil, err
	}

	if err := s.cards.UpdateFields(ctx, card); err != nil {
		log.Printf("[ERR] TradeService: failed to update card %s: %v", cardID, err)
		return nil, domain.NewInternalError()
	}

	msg.Card = card
	msg.Edited = true
	s.bcast.Broadcast(msg.RoomKey, evtMessageEdited, msg)
	return card, nil
}

// TrackInput carries the tracking options.
type TrackInput struct {
	// AtMarket starts the trade OPEN; otherwise it waits in PENDING for
	// the entry price.
	AtMarket bool `json:"at_market"`

	// AgentAccountID links the trade to an execution agent account. A
	// linked trade is driven exclusively by the dispatcher.
	AgentAccountID *uuid.UUID `json:"agent_account_id,omitempty"`
	AgentTicket    *int64     `json:"agent_ticket,omitempty"`
}

// Track creates the tracked Trade for a card, snapshotting the card's
// levels as the immutable risk baseline. Tracking an already-tracked
// card returns the existing trade instead of failing.
func (s *TradeService) Track(ctx context.Context, cardID, trackerID uuid.UUID, input TrackInput) (*domain.Trade, error) {
	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		return nil, domain.NewNotFoundError("Trade card not found")
	}
	if card.CardType != domain.CardTypeSignal {
		return nil, domain.NewValidationError("Only signal cards can be tracked")
	}

	msg, err := s.messages.GetByID(ctx, card.MessageID)
	if err != nil {
		return nil, domain.NewNotFoundError("Trade card message not found")
	}
	member, err := s.directory.IsClanMember(ctx, trackerID, msg.RoomKey.ClanID())
	if err != nil {
		log.Printf("[ERR] TradeService: membership lookup failed: %v", err)
		return nil, domain.NewInternalError()
	}
	if !member {
		return nil, domain.NewAccessDeniedError("You are not a member of this clan")
	}

	if existing, err := s.trades.GetByCardID(ctx, cardID); err == nil && existing != nil {
		return existing, nil
	}

	status := domain.TradeStatusPending
	if input.AtMarket {
		status = domain.TradeStatusOpen
	}

	now := time.Now()
	trade := &domain.Trade{
		ID:              uuid.New(),
		CardID:          card.ID,
		MessageID:       card.MessageID,
		RoomKey:         msg.RoomKey,
		TrackerID:       trackerID,
		Direction:       card.Direction,
		Status:          status,
		MTLinked:        input.AgentAccountID != nil,
		AgentAccountID:  input.AgentAccountID,
		AgentTicket:     input.AgentTicket,
		SnapEntry:       card.EntryPrice,
		SnapStop:        card.StopLoss,
		SnapTarget:      card.Target,
		SnapRisk:        math.Abs(card.EntryPrice - card.StopLoss),
		LiveStop:        card.StopLoss,
		LiveTarget:      card.Target,
		IntegrityStatus: domain.IntegrityManual,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.trades.Save(ctx, trade); err != nil {
		// A concurrent tracker may have won the unique card constraint.
		if existing, gerr := s.trades.GetByCardID(ctx, cardID); gerr == nil && existing != nil {
			return existing, nil
		}
		log.Printf("[ERR] TradeService: failed to save trade: %v", err)
		return nil, domain.NewInternalError()
	}

	if err := s.trades.AppendHistory(ctx, &domain.TradeStatusHistory{
		ID:         uuid.New(),
		TradeID:    trade.ID,
		FromStatus: nil,
		ToStatus:   status,
		ChangedBy:  trackerID,
		At:         now,
	}); err != nil {
		log.Printf("WARNING: TradeService: failed to append tracking history: %v", err)
	}

	s.broadcastStatus(trade, card)
	return trade, nil
}

// UpdateStatus applies a manual status transition. Only the tracker may
// call it, and only while the trade is not agent-linked: linked trades
// are driven exclusively by the dispatcher and agent reports.
func (s *TradeService) UpdateStatus(ctx context.Context, tradeID, requesterID uuid.UUID, newStatus, note string, closePrice *float64) (*domain.Trade, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, domain.NewNotFoundError("Trade not found")
	}
	if trade.TrackerID != requesterID {
		return nil, domain.NewAccessDeniedError("Only the tracker can update this trade")
	}
	if trade.MTLinked {
		return nil, domain.NewAccessDeniedError("Manual status updates are disabled for agent-linked trades")
	}
	if !validTradeStatus(newStatus) {
		return nil, domain.NewValidationError(fmt.Sprintf("Unknown trade status %q", newStatus))
	}
	if domain.IsTerminalTradeStatus(trade.Status) {
		return nil, domain.NewConflictError("Trade is already resolved")
	}

	return s.transition(ctx, trade, requesterID, newStatus, note, closePrice, domain.IntegrityManual)
}

// transition appends history, computes terminal metrics, persists, and
// broadcasts. Shared by the manual path and the agent apply path.
func (s *TradeService) transition(ctx context.Context, trade *domain.Trade, changedBy uuid.UUID, newStatus, note string, closePrice *float64, integrity string) (*domain.Trade, error) {
	fromStatus := trade.Status
	now := time.Now()

	trade.Status = newStatus
	trade.UpdatedAt = now
	trade.IntegrityStatus = integrity

	if domain.IsTerminalTradeStatus(newStatus) {
		if r, ok := s.finalR(trade, newStatus, closePrice); ok {
			trade.FinalR = &r
		}
		if closePrice != nil {
			trade.ClosePrice = closePrice
		}
	}

	if err := s.trades.Update(ctx, trade); err != nil {
		log.Printf("[ERR] TradeService: failed to update trade %s: %v", trade.ID, err)
		return nil, domain.NewInternalError()
	}
	if err := s.trades.AppendHistory(ctx, &domain.TradeStatusHistory{
		ID:         uuid.New(),
		TradeID:    trade.ID,
		FromStatus: &fromStatus,
		ToStatus:   newStatus,
		ChangedBy:  changedBy,
		Note:       note,
		At:         now,
	}); err != nil {
		log.Printf("WARNING: TradeService: failed to append history: %v", err)
	}

	card, err := s.cards.GetByID(ctx, trade.CardID)
	if err != nil {
		card = nil
	}

	if domain.IsTerminalTradeStatus(newStatus) && card != nil {
		summary := fmt.Sprintf("%s %s resolved %s", card.Instrument, trade.Direction, newStatus)
		if trade.FinalR != nil {
			summary = fmt.Sprintf("%s at %+.2fR", summary, *trade.FinalR)
		}
		if err := s.summaries.SendSystemSummary(ctx, trade.RoomKey, summary); err != nil {
			log.Printf("WARNING: TradeService: failed to post close summary: %v", err)
		}
	}

	s.broadcastStatus(trade, card)
	return trade, nil
}

// finalR computes the terminal R-multiple. SL_HIT is exactly -1 by
// convention regardless of slippage; this is a documented approximation,
// preserved for compatibility with existing trader statements. A close
// with no usable price reports no R at all.
func (s *TradeService) finalR(trade *domain.Trade, status string, closePrice *float64) (float64, bool) {
	switch status {
	case domain.TradeStatusSLHit:
		return -1, true
	case domain.TradeStatusBreakEven:
		return 0, true
	case domain.TradeStatusTPHit:
		price := trade.SnapTarget
		if closePrice != nil {
			price = *closePrice
		}
		return trade.RMultiple(price), true
	case domain.TradeStatusClosed, domain.TradeStatusUnverified:
		if closePrice != nil {
			return trade.RMultiple(*closePrice), true
		}
	}
	return 0, false
}

// ApplyAgentResult re-enters the state machine after the agent confirmed
// an action. One handler per action variant keeps the enum closed.
func (s *TradeService) ApplyAgentResult(ctx context.Context, trade *domain.Trade, action *domain.PendingAction) error {
	switch action.ActionType {
	case domain.ActionSetBE:
		trade.LiveStop = trade.SnapEntry
		return s.persistLevels(ctx, trade, action)

	case domain.ActionMoveSL:
		if action.NewValue == nil {
			return domain.NewValidationError("MOVE_SL requires a new value")
		}
		trade.LiveStop = *action.NewValue
		return s.persistLevels(ctx, trade, action)

	case domain.ActionChangeTP:
		if action.NewValue == nil {
			return domain.NewValidationError("CHANGE_TP requires a new value")
		}
		trade.LiveTarget = *action.NewValue
		return s.persistLevels(ctx, trade, action)

	case domain.ActionClose:
		price := trade.SnapEntry
		if action.NewValue != nil {
			price = *action.NewValue
		}
		_, err := s.transition(ctx, trade, action.RequestedBy, s.closeStatus(trade, price), action.Note, &price, domain.IntegrityVerified)
		return err

	case domain.ActionStatusChange:
		if action.NewStatus == nil || !validTradeStatus(*action.NewStatus) {
			return domain.NewValidationError("STATUS_CHANGE requires a valid status")
		}
		_, err := s.transition(ctx, trade, action.RequestedBy, *action.NewStatus, action.Note, action.NewValue, domain.IntegrityVerified)
		return err

	case domain.ActionAddNote:
		// Chat-only annotation; resolved by the dispatcher without the
		// agent and without touching trade state.
		return nil
	}
	return domain.NewValidationError(fmt.Sprintf("Unknown action type %q", action.ActionType))
}

// CloseFromAgent finalizes an agent-linked trade from a terminal-reported
// close event. A close that cannot be matched to the trade's levels with
// confidence lands in UNVERIFIED.
func (s *TradeService) CloseFromAgent(ctx context.Context, trade *domain.Trade, closePrice float64, profit *float64) error {
	if domain.IsTerminalTradeStatus(trade.Status) {
		return domain.NewConflictError("Trade is already resolved")
	}
	status := s.closeStatus(trade, closePrice)
	integrity := domain.IntegrityVerified
	reported := &closePrice
	if closePrice <= 0 {
		// The terminal reported a close it cannot price. Record nothing
		// instead of a guessed outcome.
		status = domain.TradeStatusUnverified
		integrity = domain.IntegrityUnverified
		reported = nil
	}
	trade.NetProfit = profit
	_, err := s.transition(ctx, trade, trade.TrackerID, status, "closed by agent", reported, integrity)
	return err
}

// closeStatus classifies an agent close price against the live levels.
func (s *TradeService) closeStatus(trade *domain.Trade, closePrice float64) string {
	if trade.IsLong() {
		switch {
		case trade.LiveTarget > 0 && closePrice >= trade.LiveTarget:
			return domain.TradeStatusTPHit
		case trade.LiveStop > 0 && closePrice <= trade.LiveStop && trade.LiveStop < trade.SnapEntry:
			return domain.TradeStatusSLHit
		case closePrice == trade.SnapEntry:
			return domain.TradeStatusBreakEven
		}
		return domain.TradeStatusClosed
	}
	switch {
	case trade.LiveTarget > 0 && closePrice <= trade.LiveTarget:
		return domain.TradeStatusTPHit
	case trade.LiveStop > 0 && closePrice >= trade.LiveStop && trade.LiveStop > trade.SnapEntry:
		return domain.TradeStatusSLHit
	case closePrice == trade.SnapEntry:
		return domain.TradeStatusBreakEven
	}
	return domain.TradeStatusClosed
}

func (s *TradeService) persistLevels(ctx context.Context, trade *domain.Trade, action *domain.PendingAction) error {
	trade.UpdatedAt = time.Now()
	if err := s.trades.Update(ctx, trade); err != nil {
		log.Printf("[ERR] TradeService: failed to persist levels on %s: %v", trade.ID, err)
		return domain.NewInternalError()
	}
	if err := s.trades.AppendHistory(ctx, &domain.TradeStatusHistory{
		ID:         uuid.New(),
		TradeID:    trade.ID,
		FromStatus: &trade.Status,
		ToStatus:   trade.Status,
		ChangedBy:  action.RequestedBy,
		Note:       fmt.Sprintf("%s applied by agent", action.ActionType),
		At:         time.Now(),
	}); err != nil {
		log.Printf("WARNING: TradeService: failed to append level history: %v", err)
	}
	s.broadcastStatus(trade, nil)
	return nil
}

// GetTrade returns a trade for reads, including its integrity status.
func (s *TradeService) GetTrade(ctx context.Context, tradeID uuid.UUID) (*domain.Trade, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, domain.NewNotFoundError("Trade not found")
	}
	return trade, nil
}

// GetTradesByTracker returns a user's tracked trades, most recent first.
func (s *TradeService) GetTradesByTracker(ctx context.Context, trackerID uuid.UUID, limit int) ([]*domain.Trade, error) {
	trades, err := s.trades.GetByTracker(ctx, trackerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	return trades, nil
}

// GetTradeHistory returns a trade's status transitions, oldest first.
func (s *TradeService) GetTradeHistory(ctx context.Context, tradeID uuid.UUID) ([]*domain.TradeStatusHistory, error) {
	history, err := s.trades.GetHistory(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade history: %w", err)
	}
	return history, nil
}

func (s *TradeService) broadcastStatus(trade *domain.Trade, card *domain.TradeCard) {
	payload := map[string]interface{}{
		"trade":            trade,
		"status":           trade.Status,
		"integrity_status": trade.IntegrityStatus,
	}
	if trade.FinalR != nil {
		payload["final_r"] = *trade.FinalR
	}
	if card != nil {
		if rr := card.StaticRR(); rr > 0 {
			payload["static_rr"] = rr
		}
	}
	s.bcast.Broadcast(trade.RoomKey, evtTradeStatusUpdated, payload)
}

func validTradeStatus(status string) bool {
	switch status {
	case domain.TradeStatusPending, domain.TradeStatusOpen,
		domain.TradeStatusTPHit, domain.TradeStatusSLHit,
		domain.TradeStatusBreakEven, domain.TradeStatusClosed,
		domain.TradeStatusUnverified:
		return true
	}
	return false
}
