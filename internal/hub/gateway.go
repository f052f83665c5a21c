package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/infra"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/service"
)

// dispatchTimeout bounds the store round-trips behind one client event.
const dispatchTimeout = 10 * time.Second

// Gateway decodes client events and routes them through the rate limiter
// and the lifecycle services. Every rejection goes back to the
// originating session only; the connection stays open.
type Gateway struct {
	hub       *Hub
	directory domain.ClanDirectory
	limiter   *service.RateLimiter
	messages  *service.MessageService
	trades    *service.TradeService
	dispatch  *service.DispatchService
}

// NewGateway wires the protocol surface.
func NewGateway(
	h *Hub,
	directory domain.ClanDirectory,
	limiter *service.RateLimiter,
	messages *service.MessageService,
	trades *service.TradeService,
	dispatch *service.DispatchService,
) *Gateway {
	return &Gateway{
		hub:       h,
		directory: directory,
		limiter:   limiter,
		messages:  messages,
		trades:    trades,
		dispatch:  dispatch,
	}
}

// Register marks the session live for metrics.
func (g *Gateway) Register(s *Session) {
	infra.MetricSessionsLive.Inc()
	log.Printf("[OK] session %s connected (user=%s)", s.ID, s.UserID)
}

// Disconnect runs the full leave sequence for a dying session. Writes
// already in flight complete and still broadcast to remaining members;
// only the future delivery path to this session is cancelled.
func (g *Gateway) Disconnect(s *Session) {
	g.hub.DisconnectAll(s)
	infra.MetricSessionsLive.Dec()
	log.Printf("[OK] session %s disconnected (user=%s)", s.ID, s.UserID)
}

// Dispatch routes one inbound envelope.
func (g *Gateway) Dispatch(s *Session, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case EvtJoinClan:
		err = g.handleJoinClan(ctx, s, env.Data)
	case EvtLeaveClan:
		err = g.handleLeaveClan(s, env.Data)
	case EvtSwitchTopic:
		err = g.handleSwitchTopic(ctx, s, env.Data)
	case EvtSendMessage:
		err = g.handleSendMessage(ctx, s, env.Data)
	case EvtEditMessage:
		err = g.handleEditMessage(ctx, s, env.Data)
	case EvtDeleteMessage:
		err = g.handleDeleteMessage(ctx, s, env.Data)
	case EvtReactMessage:
		err = g.handleReactMessage(ctx, s, env.Data)
	case EvtPinMessage:
		err = g.handlePin(ctx, s, env.Data, true)
	case EvtUnpinMessage:
		err = g.handlePin(ctx, s, env.Data, false)
	case EvtTyping:
		err = g.handleTyping(ctx, s, env.Data, EvtUserTyping)
	case EvtStopTyping:
		err = g.handleTyping(ctx, s, env.Data, EvtUserStopTyping)
	case EvtSendTradeCard:
		err = g.handleSendTradeCard(ctx, s, env.Data)
	case EvtEditTradeCard:
		err = g.handleEditTradeCard(ctx, s, env.Data)
	case EvtTrackTrade:
		err = g.handleTrackTrade(ctx, s, env.Data)
	case EvtUpdateTradeStatus:
		err = g.handleUpdateTradeStatus(ctx, s, env.Data)
	case EvtExecuteAction:
		err = g.handleExecuteAction(ctx, s, env.Data)
	case EvtJoinDM:
		err = g.handleJoinDM(s, env.Data)
	case EvtSendDM:
		err = g.handleSendDM(ctx, s, env.Data)
	case EvtEditDM:
		err = g.handleEditMessage(ctx, s, env.Data)
	case EvtDeleteDM:
		err = g.handleDeleteMessage(ctx, s, env.Data)
	case EvtDMTyping:
		err = g.handleDMTyping(s, env.Data)
	case EvtDMRead:
		err = g.handleDMRead(ctx, s, env.Data)
	default:
		err = domain.NewValidationError("Unknown event")
	}

	if err != nil {
		s.SendError(env.Event, userMessage(err))
	}
}

// userMessage sanitizes an error for the wire: typed rejections pass
// through, anything else reports generically without internal detail.
func userMessage(err error) string {
	if domain.KindOf(err) == domain.KindInternal {
		return domain.NewInternalError().Message
	}
	return err.Error()
}

type clanRoomRequest struct {
	ClanID  uuid.UUID `json:"clan_id"`
	TopicID uuid.UUID `json:"topic_id"`
}

func (g *Gateway) handleJoinClan(ctx context.Context, s *Session, data json.RawMessage) error {
	var req clanRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed join payload")
	}

	member, err := g.directory.IsClanMember(ctx, s.UserID, req.ClanID)
	if err != nil {
		log.Printf("[ERR] Gateway: membership lookup failed: %v", err)
		return domain.NewInternalError()
	}
	if !member {
		return domain.NewAccessDeniedError("You are not a member of this clan")
	}
	topic, err := g.directory.ResolveTopic(ctx, req.ClanID, req.TopicID)
	if err != nil {
		log.Printf("[ERR] Gateway: topic lookup failed: %v", err)
		return domain.NewInternalError()
	}
	if topic == nil || !topic.IsActive {
		return domain.NewNotFoundError("Topic not found or inactive")
	}

	g.hub.Join(s, domain.NewClanRoomKey(req.ClanID, req.TopicID))
	return nil
}

func (g *Gateway) handleLeaveClan(s *Session, data json.RawMessage) error {
	var req clanRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed leave payload")
	}
	g.hub.Leave(s, domain.NewClanRoomKey(req.ClanID, req.TopicID))
	return nil
}

type switchTopicRequest struct {
	ClanID      uuid.UUID `json:"clan_id"`
	FromTopicID uuid.UUID `json:"from_topic_id"`
	ToTopicID   uuid.UUID `json:"to_topic_id"`
}

func (g *Gateway) handleSwitchTopic(ctx context.Context, s *Session, data json.RawMessage) error {
	var req switchTopicRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed switch payload")
	}
	// Join the new topic first; only leave the old one if the join
	// passed authorization.
	joinData, _ := json.Marshal(clanRoomRequest{ClanID: req.ClanID, TopicID: req.ToTopicID})
	if err := g.handleJoinClan(ctx, s, joinData); err != nil {
		return err
	}
	g.hub.Leave(s, domain.NewClanRoomKey(req.ClanID, req.FromTopicID))
	return nil
}

type sendMessageRequest struct {
	ClanID      uuid.UUID  `json:"clan_id"`
	TopicID     uuid.UUID  `json:"topic_id"`
	Content     string     `json:"content"`
	ReplyToID   *uuid.UUID `json:"reply_to_id,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
}

func (g *Gateway) handleSendMessage(ctx context.Context, s *Session, data json.RawMessage) error {
	var req sendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed message payload")
	}
	if !g.limiter.Allow(s.UserID) {
		infra.MetricRateLimited.WithLabelValues(EvtSendMessage).Inc()
		return domain.NewRateLimitedError(EvtSendMessage)
	}
	room := domain.NewClanRoomKey(req.ClanID, req.TopicID)
	_, err := g.messages.Send(ctx, room, s.UserID, req.Content, req.ReplyToID, len(req.Attachments) > 0)
	return err
}

type editMessageRequest struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

func (g *Gateway) handleEditMessage(ctx context.Context, s *Session, data json.RawMessage) error {
	var req editMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed edit payload")
	}
	_, err := g.messages.Edit(ctx, req.MessageID, s.UserID, req.Content)
	return err
}

type messageIDRequest struct {
	MessageID uuid.UUID `json:"message_id"`
}

func (g *Gateway) handleDeleteMessage(ctx context.Context, s *Session, data json.RawMessage) error {
	var req messageIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed delete payload")
	}
	return g.messages.Delete(ctx, req.MessageID, s.UserID)
}

type reactRequest struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

func (g *Gateway) handleReactMessage(ctx context.Context, s *Session, data json.RawMessage) error {
	var req reactRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed react payload")
	}
	_, err := g.messages.React(ctx, req.MessageID, s.UserID, req.Emoji)
	return err
}

func (g *Gateway) handlePin(ctx context.Context, s *Session, data json.RawMessage, pin bool) error {
	var req messageIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed pin payload")
	}
	if pin {
		return g.messages.Pin(ctx, req.MessageID, s.UserID)
	}
	return g.messages.Unpin(ctx, req.MessageID, s.UserID)
}

func (g *Gateway) handleTyping(ctx context.Context, s *Session, data json.RawMessage, event string) error {
	var req clanRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed typing payload")
	}
	member, err := g.directory.IsClanMember(ctx, s.UserID, req.ClanID)
	if err != nil {
		log.Printf("[ERR] Gateway: membership lookup failed: %v", err)
		return domain.NewInternalError()
	}
	if !member {
		return domain.NewAccessDeniedError("You are not a member of this clan")
	}
	room := domain.NewClanRoomKey(req.ClanID, req.TopicID)
	g.hub.BroadcastExcept(room, event, map[string]interface{}{
		"room":    room,
		"user_id": s.UserID,
		"name":    s.DisplayName,
	}, s.ID)
	return nil
}

type sendTradeCardRequest struct {
	ClanID  uuid.UUID         `json:"clan_id"`
	TopicID uuid.UUID         `json:"topic_id"`
	Comment string            `json:"comment"`
	Card    service.CardInput `json:"card"`
}

func (g *Gateway) handleSendTradeCard(ctx context.Context, s *Session, data json.RawMessage) error {
	var req sendTradeCardRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed trade card payload")
	}
	room := domain.NewClanRoomKey(req.ClanID, req.TopicID)
	_, err := g.trades.SendCard(ctx, room, s.UserID, req.Card, req.Comment)
	return err
}

type editTradeCardRequest struct {
	CardID uuid.UUID         `json:"card_id"`
	Card   service.CardInput `json:"card"`
}

func (g *Gateway) handleEditTradeCard(ctx context.Context, s *Session, data json.RawMessage) error {
	var req editTradeCardRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed card edit payload")
	}
	_, err := g.trades.EditCard(ctx, req.CardID, s.UserID, req.Card)
	return err
}

type trackTradeRequest struct {
	CardID uuid.UUID          `json:"card_id"`
	Track  service.TrackInput `json:"track"`
}

func (g *Gateway) handleTrackTrade(ctx context.Context, s *Session, data json.RawMessage) error {
	var req trackTradeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed track payload")
	}
	_, err := g.trades.Track(ctx, req.CardID, s.UserID, req.Track)
	return err
}

type updateTradeStatusRequest struct {
	TradeID    uuid.UUID `json:"trade_id"`
	Status     string    `json:"status"`
	Note       string    `json:"note,omitempty"`
	ClosePrice *float64  `json:"close_price,omitempty"`
}

func (g *Gateway) handleUpdateTradeStatus(ctx context.Context, s *Session, data json.RawMessage) error {
	var req updateTradeStatusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed status payload")
	}
	_, err := g.trades.UpdateStatus(ctx, req.TradeID, s.UserID, req.Status, req.Note, req.ClosePrice)
	return err
}

type executeActionRequest struct {
	TradeID    uuid.UUID         `json:"trade_id"`
	ActionType domain.ActionType `json:"action_type"`
	NewValue   *float64          `json:"new_value,omitempty"`
	NewStatus  *string           `json:"new_status,omitempty"`
	Note       string            `json:"note,omitempty"`
}

func (g *Gateway) handleExecuteAction(ctx context.Context, s *Session, data json.RawMessage) error {
	var req executeActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed action payload")
	}
	_, err := g.dispatch.Dispatch(ctx, req.TradeID, s.UserID, req.ActionType, req.NewValue, req.NewStatus, req.Note)
	return err
}

type dmRequest struct {
	PeerID      uuid.UUID  `json:"peer_id"`
	Content     string     `json:"content,omitempty"`
	ReplyToID   *uuid.UUID `json:"reply_to_id,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
}

func (g *Gateway) handleJoinDM(s *Session, data json.RawMessage) error {
	var req dmRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed DM payload")
	}
	if req.PeerID == uuid.Nil || req.PeerID == s.UserID {
		return domain.NewValidationError("Invalid DM peer")
	}
	g.hub.Join(s, domain.NewDMRoomKey(s.UserID, req.PeerID))
	return nil
}

func (g *Gateway) handleSendDM(ctx context.Context, s *Session, data json.RawMessage) error {
	var req dmRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed DM payload")
	}
	if !g.limiter.Allow(s.UserID) {
		infra.MetricRateLimited.WithLabelValues(EvtSendDM).Inc()
		return domain.NewRateLimitedError(EvtSendDM)
	}
	room := domain.NewDMRoomKey(s.UserID, req.PeerID)
	_, err := g.messages.Send(ctx, room, s.UserID, req.Content, req.ReplyToID, len(req.Attachments) > 0)
	return err
}

func (g *Gateway) handleDMTyping(s *Session, data json.RawMessage) error {
	var req dmRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed DM payload")
	}
	if req.PeerID == uuid.Nil || req.PeerID == s.UserID {
		return domain.NewValidationError("Invalid DM peer")
	}
	room := domain.NewDMRoomKey(s.UserID, req.PeerID)
	g.hub.BroadcastExcept(room, EvtDMUserTyping, map[string]interface{}{
		"room":    room,
		"user_id": s.UserID,
		"name":    s.DisplayName,
	}, s.ID)
	return nil
}

func (g *Gateway) handleDMRead(ctx context.Context, s *Session, data json.RawMessage) error {
	var req dmRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.NewValidationError("Malformed DM payload")
	}
	return g.messages.MarkRead(ctx, domain.NewDMRoomKey(s.UserID, req.PeerID), s.UserID)
}
