package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// broadcastRecord captures one hub emission for assertions.
type broadcastRecord struct {
	Room    domain.RoomKey
	Event   string
	Payload interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (b *fakeBroadcaster) Broadcast(room domain.RoomKey, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastRecord{Room: room, Event: event, Payload: payload})
}

func (b *fakeBroadcaster) all() []broadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broadcastRecord, len(b.events))
	copy(out, b.events)
	return out
}

func (b *fakeBroadcaster) last() *broadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	rec := b.events[len(b.events)-1]
	return &rec
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
	// cards mirrors the production transaction: a message saved with an
	// attached card also lands the card row.
	cards   *fakeCardRepo
	saveErr error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID]*domain.Message)}
}

func (r *fakeMessageRepo) Save(ctx context.Context, message *domain.Message) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	cp := *message
	r.messages[message.ID] = &cp
	r.mu.Unlock()

	if message.Card != nil && r.cards != nil {
		r.cards.put(message.Card)
	}
	return nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok || msg.Deleted {
		return nil, fmt.Errorf("message not found")
	}
	cp := *msg
	return &cp, nil
}

func (r *fakeMessageRepo) Update(ctx context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.messages[message.ID]
	if !ok || existing.Deleted {
		return fmt.Errorf("message not found or deleted")
	}
	cp := *message
	r.messages[message.ID] = &cp
	return nil
}

func (r *fakeMessageRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok || msg.Deleted {
		return fmt.Errorf("message not found or already deleted")
	}
	msg.Deleted = true
	msg.Pinned = false
	return nil
}

func (r *fakeMessageRepo) CountPinned(ctx context.Context, room domain.RoomKey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.messages {
		if msg.RoomKey == room && msg.Pinned && !msg.Deleted {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) GetRecent(ctx context.Context, room domain.RoomKey, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, msg := range r.messages {
		if msg.RoomKey == room && !msg.Deleted {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeDirectory struct {
	mu       sync.Mutex
	members  map[uuid.UUID]map[uuid.UUID]bool // clanID -> userID
	topics   map[uuid.UUID]*domain.Topic
	displays map[uuid.UUID]*domain.UserDisplay
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		members:  make(map[uuid.UUID]map[uuid.UUID]bool),
		topics:   make(map[uuid.UUID]*domain.Topic),
		displays: make(map[uuid.UUID]*domain.UserDisplay),
	}
}

func (d *fakeDirectory) addMember(clanID, userID uuid.UUID, name, role string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members[clanID] == nil {
		d.members[clanID] = make(map[uuid.UUID]bool)
	}
	d.members[clanID][userID] = true
	d.displays[userID] = &domain.UserDisplay{ID: userID, Name: name, Role: role}
}

func (d *fakeDirectory) addTopic(topic *domain.Topic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.topics[topic.ID] = topic
}

func (d *fakeDirectory) IsClanMember(ctx context.Context, userID, clanID uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.members[clanID][userID], nil
}

func (d *fakeDirectory) ResolveTopic(ctx context.Context, clanID, topicID uuid.UUID) (*domain.Topic, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	topic, ok := d.topics[topicID]
	if !ok || topic.ClanID != clanID {
		return nil, nil
	}
	return topic, nil
}

func (d *fakeDirectory) GetUserDisplay(ctx context.Context, userID uuid.UUID) (*domain.UserDisplay, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	display, ok := d.displays[userID]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return display, nil
}

type fakeCardRepo struct {
	mu    sync.Mutex
	cards map[uuid.UUID]*domain.TradeCard
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: make(map[uuid.UUID]*domain.TradeCard)}
}

func (r *fakeCardRepo) put(card *domain.TradeCard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *card
	r.cards[card.ID] = &cp
}

func (r *fakeCardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TradeCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok {
		return nil, fmt.Errorf("trade card not found")
	}
	cp := *card
	return &cp, nil
}

func (r *fakeCardRepo) UpdateFields(ctx context.Context, card *domain.TradeCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cards[card.ID]; !ok {
		return fmt.Errorf("trade card not found")
	}
	card.Version++
	cp := *card
	r.cards[card.ID] = &cp
	return nil
}

type fakeTradeRepo struct {
	mu      sync.Mutex
	trades  map[uuid.UUID]*domain.Trade
	byCard  map[uuid.UUID]uuid.UUID
	history []*domain.TradeStatusHistory
}

func newFakeTradeRepo() *fakeTradeRepo {
	return &fakeTradeRepo{
		trades: make(map[uuid.UUID]*domain.Trade),
		byCard: make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *fakeTradeRepo) Save(ctx context.Context, trade *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byCard[trade.CardID]; dup {
		return fmt.Errorf("duplicate key value violates unique constraint")
	}
	cp := *trade
	r.trades[trade.ID] = &cp
	r.byCard[trade.CardID] = trade.ID
	return nil
}

func (r *fakeTradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trade, ok := r.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade not found")
	}
	cp := *trade
	return &cp, nil
}

func (r *fakeTradeRepo) GetByCardID(ctx context.Context, cardID uuid.UUID) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCard[cardID]
	if !ok {
		return nil, nil
	}
	cp := *r.trades[id]
	return &cp, nil
}

func (r *fakeTradeRepo) GetByAgentTicket(ctx context.Context, accountID uuid.UUID, ticket int64) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, trade := range r.trades {
		if trade.AgentAccountID != nil && *trade.AgentAccountID == accountID &&
			trade.AgentTicket != nil && *trade.AgentTicket == ticket {
			cp := *trade
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTradeRepo) Update(ctx context.Context, trade *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trades[trade.ID]; !ok {
		return fmt.Errorf("trade not found")
	}
	cp := *trade
	r.trades[trade.ID] = &cp
	return nil
}

func (r *fakeTradeRepo) GetByTracker(ctx context.Context, trackerID uuid.UUID, limit int) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Trade
	for _, trade := range r.trades {
		if trade.TrackerID == trackerID {
			cp := *trade
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTradeRepo) AppendHistory(ctx context.Context, h *domain.TradeStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	r.history = append(r.history, &cp)
	return nil
}

func (r *fakeTradeRepo) GetHistory(ctx context.Context, tradeID uuid.UUID) ([]*domain.TradeStatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TradeStatusHistory
	for _, h := range r.history {
		if h.TradeID == tradeID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeActionRepo struct {
	mu      sync.Mutex
	actions map[uuid.UUID]*domain.PendingAction
}

func newFakeActionRepo() *fakeActionRepo {
	return &fakeActionRepo{actions: make(map[uuid.UUID]*domain.PendingAction)}
}

func (r *fakeActionRepo) CreateIfIdle(ctx context.Context, action *domain.PendingAction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.actions {
		if existing.TradeID == action.TradeID && existing.Resolution == nil {
			return false, nil
		}
	}
	cp := *action
	r.actions[action.ID] = &cp
	return true, nil
}

func (r *fakeActionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	action, ok := r.actions[id]
	if !ok {
		return nil, fmt.Errorf("pending action not found")
	}
	cp := *action
	return &cp, nil
}

func (r *fakeActionRepo) Resolve(ctx context.Context, id uuid.UUID, resolution string, errMsg *string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	action, ok := r.actions[id]
	if !ok || action.Resolution != nil {
		return false, nil
	}
	action.Resolution = &resolution
	action.ErrorMessage = errMsg
	action.ResolvedAt = &at
	return true, nil
}

func (r *fakeActionRepo) GetOutstanding(ctx context.Context, accountID uuid.UUID, now time.Time) ([]*domain.PendingAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PendingAction
	for _, action := range r.actions {
		if action.AgentAccountID == accountID && action.Resolution == nil && action.ExpiresAt.After(now) {
			cp := *action
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeActionRepo) ExpireOverdue(ctx context.Context, now time.Time) ([]*domain.PendingAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PendingAction
	for _, action := range r.actions {
		if action.Resolution == nil && !action.ExpiresAt.After(now) {
			timedOut := domain.ActionTimedOut
			action.Resolution = &timedOut
			at := now
			action.ResolvedAt = &at
			cp := *action
			out = append(out, &cp)
		}
	}
	return out, nil
}
