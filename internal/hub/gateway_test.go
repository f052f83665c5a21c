package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/service"
)

// fakeDirectory answers membership from a fixed allow-set and treats
// every topic as active.
type fakeDirectory struct {
	members map[uuid.UUID]bool
}

func (d *fakeDirectory) IsClanMember(_ context.Context, userID, _ uuid.UUID) (bool, error) {
	return d.members[userID], nil
}

func (d *fakeDirectory) ResolveTopic(_ context.Context, clanID, topicID uuid.UUID) (*domain.Topic, error) {
	return &domain.Topic{ID: topicID, ClanID: clanID, Name: "general", IsActive: true}, nil
}

func (d *fakeDirectory) GetUserDisplay(_ context.Context, userID uuid.UUID) (*domain.UserDisplay, error) {
	return &domain.UserDisplay{ID: userID, Name: "someone", Role: domain.RoleMember}, nil
}

func newTestGateway(members ...uuid.UUID) (*Gateway, *Hub) {
	dir := &fakeDirectory{members: make(map[uuid.UUID]bool)}
	for _, id := range members {
		dir.members[id] = true
	}
	h := newTestHub()
	g := NewGateway(h, dir, service.NewRateLimiter(100, 10*time.Second), nil, nil, nil)
	return g, h
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}

func TestTypingRequiresClanMembership(t *testing.T) {
	alice := NewSession(uuid.New(), "alice", domain.RoleMember)
	outsider := NewSession(uuid.New(), "mallory", domain.RoleMember)
	g, h := newTestGateway(alice.UserID)

	clanID, topicID := uuid.New(), uuid.New()
	room := domain.NewClanRoomKey(clanID, topicID)
	h.Join(alice, room)
	drain(alice)

	g.Dispatch(outsider, Envelope{
		Event: EvtTyping,
		Data:  mustJSON(t, clanRoomRequest{ClanID: clanID, TopicID: topicID}),
	})

	events := drain(outsider)
	if len(events) != 1 || events[0].Event != EvtError {
		t.Fatalf("non-member typing must be rejected, got %v", events)
	}
	if events := drain(alice); len(events) != 0 {
		t.Fatalf("members must not see a rejected typing event, got %v", events)
	}
}

func TestRejectedTypingAllocatesNoRoom(t *testing.T) {
	outsider := NewSession(uuid.New(), "mallory", domain.RoleMember)
	g, h := newTestGateway()

	for i := 0; i < 50; i++ {
		g.Dispatch(outsider, Envelope{
			Event: EvtTyping,
			Data:  mustJSON(t, clanRoomRequest{ClanID: uuid.New(), TopicID: uuid.New()}),
		})
	}

	h.mu.RLock()
	count := len(h.rooms)
	h.mu.RUnlock()
	if count != 0 {
		t.Fatalf("rejected typing must not create room entries, have %d", count)
	}
}

func TestTypingBroadcastsToOtherMembers(t *testing.T) {
	alice := NewSession(uuid.New(), "alice", domain.RoleMember)
	bob := NewSession(uuid.New(), "bob", domain.RoleMember)
	g, h := newTestGateway(alice.UserID, bob.UserID)

	clanID, topicID := uuid.New(), uuid.New()
	room := domain.NewClanRoomKey(clanID, topicID)
	h.Join(alice, room)
	h.Join(bob, room)
	drain(alice)
	drain(bob)

	g.Dispatch(alice, Envelope{
		Event: EvtTyping,
		Data:  mustJSON(t, clanRoomRequest{ClanID: clanID, TopicID: topicID}),
	})

	if events := drain(alice); len(events) != 0 {
		t.Fatalf("typing must not echo to the sender, got %v", events)
	}
	events := drain(bob)
	if len(events) != 1 || events[0].Event != EvtUserTyping {
		t.Fatalf("bob should see user_typing, got %v", events)
	}
}

func TestDMTypingRejectsInvalidPeer(t *testing.T) {
	alice := NewSession(uuid.New(), "alice", domain.RoleMember)
	g, _ := newTestGateway(alice.UserID)

	for _, peer := range []uuid.UUID{uuid.Nil, alice.UserID} {
		g.Dispatch(alice, Envelope{
			Event: EvtDMTyping,
			Data:  mustJSON(t, dmRequest{PeerID: peer}),
		})
		events := drain(alice)
		if len(events) != 1 || events[0].Event != EvtError {
			t.Fatalf("peer %s: invalid DM peer must be rejected, got %v", peer, events)
		}
	}
}
