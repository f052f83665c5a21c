package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/infra"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/service"
)

// room is one broadcast group. Its mutex is the single fan-out point:
// holding it while enqueueing gives every member the same relative event
// order without serializing unrelated rooms.
type room struct {
	mu      sync.Mutex
	members map[uuid.UUID]*Session // keyed by session id
}

// Hub maps room keys to broadcast groups and delivers events to all
// sessions currently joined. It implements domain.Broadcaster.
type Hub struct {
	presence *service.PresenceStore

	mu    sync.RWMutex
	rooms map[domain.RoomKey]*room
}

// NewHub creates a Hub backed by the given presence store.
func NewHub(presence *service.PresenceStore) *Hub {
	return &Hub{
		presence: presence,
		rooms:    make(map[domain.RoomKey]*room),
	}
}

func (h *Hub) room(key domain.RoomKey) *room {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.rooms[key]; ok {
		return r
	}
	r = &room{members: make(map[uuid.UUID]*Session)}
	h.rooms[key] = r
	return r
}

// lookup returns the room only if it already exists. Broadcast paths use
// this so a key with no members never allocates an entry; only Join
// instantiates rooms.
func (h *Hub) lookup(key domain.RoomKey) *room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[key]
}

// Join registers the session in the room, refreshes presence, and
// broadcasts the updated occupant snapshot. Authorization happens in the
// gateway before this is called — presence is never an access check.
func (h *Hub) Join(s *Session, key domain.RoomKey) []domain.PresenceEntry {
	r := h.room(key)

	r.mu.Lock()
	if s.trackJoin(key) {
		r.members[s.ID] = s
	}
	h.presence.Join(key, s.UserID, s.DisplayName)
	occupants := h.presence.Occupants(key)
	h.deliverLocked(r, key, Event{Event: EvtPresenceUpdate, Data: presencePayload(key, occupants)})
	r.mu.Unlock()

	return occupants
}

// Leave removes the session from the room and broadcasts the updated
// occupant snapshot to the remaining members. The leave sequence runs at
// most once per (session, room) even when racing a disconnect.
func (h *Hub) Leave(s *Session, key domain.RoomKey) {
	if !s.forgetRoom(key) {
		return
	}
	h.leaveRoom(s, key)
}

func (h *Hub) leaveRoom(s *Session, key domain.RoomKey) {
	r := h.lookup(key)
	if r == nil {
		h.presence.Leave(key, s.UserID)
		return
	}

	r.mu.Lock()
	delete(r.members, s.ID)

	// Presence is per user; keep the entry while another session of the
	// same user is still in the room.
	stillPresent := false
	for _, other := range r.members {
		if other.UserID == s.UserID {
			stillPresent = true
			break
		}
	}
	if !stillPresent {
		h.presence.Leave(key, s.UserID)
	}
	occupants := h.presence.Occupants(key)
	h.deliverLocked(r, key, Event{Event: EvtPresenceUpdate, Data: presencePayload(key, occupants)})
	empty := len(r.members) == 0
	r.mu.Unlock()

	if empty {
		h.mu.Lock()
		if r2, ok := h.rooms[key]; ok {
			r2.mu.Lock()
			if len(r2.members) == 0 {
				delete(h.rooms, key)
			}
			r2.mu.Unlock()
		}
		h.mu.Unlock()
	}
}

// DisconnectAll runs the leave sequence for every room the session had
// joined. Exactly-once per room is guaranteed by drainRooms.
func (h *Hub) DisconnectAll(s *Session) {
	for _, key := range s.drainRooms() {
		h.leaveRoom(s, key)
	}
}

// Broadcast delivers an authoritative event to every member of the room.
// Callers commit to the store first; fan-out itself is synchronous.
func (h *Hub) Broadcast(key domain.RoomKey, event string, payload interface{}) {
	r := h.lookup(key)
	if r == nil {
		return
	}
	r.mu.Lock()
	h.deliverLocked(r, key, Event{Event: event, Data: payload})
	r.mu.Unlock()
}

// BroadcastExcept delivers to every member except one session, used for
// typing indicators where echoing to the sender is noise.
func (h *Hub) BroadcastExcept(key domain.RoomKey, event string, payload interface{}, exceptSessionID uuid.UUID) {
	r := h.lookup(key)
	if r == nil {
		return
	}
	r.mu.Lock()
	for id, member := range r.members {
		if id == exceptSessionID {
			continue
		}
		member.Send(Event{Event: event, Data: payload})
	}
	r.mu.Unlock()
	infra.MetricEventsBroadcast.WithLabelValues(event).Inc()
}

func (h *Hub) deliverLocked(r *room, _ domain.RoomKey, evt Event) {
	for _, member := range r.members {
		member.Send(evt)
	}
	infra.MetricEventsBroadcast.WithLabelValues(evt.Event).Inc()
}

func presencePayload(key domain.RoomKey, occupants []domain.PresenceEntry) map[string]interface{} {
	return map[string]interface{}{
		"room":      key,
		"occupants": occupants,
	}
}
