package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 16 * 1024
	sendBufferSize = 64
)

// Session is one authenticated bidirectional channel per connected
// client. A user may hold several sessions (one per device); each owns
// its joined room set independently.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	DisplayName string
	Role        string

	send chan Event

	mu     sync.Mutex
	rooms  map[domain.RoomKey]struct{}
	closed bool
}

// NewSession creates a session for an authenticated identity.
func NewSession(userID uuid.UUID, displayName, role string) *Session {
	return &Session{
		ID:          uuid.New(),
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		send:        make(chan Event, sendBufferSize),
		rooms:       make(map[domain.RoomKey]struct{}),
	}
}

// Send enqueues an event for delivery. A slow or gone session drops the
// event rather than blocking the room fan-out.
func (s *Session) Send(evt Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.send <- evt:
		return true
	default:
		log.Printf("WARNING: session %s send buffer full, dropping %s", s.ID, evt.Event)
		return false
	}
}

// SendError delivers a scoped error event to this session only. The
// connection stays open and usable.
func (s *Session) SendError(event, message string) {
	s.Send(Event{Event: EvtError, Data: ErrorPayload{Event: event, Message: message}})
}

// Outbox exposes the outbound queue for the write pump and tests.
func (s *Session) Outbox() <-chan Event {
	return s.send
}

// trackJoin records room membership on the session. Returns false if the
// session was already in the room.
func (s *Session) trackJoin(room domain.RoomKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.rooms[room]; ok {
		return false
	}
	s.rooms[room] = struct{}{}
	return true
}

// forgetRoom removes the membership record; returns false if the session
// had already left so a disconnect racing an explicit leave stays
// exactly-once per room.
func (s *Session) forgetRoom(room domain.RoomKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; !ok {
		return false
	}
	delete(s.rooms, room)
	return true
}

// drainRooms atomically takes the remaining joined rooms and marks the
// session closed. Subsequent Send calls are no-ops.
func (s *Session) drainRooms() []domain.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	out := make([]domain.RoomKey, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	s.rooms = make(map[domain.RoomKey]struct{})
	return out
}

// ReadPump decodes inbound envelopes and hands them to the gateway until
// the connection dies, then runs the disconnect sequence.
func (s *Session) ReadPump(conn *websocket.Conn, gw *Gateway) {
	defer func() {
		gw.Disconnect(s)
		conn.Close()
	}()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARNING: session %s read error: %v", s.ID, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.SendError("", "Malformed frame")
			continue
		}
		gw.Dispatch(s, env)
	}
}

// WritePump drains the outbound queue to the connection and keeps the
// ping/pong heartbeat alive.
func (s *Session) WritePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case evt, ok := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
