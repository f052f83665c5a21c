package service

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// DefaultPresenceTTL bounds how long a presence entry survives without a
// refresh. Entries missed by an explicit leave expire on their own.
const DefaultPresenceTTL = 90 * time.Second

const presenceShards = 16

type presenceEntry struct {
	displayName string
	joinedAt    time.Time
	expiresAt   time.Time
}

type presenceShard struct {
	mu    sync.Mutex
	rooms map[domain.RoomKey]map[uuid.UUID]presenceEntry
}

// PresenceStore tracks who is actively connected to each room. It is a
// best-effort view and is never consulted for access control.
type PresenceStore struct {
	ttl    time.Duration
	shards [presenceShards]*presenceShard
}

// NewPresenceStore creates a PresenceStore with the given entry TTL.
func NewPresenceStore(ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	s := &PresenceStore{ttl: ttl}
	for i := range s.shards {
		s.shards[i] = &presenceShard{rooms: make(map[domain.RoomKey]map[uuid.UUID]presenceEntry)}
	}
	return s
}

func (s *PresenceStore) shard(room domain.RoomKey) *presenceShard {
	h := fnv.New32a()
	h.Write([]byte(room))
	return s.shards[h.Sum32()%presenceShards]
}

// Join registers (or refreshes) a presence entry for the user in the room.
func (s *PresenceStore) Join(room domain.RoomKey, userID uuid.UUID, displayName string) {
	sh := s.shard(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	members, ok := sh.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]presenceEntry)
		sh.rooms[room] = members
	}

	now := time.Now()
	entry, exists := members[userID]
	if !exists {
		entry = presenceEntry{displayName: displayName, joinedAt: now}
	}
	entry.displayName = displayName
	entry.expiresAt = now.Add(s.ttl)
	members[userID] = entry
}

// Leave removes the user's presence entry from the room.
func (s *PresenceStore) Leave(room domain.RoomKey, userID uuid.UUID) {
	sh := s.shard(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if members, ok := sh.rooms[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(sh.rooms, room)
		}
	}
}

// Occupants returns the current unexpired presence entries for a room,
// ordered by join time for stable snapshots.
func (s *PresenceStore) Occupants(room domain.RoomKey) []domain.PresenceEntry {
	sh := s.shard(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := time.Now()
	var out []domain.PresenceEntry
	for id, entry := range sh.rooms[room] {
		if now.After(entry.expiresAt) {
			continue
		}
		out = append(out, domain.PresenceEntry{
			UserID:      id,
			DisplayName: entry.displayName,
			JoinedAt:    entry.joinedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Sweep evicts expired entries across all shards and returns how many
// were removed. Called periodically by the janitor.
func (s *PresenceStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for room, members := range sh.rooms {
			for id, entry := range members {
				if now.After(entry.expiresAt) {
					delete(members, id)
					removed++
				}
			}
			if len(members) == 0 {
				delete(sh.rooms, room)
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
