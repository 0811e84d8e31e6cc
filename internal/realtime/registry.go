package realtime

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

const shardCount = 32

// Registry tracks live WebSocket connections per user. One instance is
// constructed at process start and shared by reference; it is never
// persisted, so the map is rebuilt naturally as clients reconnect after a
// restart.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[*Connection]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[uuid.UUID]map[*Connection]struct{})
	}
	return r
}

func (r *Registry) shard(userID uuid.UUID) *shard {
	h := fnv.New32a()
	h.Write(userID[:])
	return &r.shards[h.Sum32()%shardCount]
}

// Register adds a connection for the user. A user may hold several at once
// (multiple devices or tabs).
func (r *Registry) Register(userID uuid.UUID, c *Connection) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[userID]
	if !ok {
		set = make(map[*Connection]struct{})
		s.conns[userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a connection; removing one that is already gone is a
// no-op.
func (r *Registry) Unregister(userID uuid.UUID, c *Connection) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.conns, userID)
	}
}

// Push writes payload to every live connection the user has and reports
// whether at least one accepted it. A connection whose send buffer is full
// is treated as dead: it gets unregistered and closed rather than blocking
// delivery to the others. Zero connections is "not applicable", not a
// failure — callers must not retry on false.
func (r *Registry) Push(userID uuid.UUID, payload []byte) bool {
	s := r.shard(userID)

	s.mu.RLock()
	targets := make([]*Connection, 0, len(s.conns[userID]))
	for c := range s.conns[userID] {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	delivered := false
	for _, c := range targets {
		if c.trySend(payload) {
			delivered = true
		} else {
			r.Unregister(userID, c)
			c.Close()
		}
	}
	return delivered
}

// ConnectionCount reports how many live connections the user has.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID])
}
