package hub

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
)

// Session is the registry's view of one live connection.
type Session interface {
	ID() string
	IsOpen() bool
	// Enqueue hands a text frame to the session's writer. The returned channel
	// receives exactly one value once the frame is written or abandoned.
	Enqueue(frame []byte) (<-chan error, error)
}

const DefaultShards = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// Registry tracks every live session. The map is lock-striped so that
// registrations from different connections rarely contend, and Snapshot
// copies each shard under its read lock.
type Registry struct {
	shards []*shard
}

func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{shards: make([]*shard, shards)}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]Session)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Register inserts s. It fails with domain.ErrDuplicateSession if the id is taken.
func (r *Registry) Register(s Session) error {
	id := s.ID()
	sh := r.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.sessions[id]; exists {
		return domain.NewError(domain.KindRegistry, "register",
			fmt.Errorf("%w: %s", domain.ErrDuplicateSession, id))
	}
	sh.sessions[id] = s
	return nil
}

// Unregister removes id and reports whether it was present. Removing an
// unknown id is a no-op.
func (r *Registry) Unregister(id string) bool {
	sh := r.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.sessions[id]; !ok {
		return false
	}
	delete(sh.sessions, id)
	return true
}

func (r *Registry) Get(id string) (Session, bool) {
	sh := r.shardFor(id)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	s, ok := sh.sessions[id]
	return s, ok
}

// Snapshot returns the sessions registered at call time, in no particular order.
// The slice is owned by the caller.
func (r *Registry) Snapshot() []Session {
	out := make([]Session, 0, r.Len())
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}
