package server2

import (
	"sync"

	"github.com/google/uuid"
	"github.com/myco-org/myco/internal/mycoerr"
)

// ClientRecord is one registered client's long-term PRF key, plus the
// monotonically assigned index the client uses as its c_s (sender slot)
// when writing.
type ClientRecord struct {
	ID         uuid.UUID
	Index      uint64
	LongTermKey []byte
}

// keyRegistry is the append-only long-term-key store described in spec
// §4.4/§5: "Long-term PRF keys at Server2 are append-only after
// AddPrfKey; no deletion." It is deliberately a separate, smaller-grained
// lock than the tree's, since registering a client has nothing to do with
// a batch installation.
type keyRegistry struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*ClientRecord
	ordered []*ClientRecord
}

func newKeyRegistry() *keyRegistry {
	return &keyRegistry{byID: make(map[uuid.UUID]*ClientRecord)}
}

// Add registers a new client's long-term key. Returns ProtocolViolation if
// the client is already registered (spec §7: "duplicate AddPrfKey").
func (r *keyRegistry) Add(id uuid.UUID, longTermKey []byte) (*ClientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return nil, mycoerr.New(mycoerr.ProtocolViolation, "client %s already registered", id)
	}

	rec := &ClientRecord{
		ID:          id,
		Index:       uint64(len(r.ordered)),
		LongTermKey: append([]byte(nil), longTermKey...),
	}
	r.byID[id] = rec
	r.ordered = append(r.ordered, rec)
	return rec, nil
}

// Get returns the record for id, if registered.
func (r *keyRegistry) Get(id uuid.UUID) (*ClientRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	return rec, ok
}

// Chunk returns up to n records starting at start, in registration order —
// GetPrfKeys/GetAllClientPrfKeys's chunked-dump behavior (spec §4.4).
func (r *keyRegistry) Chunk(start, n int) []*ClientRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if start >= len(r.ordered) {
		return nil
	}
	end := start + n
	if end > len(r.ordered) || n <= 0 {
		end = len(r.ordered)
	}
	out := make([]*ClientRecord, end-start)
	copy(out, r.ordered[start:end])
	return out
}

// Len returns the number of registered clients.
func (r *keyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
