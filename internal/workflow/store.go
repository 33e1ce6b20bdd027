package workflow

import (
	"hash/fnv"
	"sync"

	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
)

const shardCount = 32

// Store is the in-memory order repository owned by the orchestrator. It is
// lock-striped: transitions for different orders run in parallel, while all
// mutations of one order are serialized on its shard (single writer per key).
// It is deliberately not a source of truth for durability.
type Store struct {
	shards [shardCount]*shard
}

type shard struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
}

// NewStore allocates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{orders: make(map[string]*orders.Order)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// Put inserts a new order; it fails if the id is already present.
func (s *Store) Put(o *orders.Order) error {
	sh := s.shardFor(o.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.orders[o.ID]; ok {
		return ports.ErrOrderAlreadyExists
	}
	sh.orders[o.ID] = o.Clone()
	return nil
}

// Seed inserts the order only if it is not yet known. Dispatch workers use it
// to rebuild state from the snapshot carried inside a lifecycle event; local
// state, when present, is never overwritten by an older snapshot.
func (s *Store) Seed(o *orders.Order) {
	sh := s.shardFor(o.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.orders[o.ID]; !ok {
		sh.orders[o.ID] = o.Clone()
	}
}

// Get returns a copy of the order, or ErrOrderNotFound.
func (s *Store) Get(id string) (*orders.Order, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	o, ok := sh.orders[id]
	if !ok {
		return nil, ports.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// Update runs fn on the stored order under the shard lock and returns a copy
// of the result. If fn fails the order is left untouched.
func (s *Store) Update(id string, fn func(o *orders.Order) error) (*orders.Order, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	o, ok := sh.orders[id]
	if !ok {
		return nil, ports.ErrOrderNotFound
	}
	scratch := o.Clone()
	if err := fn(scratch); err != nil {
		return nil, err
	}
	sh.orders[id] = scratch
	return scratch.Clone(), nil
}

// Len reports how many orders are held, across all shards.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.orders)
		sh.mu.Unlock()
	}
	return n
}
