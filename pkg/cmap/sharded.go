package cmap

import (
	"math/rand/v2"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map.
type Map[K ~string, V any] struct {
	shards []*shard[K, V]
	mask   uint64
	seed   uint32
}

type shard[K ~string, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New creates a map with DefaultShardCount shards.
func New[K ~string, V any]() *Map[K, V] {
	return NewWithShards[K, V](DefaultShardCount)
}

// NewWithShards creates a map with n shards. n is rounded up to a power
// of two.
func NewWithShards[K ~string, V any](n int) *Map[K, V] {
	size := 1
	for size < n {
		size <<= 1
	}

	m := &Map[K, V]{
		shards: make([]*shard[K, V], size),
		mask:   uint64(size - 1),
		seed:   rand.Uint32(),
	}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[murmur3.Sum64WithSeed([]byte(key), m.seed)&m.mask]
}

// Get returns the value under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Swap stores value under key and returns the value it replaced.
func (m *Map[K, V]) Swap(key K, value V) (old V, existed bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, existed = s.items[key]
	s.items[key] = value
	return old, existed
}

// Pop removes key and returns the value it held.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for each entry until fn returns false. fn runs under
// the shard's read lock and must not write to the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Values returns all values in no particular order.
func (m *Map[K, V]) Values() []V {
	out := make([]V, 0, m.Len())
	m.Range(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}
