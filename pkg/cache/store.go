package cache

import (
	"container/list"
	"sync"
)

// DefaultCapacity is the number of entries kept by the reference deployment.
const DefaultCapacity = 1000

// Store is a fixed-capacity LRU map from cache key to Entry.
// Entries never expire by time; they leave only through eviction.
type Store struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used
}

// NewStore creates a store holding at most capacity entries.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		panic("cache capacity must be at least 1")
	}
	CacheCapacity.Set(float64(capacity))
	return &Store{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns a copy of the entry for key and marks it most recently used.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		CacheMisses.Inc()
		return Entry{}, false
	}
	s.order.MoveToFront(el)
	CacheHits.Inc()
	return *el.Value.(*Entry), true
}

// Has reports whether key is present without touching its recency.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Set inserts or overwrites the entry for key and marks it most recently
// used, evicting the least recently used entry when over capacity.
func (s *Store) Set(key string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Key = key
	if el, ok := s.items[key]; ok {
		*el.Value.(*Entry) = e
		s.order.MoveToFront(el)
		return
	}
	s.insert(key, &e)
}

// Update creates or mutates the entry for key in place while holding the
// store lock. fn receives exists=false with a zero Entry for new keys.
// The entry becomes most recently used. It returns a copy of the result.
func (s *Store) Update(key string, fn func(e *Entry, exists bool)) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		e := el.Value.(*Entry)
		fn(e, true)
		s.order.MoveToFront(el)
		return *e
	}
	e := &Entry{Key: key}
	fn(e, false)
	s.insert(key, e)
	return *e
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Capacity returns the configured capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Keys returns the stored keys from most to least recently used.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items))
	for el := s.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*Entry).Key)
	}
	return keys
}

// insert must be called with s.mu held.
func (s *Store) insert(key string, e *Entry) {
	s.items[key] = s.order.PushFront(e)
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*Entry).Key)
		CacheEvictions.Inc()
	}
	CacheEntries.Set(float64(len(s.items)))
}
