package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Sternrassler/badge-proxy/pkg/badge"
)

func entryWith(msg string) Entry {
	return Entry{RequestCount: 1, ChangeCount: 1, Value: badge.Data{Message: msg}}
}

func TestStore_EvictsFirstInserted(t *testing.T) {
	const n = 5
	s := NewStore(n)

	for i := 0; i <= n; i++ {
		s.Set(fmt.Sprintf("k%d", i), entryWith(fmt.Sprint(i)))
	}

	if s.Len() != n {
		t.Fatalf("Len() = %d, want %d", s.Len(), n)
	}
	if s.Has("k0") {
		t.Error("k0 should have been evicted")
	}
	for i := 1; i <= n; i++ {
		if !s.Has(fmt.Sprintf("k%d", i)) {
			t.Errorf("k%d should still be cached", i)
		}
	}
}

func TestStore_GetProtectsFromEviction(t *testing.T) {
	s := NewStore(2)
	s.Set("a", entryWith("1"))
	s.Set("b", entryWith("2"))

	if _, ok := s.Get("a"); !ok {
		t.Fatal("Get(a) missed")
	}
	s.Set("c", entryWith("3"))

	if s.Has("b") {
		t.Error("b should have been evicted")
	}
	if !s.Has("a") || !s.Has("c") {
		t.Errorf("store should contain a and c, has %v", s.Keys())
	}
}

func TestStore_SetCountsAsAccess(t *testing.T) {
	s := NewStore(2)
	s.Set("a", entryWith("1"))
	s.Set("b", entryWith("2"))
	s.Set("a", entryWith("1b"))
	s.Set("c", entryWith("3"))

	if s.Has("b") {
		t.Error("b should have been evicted after a was overwritten")
	}
	got, ok := s.Get("a")
	if !ok || got.Value.Message != "1b" {
		t.Errorf("Get(a) = %+v, %v; want overwritten value", got, ok)
	}
}

func TestStore_HasDoesNotTouchRecency(t *testing.T) {
	s := NewStore(2)
	s.Set("a", entryWith("1"))
	s.Set("b", entryWith("2"))
	_ = s.Has("a")
	s.Set("c", entryWith("3"))

	if s.Has("a") {
		t.Error("Has must not protect a from eviction")
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore(1)
	s.Set("a", entryWith("1"))

	got, _ := s.Get("a")
	got.RequestCount = 99

	again, _ := s.Get("a")
	if again.RequestCount != 1 {
		t.Errorf("mutating a Get result changed the store: RequestCount = %d", again.RequestCount)
	}
}

func TestStore_Update(t *testing.T) {
	s := NewStore(2)

	created := s.Update("a", func(e *Entry, exists bool) {
		if exists {
			t.Error("exists should be false for a new key")
		}
		e.RequestCount = 1
		e.ChangeCount = 1
	})
	if created.Key != "a" || created.RequestCount != 1 {
		t.Errorf("created = %+v", created)
	}

	updated := s.Update("a", func(e *Entry, exists bool) {
		if !exists {
			t.Error("exists should be true for a stored key")
		}
		e.RequestCount++
	})
	if updated.RequestCount != 2 || updated.ChangeCount != 1 {
		t.Errorf("updated = %+v, want RequestCount 2 ChangeCount 1", updated)
	}

	// Update marks the key as most recently used.
	s.Set("b", entryWith("b"))
	s.Update("a", func(e *Entry, _ bool) { e.RequestCount++ })
	s.Set("c", entryWith("c"))
	if s.Has("b") || !s.Has("a") {
		t.Errorf("expected b evicted and a kept, keys = %v", s.Keys())
	}
}

func TestStore_Keys(t *testing.T) {
	s := NewStore(3)
	s.Set("a", entryWith("1"))
	s.Set("b", entryWith("2"))
	s.Get("a")

	keys := s.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
}

func TestNewStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewStore should panic with zero capacity")
		}
	}()
	NewStore(0)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(50)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%80)
				s.Update(key, func(e *Entry, _ bool) {
					e.RequestCount++
				})
				s.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if s.Len() > s.Capacity() {
		t.Errorf("Len() = %d exceeds capacity %d", s.Len(), s.Capacity())
	}
}
