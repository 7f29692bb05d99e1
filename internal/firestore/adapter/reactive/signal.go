package reactive

import (
	"sync"

	"github.com/google/uuid"
)

// Signal is an observable input. Bindings that take a Signal follow its value.
type Signal[V any] struct {
	mu       sync.Mutex
	value    V
	watchers map[string]func(V)
	order    []string
}

// NewSignal returns a signal holding v.
func NewSignal[V any](v V) *Signal[V] {
	return &Signal[V]{value: v, watchers: make(map[string]func(V))}
}

// Static returns a signal that is never set again.
func Static[V any](v V) *Signal[V] {
	return NewSignal(v)
}

func (s *Signal[V]) Get() V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores v and calls every watcher with it. Watchers run on the caller's goroutine.
func (s *Signal[V]) Set(v V) {
	s.mu.Lock()
	s.value = v
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(v)
	}
}

// Watch calls fn with the current value, then with every value set later. The returned
// function stops watching.
func (s *Signal[V]) Watch(fn func(V)) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.watchers[id] = fn
	s.order = append(s.order, id)
	current := s.value
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.watchers, id)
			for i, other := range s.order {
				if other == id {
					s.order = append(s.order[:i:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Signal[V]) snapshotWatchers() []func(V) {
	out := make([]func(V), 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.watchers[id])
	}
	return out
}
