// Package reactive wraps the typed client in observable loading / result / error
// containers. Bindings driven by a Signal re-run or re-subscribe when the signal
// changes and are torn down with their Scope.
package reactive

import (
	"sync"

	"github.com/google/uuid"
)

// Snapshot is a consistent view of a State.
type Snapshot[T any] struct {
	Loading bool
	Result  T
	Err     error
}

// State holds the outcome of an operation or subscription. It starts loading with
// the default result.
type State[T any] struct {
	mu       sync.RWMutex
	snap     Snapshot[T]
	def      T
	watchers map[string]func(Snapshot[T])
	order    []string

	// pending holds stored snapshots not yet handed to watchers, in store order.
	pending  []Snapshot[T]
	draining bool
}

// NewState returns a loading state whose result is def.
func NewState[T any](def T) *State[T] {
	return &State[T]{
		snap:     Snapshot[T]{Loading: true, Result: def},
		def:      def,
		watchers: make(map[string]func(Snapshot[T])),
	}
}

func (s *State[T]) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Loading
}

func (s *State[T]) Result() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Result
}

func (s *State[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Err
}

// Snapshot returns loading, result and error read together.
func (s *State[T]) Snapshot() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe calls fn after every change until the returned function is called.
func (s *State[T]) Subscribe(fn func(Snapshot[T])) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.watchers[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

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

// change is a stored update whose watchers have not been told yet.
type change[T any] struct {
	state *State[T]
}

// notify hands every pending snapshot to the watchers in the order they were stored.
// Only one goroutine delivers at a time; a notify arriving meanwhile, including one made
// from inside a watcher, leaves its snapshot to the goroutine already delivering.
func (c change[T]) notify() {
	s := c.state
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending = s.pending[1:]
		watchers := make([]func(Snapshot[T]), 0, len(s.order))
		for _, id := range s.order {
			watchers = append(watchers, s.watchers[id])
		}
		s.mu.Unlock()
		for _, fn := range watchers {
			fn(snap)
		}
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

func (s *State[T]) store(update func(*Snapshot[T])) change[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.pending = append(s.pending, s.snap)
	return change[T]{state: s}
}

func (s *State[T]) begin() change[T] {
	return s.store(func(snap *Snapshot[T]) { snap.Loading = true })
}

// resolve records a finished run. A failure resets the result to the default.
func (s *State[T]) resolve(result T, err error) change[T] {
	return s.store(func(snap *Snapshot[T]) {
		snap.Loading = false
		if err != nil {
			snap.Result = s.def
			snap.Err = err
			return
		}
		snap.Result = result
		snap.Err = nil
	})
}
