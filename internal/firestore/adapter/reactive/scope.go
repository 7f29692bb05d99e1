package reactive

import (
	"context"
	"sync"
)

// Scope owns the bindings created for one consumer, like a mounted component.
// Dispose tears all of them down.
type Scope struct {
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	hooks    []func()
	disposed bool
}

// NewScope returns a scope whose operations run under ctx.
func NewScope(ctx context.Context) *Scope {
	ctx, cancel := context.WithCancel(ctx)
	return &Scope{ctx: ctx, cancel: cancel}
}

// Context is cancelled on Dispose.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// OnDispose registers fn to run on Dispose. On a disposed scope fn runs at once.
func (s *Scope) OnDispose(fn func()) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		fn()
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Dispose runs the hooks in reverse registration order. Later calls do nothing.
func (s *Scope) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	s.cancel()
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// Disposed reports whether Dispose has run.
func (s *Scope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
