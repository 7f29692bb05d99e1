package reactive

import (
	"context"
	"sync"

	"firestore-typed/internal/shared/errors"
)

// Options configures Await.
type Options[T any] struct {
	// Default is the result while loading and after a failure.
	Default T
}

// Await runs fn once in the background and records its outcome in the returned state.
// On a disposed scope fn is not run and the state fails with ErrUnsubscribed.
func Await[T any](scope *Scope, fn func(ctx context.Context) (T, error), opts Options[T]) *State[T] {
	state := NewState(opts.Default)
	if scope.Disposed() {
		state.resolve(opts.Default, errors.ErrUnsubscribed).notify()
		return state
	}
	ctx := scope.Context()
	go func() {
		result, err := fn(ctx)
		state.resolve(result, err).notify()
	}()
	return state
}

// AwaitFlag runs a write whose only result is success. The state holds false until the
// write succeeds and true afterwards.
func AwaitFlag(scope *Scope, fn func(ctx context.Context) error) *State[bool] {
	return Await(scope, func(ctx context.Context) (bool, error) {
		if err := fn(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, Options[bool]{Default: false})
}

// binding tracks the current run of a signal-driven state. Results tagged with an
// older generation are dropped.
type binding struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	stop   func()
	closed bool
}

func (b *binding) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	cancel, stop := b.cancel, b.stop
	b.cancel, b.stop = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		stop()
	}
}

// current reports whether gen is still the latest run.
func (b *binding) current(gen uint64) bool {
	return !b.closed && b.gen == gen
}

// Run calls fn with the input's value now and again on every change. Each new value
// cancels the previous run and loading is set while a run is in flight.
func Run[V, T any](scope *Scope, input *Signal[V], def T, fn func(ctx context.Context, v V) (T, error)) *State[T] {
	state := NewState(def)
	b := &binding{}

	unwatch := input.Watch(func(v V) {
		ctx, cancel := context.WithCancel(scope.Context())
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			cancel()
			return
		}
		b.gen++
		gen := b.gen
		prev := b.cancel
		b.cancel = cancel
		started := state.begin()
		b.mu.Unlock()

		if prev != nil {
			prev()
		}
		started.notify()

		go func() {
			defer cancel()
			result, err := fn(ctx, v)
			b.mu.Lock()
			if !b.current(gen) {
				b.mu.Unlock()
				return
			}
			done := state.resolve(result, err)
			b.mu.Unlock()
			done.notify()
		}()
	})

	scope.OnDispose(func() {
		unwatch()
		b.close()
	})
	return state
}

// Subscriber starts a listener for v and returns the function that stops it.
type Subscriber[V, T any] func(ctx context.Context, v V, onResult func(T), onError func(error)) func()

// Follow keeps a listener subscribed for the input's current value. On change the
// previous listener is stopped before the next one starts. Loading is cleared by the
// first delivery and not set again.
func Follow[V, T any](scope *Scope, input *Signal[V], def T, subscribe Subscriber[V, T]) *State[T] {
	state := NewState(def)
	b := &binding{}

	unwatch := input.Watch(func(v V) {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		b.gen++
		gen := b.gen
		prev := b.stop
		b.stop = nil
		b.mu.Unlock()

		if prev != nil {
			prev()
		}

		deliver := func(result T, err error) {
			b.mu.Lock()
			if !b.current(gen) {
				b.mu.Unlock()
				return
			}
			done := state.resolve(result, err)
			b.mu.Unlock()
			done.notify()
		}
		stop := subscribe(scope.Context(), v,
			func(result T) { deliver(result, nil) },
			func(err error) {
				var zero T
				deliver(zero, err)
			})

		b.mu.Lock()
		if !b.current(gen) {
			b.mu.Unlock()
			stop()
			return
		}
		b.stop = stop
		b.mu.Unlock()
	})

	scope.OnDispose(func() {
		unwatch()
		b.close()
	})
	return state
}

// Pair is the joined value of two signals.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Join returns a signal that changes whenever a or b does.
func Join[A, B any](scope *Scope, a *Signal[A], b *Signal[B]) *Signal[Pair[A, B]] {
	out := NewSignal(Pair[A, B]{First: a.Get(), Second: b.Get()})
	stopA := a.Watch(func(v A) { out.Set(Pair[A, B]{First: v, Second: b.Get()}) })
	stopB := b.Watch(func(v B) { out.Set(Pair[A, B]{First: a.Get(), Second: v}) })
	scope.OnDispose(func() {
		stopA()
		stopB()
	})
	return out
}
