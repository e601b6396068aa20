// Package optimistic implements the toggle protocol used for every
// counter mutation against the remote store: apply the new value to
// the local view-model immediately, issue the remote call, and restore
// the prior value if the remote rejects it. One engine serializes all
// view-model access, so toggles and settlements may interleave freely.
package optimistic

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrDuplicateIgnored marks a remote duplicate-insert that the
	// store treats as benign. Settles as success, never rolls back.
	ErrDuplicateIgnored = errors.New("duplicate ignored")

	// ErrUnauthenticated is returned by callers that refuse a toggle
	// before any local state changes.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Key identifies one mutation target: a single counted field of a
// single entity, e.g. one post's "heart" reaction.
type Key struct {
	Target string
	Kind   string
}

// Settlement reports how a toggle resolved.
type Settlement struct {
	// Err is non-nil when the remote rejected the mutation.
	Err error
	// RolledBack is true when the local view-model was restored to
	// its pre-toggle value.
	RolledBack bool
	// Superseded is true when a newer toggle on the same key took
	// ownership of the state before this one settled; the settlement
	// was discarded and the local view-model untouched.
	Superseded bool
}

// Toggle describes one optimistic transition over a view-model value.
// Read, Next and Apply run under the engine lock and must not block;
// Remote runs on its own goroutine and may take arbitrarily long.
type Toggle[V any] struct {
	Read   func() V
	Next   func(V) V
	Apply  func(V)
	Remote func(ctx context.Context, prev, next V) error
}

// Engine tracks in-flight transitions per key. A second toggle while
// one is pending starts a new transition from the currently displayed
// value; only the newest transition per key may settle, so stale
// responses arriving out of order can never clobber fresher state.
type Engine struct {
	mu  sync.Mutex
	seq map[Key]uint64
}

func NewEngine() *Engine {
	return &Engine{seq: make(map[Key]uint64)}
}

// Do applies the transition locally, fires the remote mutation and
// returns a channel that yields exactly one Settlement. The local
// apply happens before Do returns; callers never wait on the network.
func Do[V any](ctx context.Context, e *Engine, key Key, t Toggle[V]) <-chan Settlement {
	e.mu.Lock()
	prev := t.Read()
	next := t.Next(prev)
	t.Apply(next)
	e.seq[key]++
	seq := e.seq[key]
	e.mu.Unlock()

	done := make(chan Settlement, 1)
	go func() {
		err := t.Remote(ctx, prev, next)
		if errors.Is(err, ErrDuplicateIgnored) {
			err = nil
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.seq[key] != seq {
			done <- Settlement{Err: err, Superseded: true}
			return
		}
		if err != nil {
			t.Apply(prev)
			done <- Settlement{Err: err, RolledBack: true}
			return
		}
		done <- Settlement{}
	}()
	return done
}
