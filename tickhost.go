package tickhost

import (
	"context"
	"sync"
)

// Handle is the opaque token identifying one running application instance.
// The host never interprets it; it is passed back unchanged on every tick.
type Handle uint64

// Namespace is the set of entry points a loaded application module exposes.
type Namespace interface {
	// CreateApplication requests a new application instance. The result is
	// either a ready handle or a pending result that resolves to one.
	CreateApplication(ctx context.Context) (Creation, error)

	// Advance performs one unit of progress on the instance identified by h.
	Advance(ctx context.Context, h Handle) error

	// Close releases the module and everything it allocated.
	Close(ctx context.Context) error
}

// Pending is a creation result that is not usable until it resolves.
type Pending interface {
	// Await blocks until the result settles or ctx is done.
	Await(ctx context.Context) (Handle, error)
}

// Creation is the return value of CreateApplication: Ready or Deferred.
type Creation struct {
	pending Pending
	handle  Handle
}

// Ready wraps a handle that is usable immediately.
func Ready(h Handle) Creation {
	return Creation{handle: h}
}

// Deferred wraps a pending result.
func Deferred(p Pending) Creation {
	return Creation{pending: p}
}

// IsPending reports whether the handle still has to be awaited.
func (c Creation) IsPending() bool {
	return c.pending != nil
}

// Resolve normalizes both variants into a ready handle. A Ready creation
// returns without blocking; a Deferred one awaits its pending result.
func (c Creation) Resolve(ctx context.Context) (Handle, error) {
	if c.pending == nil {
		return c.handle, nil
	}
	return c.pending.Await(ctx)
}

// Promise is an in-process Pending settled by Resolve or Reject.
// Only the first settlement takes effect.
type Promise struct {
	err    error
	done   chan struct{}
	handle Handle
	once   sync.Once
}

func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve settles the promise with h. It reports whether this call won.
func (p *Promise) Resolve(h Handle) bool {
	won := false
	p.once.Do(func() {
		p.handle = h
		won = true
		close(p.done)
	})
	return won
}

// Reject settles the promise with err. It reports whether this call won.
func (p *Promise) Reject(err error) bool {
	won := false
	p.once.Do(func() {
		p.err = err
		won = true
		close(p.done)
	})
	return won
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

func (p *Promise) Await(ctx context.Context) (Handle, error) {
	select {
	case <-p.done:
		return p.handle, p.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

var _ Pending = (*Promise)(nil)
