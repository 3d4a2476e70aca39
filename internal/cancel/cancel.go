// Package cancel provides a cooperative cancellation token threaded through
// the resilience gates, transport, and streaming pipeline, so a caller-
// initiated cancel reaches every suspension point and always produces a
// single terminal stream_error event instead of a silently dropped stream.
package cancel

import (
	"context"
	"sync"
)

// Token is cancelled at most once; Cancel is idempotent and every
// registered callback fires exactly once, in registration order.
type Token struct {
	mu        sync.Mutex
	once      sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	reason    error
	callbacks []func(reason error)
}

// New derives a cancellable Token from parent.
func New(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Context returns the Token's context, cancelled when Cancel is called or
// parent is done.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Cancel marks the token cancelled with reason and fires every callback
// registered via OnCancel. Subsequent calls are no-ops; the first reason
// wins.
func (t *Token) Cancel(reason error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		callbacks := t.callbacks
		t.mu.Unlock()

		t.cancel()
		for _, cb := range callbacks {
			cb(reason)
		}
	})
}

// Cancelled reports whether Cancel has been called or the parent context
// ended.
func (t *Token) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to Cancel, or nil if not yet cancelled
// (including cancellation inherited from the parent context, where Err()
// should be consulted instead).
func (t *Token) Reason() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// OnCancel registers a callback to run when the token is cancelled. If the
// token is already cancelled, cb runs immediately on the calling goroutine.
func (t *Token) OnCancel(cb func(reason error)) {
	t.mu.Lock()
	if t.reason != nil || t.Cancelled() {
		reason := t.reason
		t.mu.Unlock()
		cb(reason)
		return
	}
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}
