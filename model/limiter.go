package model

import "context"

// Inflight bounds the number of concurrent backend calls. The backend
// connection pool is shared across all sessions, so the gate lives at the
// client rather than per session.
type Inflight struct {
	sem chan struct{}
}

// NewInflight creates a gate allowing max concurrent calls.
// If max <= 0, calls are unlimited.
func NewInflight(max int) *Inflight {
	if max <= 0 {
		return &Inflight{}
	}
	return &Inflight{sem: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (g *Inflight) Acquire(ctx context.Context) error {
	if g.sem == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case g.sem <- struct{}{}:
		return nil
	}
}

// Release frees a slot acquired with Acquire.
func (g *Inflight) Release() {
	if g.sem == nil {
		return
	}
	select {
	case <-g.sem:
	default:
	}
}

// InUse returns the number of currently held slots, or 0 when unlimited.
func (g *Inflight) InUse() int {
	if g.sem == nil {
		return 0
	}
	return len(g.sem)
}
