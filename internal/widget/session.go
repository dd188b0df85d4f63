package widget

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by Submit when a newer submission from the same
// session started before this one finished. Its result must not be shown.
var ErrSuperseded = errors.New("submission superseded by a newer one")

type submission struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// sessionGuard keeps the latest in-flight submission per session. Starting
// a new one cancels the previous one with ErrSuperseded as the cause.
type sessionGuard struct {
	mu     sync.Mutex
	nextID uint64
	active map[string]submission
}

func newSessionGuard() *sessionGuard {
	return &sessionGuard{active: make(map[string]submission)}
}

// begin registers a submission for session. The returned func must be
// called when the submission is finished. An empty session is not tracked.
func (g *sessionGuard) begin(ctx context.Context, session string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if session == "" {
		return ctx, func() { cancel(nil) }
	}

	g.mu.Lock()
	g.nextID++
	id := g.nextID
	if prev, ok := g.active[session]; ok {
		prev.cancel(ErrSuperseded)
	}
	g.active[session] = submission{id: id, cancel: cancel}
	g.mu.Unlock()

	return ctx, func() {
		g.mu.Lock()
		if cur, ok := g.active[session]; ok && cur.id == id {
			delete(g.active, session)
		}
		g.mu.Unlock()
		cancel(nil)
	}
}

// inFlight returns the number of tracked sessions.
func (g *sessionGuard) inFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

func superseded(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrSuperseded)
}
