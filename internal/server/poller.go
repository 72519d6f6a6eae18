package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pactline/internal/engine"
	"pactline/internal/logging"
)

const defaultPollTimeout = 10 * time.Second

type sessionKey struct {
	actorID    string
	contractID string
}

// sessionRegistry holds the open contract sessions, one per actor and contract.
type sessionRegistry struct {
	mu   sync.Mutex
	open map[sessionKey]*engine.Contract
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{open: map[sessionKey]*engine.Contract{}}
}

func (r *sessionRegistry) get(actorID, contractID string) (*engine.Contract, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.open[sessionKey{actorID, contractID}]
	return c, ok
}

// add registers c unless a concurrent open won the race, in which case the existing
// session is kept and returned.
func (r *sessionRegistry) add(actorID string, c *engine.Contract) *engine.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey{actorID, c.ID()}
	if existing, ok := r.open[key]; ok {
		return existing
	}
	r.open[key] = c
	return c
}

func (r *sessionRegistry) remove(actorID, contractID string) (*engine.Contract, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey{actorID, contractID}
	c, ok := r.open[key]
	delete(r.open, key)
	return c, ok
}

func (r *sessionRegistry) list() []*engine.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*engine.Contract, 0, len(r.open))
	for _, c := range r.open {
		out = append(out, c)
	}
	return out
}

func (r *sessionRegistry) drain() []*engine.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*engine.Contract, 0, len(r.open))
	for key, c := range r.open {
		out = append(out, c)
		delete(r.open, key)
	}
	return out
}

// sessionPoller re-reads open contracts so task progress and auto-selection reach
// the session without the UI asking.
type sessionPoller struct {
	sessions *sessionRegistry
	interval time.Duration
}

func (p *sessionPoller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *sessionPoller) pollAll(ctx context.Context) {
	for _, c := range p.sessions.list() {
		p.poll(ctx, c)
	}
}

func (p *sessionPoller) poll(ctx context.Context, c *engine.Contract) {
	ctx = logging.WithContractID(logging.WithActorID(ctx, c.ActorID()), c.ID())
	ctx, cancel := context.WithTimeout(ctx, defaultPollTimeout)
	defer cancel()
	if err := c.Refresh(ctx, true); err != nil {
		slog.WarnContext(ctx, "poll: refresh failed", "error", err)
	}
}
