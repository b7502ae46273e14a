package stream

import (
	"context"
	"sync"
	"time"

	"github.com/fieldops/watchtower/internal/bus"
)

// ReplaySet enforces single-use stream tokens (spec §4.3 step 2, §9):
// CheckAndMark reports whether token was already consumed and, if not,
// marks it consumed for ttl.
type ReplaySet interface {
	CheckAndMark(ctx context.Context, token string, ttl time.Duration) (alreadyUsed bool, err error)
}

// localReplaySet is the single-instance default: an in-memory set with a
// periodic sweep every 5 minutes, matching spec §9's "bounded by token
// TTL; periodic sweep removes expired entries".
type localReplaySet struct {
	mu      sync.Mutex
	entries map[string]time.Time // token -> purge deadline
}

func newLocalReplaySet() *localReplaySet {
	return &localReplaySet{entries: make(map[string]time.Time)}
}

func (l *localReplaySet) CheckAndMark(_ context.Context, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if deadline, ok := l.entries[token]; ok && time.Now().Before(deadline) {
		return true, nil
	}
	l.entries[token] = time.Now().Add(ttl)
	return false, nil
}

// sweep removes expired entries. Run on a 5-minute ticker by the caller
// (spec §4.3: "A periodic sweep (every 5 min) removes expired entries").
func (l *localReplaySet) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for token, deadline := range l.entries {
		if now.After(deadline) {
			delete(l.entries, token)
		}
	}
}

// Run starts the sweep loop; blocks until ctx is cancelled.
func (l *localReplaySet) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// busReplaySet delegates to the distributed Redis-backed bus, for
// multi-instance gateway deployments (spec §9: "For a distributed
// deployment, replace with a key/value store whose entries expire
// automatically").
type busReplaySet struct {
	svc *bus.Service
}

func newBusReplaySet(svc *bus.Service) *busReplaySet {
	return &busReplaySet{svc: svc}
}

func (b *busReplaySet) CheckAndMark(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	inserted, err := b.svc.SetNXWithTTL(ctx, "streamtoken:"+token, ttl)
	if err != nil {
		return false, err
	}
	return !inserted, nil
}

// NewReplaySet picks the Redis-backed set when svc is non-nil (multi-
// instance gateway deployment), or falls back to an in-memory set for a
// single-instance deployment.
func NewReplaySet(svc *bus.Service) ReplaySet {
	if svc == nil {
		return newLocalReplaySet()
	}
	return newBusReplaySet(svc)
}
