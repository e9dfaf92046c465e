package syncer

import (
	"sync"

	"github.com/storekit/searchsync/internal/catalog"
)

// Guard is the per-entity mutual exclusion over full resyncs: at most one
// full resync runs at a time per kind within this process. Acquire is a
// check-and-set; a second resync request while one is in flight gets an
// immediate no-op, never queued.
//
// The guard is process-local and not persisted: a crash leaves every kind
// implicitly unlocked on the next start. Multi-instance deployments need a
// distributed primitive instead (a lease row in the source store or a lock
// service); that is outside this guard's contract.
type Guard struct {
	mu   sync.Mutex
	held map[catalog.Kind]bool
}

// NewGuard creates a guard with every kind unlocked.
func NewGuard() *Guard {
	return &Guard{held: make(map[catalog.Kind]bool)}
}

// TryAcquire attempts to take the lock for the kind. Returns false without
// blocking when it is already held.
func (g *Guard) TryAcquire(kind catalog.Kind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held[kind] {
		return false
	}
	g.held[kind] = true
	return true
}

// Release frees the lock for the kind. Releasing an unheld lock is a no-op.
func (g *Guard) Release(kind catalog.Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, kind)
}

// Held reports whether a resync for the kind is in flight.
func (g *Guard) Held(kind catalog.Kind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[kind]
}
