package turns

import "sync"

// turnKey identifies one turn across sessions.
type turnKey struct {
	session string
	turn    int64
}

// Tracker records which turn ids have been issued but not yet resolved
// by a background analysis. The store only knows absent vs present;
// this set is what lets polling distinguish "still processing" from
// "no such turn".
type Tracker struct {
	mu      sync.Mutex
	pending map[turnKey]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[turnKey]struct{})}
}

// Mark records a turn as issued-but-unresolved. Called before the
// background task is scheduled, never after.
func (t *Tracker) Mark(sessionID string, turnID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[turnKey{sessionID, turnID}] = struct{}{}
}

// Resolve clears a turn once its result (or the empty fallback) has
// been stored.
func (t *Tracker) Resolve(sessionID string, turnID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, turnKey{sessionID, turnID})
}

// Pending reports whether a turn is issued but unresolved.
func (t *Tracker) Pending(sessionID string, turnID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[turnKey{sessionID, turnID}]
	return ok
}

// Count returns the number of unresolved turns across all sessions.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// ForgetSession drops all pending entries for a deleted session.
func (t *Tracker) ForgetSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.pending {
		if k.session == sessionID {
			delete(t.pending, k)
		}
	}
}
