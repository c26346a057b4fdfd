package session

import "sync"

// store is the low-level concurrent-safe session map. It knows nothing about
// registration semantics (§4.3.1 lives in registry.go) — only mutation,
// lookup, and the notify-while-locked contract callers depend on to keep a
// mutation and its broadcast enqueue atomic from an outside observer.
type store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newStore() *store {
	return &store{sessions: make(map[string]*Session)}
}

// Get returns a defensive copy of the session, or (nil, false) if absent.
func (s *store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// GetAll returns defensive copies of every session, unordered.
func (s *store) GetAll() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// ActiveCount returns the number of sessions currently tracked.
func (s *store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// UpdateAndNotify stores sess (keyed by SessionID) and invokes notify while
// still holding the write lock, so the store mutation and the caller's
// broadcast-enqueue are atomic from any reader's perspective. notify MUST
// NOT call back into the store — doing so deadlocks since mu is not
// reentrant.
func (s *store) UpdateAndNotify(sess *Session, notify func()) {
	s.mu.Lock()
	s.sessions[sess.SessionID] = sess.Clone()
	if notify != nil {
		notify()
	}
	s.mu.Unlock()
}

// BatchUpdateAndNotify stores every session in sessions, then invokes notify
// once, all under a single write-lock acquisition.
func (s *store) BatchUpdateAndNotify(sessions []*Session, notify func()) {
	s.mu.Lock()
	for _, sess := range sessions {
		s.sessions[sess.SessionID] = sess.Clone()
	}
	if notify != nil {
		notify()
	}
	s.mu.Unlock()
}

// removeLocked deletes id from the map. Caller must hold s.mu.
func (s *store) removeLocked(id string) (*Session, bool) {
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return sess, ok
}

// RemoveAndNotify removes a single session and invokes notify under the
// write lock, returning the removed session (nil if absent).
func (s *store) RemoveAndNotify(id string, notify func()) *Session {
	s.mu.Lock()
	sess, _ := s.removeLocked(id)
	if notify != nil {
		notify()
	}
	s.mu.Unlock()
	return sess
}

// BatchRemoveAndNotify removes every id in ids, then invokes notify once,
// all under a single write-lock acquisition.
func (s *store) BatchRemoveAndNotify(ids []string, notify func()) []*Session {
	s.mu.Lock()
	removed := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if sess, ok := s.removeLocked(id); ok {
			removed = append(removed, sess)
		}
	}
	if notify != nil {
		notify()
	}
	s.mu.Unlock()
	return removed
}

// withWriteLock runs fn with the store's write lock held, giving the
// registry a way to perform a read-modify-write sequence (e.g. stale-session
// reconciliation) atomically. fn must not re-enter the store.
func (s *store) withWriteLock(fn func(m map[string]*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.sessions)
}
