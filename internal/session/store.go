package session

import (
	"sync"
	"time"

	"github.com/plantops/inspectd/pkg/models"
)

// Store is the registry of active sessions, at most one per operator.
// The registry lock only guards the map; each session's own mutex serializes
// event handling, so a slow transaction for one operator never blocks
// registry operations for another.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	onCreated func(*Session)
	onDeleted func(*Session)
}

// NewStore creates an empty session registry.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// SetOnCreated registers a callback invoked after a session is created.
func (st *Store) SetOnCreated(fn func(*Session)) {
	st.onCreated = fn
}

// SetOnDeleted registers a callback invoked after a session is removed.
func (st *Store) SetOnDeleted(fn func(*Session)) {
	st.onDeleted = fn
}

// Create registers a new session for the operator. It fails with
// ErrAlreadyActive if the operator already has one; the existing session is
// left untouched.
func (st *Store) Create(operatorID, operatorName, asset string, items []string) (*Session, error) {
	snapshot := make([]string, len(items))
	copy(snapshot, items)

	sess := &Session{
		OperatorID:   operatorID,
		OperatorName: operatorName,
		Asset:        asset,
		Items:        snapshot,
		Results:      make([]models.ItemResult, 0, len(snapshot)),
		StartedAt:    time.Now(),
		Mode:         ModeAnswering,
	}

	st.mu.Lock()
	if _, exists := st.sessions[operatorID]; exists {
		st.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	st.sessions[operatorID] = sess
	st.mu.Unlock()

	if st.onCreated != nil {
		st.onCreated(sess)
	}
	return sess, nil
}

// Get returns the operator's active session, or nil.
func (st *Store) Get(operatorID string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[operatorID]
}

// Delete removes the operator's session. It is safe to call for an operator
// without a session. The removed session is marked terminated so a concurrent
// event holding a stale reference rejects instead of mutating it.
func (st *Store) Delete(operatorID string) {
	st.mu.Lock()
	sess, exists := st.sessions[operatorID]
	if exists {
		delete(st.sessions, operatorID)
		sess.terminated.Store(true)
	}
	st.mu.Unlock()

	if exists && st.onDeleted != nil {
		st.onDeleted(sess)
	}
}

// Count returns the number of active sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// All returns a snapshot of the active sessions.
func (st *Store) All() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		out = append(out, sess)
	}
	return out
}
