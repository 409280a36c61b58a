package store

import (
	"sync"

	"github.com/tbourn/chatverse/internal/domain"
)

// SessionStore records authentication outcomes. It performs no I/O, retries
// or timeouts.
type SessionStore struct {
	mu     sync.RWMutex
	s      domain.Session
	events *Broker
}

// NewSessionStore returns a store in the absent/unauthenticated state.
func NewSessionStore(events *Broker) *SessionStore {
	return &SessionStore{events: events}
}

// BeginAuth marks an authentication attempt as in flight and clears any error.
func (st *SessionStore) BeginAuth() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Pending = true
	st.s.LastError = ""
	st.publish()
}

// CompleteAuth records a successful login or registration.
func (st *SessionStore) CompleteAuth(u domain.User) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.User = &u
	st.s.Authenticated = true
	st.s.Pending = false
	st.publish()
}

// FailAuth records a failed attempt. An unauthenticated session carries no user.
func (st *SessionStore) FailAuth(message string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.User = nil
	st.s.Authenticated = false
	st.s.Pending = false
	st.s.LastError = message
	st.publish()
}

// ClearError drops the recorded error. Calling it with no error is a no-op.
func (st *SessionStore) ClearError() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.LastError == "" {
		return
	}
	st.s.LastError = ""
	st.publish()
}

// Logout resets to the initial state unconditionally.
func (st *SessionStore) Logout() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = domain.Session{}
	st.publish()
}

// Snapshot returns a copy of the current session.
func (st *SessionStore) Snapshot() domain.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Clone()
}

// User returns the session user, if any.
func (st *SessionStore) User() (domain.User, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.User == nil {
		return domain.User{}, false
	}
	return *st.s.User, true
}

// publish must be called with st.mu held.
func (st *SessionStore) publish() {
	st.events.Publish(EventSession, st.s.Clone())
}
