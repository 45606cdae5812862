package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is an agent working session that spans several invocations.
type Session struct {
	// ID is passed to the agent as the session identifier.
	ID string
	// Started is true once an invocation using ID has succeeded.
	Started bool
	// LastUsed is when the session was last acquired or released.
	LastUsed time.Time
}

// sessionEntry holds a session and its idle timer.
type sessionEntry struct {
	session Session
	timer   *time.Timer
	// inUse counts Acquire calls not yet matched by Release.
	inUse int
}

// SessionManager tracks one agent session per key (usually a task ID).
// A session that stays released longer than the idle timeout is closed, so
// the next invocation starts a fresh one. A session is never idle while an
// invocation holds it.
type SessionManager struct {
	idleTimeout time.Duration
	sessions    map[string]*sessionEntry
	mu          sync.RWMutex

	// onExpire is called after an idle session is closed.
	onExpire func(key string)
}

// NewSessionManager creates a SessionManager. A zero idleTimeout disables expiry.
func NewSessionManager(idleTimeout time.Duration) *SessionManager {
	return &SessionManager{
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*sessionEntry),
	}
}

// SetOnExpire sets the callback invoked when a session expires from idleness.
func (m *SessionManager) SetOnExpire(fn func(key string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

// Acquire returns the session for key, opening one if none is open, and
// holds it until the matching Release. The idle timer is stopped meanwhile.
func (m *SessionManager) Acquire(key string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.sessions[key]
	if !exists {
		entry = &sessionEntry{session: Session{ID: uuid.NewString()}}
		m.sessions[key] = entry
	}
	entry.session.LastUsed = time.Now()
	entry.inUse++

	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	return entry.session
}

// Release ends a hold taken by Acquire. The idle timer starts once the last
// hold is released.
func (m *SessionManager) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.sessions[key]
	if !exists || entry.inUse == 0 {
		return
	}
	entry.inUse--
	entry.session.LastUsed = time.Now()
	if entry.inUse > 0 || m.idleTimeout <= 0 {
		return
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	id := entry.session.ID
	entry.timer = time.AfterFunc(m.idleTimeout, func() {
		m.expire(key, id)
	})
}

// MarkStarted records that the agent has created the session for key.
func (m *SessionManager) MarkStarted(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.sessions[key]; exists {
		entry.session.Started = true
	}
}

// Close closes the session for key, if any.
func (m *SessionManager) Close(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.sessions[key]; exists {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(m.sessions, key)
	}
}

// Active reports whether a session is open for key.
func (m *SessionManager) Active(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.sessions[key]
	return exists
}

// expire closes the session for key if it is still the one the timer was armed for.
func (m *SessionManager) expire(key, id string) {
	m.mu.Lock()
	entry, exists := m.sessions[key]
	if !exists || entry.session.ID != id || entry.inUse > 0 || time.Since(entry.session.LastUsed) < m.idleTimeout {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, key)
	onExpire := m.onExpire
	m.mu.Unlock()

	if onExpire != nil {
		onExpire(key)
	}
}
