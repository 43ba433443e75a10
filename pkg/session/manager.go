package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dockhand-sh/dockhand/pkg/errors"
	"github.com/dockhand-sh/dockhand/pkg/logger"
	"github.com/dockhand-sh/dockhand/pkg/telemetry"
)

// Factory builds the per-session tool server bound to a new session id.
type Factory func(sessionID string) *Session

// Manager owns the set of live sessions. Sessions idle longer than the
// TTL are reaped by a background routine.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory     Factory
	ttl         time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewManager creates a session manager. A non-positive ttl disables
// idle-session cleanup.
func NewManager(factory Factory, ttl time.Duration) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		factory:     factory,
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}
	if ttl > 0 {
		go m.cleanupRoutine()
	}
	return m
}

// newSessionID generates session identifiers. A variable so tests can
// force id collisions.
var newSessionID = uuid.NewString

// Create mints a session with a fresh unguessable id, registers it, and
// returns it. The uniqueness check runs before the factory so a colliding
// id never constructs a session whose side effects (tool server
// subscriptions, close hooks) would have to be unwound; if a collision
// still races in between check and insert, the discarded session is closed
// so those side effects are released.
func (m *Manager) Create() (*Session, error) {
	for range 3 {
		id := newSessionID()

		m.mu.RLock()
		_, exists := m.sessions[id]
		m.mu.RUnlock()
		if exists {
			continue
		}

		sess := m.factory(id)

		m.mu.Lock()
		if _, exists := m.sessions[id]; exists {
			m.mu.Unlock()
			sess.Close()
			continue
		}
		m.sessions[id] = sess
		m.mu.Unlock()

		telemetry.ActiveSessions.Inc()
		logger.Debugf("Session created: %s", id)
		return sess, nil
	}
	return nil, errors.NewSessionError("failed to allocate a unique session id", nil)
}

// Get returns the session for id, refreshing its activity timestamp.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		sess.Touch()
	}
	return sess, ok
}

// Delete closes and removes the session for id, reporting whether it
// existed. A second delete of the same id reports false.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	sess.Close()
	telemetry.ActiveSessions.Dec()
	logger.Debugf("Session deleted: %s", id)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Range calls f for each live session until f returns false.
func (m *Manager) Range(f func(*Session) bool) {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		snapshot = append(snapshot, sess)
	}
	m.mu.RUnlock()

	for _, sess := range snapshot {
		if !f(sess) {
			return
		}
	}
}

// Stop halts the cleanup routine and closes every remaining session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
	})

	m.mu.Lock()
	remaining := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, sess := range remaining {
		sess.Close()
		telemetry.ActiveSessions.Dec()
		logger.Debugf("Session closed on shutdown: %s", id)
	}
}

func (m *Manager) cleanupRoutine() {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			m.reapExpired()
		}
	}
}

func (m *Manager) reapExpired() {
	cutoff := time.Now().Add(-m.ttl)

	var expired []string
	m.mu.RLock()
	for id, sess := range m.sessions {
		if sess.UpdatedAt().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		if m.Delete(id) {
			logger.Infof("Session %s expired after %s of inactivity", id, m.ttl)
		}
	}
}

// String describes the manager for debug logging.
func (m *Manager) String() string {
	return fmt.Sprintf("session.Manager(ttl=%s, sessions=%d)", m.ttl, m.Count())
}
