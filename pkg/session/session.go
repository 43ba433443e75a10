// Package session tracks the lifecycle of MCP protocol sessions. Each
// session pairs a stable identifier with a per-session tool server and the
// notification channel its SSE stream drains.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// notificationBuffer bounds the per-session queue of server-to-client
// notifications while no SSE stream is attached.
const notificationBuffer = 64

// Session is a single client's protocol session. It implements the
// mcp-go server.ClientSession interface so the per-session tool server can
// push notifications through it.
type Session struct {
	id      string
	created time.Time

	mu      sync.RWMutex
	updated time.Time

	srv           *mcpserver.MCPServer
	notifications chan mcp.JSONRPCNotification

	initialized atomic.Bool
	closeOnce   sync.Once
	done        chan struct{}
	onClose     []func()
}

// New creates a session owning the given per-session tool server.
func New(id string, srv *mcpserver.MCPServer) *Session {
	now := time.Now()
	return &Session{
		id:            id,
		created:       now,
		updated:       now,
		srv:           srv,
		notifications: make(chan mcp.JSONRPCNotification, notificationBuffer),
		done:          make(chan struct{}),
	}
}

// ID returns the session identifier carried in the Mcp-Session-Id header.
func (s *Session) ID() string {
	return s.id
}

// SessionID implements server.ClientSession.
func (s *Session) SessionID() string {
	return s.id
}

// Server returns the tool server that handles this session's messages.
func (s *Session) Server() *mcpserver.MCPServer {
	return s.srv
}

// Initialize implements server.ClientSession. It marks the handshake as
// complete; until then only the initialize request is accepted.
func (s *Session) Initialize() {
	s.initialized.Store(true)
}

// Initialized implements server.ClientSession.
func (s *Session) Initialized() bool {
	return s.initialized.Load()
}

// NotificationChannel implements server.ClientSession.
func (s *Session) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

// Notifications is the receive side drained by the session's SSE stream.
func (s *Session) Notifications() <-chan mcp.JSONRPCNotification {
	return s.notifications
}

// Touch records activity so the TTL reaper keeps the session alive.
func (s *Session) Touch() {
	s.mu.Lock()
	s.updated = time.Now()
	s.mu.Unlock()
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.created
}

// UpdatedAt returns the time of the most recent activity.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// OnClose registers a hook invoked exactly once when the session closes.
// Hooks registered after Close run immediately.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		fn()
		return
	default:
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// Done is closed when the session has been terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close terminates the session, running registered hooks once. Safe to
// call multiple times and from concurrent goroutines.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		hooks := s.onClose
		s.onClose = nil
		close(s.done)
		s.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	})
}
