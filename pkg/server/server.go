// Package server exposes the MCP streamable HTTP endpoint together with
// the approval, health, and metrics surfaces. It owns the session
// lifecycle and routes protocol messages to per-session tool servers.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dockhand-sh/dockhand/pkg/approval"
	"github.com/dockhand-sh/dockhand/pkg/errors"
	"github.com/dockhand-sh/dockhand/pkg/logger"
	"github.com/dockhand-sh/dockhand/pkg/networking"
	"github.com/dockhand-sh/dockhand/pkg/session"
	"github.com/dockhand-sh/dockhand/pkg/tools"
)

const (
	// DefaultEndpointPath is the single MCP endpoint path.
	DefaultEndpointPath = "/mcp"

	defaultPort       = 41100
	defaultSessionTTL = 30 * time.Minute
	readHeaderTimeout = 10 * time.Second

	// fallbackPort starts the disjoint range tried when the whole primary
	// range is occupied. It sits well away from the primary so a crowded
	// neighbourhood does not exhaust both.
	fallbackPort    = 52000
	fallbackRetries = 8
)

// Config controls the HTTP server. Zero values fall back to defaults.
type Config struct {
	// Host is the interface to bind. Defaults to 127.0.0.1.
	Host string

	// Port is the preferred listen port. When taken, the next PortRetries
	// ports are tried in order.
	Port int

	// PortRetries is how many successor ports to try after Port.
	PortRetries int

	// EndpointPath is the MCP endpoint path. Defaults to /mcp.
	EndpointPath string

	// SessionTTL evicts sessions idle longer than this. Defaults to 30m.
	SessionTTL time.Duration

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool

	// ServerName and Version identify the server in the initialize result.
	ServerName string
	Version    string
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.EndpointPath == "" {
		c.EndpointPath = DefaultEndpointPath
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.ServerName == "" {
		c.ServerName = "dockhand"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// Server hosts the MCP endpoint over HTTP.
type Server struct {
	cfg      Config
	registry *tools.Registry
	gate     *approval.Gate
	sessions *session.Manager

	httpServer *http.Server
	listener   net.Listener
	boundPort  int

	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
}

// New creates a server over the given tool registry and approval gate.
func New(cfg Config, registry *tools.Registry, gate *approval.Gate) *Server {
	cfg.applyDefaults()

	s := &Server{
		cfg:      cfg,
		registry: registry,
		gate:     gate,
		ready:    make(chan struct{}),
	}
	s.sessions = session.NewManager(s.newSession, cfg.SessionTTL)
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// newSession is the manager factory: each session gets its own tool server
// populated from the shared registry, and hooks to tear everything down.
func (s *Server) newSession(id string) *session.Session {
	srv := s.registry.NewSessionServer(id, s.cfg.ServerName, s.cfg.Version)
	sess := session.New(id, srv)
	sess.OnClose(func() {
		srv.UnregisterSession(context.Background(), id)
		s.registry.Unsubscribe(id)
		s.gate.CancelOwned(id)
	})
	return sess
}

// Handler returns the HTTP handler serving the MCP endpoint and the
// management surfaces. Exposed so tests can drive the server without a
// real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// bind claims a listener from the primary port range, falling back to a
// disjoint range with a smaller retry budget when every primary port is
// occupied. Only exhaustion of both ranges is fatal to the subsystem, and
// the error then names both ranges so the operator knows what was tried.
func (s *Server) bind(ctx context.Context) (net.Listener, error) {
	ln, err := networking.AllocateListener(ctx, s.cfg.Host, s.cfg.Port, s.cfg.PortRetries)
	if err == nil {
		return ln, nil
	}

	var exhausted *networking.RangeExhaustedError
	if !stderrors.As(err, &exhausted) {
		return nil, fmt.Errorf("failed to bind a listen port: %w", err)
	}

	logger.Warnf("Ports %d-%d are all occupied, trying fallback range at %d",
		exhausted.First, exhausted.Last, fallbackPort)

	ln, fbErr := networking.AllocateListener(ctx, s.cfg.Host, fallbackPort, fallbackRetries)
	if fbErr != nil {
		return nil, errors.NewPortConflictError(
			fmt.Sprintf("no free port in %d-%d or the fallback range %d-%d; stop a conflicting process or configure a different port",
				exhausted.First, exhausted.Last, fallbackPort, fallbackPort+fallbackRetries),
			fbErr)
	}
	return ln, nil
}

// Start binds a port and serves until ctx is cancelled or the listener
// fails. It returns only after the server has shut down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.bind(ctx)
	if err != nil {
		return err
	}
	s.listener = ln
	s.boundPort = ln.Addr().(*net.TCPAddr).Port

	if s.boundPort != s.cfg.Port {
		logger.Warnf("Preferred port %d was unavailable, listening on %d instead",
			s.cfg.Port, s.boundPort)
	}
	logger.Infof("MCP server listening on http://%s:%d%s", s.cfg.Host, s.boundPort, s.cfg.EndpointPath)

	s.readyOnce.Do(func() { close(s.ready) })

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		<-serveErr
		return nil
	case err := <-serveErr:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.NewInternalError("http server failed", err)
	}
}

// Stop shuts the server down gracefully, closing all live sessions.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Graceful shutdown failed, closing immediately: %v", err)
			_ = s.httpServer.Close()
		}
		s.sessions.Stop()
	})
}

// Ready is closed once the listener is bound and the port is final.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// BoundPort returns the port actually bound, valid after Ready.
func (s *Server) BoundPort() int {
	return s.boundPort
}

// URL returns the MCP endpoint URL, valid after Ready.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s:%d%s", s.cfg.Host, s.boundPort, s.cfg.EndpointPath)
}

// Sessions exposes the session manager, mainly for tests and diagnostics.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}
