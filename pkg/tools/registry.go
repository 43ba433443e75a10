package tools

import (
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dockhand-sh/dockhand/pkg/logger"
)

// entry pairs a definition with its compiled input schema.
type entry struct {
	def    Definition
	schema *gojsonschema.Schema
}

// Registry is the catalog of callable tools. It is read-mostly after
// startup but safe for concurrent registration; a registration performed
// while sessions are live is propagated to every subscribed session's tool
// server so in-flight sessions do not miss newly added tools.
//
// Name collisions replace the existing definition and log a warning.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// sinks are the per-session tool servers currently live, keyed by
	// session id. New registrations are pushed to each of them.
	sinks map[string]*mcpserver.MCPServer
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		sinks:   make(map[string]*mcpserver.MCPServer),
	}
}

// Register adds a tool definition to the registry and pushes it to every
// live session. A definition whose name collides with an existing one
// replaces it; the replacement is logged, not rejected.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}

	var schema *gojsonschema.Schema
	if len(def.InputSchema) > 0 {
		var err error
		schema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(def.InputSchema))
		if err != nil {
			return fmt.Errorf("tool %q has an invalid input schema: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		logger.Warnf("Tool %q already registered, replacing", def.Name)
	}
	e := &entry{def: def, schema: schema}
	r.entries[def.Name] = e

	for id, sink := range r.sinks {
		sink.AddTool(e.tool(), r.handlerFor(e))
		logger.Debugw("pushed tool to live session", "tool", def.Name, "session_id", id)
	}
	return nil
}

// MustRegister adds a tool definition and panics on error.
// Use this for the static catalog at process start.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// NewSessionServer constructs a fresh tool-invocation server populated with
// every entry currently in the registry and subscribes it for future
// registrations. The caller owns the returned server and must call
// Unsubscribe with the same session id when the session closes.
func (r *Registry) NewSessionServer(sessionID, serverName, serverVersion string) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		serverName,
		serverVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		srv.AddTool(e.tool(), r.handlerFor(e))
	}
	r.sinks[sessionID] = srv
	return srv
}

// Unsubscribe stops pushing registrations to the session's tool server.
func (r *Registry) Unsubscribe(sessionID string) {
	r.mu.Lock()
	delete(r.sinks, sessionID)
	r.mu.Unlock()
}

// SessionCount returns the number of subscribed session servers.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// tool converts the entry to the wire-level tool description.
func (e *entry) tool() mcp.Tool {
	return mcp.Tool{
		Name:           e.def.Name,
		Description:    e.def.Description,
		RawInputSchema: e.def.InputSchema,
	}
}
