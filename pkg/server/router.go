package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/jsonrpc2"

	"github.com/dockhand-sh/dockhand/pkg/logger"
	"github.com/dockhand-sh/dockhand/pkg/session"
	"github.com/dockhand-sh/dockhand/pkg/telemetry"
)

const (
	// sessionHeader carries the session identifier on every request after
	// the initialize handshake.
	sessionHeader = "Mcp-Session-Id"

	// maxBodySize caps the POST body to guard against unbounded reads.
	maxBodySize = 4 << 20 // 4 MB

	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
)

// JSON-RPC error codes used by the transport layer.
const (
	codeParseError      = -32700
	codeInvalidRequest  = -32600
	codeSessionNotFound = -32001
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverMiddleware)

	r.Route(s.cfg.EndpointPath, func(r chi.Router) {
		r.Post("/", s.handlePost)
		r.Get("/", s.handleSSE)
		r.Delete("/", s.handleDelete)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/approvals", s.handleListApprovals)
	r.Post("/approvals/{id}/approve", s.handleApprove)
	r.Post("/approvals/{id}/cancel", s.handleCancel)

	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", telemetry.Handler())
	}
	return r
}

// handlePost accepts a single JSON-RPC message. Requests get a JSON
// response; notifications are acknowledged with 202 and no body.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, codeParseError, "failed to read request body")
		return
	}

	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		// Batching was removed from the streamable transport.
		writeRPCError(w, http.StatusBadRequest, codeInvalidRequest, "batch messages are not supported")
		return
	}

	msg, err := jsonrpc2.DecodeMessage(body)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, codeParseError, fmt.Sprintf("invalid JSON-RPC message: %v", err))
		return
	}
	req, ok := msg.(*jsonrpc2.Request)
	if !ok {
		writeRPCError(w, http.StatusBadRequest, codeInvalidRequest, "expected a request or notification")
		return
	}

	sess, status, errMsg := s.sessionFor(r, req)
	if sess == nil {
		writeRPCError(w, status, codeFor(status), errMsg)
		return
	}

	ctx := sess.Server().WithContext(r.Context(), sess)
	resp := sess.Server().HandleMessage(ctx, body)

	if resp == nil {
		// Notification: nothing to return.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	out, err := json.Marshal(resp)
	if err != nil {
		writeRPCError(w, http.StatusInternalServerError, codeInvalidRequest, "failed to encode response")
		return
	}

	if req.Method == methodInitialize {
		// A handshake that failed, or whose client went away mid-flight,
		// must not leave a session entry behind. The error response goes
		// back without a session id since none was established.
		if r.Context().Err() != nil || isErrorEnvelope(out) {
			s.sessions.Delete(sess.ID())
			if r.Context().Err() != nil {
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(out)
			return
		}
		sess.Initialize()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(sessionHeader, sess.ID())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// isErrorEnvelope reports whether an encoded JSON-RPC message carries an
// error member.
func isErrorEnvelope(msg []byte) bool {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(msg, &env) != nil {
		return false
	}
	return len(env.Error) > 0 && string(env.Error) != "null"
}

// sessionFor resolves the session a message belongs to. An initialize
// request mints a new session; everything else must carry a known id and
// an initialized session, except the initialized notification itself.
func (s *Server) sessionFor(r *http.Request, req *jsonrpc2.Request) (*session.Session, int, string) {
	id := r.Header.Get(sessionHeader)

	if req.Method == methodInitialize {
		if id != "" {
			return nil, http.StatusBadRequest, "initialize must not carry a session id"
		}
		sess, err := s.createSession(r)
		if err != nil {
			return nil, http.StatusInternalServerError, err.Error()
		}
		return sess, 0, ""
	}

	if id == "" {
		return nil, http.StatusBadRequest, "missing " + sessionHeader + " header"
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, http.StatusNotFound, "session not found"
	}
	if !sess.Initialized() && req.Method != methodInitialized {
		return nil, http.StatusBadRequest, "session is not initialized"
	}
	return sess, 0, ""
}

func (s *Server) createSession(r *http.Request) (*session.Session, error) {
	sess, err := s.sessions.Create()
	if err != nil {
		return nil, err
	}
	if err := sess.Server().RegisterSession(r.Context(), sess); err != nil {
		s.sessions.Delete(sess.ID())
		return nil, err
	}
	return sess, nil
}

// handleSSE opens the server-to-client push stream. A request without a
// session id begins a fresh session; its id is returned in the response
// headers before the stream starts.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var sess *session.Session
	created := false
	if id := r.Header.Get(sessionHeader); id != "" {
		var found bool
		sess, found = s.sessions.Get(id)
		if !found {
			writeRPCError(w, http.StatusNotFound, codeSessionNotFound, "session not found")
			return
		}
	} else {
		var err error
		sess, err = s.createSession(r)
		if err != nil {
			writeRPCError(w, http.StatusInternalServerError, codeInvalidRequest, err.Error())
			return
		}
		created = true
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionHeader, sess.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Debugf("SSE stream attached to session %s", sess.ID())

	for {
		select {
		case <-r.Context().Done():
			// A stream that opened a session but never completed the
			// handshake leaves nothing worth keeping.
			if created && !sess.Initialized() {
				s.sessions.Delete(sess.ID())
			}
			return
		case <-sess.Done():
			return
		case note := <-sess.Notifications():
			data, err := json.Marshal(note)
			if err != nil {
				logger.Warnf("Dropping unencodable notification on session %s: %v", sess.ID(), err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleDelete terminates a session. Deleting an unknown or already
// deleted session reports 404.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		writeRPCError(w, http.StatusBadRequest, codeInvalidRequest, "missing "+sessionHeader+" header")
		return
	}
	if !s.sessions.Delete(id) {
		writeRPCError(w, http.StatusNotFound, codeSessionNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func codeFor(status int) int {
	if status == http.StatusNotFound {
		return codeSessionNotFound
	}
	return codeInvalidRequest
}

// writeRPCError writes a JSON-RPC error envelope with a null id, which is
// what transport-level failures use since no request was accepted.
func writeRPCError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
