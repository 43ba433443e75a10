package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListApprovals returns the pending approval requests, oldest first.
func (s *Server) handleListApprovals(w http.ResponseWriter, _ *http.Request) {
	pending := s.gate.Pending()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"pending": pending})
}

// handleApprove resolves a pending approval in favour of the operation.
// Resolving an unknown or already resolved id reports 404.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.gate.Approve(id) {
		http.Error(w, "no pending approval with that id", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCancel resolves a pending approval as declined.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.gate.Cancel(id) {
		http.Error(w, "no pending approval with that id", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
