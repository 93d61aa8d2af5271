package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/hub"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req hub.AskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	result, err := s.hub.AskExpert(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.CloseSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	status := core.EscalationStatus(r.URL.Query().Get("status"))
	switch status {
	case "", core.EscalationStatusPending, core.EscalationStatusResolved:
	default:
		respondBadRequest(w, "unknown escalation status "+string(status))
		return
	}

	escalations, err := s.hub.ListEscalations(r.Context(), status)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"escalations": escalations,
		"count":       len(escalations),
	})
}

func (s *Server) handleGetEscalation(w http.ResponseWriter, r *http.Request) {
	esc, err := s.hub.CheckEscalation(r.Context(), chi.URLParam(r, "escalationID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, esc)
}

// resolveEscalationRequest is the body for POST /escalations/{id}/resolve.
// The escalation id comes from the URL.
type resolveEscalationRequest struct {
	Action    string `json:"action"`
	Responder string `json:"responder"`
	Payload   string `json:"payload,omitempty"`
}

func (s *Server) handleResolveEscalation(w http.ResponseWriter, r *http.Request) {
	var req resolveEscalationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	result, err := s.hub.ResolveEscalation(r.Context(), hub.ResolveRequest{
		EscalationID: chi.URLParam(r, "escalationID"),
		Action:       req.Action,
		Responder:    req.Responder,
		Payload:      req.Payload,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
