package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/specforge/specforge/internal/core"
)

// createWorkflowRequest is the body for POST /workflows.
type createWorkflowRequest struct {
	WorkflowType string                 `json:"workflow_type"`
	Description  string                 `json:"description"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// advanceWorkflowRequest is the body for POST /workflows/{id}/advance.
type advanceWorkflowRequest struct {
	Trigger string                 `json:"trigger"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	wf, err := s.engine.Create(r.Context(), core.WorkflowType(req.WorkflowType), req.Description, req.Context)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.engine.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := workflows[:0]
		for _, wf := range workflows {
			if wf.Status == core.WorkflowStatus(status) {
				filtered = append(filtered, wf)
			}
		}
		workflows = filtered
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := core.WorkflowID(chi.URLParam(r, "workflowID"))
	wf, err := s.engine.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

func (s *Server) handleWorkflowHistory(w http.ResponseWriter, r *http.Request) {
	id := core.WorkflowID(chi.URLParam(r, "workflowID"))
	history, err := s.engine.History(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflow_id": id,
		"history":     history,
		"count":       len(history),
	})
}

func (s *Server) handleAdvanceWorkflow(w http.ResponseWriter, r *http.Request) {
	id := core.WorkflowID(chi.URLParam(r, "workflowID"))

	var req advanceWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Trigger == "" {
		respondBadRequest(w, "trigger is required")
		return
	}

	wf, err := s.engine.Advance(r.Context(), id, core.Trigger(req.Trigger), req.Payload)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}
