package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	featureID := chi.URLParam(r, "featureID")
	records, err := s.audit.List(r.Context(), featureID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"feature_id": featureID,
		"records":    records,
		"count":      len(records),
	})
}

func (s *Server) handleAuditChain(w http.ResponseWriter, r *http.Request) {
	featureID := chi.URLParam(r, "featureID")
	recordID := chi.URLParam(r, "recordID")

	chain, err := s.audit.Chain(r.Context(), featureID, recordID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"feature_id": featureID,
		"record_id":  recordID,
		"chain":      chain,
	})
}
