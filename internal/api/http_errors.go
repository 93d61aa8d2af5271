package api

import (
	"errors"
	"net/http"

	"github.com/specforge/specforge/internal/core"
)

// errorResponse is the JSON body for all error responses.
type errorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// httpStatusForDomainError maps a domain error category to an HTTP status.
func httpStatusForDomainError(err *core.DomainError) int {
	switch err.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity
	case core.ErrCatNotFound:
		return http.StatusNotFound
	case core.ErrCatConflict, core.ErrCatState:
		return http.StatusConflict
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError translates an error into a JSON error response. Domain errors
// keep their code and details; anything else becomes a 500.
func respondError(w http.ResponseWriter, err error) {
	var domErr *core.DomainError
	if errors.As(err, &domErr) && domErr != nil {
		respondJSON(w, httpStatusForDomainError(domErr), errorResponse{
			Error:   domErr.Message,
			Code:    domErr.Code,
			Details: domErr.Details,
		})
		return
	}
	respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// respondBadRequest reports a malformed request body or parameter.
func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "BAD_REQUEST"})
}
