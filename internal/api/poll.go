package api

import (
	"net/http"
	"time"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/poller"
)

// pollRequest is the body for POST /poll.
type pollRequest struct {
	TicketID        int    `json:"ticket_id"`
	Signal          string `json:"signal"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
	RaiseOnTimeout  bool   `json:"raise_on_timeout,omitempty"`
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.TicketID <= 0 {
		respondBadRequest(w, "ticket_id is required")
		return
	}

	signal, err := core.ParseSignalType(req.Signal)
	if err != nil {
		respondError(w, err)
		return
	}

	timeout := 10 * time.Minute
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	var interval time.Duration
	if req.IntervalSeconds > 0 {
		interval = time.Duration(req.IntervalSeconds) * time.Second
	}

	result, err := s.poller.Poll(r.Context(), poller.Request{
		TicketID:       req.TicketID,
		Signal:         signal,
		Timeout:        timeout,
		Interval:       interval,
		RaiseOnTimeout: req.RaiseOnTimeout,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
