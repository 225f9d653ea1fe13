package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/store"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *FeedbackServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/feedback", s.handleListFeedback)
	mux.HandleFunc("POST /v1/feedback", s.handleCreateFeedback)
	mux.HandleFunc("POST /v1/feedback/refresh", s.handleRefreshFeedback)
	mux.HandleFunc("GET /v1/feedback/{id}", s.handleGetFeedback)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/orphans", s.handleListOrphans)
	mux.HandleFunc("POST /v1/orphans/repair", s.handleRepairOrphans)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return RequestLogger(s.logger, AuthMiddleware(authToken, mux))
}

// handleHealth handles GET /v1/health.
func (s *FeedbackServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ledgerStatus := "ok"
	if !s.records.Available(r.Context()) {
		ledgerStatus = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"ledger":    ledgerStatus,
		"identity":  s.records.Identity(),
		"can_write": s.records.CanWrite(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps a store error onto a status code by its failure class.
func writeStoreError(w http.ResponseWriter, err error) {
	switch store.Classify(err) {
	case store.FailureInput:
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "fields": ve.Errors})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	case store.FailureWallet:
		writeError(w, http.StatusForbidden, err.Error())
	case store.FailureLedger:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case store.FailureNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
