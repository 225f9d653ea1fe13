// Package client talks to a running `fb serve` over its HTTP/JSON API. Its
// errors unwrap to the same sentinels and typed errors the record store
// returns, so store.Classify works on them unchanged.
package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/store"
)

// ListResponse is one page of GET /v1/feedback.
type ListResponse struct {
	Records []*model.Record `json:"records"`
	Total   int             `json:"total"`
}

// Health is the server's GET /v1/health report.
type Health struct {
	Status   string `json:"status"`
	Ledger   string `json:"ledger"`
	Identity string `json:"identity"`
	CanWrite bool   `json:"can_write"`
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []model.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code back onto the store's error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		if len(e.Fields) > 0 {
			return &model.ValidationError{Errors: e.Fields}
		}
	case http.StatusForbidden:
		return ledger.ErrNoSigner
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusServiceUnavailable:
		return ledger.ErrUnavailable
	}
	return nil
}

// errOrphaned is the cause reported for a 202 create: the server wrote the
// record but could not index it.
var errOrphaned = errors.New("index append failed on server")
