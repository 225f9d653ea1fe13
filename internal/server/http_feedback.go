package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/araddon/dateparse"

	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/query"
	"github.com/alfredjeanlab/peerledger/internal/store"
)

// handleListFeedback handles GET /v1/feedback.
func (s *FeedbackServer) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.records.ListAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeRecords(w, records, filter)
}

// handleRefreshFeedback handles POST /v1/feedback/refresh.
func (s *FeedbackServer) handleRefreshFeedback(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.records.Refresh(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeRecords(w, records, filter)
}

func writeRecords(w http.ResponseWriter, records []*model.Record, filter model.RecordFilter) {
	unpaged := filter
	unpaged.Limit, unpaged.Offset = 0, 0
	total := len(query.Apply(records, unpaged))
	writeJSON(w, http.StatusOK, map[string]any{
		"records": query.Apply(records, filter),
		"total":   total,
	})
}

// handleCreateFeedback handles POST /v1/feedback. The reviewer is the
// server's wallet account; a reviewer field in the body is rejected.
func (s *FeedbackServer) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var in model.CreateInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	rec, err := s.records.Create(r.Context(), in)
	var idxErr *store.IndexAppendError
	switch {
	case errors.As(err, &idxErr):
		// The record is durable but not yet listed.
		writeJSON(w, http.StatusAccepted, map[string]any{
			"record":   rec,
			"orphaned": true,
			"error":    idxErr.Error(),
		})
		return
	case err != nil:
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleGetFeedback handles GET /v1/feedback/{id}. With ?reveal=true the
// decrypted payload is returned alongside the record.
func (s *FeedbackServer) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	reveal, _ := strconv.ParseBool(r.URL.Query().Get("reveal"))
	if reveal && s.decrypter == nil {
		writeError(w, http.StatusNotImplemented, "server has no seal key")
		return
	}

	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !reveal {
		writeJSON(w, http.StatusOK, rec)
		return
	}

	payload, err := s.decrypter.Decrypt(rec.Ciphertext)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("decrypt: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec, "payload": payload})
}

// handleStats handles GET /v1/stats.
func (s *FeedbackServer) handleStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.records.ListAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	filter.Limit, filter.Offset = 0, 0
	writeJSON(w, http.StatusOK, query.Summarize(query.Apply(records, filter)))
}

// handleListOrphans handles GET /v1/orphans.
func (s *FeedbackServer) handleListOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.records.Orphans(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if orphans == nil {
		orphans = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orphans": orphans})
}

type repairRequest struct {
	IDs []string `json:"ids"`
}

// handleRepairOrphans handles POST /v1/orphans/repair. An empty id list
// repairs every orphan currently detected.
func (s *FeedbackServer) handleRepairOrphans(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	ids := req.IDs
	if len(ids) == 0 {
		var err error
		if ids, err = s.records.Orphans(r.Context()); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	repaired, err := s.records.Repair(r.Context(), ids)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if repaired == nil {
		repaired = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"repaired": repaired})
}

// parseFilter reads search, category, reviewer, since, limit and offset.
// since accepts any format dateparse understands.
func parseFilter(q url.Values) (model.RecordFilter, error) {
	f := model.RecordFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Reviewer: q.Get("reviewer"),
	}
	if f.Category != "" && f.Category != model.CategoryAll && !model.Category(f.Category).IsValid() {
		return f, fmt.Errorf("unknown category %q", f.Category)
	}
	if v := q.Get("since"); v != "" {
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return f, fmt.Errorf("invalid since: %w", err)
		}
		f.Since = t
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid %s %q", name, v)
		}
		*dst = n
	}
	return f, nil
}
