package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/codec"
	"github.com/alfredjeanlab/peerledger/internal/events"
	"github.com/alfredjeanlab/peerledger/internal/ledger"
	"github.com/alfredjeanlab/peerledger/internal/ledger/memory"
	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/seal"
	"github.com/alfredjeanlab/peerledger/internal/store"
	"github.com/alfredjeanlab/peerledger/internal/wallet"
)

type testEnv struct {
	mem      *memory.Ledger
	store    *store.Store
	server   *FeedbackServer
	handler  http.Handler
	recorder *events.Recorder
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires a real store over an in-memory ledger. A nil key gives a
// read-only server.
func newTestEnv(t *testing.T, key *wallet.Key) *testEnv {
	t.Helper()
	sealKey, err := seal.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	box, err := seal.NewFromBase64(sealKey)
	if err != nil {
		t.Fatal(err)
	}

	mem := memory.New()
	opts := ledger.Options{Timeout: 2 * time.Second}
	var w ledger.Writer
	if key != nil {
		w = ledger.NewAuthenticated(mem, key, opts)
	}
	rec := &events.Recorder{}
	bc := NewBroadcaster(rec)
	st := store.New(ledger.NewReadOnly(mem, opts), w, box, bc, store.Config{}, quietLogger())
	srv := New(st, box, bc, quietLogger())
	return &testEnv{mem: mem, store: st, server: srv, handler: srv.NewHTTPHandler(""), recorder: rec}
}

func newKey(t *testing.T) *wallet.Key {
	t.Helper()
	k, err := wallet.GenerateKey(wallet.SchemeEd25519, nil)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type listResponse struct {
	Records []*model.Record `json:"records"`
	Total   int             `json:"total"`
}

func createBody(reviewee, category, project, comment string) map[string]string {
	return map[string]string{
		"reviewee":   reviewee,
		"category":   category,
		"project_id": project,
		"comment":    comment,
	}
}

func TestCreateAndList(t *testing.T) {
	key := newKey(t)
	env := newTestEnv(t, key)

	rec := doRequest(t, env.handler, "POST", "/v1/feedback", createBody("0xbb", "technical", "P1", "good work"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body)
	}
	created := decode[model.Record](t, rec)
	if created.Reviewer != key.Account() {
		t.Fatalf("reviewer = %q, want %q", created.Reviewer, key.Account())
	}
	if strings.Contains(created.Ciphertext, "good work") {
		t.Fatalf("ciphertext leaks comment: %q", created.Ciphertext)
	}

	rec = doRequest(t, env.handler, "GET", "/v1/feedback", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[listResponse](t, rec)
	if list.Total != 1 || len(list.Records) != 1 || list.Records[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	if topics := env.recorder.Topics(); len(topics) != 1 || topics[0] != events.TopicRecordCreated {
		t.Fatalf("published topics = %v", topics)
	}
}

func TestCreate_RejectsReviewerField(t *testing.T) {
	env := newTestEnv(t, newKey(t))
	body := createBody("0xbb", "technical", "P1", "x")
	body["reviewer"] = "0xaa"

	rec := doRequest(t, env.handler, "POST", "/v1/feedback", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreate_ValidationFields(t *testing.T) {
	env := newTestEnv(t, newKey(t))

	rec := doRequest(t, env.handler, "POST", "/v1/feedback", createBody("", "gossip", "", "x"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode[struct {
		Fields []model.FieldError `json:"fields"`
	}](t, rec)
	got := map[string]bool{}
	for _, f := range resp.Fields {
		got[f.Field] = true
	}
	if !got["reviewee"] || !got["category"] {
		t.Fatalf("fields = %+v", resp.Fields)
	}
	if keys, _ := env.mem.Keys(context.Background(), ""); len(keys) != 0 {
		t.Fatalf("ledger keys after invalid create = %v", keys)
	}
}

func TestCreate_ReadOnlyServer(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := doRequest(t, env.handler, "POST", "/v1/feedback", createBody("0xbb", "technical", "P1", "x"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCreate_LedgerDown(t *testing.T) {
	env := newTestEnv(t, newKey(t))
	env.mem.SetAvailable(false)
	rec := doRequest(t, env.handler, "POST", "/v1/feedback", createBody("0xbb", "technical", "P1", "x"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	// Listing degrades to empty rather than failing.
	rec = doRequest(t, env.handler, "GET", "/v1/feedback", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if list := decode[listResponse](t, rec); list.Total != 0 {
		t.Fatalf("list = %+v", list)
	}
}

func TestList_Filters(t *testing.T) {
	env := newTestEnv(t, newKey(t))
	for _, b := range []map[string]string{
		createBody("alice", "technical", "P1", "a"),
		createBody("bob", "communication", "P2", "b"),
		createBody("Alicia", "collaboration", "P3", "c"),
	} {
		if rec := doRequest(t, env.handler, "POST", "/v1/feedback", b); rec.Code != http.StatusCreated {
			t.Fatalf("create: %d %s", rec.Code, rec.Body)
		}
	}

	for _, tc := range []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?search=ali", 2},
		{"?search=ali&category=technical", 1},
		{"?category=all", 3},
		{"?search=p2", 1},
		{"?limit=2", 3},
		{"?since=2001-01-01", 3},
	} {
		t.Run(tc.query, func(t *testing.T) {
			rec := doRequest(t, env.handler, "GET", "/v1/feedback"+tc.query, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
			if list := decode[listResponse](t, rec); list.Total != tc.want {
				t.Fatalf("total = %d, want %d", list.Total, tc.want)
			}
		})
	}

	rec := doRequest(t, env.handler, "GET", "/v1/feedback?limit=2", nil)
	if list := decode[listResponse](t, rec); len(list.Records) != 2 {
		t.Fatalf("limit=2 returned %d records", len(list.Records))
	}
}

func TestList_BadParams(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, q := range []string{"?category=gossip", "?since=not-a-date", "?limit=-1", "?offset=x"} {
		if rec := doRequest(t, env.handler, "GET", "/v1/feedback"+q, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestGetFeedback_Reveal(t *testing.T) {
	env := newTestEnv(t, newKey(t))
	created := decode[model.Record](t, doRequest(t, env.handler, "POST", "/v1/feedback", createBody("0xbb", "technical", "P1", "good work")))

	rec := doRequest(t, env.handler, "GET", "/v1/feedback/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "good work") {
		t.Fatal("plain get returned plaintext")
	}

	rec = doRequest(t, env.handler, "GET", "/v1/feedback/"+created.ID+"?reveal=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reveal status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decode[struct {
		Payload model.Payload `json:"payload"`
	}](t, rec)
	if resp.Payload.Comment != "good work" || resp.Payload.Reviewee != "0xbb" {
		t.Fatalf("payload = %+v", resp.Payload)
	}

	if rec := doRequest(t, env.handler, "GET", "/v1/feedback/1700000000000-missingxxx", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", rec.Code)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, newKey(t))
	doRequest(t, env.handler, "POST", "/v1/feedback", createBody("a", "technical", "P1", "x"))
	doRequest(t, env.handler, "POST", "/v1/feedback", createBody("b", "technical", "P1", "x"))
	doRequest(t, env.handler, "POST", "/v1/feedback", createBody("c", "communication", "P1", "x"))

	rec := doRequest(t, env.handler, "GET", "/v1/stats", nil)
	stats := decode[struct {
		Total      int            `json:"total"`
		ByCategory map[string]int `json:"by_category"`
	}](t, rec)
	if stats.Total != 3 || stats.ByCategory["technical"] != 2 || stats.ByCategory["collaboration"] != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestOrphansAndRepair(t *testing.T) {
	env := newTestEnv(t, newKey(t))

	// A record that reached the ledger but never the index.
	orphan := &model.Record{ID: "1700000000000-orphanxxxx", Ciphertext: "c", CreatedAt: 1700000000, Reviewer: "0xaa", Reviewee: "0xbb", Category: model.CategoryTechnical}
	b, err := codec.EncodeRecord(orphan)
	if err != nil {
		t.Fatal(err)
	}
	env.mem.Raw(codec.RecordKey(orphan.ID), b)

	rec := doRequest(t, env.handler, "GET", "/v1/orphans", nil)
	orphans := decode[struct {
		Orphans []string `json:"orphans"`
	}](t, rec)
	if len(orphans.Orphans) != 1 || orphans.Orphans[0] != orphan.ID {
		t.Fatalf("orphans = %v", orphans.Orphans)
	}

	rec = doRequest(t, env.handler, "POST", "/v1/orphans/repair", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("repair status = %d, body = %s", rec.Code, rec.Body)
	}
	repaired := decode[struct {
		Repaired []string `json:"repaired"`
	}](t, rec)
	if len(repaired.Repaired) != 1 {
		t.Fatalf("repaired = %v", repaired.Repaired)
	}

	list := decode[listResponse](t, doRequest(t, env.handler, "GET", "/v1/feedback", nil))
	if list.Total != 1 || list.Records[0].ID != orphan.ID {
		t.Fatalf("list after repair = %+v", list)
	}
}

func TestHealth(t *testing.T) {
	key := newKey(t)
	env := newTestEnv(t, key)

	resp := decode[map[string]any](t, doRequest(t, env.handler, "GET", "/v1/health", nil))
	if resp["ledger"] != "ok" || resp["identity"] != key.Account() || resp["can_write"] != true {
		t.Fatalf("health = %v", resp)
	}

	env.mem.SetAvailable(false)
	resp = decode[map[string]any](t, doRequest(t, env.handler, "GET", "/v1/health", nil))
	if resp["ledger"] != "unavailable" {
		t.Fatalf("health while down = %v", resp)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)
	h := env.server.NewHTTPHandler("secret")

	for _, tc := range []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"HealthExempt", "/v1/health", "", http.StatusOK},
		{"Missing", "/v1/feedback", "", http.StatusUnauthorized},
		{"WrongScheme", "/v1/feedback", "Basic secret", http.StatusUnauthorized},
		{"WrongToken", "/v1/feedback", "Bearer nope", http.StatusUnauthorized},
		{"Valid", "/v1/feedback", "Bearer secret", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
