package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/query"
	"github.com/alfredjeanlab/peerledger/internal/store"
)

// HTTPClient implements the record operations against the feedback HTTP API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a client targeting baseURL (e.g.
// "http://localhost:8080"). When token is non-empty, an Authorization header
// is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// Create submits a new record. The server signs it with its own wallet. A
// record that was written but not indexed comes back together with a
// *store.IndexAppendError, as from store.Store.Create.
func (c *HTTPClient) Create(ctx context.Context, in model.CreateInput) (*model.Record, error) {
	var resp struct {
		model.Record
		Orphaned bool          `json:"orphaned"`
		Nested   *model.Record `json:"record"`
		Error    string        `json:"error"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/feedback", in, &resp); err != nil {
		return nil, err
	}
	if resp.Orphaned && resp.Nested != nil {
		return resp.Nested, &store.IndexAppendError{ID: resp.Nested.ID, Err: fmt.Errorf("%w: %s", errOrphaned, resp.Error)}
	}
	rec := resp.Record
	return &rec, nil
}

// List returns the records matching f, already filtered and paged by the
// server.
func (c *HTTPClient) List(ctx context.Context, f model.RecordFilter) (*ListResponse, error) {
	var resp ListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/feedback"+filterQuery(f), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAll returns every listed record.
func (c *HTTPClient) ListAll(ctx context.Context) ([]*model.Record, error) {
	resp, err := c.List(ctx, model.RecordFilter{})
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Refresh asks the server to re-read every record from the ledger.
func (c *HTTPClient) Refresh(ctx context.Context) ([]*model.Record, error) {
	var resp ListResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/feedback/refresh", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *HTTPClient) Get(ctx context.Context, id string) (*model.Record, error) {
	var rec model.Record
	if err := c.doJSON(ctx, http.MethodGet, "/v1/feedback/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Reveal fetches a record with its payload decrypted by the server's seal key.
func (c *HTTPClient) Reveal(ctx context.Context, id string) (*model.Record, *model.Payload, error) {
	var resp struct {
		Record  *model.Record  `json:"record"`
		Payload *model.Payload `json:"payload"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/feedback/"+url.PathEscape(id)+"?reveal=true", nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Record, resp.Payload, nil
}

func (c *HTTPClient) Stats(ctx context.Context, f model.RecordFilter) (query.Stats, error) {
	var stats query.Stats
	err := c.doJSON(ctx, http.MethodGet, "/v1/stats"+filterQuery(f), nil, &stats)
	return stats, err
}

func (c *HTTPClient) Orphans(ctx context.Context) ([]string, error) {
	var resp struct {
		Orphans []string `json:"orphans"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/orphans", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orphans, nil
}

// Repair asks the server to re-index ids. An empty ids repairs every orphan
// the server finds.
func (c *HTTPClient) Repair(ctx context.Context, ids []string) ([]string, error) {
	var resp struct {
		Repaired []string `json:"repaired"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orphans/repair", map[string][]string{"ids": ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Repaired, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Available reports whether the server answers and its ledger is up.
func (c *HTTPClient) Available(ctx context.Context) bool {
	h, err := c.Health(ctx)
	return err == nil && h.Ledger == "ok"
}

func filterQuery(f model.RecordFilter) string {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Category != "" && f.Category != model.CategoryAll {
		q.Set("category", f.Category)
	}
	if f.Reviewer != "" {
		q.Set("reviewer", f.Reviewer)
	}
	if !f.Since.IsZero() {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string             `json:"error"`
			Fields []model.FieldError `json:"fields"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Fields: errResp.Fields}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
