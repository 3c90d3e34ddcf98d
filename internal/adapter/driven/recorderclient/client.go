// Package recorderclient implements the issuer's RecorderClient port over the
// ballot recorder's server-to-server HTTP API.
package recorderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RecorderClient = (*Client)(nil)

// APIKeyHeader carries the shared S2S key on every request.
const APIKeyHeader = "X-API-Key"

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// Client calls the recorder's /s2s endpoints.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	apiKey  string
}

// NewClient creates a Client for the recorder at baseURL. timeout bounds each
// request in addition to the caller's context.
func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	return NewClientWithHTTPClient(&http.Client{Timeout: timeout}, baseURL, apiKey)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, apiKey string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing recorder URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("recorder URL %q must use http or https", baseURL)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("recorder API key is required")
	}
	return &Client{http: httpClient, baseURL: u, apiKey: apiKey}, nil
}

type registerHashRequest struct {
	Hash       string     `json:"hash"`
	ElectionID string     `json:"election_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type hashStatusResponse struct {
	Registered bool `json:"registered"`
	Used       bool `json:"used"`
}

type tallyResponse struct {
	ElectionID     string         `json:"election_id"`
	Total          int            `json:"total"`
	CountsByAnswer map[string]int `json:"counts_by_answer"`
}

// RegisterHash posts the hash to /s2s/register-hash.
func (c *Client) RegisterHash(ctx context.Context, reg driven.HashRegistration) error {
	body := registerHashRequest{Hash: reg.Hash, ElectionID: reg.ElectionID}
	if !reg.ExpiresAt.IsZero() {
		exp := reg.ExpiresAt.UTC()
		body.ExpiresAt = &exp
	}

	resp, err := c.do(ctx, http.MethodPost, "/s2s/register-hash", nil, body)
	if err != nil {
		return fmt.Errorf("register hash %s: %w", model.HashPrefix(reg.Hash), err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("register hash %s: %w", model.HashPrefix(reg.Hash), driven.ErrDuplicateHash)
	default:
		return fmt.Errorf("register hash %s: %w", model.HashPrefix(reg.Hash), statusError(resp))
	}
}

// HashStatus queries /s2s/credential-status for a hash.
func (c *Client) HashStatus(ctx context.Context, hash string) (driven.HashStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/s2s/credential-status", url.Values{"hash": {hash}}, nil)
	if err != nil {
		return driven.HashStatus{}, fmt.Errorf("hash status %s: %w", model.HashPrefix(hash), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return driven.HashStatus{}, fmt.Errorf("hash status %s: %w", model.HashPrefix(hash), statusError(resp))
	}

	var out hashStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return driven.HashStatus{}, fmt.Errorf("decode hash status: %w", err)
	}
	return driven.HashStatus{Registered: out.Registered, Used: out.Used}, nil
}

// Tally fetches /s2s/results. Counts are passed through unchanged; answers the
// recorder omits are reported as zero.
func (c *Client) Tally(ctx context.Context, electionID string) (model.Tally, error) {
	resp, err := c.do(ctx, http.MethodGet, "/s2s/results", url.Values{"election_id": {electionID}}, nil)
	if err != nil {
		return model.Tally{}, fmt.Errorf("fetch tally %s: %w", electionID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return model.Tally{}, fmt.Errorf("fetch tally %s: %w", electionID, statusError(resp))
	}

	var out tallyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Tally{}, fmt.Errorf("decode tally: %w", err)
	}

	tally := model.NewTally(electionID)
	tally.Total = out.Total
	for answer, n := range out.CountsByAnswer {
		tally.Counts[model.Answer(answer)] = n
	}
	return tally, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driven.ErrUnavailable, err)
	}
	return resp, nil
}

// statusError turns a non-success response into an error. Server errors are
// reported as ErrUnavailable.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
		if body.Code != "" {
			msg = body.Code + ": " + body.Error
		}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: recorder returned %d: %s", driven.ErrUnavailable, resp.StatusCode, msg)
	}
	return fmt.Errorf("recorder returned %d: %s", resp.StatusCode, msg)
}
