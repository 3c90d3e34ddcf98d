// Package membership implements the MembershipVerifier port against the
// external identity provider's token introspection endpoint.
package membership

import (
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
var _ driven.MembershipVerifier = (*Verifier)(nil)

// Verifier forwards the caller's bearer token to the provider and reads back
// the caller's stable identifier and voting eligibility.
type Verifier struct {
	http     *http.Client
	endpoint string
}

// NewVerifier creates a Verifier for the provider's introspection endpoint.
func NewVerifier(endpoint string, timeout time.Duration) (*Verifier, error) {
	return NewVerifierWithHTTPClient(&http.Client{Timeout: timeout}, endpoint)
}

// NewVerifierWithHTTPClient creates a Verifier with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewVerifierWithHTTPClient(httpClient *http.Client, endpoint string) (*Verifier, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing membership endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("membership endpoint %q must use http or https", endpoint)
	}
	return &Verifier{http: httpClient, endpoint: u.String()}, nil
}

type introspection struct {
	UID      string `json:"uid"`
	Eligible bool   `json:"eligible"`
}

// Verify resolves token. A rejected or malformed token yields ErrUnauthenticated;
// transport and server failures yield ErrUnavailable.
func (v *Verifier) Verify(ctx context.Context, token string) (model.Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Caller{}, driven.ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return model.Caller{}, fmt.Errorf("create membership request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return model.Caller{}, fmt.Errorf("verify caller: %w: %v", driven.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.Caller{}, driven.ErrUnauthenticated
	case resp.StatusCode >= http.StatusInternalServerError:
		return model.Caller{}, fmt.Errorf("verify caller: %w: provider returned %d", driven.ErrUnavailable, resp.StatusCode)
	default:
		return model.Caller{}, fmt.Errorf("verify caller: provider returned %d", resp.StatusCode)
	}

	var out introspection
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return model.Caller{}, fmt.Errorf("decode membership response: %w", err)
	}
	if strings.TrimSpace(out.UID) == "" {
		return model.Caller{}, driven.ErrUnauthenticated
	}
	return model.Caller{ID: out.UID, Eligible: out.Eligible}, nil
}
