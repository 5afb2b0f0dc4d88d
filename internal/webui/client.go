// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package webui serves the HTML frontend. It holds no account state of its
// own; every user-visible fact is fetched from the backend per request.
package webui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// backendTimeout bounds every call to the backend. The frontend renders an
// error partial rather than hanging on a stuck backend.
const backendTimeout = 10 * time.Second

// Client talks to the backend HTTP API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a backend client for baseURL (e.g. "http://127.0.0.1:8090").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: backendTimeout},
	}
}

// AuthResult is the outcome of a signup or login call.
type AuthResult struct {
	OK         bool
	Token      string
	StatusCode int
	Reason     string
}

// backendUser mirrors the user payload in backend lookup responses.
type backendUser struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Newsletter bool   `json:"newsletter"`
}

type lookupResponse struct {
	Success bool         `json:"success"`
	Reason  string       `json:"reason"`
	User    *backendUser `json:"user"`
}

// UsernameForSession resolves a session token to a username. Returns ""
// when the token is unknown; errors mean the backend could not be asked.
func (c *Client) UsernameForSession(ctx context.Context, token string) (string, error) {
	endpoint := c.baseURL + "/user/get_by_session_id?" + url.Values{"session_id": {token}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", oops.Code("BACKEND_REQUEST_FAILED").Wrap(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", oops.Code("BACKEND_UNREACHABLE").With("endpoint", "/user/get_by_session_id").Wrap(err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return "", oops.Code("BACKEND_REQUEST_FAILED").
			With("endpoint", "/user/get_by_session_id").
			With("status", resp.StatusCode).
			Errorf("unexpected backend status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", oops.Code("BACKEND_BAD_RESPONSE").Wrap(err)
	}
	if body.User == nil {
		return "", nil
	}
	return body.User.Username, nil
}

// Login authenticates against the backend. If existingToken is non-empty
// the backend reuses it unchanged.
func (c *Client) Login(ctx context.Context, username, password, existingToken string) (*AuthResult, error) {
	params := url.Values{
		"username": {username},
		"password": {password},
	}
	if existingToken != "" {
		params.Set("session_id", existingToken)
	}
	return c.authCall(ctx, "/user/login", params)
}

// CreateUser registers a new account through the backend.
func (c *Client) CreateUser(ctx context.Context, username, password, email string, newsletter bool) (*AuthResult, error) {
	params := url.Values{
		"username":   {username},
		"password":   {password},
		"email":      {email},
		"newsletter": {"False"},
	}
	if newsletter {
		params.Set("newsletter", "True")
	}
	return c.authCall(ctx, "/user/create", params)
}

// CountUsers returns the total number of accounts known to the backend.
func (c *Client) CountUsers(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user/count", nil)
	if err != nil {
		return 0, oops.Code("BACKEND_REQUEST_FAILED").Wrap(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, oops.Code("BACKEND_UNREACHABLE").With("endpoint", "/user/count").Wrap(err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return 0, oops.Code("BACKEND_REQUEST_FAILED").
			With("endpoint", "/user/count").
			With("status", resp.StatusCode).
			Errorf("unexpected backend status %d", resp.StatusCode)
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, oops.Code("BACKEND_BAD_RESPONSE").Wrap(err)
	}
	return body.Count, nil
}

// authCall posts credentials and extracts the session cookie plus the JSON
// reason string the backend returns on failure.
func (c *Client) authCall(ctx context.Context, path string, params url.Values) (*AuthResult, error) {
	endpoint := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, oops.Code("BACKEND_REQUEST_FAILED").Wrap(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, oops.Code("BACKEND_UNREACHABLE").With("endpoint", path).Wrap(err)
	}
	defer closeBody(resp)

	result := &AuthResult{StatusCode: resp.StatusCode}

	var reason string
	if err := json.NewDecoder(resp.Body).Decode(&reason); err == nil {
		result.Reason = reason
	}

	if resp.StatusCode != http.StatusOK {
		return result, nil
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session_id" {
			result.Token = cookie.Value
		}
	}
	result.OK = true
	return result, nil
}

func closeBody(resp *http.Response) {
	//nolint:errcheck // drain so the transport can reuse the connection
	io.Copy(io.Discard, resp.Body)
	//nolint:errcheck // close error on a read-only body is not actionable
	resp.Body.Close()
}
