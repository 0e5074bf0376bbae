// Package backend is a typed client for the reading-tracker profile API.
//
// Every request carries the bearer credential, a User-Agent and an
// X-Request-ID. Failures come back as *NetworkError, *ServerError or
// *ParseError so callers can tell transport trouble from a rejecting server.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/readtrack/profilesync/internal/ioutil"
	"github.com/readtrack/profilesync/internal/log"
	"github.com/readtrack/profilesync/internal/urlutil"
)

const (
	DefaultProfilePath = "/api/auth/profile/"
	DefaultUpdatePath  = "/api/auth/user/profile/update"
	DefaultTimeout     = 15 * time.Second
	DefaultUserAgent   = "readtrack-profilesync"

	RequestIDHeader = "X-Request-ID"
)

// ProfileResponse is the body of a successful profile fetch. Fields are
// pointers so an absent field can be told apart from an empty one.
type ProfileResponse struct {
	Username *string `json:"username,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

// UpdateRequest is the body of a profile update
type UpdateRequest struct {
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
}

// errorBody is the JSON failure body of the profile endpoint
type errorBody struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Client talks to the profile API
type Client struct {
	baseURL     string
	profilePath string
	updatePath  string
	userAgent   string
	timeout     time.Duration
	httpClient  *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithTimeout bounds every request. Zero disables the per-request timeout;
// the caller's context still applies.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// WithPaths overrides the endpoint paths. Empty values keep the defaults.
func WithPaths(profilePath, updatePath string) Option {
	return func(cl *Client) {
		if profilePath != "" {
			cl.profilePath = profilePath
		}
		if updatePath != "" {
			cl.updatePath = updatePath
		}
	}
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL has no host: %q", baseURL)
	}

	c := &Client{
		baseURL:     baseURL,
		profilePath: DefaultProfilePath,
		updatePath:  DefaultUpdatePath,
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetProfile fetches the signed-in reader's profile
func (c *Client) GetProfile(ctx context.Context, token string) (*ProfileResponse, error) {
	const op = "fetch profile"

	resp, reqID, cancel, err := c.do(ctx, op, http.MethodGet, c.profilePath, token, nil)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseJSONError(op, reqID, resp)
	}

	var profile ProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, &ParseError{Op: op, RequestID: reqID, Err: err}
	}
	return &profile, nil
}

// UpdateProfile persists both profile fields
func (c *Client) UpdateProfile(ctx context.Context, token string, req UpdateRequest) error {
	const op = "update profile"

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", op, err)
	}

	resp, reqID, cancel, err := c.do(ctx, op, http.MethodPost, c.updatePath, token, body)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ServerError{
			Op:         op,
			RequestID:  reqID,
			StatusCode: resp.StatusCode,
			Message:    ioutil.ReadLimited(resp.Body, ioutil.DefaultErrorBodyLimit),
		}
	}
	return nil
}

// do sends the request. On success the caller owns the response body and
// must call cancel once done with it.
func (c *Client) do(ctx context.Context, op, method, path, token string, body []byte) (*http.Response, string, context.CancelFunc, error) {
	if token == "" {
		return nil, "", nil, ErrMissingToken
	}

	endpoint, err := urlutil.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%s: building URL: %w", op, err)
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		cancel()
		return nil, "", nil, fmt.Errorf("%s: creating request: %w", op, err)
	}

	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, reqID, nil, &NetworkError{Op: op, RequestID: reqID, Err: err}
	}

	log.LogDebugWithFields("backend", "Request completed", map[string]any{
		"op":        op,
		"method":    method,
		"path":      path,
		"status":    resp.StatusCode,
		"requestId": reqID,
		"duration":  time.Since(start).String(),
	})
	return resp, reqID, cancel, nil
}

// parseJSONError decodes a {message, field} failure body, falling back to
// the raw text when the server sent something else.
func parseJSONError(op, reqID string, resp *http.Response) *ServerError {
	raw := ioutil.ReadLimited(resp.Body, ioutil.DefaultErrorBodyLimit)
	se := &ServerError{Op: op, RequestID: reqID, StatusCode: resp.StatusCode}

	var body errorBody
	if err := json.Unmarshal([]byte(raw), &body); err == nil && body.Message != "" {
		se.Message = body.Message
		se.Field = body.Field
		return se
	}
	se.Message = raw
	return se
}
