// Package client provides a typed Go client for the FusionIntel HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pnku766-alt/fusionintel-core/pkg/api"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Status    int
	Title     string
	Detail    string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fusionintel api %d: %s: %s (request %s)", e.Status, e.Title, e.Detail, e.RequestID)
}

// Client is a typed client for the FusionIntel API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// New creates a new Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if rid := api.RequestIDFrom(ctx); rid != "" {
		req.Header.Set(api.RequestIDHeader, rid)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode), RequestID: resp.Header.Get(api.RequestIDHeader)}
		var problem api.ProblemDetail
		if err := json.NewDecoder(resp.Body).Decode(&problem); err == nil {
			apiErr.Title = problem.Title
			apiErr.Detail = problem.Detail
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// NewProcessRequest marshals policy and envelope documents into a request.
// Either may be nil.
func NewProcessRequest(policy, envelope any, opts api.ProcessOptions) (api.ProcessRequest, error) {
	req := api.ProcessRequest{Options: opts}
	var err error
	if policy != nil {
		if req.Policy, err = json.Marshal(policy); err != nil {
			return api.ProcessRequest{}, fmt.Errorf("marshal policy: %w", err)
		}
	}
	if envelope != nil {
		if req.Envelope, err = json.Marshal(envelope); err != nil {
			return api.ProcessRequest{}, fmt.Errorf("marshal envelope: %w", err)
		}
	}
	return req, nil
}

// Process calls POST /v1/process.
func (c *Client) Process(ctx context.Context, req api.ProcessRequest) (*api.ProcessResponse, error) {
	var out api.ProcessResponse
	if err := c.do(ctx, http.MethodPost, "/v1/process", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health calls GET /healthz.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}
