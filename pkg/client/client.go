package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/brokerfleet/pkg/api"
	"github.com/cuemby/brokerfleet/pkg/plan"
)

const defaultTimeout = 10 * time.Second

// APIError is returned when the server answers with a non-2xx status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// Status is the body of GET /v1/plan/status. Parts are nil when the
// server reports them as empty objects.
type Status struct {
	Plan  *plan.PlanView  `json:"plan"`
	Phase *plan.PhaseView `json:"phase"`
	Block *plan.UnitView  `json:"block"`
}

// Client talks to the plan management API over HTTP
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each call
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client for the API at addr. A bare host:port is
// treated as http.
func NewClient(addr string, opts ...Option) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid API address %q: %w", addr, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid API address %q: missing host", addr)
	}

	c := &Client{base: base, http: http.DefaultClient, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Status returns the plan cursor
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var raw struct {
		Plan  json.RawMessage `json:"plan"`
		Phase json.RawMessage `json:"phase"`
		Block json.RawMessage `json:"block"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/plan/status", nil, &raw); err != nil {
		return nil, err
	}

	status := &Status{}
	if err := decodePart(raw.Plan, &status.Plan); err != nil {
		return nil, err
	}
	if err := decodePart(raw.Phase, &status.Phase); err != nil {
		return nil, err
	}
	if err := decodePart(raw.Block, &status.Block); err != nil {
		return nil, err
	}
	return status, nil
}

// decodePart leaves dst nil for an empty object
func decodePart[T any](raw json.RawMessage, dst **T) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "{}" || trimmed == "null" {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	*dst = v
	return nil
}

// Summary returns every phase and unit
func (c *Client) Summary(ctx context.Context) (*plan.Summary, error) {
	var s plan.Summary
	if err := c.do(ctx, http.MethodGet, "/v1/plan/summary", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Phases lists phase ids and names
func (c *Client) Phases(ctx context.Context) (*api.PhaseList, error) {
	var list api.PhaseList
	if err := c.do(ctx, http.MethodGet, "/v1/plan/phases", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Phase lists the units of one phase
func (c *Client) Phase(ctx context.Context, phaseID string) (*api.BlockList, error) {
	var list api.BlockList
	if err := c.do(ctx, http.MethodGet, "/v1/plan/phases/"+url.PathEscape(phaseID), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// UnitCommand sends restart or forceComplete to a unit
func (c *Client) UnitCommand(ctx context.Context, phaseID, unitID string, cmd plan.Command) (string, error) {
	path := "/v1/plan/phases/" + url.PathEscape(phaseID) + "/" + url.PathEscape(unitID)
	return c.command(ctx, path, cmd)
}

// PlanCommand sends continue or interrupt to the plan
func (c *Client) PlanCommand(ctx context.Context, cmd plan.Command) (string, error) {
	return c.command(ctx, "/v1/plan", cmd)
}

func (c *Client) command(ctx context.Context, path string, cmd plan.Command) (string, error) {
	var result api.CommandResult
	query := url.Values{"cmd": {string(cmd)}}
	if err := c.do(ctx, http.MethodPut, path, query, &result); err != nil {
		return "", err
	}
	return result.Result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

// IsStatus reports whether err is an APIError with the given code
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
