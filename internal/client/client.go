// Package client talks to a running nosleep agent over its control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"nosleep/internal/lockctl"
)

// ErrUnauthorized is returned when the agent rejects the API key
var ErrUnauthorized = errors.New("unauthorized: invalid or missing API key")

// APIError is a non-2xx response from the agent
type APIError struct {
	Status   int
	Code     string `json:"code"`
	Message  string `json:"error"`
	GrantURL string `json:"grant_url,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Unwrap maps the wire code back to the controller's sentinel errors
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "CAPABILITY_UNAVAILABLE":
		return lockctl.ErrCapabilityUnavailable
	case "PERMISSION_NOT_ACTIVE":
		return lockctl.ErrPermissionNotActive
	case "INVALID_DURATION":
		return lockctl.ErrInvalidDuration
	case "CONTROLLER_CLOSED":
		return lockctl.ErrControllerClosed
	case "UNAUTHORIZED", "AUTH_REQUIRED":
		return ErrUnauthorized
	}
	return nil
}

// Schedule is the countdown as reported by the agent
type Schedule struct {
	ID               string    `json:"id,omitempty"`
	Status           string    `json:"status"`
	Remaining        string    `json:"remaining"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	TotalSeconds     int64     `json:"total_seconds,omitempty"`
	Warned           bool      `json:"warned"`
	StartedAt        time.Time `json:"started_at,omitzero"`
	Deadline         time.Time `json:"deadline,omitzero"`
}

// State is the agent's controller snapshot
type State struct {
	Admin           lockctl.PermissionState  `json:"admin"`
	Overlay         lockctl.PermissionState  `json:"overlay"`
	Schedule        Schedule                 `json:"schedule"`
	Selected        lockctl.SelectedDuration `json:"selected"`
	SelectedText    string                   `json:"selected_text"`
	Capabilities    []string                 `json:"capabilities"`
	LockAvailable   bool                     `json:"lock_available"`
	BackgroundTicks bool                     `json:"background_ticks"`
	LastLockError   string                   `json:"last_lock_error,omitempty"`
}

// PermissionResult is the outcome of a grant request
type PermissionResult struct {
	Permission string `json:"permission"`
	Granted    bool   `json:"granted"`
	Pending    bool   `json:"pending"`
}

// Event is one journal entry
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	Remaining  string    `json:"remaining,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Client is an HTTP client for the control API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client for the agent at baseURL
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "control-client"),
	}
}

// Health checks that the agent is up
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// State fetches the controller snapshot
func (c *Client) State(ctx context.Context) (*State, error) {
	var state State
	if err := c.do(ctx, http.MethodGet, "/v1/state", nil, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Schedule starts a countdown of selection
func (c *Client) Schedule(ctx context.Context, selection lockctl.SelectedDuration) (*Schedule, error) {
	body := map[string]int{"hours": selection.Hours, "minutes": selection.Minutes}
	var schedule Schedule
	if err := c.do(ctx, http.MethodPost, "/v1/schedule", nil, body, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Cancel stops the running countdown and reports whether one was running
func (c *Client) Cancel(ctx context.Context) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.do(ctx, http.MethodDelete, "/v1/schedule", nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

// LockNow locks the device immediately
func (c *Client) LockNow(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/lock", nil, nil, nil)
}

// RequestAdmin starts the admin grant flow on the agent
func (c *Client) RequestAdmin(ctx context.Context) (*PermissionResult, error) {
	return c.requestPermission(ctx, "admin")
}

// RequestOverlay starts the overlay grant flow on the agent
func (c *Client) RequestOverlay(ctx context.Context) (*PermissionResult, error) {
	return c.requestPermission(ctx, "overlay")
}

func (c *Client) requestPermission(ctx context.Context, name string) (*PermissionResult, error) {
	var result PermissionResult
	if err := c.do(ctx, http.MethodPost, "/v1/permissions/"+name+"/request", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logs returns the agent's debug log, newest first
func (c *Client) Logs(ctx context.Context) ([]string, error) {
	var resp struct {
		Lines []string `json:"lines"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/logs", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lines, nil
}

// ClearLogs empties the agent's debug log
func (c *Client) ClearLogs(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/logs", nil, nil, nil)
}

// Events lists journal entries, newest first. Empty kind and zero limit match all.
func (c *Client) Events(ctx context.Context, kind string, limit int) ([]Event, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("kind", kind)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var events []Event
	if err := c.do(ctx, http.MethodGet, "/v1/events", q, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Nosleep-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("calling agent", "method", method, "url", u.String())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
