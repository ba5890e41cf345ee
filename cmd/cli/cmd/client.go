package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"simplane/pkg/api"
)

// SimClient handles API calls to the simplane orchestrator.
type SimClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewSimClient creates a new client with the given base URL and token.
func NewSimClient(baseURL, token string) *SimClient {
	return &SimClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a request and decodes a successful response into out, which may be nil.
func (c *SimClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var parsed api.ErrorResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != "" {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Error
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := decodeJSON(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func pageQuery(q url.Values, skip, limit int) {
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// CreateSession sends POST /simulations.
func (c *SimClient) CreateSession(req api.CreateSessionRequest) (*api.SessionResponse, error) {
	var result api.SessionResponse
	if err := c.do(http.MethodPost, "/simulations", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListSessions sends GET /simulations. An empty designID lists the caller's own sessions.
func (c *SimClient) ListSessions(designID string, skip, limit int) ([]api.SessionResponse, error) {
	q := url.Values{}
	if designID != "" {
		q.Set("design_id", designID)
	}
	pageQuery(q, skip, limit)

	var result []api.SessionResponse
	if err := c.do(http.MethodGet, withQuery("/simulations", q), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetSession sends GET /simulations/{id}.
func (c *SimClient) GetSession(id string) (*api.SessionDetailsResponse, error) {
	var result api.SessionDetailsResponse
	if err := c.do(http.MethodGet, "/simulations/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateSession sends PUT /simulations/{id}.
func (c *SimClient) UpdateSession(id string, req api.UpdateSessionRequest) (*api.SessionResponse, error) {
	var result api.SessionResponse
	if err := c.do(http.MethodPut, "/simulations/"+url.PathEscape(id), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSession sends DELETE /simulations/{id}.
func (c *SimClient) DeleteSession(id string) error {
	return c.do(http.MethodDelete, "/simulations/"+url.PathEscape(id), nil, nil)
}

// Transition sends POST /simulations/{id}/{op}. body may be nil.
func (c *SimClient) Transition(id, op string, body any) (*api.SessionResponse, error) {
	var result api.SessionResponse
	if err := c.do(http.MethodPost, "/simulations/"+url.PathEscape(id)+"/"+op, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListEvents sends GET /simulations/{id}/events.
func (c *SimClient) ListEvents(id, componentID string, skip, limit int) ([]api.EventResponse, error) {
	q := url.Values{}
	if componentID != "" {
		q.Set("component_id", componentID)
	}
	pageQuery(q, skip, limit)

	var result []api.EventResponse
	if err := c.do(http.MethodGet, withQuery("/simulations/"+url.PathEscape(id)+"/events", q), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListMetrics sends GET /simulations/{id}/metrics.
func (c *SimClient) ListMetrics(id, componentID, metricName string, skip, limit int) ([]api.MetricResponse, error) {
	q := url.Values{}
	if componentID != "" {
		q.Set("component_id", componentID)
	}
	if metricName != "" {
		q.Set("metric_name", metricName)
	}
	pageQuery(q, skip, limit)

	var result []api.MetricResponse
	if err := c.do(http.MethodGet, withQuery("/simulations/"+url.PathEscape(id)+"/metrics", q), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ScheduleFault sends POST /simulations/{id}/faults.
func (c *SimClient) ScheduleFault(id string, req api.ScheduleFaultRequest) (*api.FaultResponse, error) {
	var result api.FaultResponse
	if err := c.do(http.MethodPost, "/simulations/"+url.PathEscape(id)+"/faults", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListFaults sends GET /simulations/{id}/faults.
func (c *SimClient) ListFaults(id string) ([]api.FaultResponse, error) {
	var result []api.FaultResponse
	if err := c.do(http.MethodGet, "/simulations/"+url.PathEscape(id)+"/faults", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteFault sends DELETE /simulations/{id}/faults/{fault_id}.
func (c *SimClient) DeleteFault(id, faultID string) error {
	return c.do(http.MethodDelete, "/simulations/"+url.PathEscape(id)+"/faults/"+url.PathEscape(faultID), nil, nil)
}

// WatchURL is the websocket address of a session's live stream.
func (c *SimClient) WatchURL(id string) string {
	base := c.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/simulations/" + url.PathEscape(id) + "/ws"
}
