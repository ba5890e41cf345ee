package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"simplane/internal/observability"
	"simplane/pkg/api"
)

// Engine delivers commands to the simulation runtime.
type Engine interface {
	Deliver(ctx context.Context, cmd api.EngineCommand) error
}

// ErrRejected wraps a non-2xx answer from the runtime.
var ErrRejected = errors.New("engine rejected command")

// HTTPEngine posts commands to {BaseURL}/api/v1/simulations/{session_id}/commands.
type HTTPEngine struct {
	BaseURL    string
	Secret     string
	HTTPClient *http.Client
}

// NewHTTPEngine creates an engine client. A zero timeout means 10s.
func NewHTTPEngine(baseURL, secret string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEngine{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Deliver(ctx context.Context, cmd api.EngineCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/simulations/%s/commands", e.BaseURL, cmd.SessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+e.Secret)
	}
	observability.InjectHeaders(ctx, req.Header)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
