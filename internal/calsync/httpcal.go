package calsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// HTTPCalendar talks to a REST calendar provider. The provider exposes
// a flat events collection under the base URL and authenticates with a
// bearer key.
type HTTPCalendar struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPCalendar creates a client for one provider endpoint.
func NewHTTPCalendar(baseURL, apiKey string, timeout time.Duration) *HTTPCalendar {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCalendar{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListEvents fetches the full remote collection. Listing is read-only,
// so transient failures are retried with backoff.
func (c *HTTPCalendar) ListEvents(ctx context.Context) ([]RemoteEvent, error) {
	var events []RemoteEvent
	err := retry.Do(
		func() error {
			body, err := c.call(ctx, http.MethodGet, "/events", nil)
			if err != nil {
				return err
			}
			var wire struct {
				Events []RemoteEvent `json:"events"`
			}
			if err := json.Unmarshal(body, &wire); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decoding events: %w", err))
			}
			events = wire.Events
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	return events, err
}

// CreateEvent pushes a new event and returns the provider's ID for it.
func (c *HTTPCalendar) CreateEvent(ctx context.Context, ev RemoteEvent) (string, error) {
	body, err := c.callJSON(ctx, http.MethodPost, "/events", ev)
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("provider returned no event ID")
	}
	return created.ID, nil
}

// UpdateEvent overwrites the remote copy.
func (c *HTTPCalendar) UpdateEvent(ctx context.Context, ev RemoteEvent) error {
	_, err := c.callJSON(ctx, http.MethodPut, "/events/"+ev.ID, ev)
	return err
}

// DeleteEvent removes the remote copy. A 404 counts as success; the
// event is gone either way.
func (c *HTTPCalendar) DeleteEvent(ctx context.Context, id string) error {
	_, err := c.call(ctx, http.MethodDelete, "/events/"+id, nil)
	var provErr *providerError
	if errors.As(err, &provErr) && provErr.status == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *HTTPCalendar) callJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return c.call(ctx, method, path, body)
}

func (c *HTTPCalendar) call(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &providerError{status: resp.StatusCode, body: string(respBody)}
	}
	return respBody, nil
}

type providerError struct {
	status int
	body   string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.status, e.body)
}
