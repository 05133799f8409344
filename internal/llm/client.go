package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// APIError is a typed failure from the chat-completions endpoint.
// Retryable errors (429, 5xx, transport) are retried with backoff;
// everything else propagates immediately.
type APIError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error (status %d, retryable %t): %s", e.StatusCode, e.Retryable, e.Message)
}

// IsRetryable reports whether err is a transient LLM failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// Request is one chat completion call.
type Request struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Result is the assistant reply plus token accounting.
type Result struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL       string
	apiKey        string
	fallbackModel string
	maxAttempts   uint
	httpClient    *http.Client
}

// NewClient creates a client. fallbackModel may be empty to disable the
// secondary-tier retry.
func NewClient(baseURL, apiKey, fallbackModel string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		fallbackModel: fallbackModel,
		maxAttempts:   3,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion, retrying transient failures with
// exponential backoff. When a fallback model is configured, it is tried
// once more after the primary model is exhausted.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	result, err := c.completeModel(ctx, req)
	if err == nil {
		return result, nil
	}

	if c.fallbackModel != "" && c.fallbackModel != req.Model {
		log.Printf("llm: model %s failed (%v), retrying with fallback %s", req.Model, err, c.fallbackModel)
		fallbackReq := req
		fallbackReq.Model = c.fallbackModel
		if result, fbErr := c.completeModel(ctx, fallbackReq); fbErr == nil {
			return result, nil
		}
	}

	return nil, err
}

func (c *Client) completeModel(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var result *Result
	err = retry.Do(
		func() error {
			r, callErr := c.doCall(ctx, body)
			if callErr != nil {
				if !IsRetryable(callErr) {
					return retry.Unrecoverable(callErr)
				}
				return callErr
			}
			result = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.maxAttempts),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("llm: retrying %s (attempt %d): %v", req.Model, n+1, err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doCall(ctx context.Context, body []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Connection resets and timeouts count as retryable transport
		// failures.
		return nil, &APIError{Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error(), Retryable: false}
	}
	if parsed.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: parsed.Error.Message, Retryable: false}
	}
	if len(parsed.Choices) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "empty choices", Retryable: false}
	}

	return &Result{
		Content:          parsed.Choices[0].Message.Content,
		Model:            parsed.Model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func classifyStatus(status int, body []byte) *APIError {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &APIError{
		StatusCode: status,
		Message:    msg,
		Retryable:  status == http.StatusTooManyRequests || status >= 500,
	}
}
