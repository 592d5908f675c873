// Package llm implements the LLM Client (C5): a single retrying
// request/response wrapper over an external text-completion endpoint,
// plus an append-only prompt-audit sink. The provider is treated as a
// black-box completion service; this package owns only the wire
// contract it needs (system, user, max tokens, temperature) -> text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/platform/httpx"
)

const (
	attemptTimeout = 60 * time.Second
	maxAttempts    = 3
	backoffBase    = 1 * time.Second
	backoffCap     = 8 * time.Second
)

// Client completes a single (system, user) prompt pair against an
// external endpoint (§4.5).
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	audit      *AuditSink
}

// Option configures a Client.
type Option func(*Client)

// WithAuditSink enables prompt auditing (§4.5 "Prompt audit").
func WithAuditSink(sink *AuditSink) Option {
	return func(c *Client) { c.audit = sink }
}

// WithHTTPClient overrides the transport, primarily for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a Client that POSTs completion requests to
// endpoint, authenticated with apiKey.
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: attemptTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type completionRequest struct {
	System      string  `json:"system"`
	User        string  `json:"user"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// httpStatusError carries the response status so httpx.IsRetryableError
// can classify it without string-matching.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm endpoint returned status %d: %s", e.status, e.body)
}

func (e *httpStatusError) HTTPStatusCode() int { return e.status }

// Complete sends one (system, user) prompt pair and returns the raw
// response text, with no parsing (§4.5). Transient failures retry up
// to 3 attempts total with exponential backoff (1s base, 8s cap); a
// non-retryable auth/validation failure surfaces as LLMRejected;
// exhausted retries surface as LLMUnavailable.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	req := completionRequest{System: system, User: user, MaxTokens: maxTokens, Temperature: temperature}

	if c.audit != nil {
		c.audit.recordRequest(system, user)
	}
	start := time.Now()

	op := func() (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()
		text, err := c.doOnce(attemptCtx, req)
		if err != nil {
			if perr, ok := err.(*pipelineerr.Error); ok && perr.Kind == pipelineerr.LLMRejected {
				return "", backoff.Permanent(perr)
			}
			return "", err
		}
		return text, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = backoffBase
	expBackoff.MaxInterval = backoffCap

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxAttempts),
	)

	latency := time.Since(start)
	if c.audit != nil {
		c.audit.recordResponse(text, err, latency)
	}

	if err != nil {
		if perr, ok := err.(*pipelineerr.Error); ok {
			return "", perr
		}
		return "", pipelineerr.New(pipelineerr.LLMUnavailable, "llm call failed after retries", err)
	}
	return text, nil
}

func (c *Client) doOnce(ctx context.Context, req completionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", pipelineerr.New(pipelineerr.LLMRejected, "cannot encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", pipelineerr.New(pipelineerr.LLMRejected, "cannot build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", pipelineerr.New(pipelineerr.LLMUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", pipelineerr.New(pipelineerr.LLMUnavailable, "cannot read response body", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return "", pipelineerr.New(pipelineerr.LLMRejected, fmt.Sprintf("provider rejected request: %s", buf.String()), nil)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := &httpStatusError{status: resp.StatusCode, body: buf.String()}
		if !httpx.IsRetryableError(statusErr) {
			return "", pipelineerr.New(pipelineerr.LLMRejected, statusErr.Error(), nil)
		}
		return "", pipelineerr.New(pipelineerr.LLMUnavailable, statusErr.Error(), statusErr)
	}

	var out completionResponse
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return "", pipelineerr.New(pipelineerr.LLMRejected, "cannot decode response", err)
	}
	return out.Text, nil
}
