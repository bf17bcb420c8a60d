// Package apiclient talks to the exam backend REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/decode"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is a backend REST client. Safe for concurrent use.
type Client struct {
	http       *http.Client
	baseURL    string
	token      string
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

func New(opts Options, log zerolog.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		http:       hc,
		baseURL:    opts.BaseURL,
		token:      opts.Token,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		log:        log.With().Str("component", "backend_client").Logger(),
	}
}

// get issues a GET, retrying network failures and 5xx responses with a linear
// backoff of retryDelay*(n+1).
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.retryDelay*time.Duration(attempt+1)); err != nil {
				return nil, err
			}
			c.log.Debug().Str("path", path).Int("attempt", attempt).Err(lastErr).Msg("Retrying backend request")
		}

		body, err := c.do(ctx, http.MethodGet, path, nil, nil)
		if err == nil {
			return body, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	c.log.Warn().Str("path", path).Err(lastErr).Msg("Backend request failed after retries")
	return nil, lastErr
}

// post issues a single POST. Writes are never retried.
func (c *Client) post(ctx context.Context, path string, payload any, header http.Header) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, payload, header)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, header http.Header) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokenFor(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("token", token)
	}
	if id := requestIDFrom(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Backend request")

	return readResponse(resp)
}

func (c *Client) tokenFor(ctx context.Context) string {
	if t := TokenFrom(ctx); t != "" {
		return t
	}
	return c.token
}

func readResponse(resp *http.Response) (json.RawMessage, error) {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode, Message: ServerMessage(raw)}
		if apiErr.RateLimited() {
			apiErr.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, apiErr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		return nil, &APIError{Status: resp.StatusCode, Message: "invalid JSON response"}
	}
	return raw, nil
}

// ServerMessage extracts the human-readable message of an error body.
func ServerMessage(raw []byte) string {
	obj := decode.Object(raw)
	if obj == nil {
		return ""
	}
	if msg := decode.StringField(obj, "message", "error"); msg != "" {
		return msg
	}
	// {"error":{"message":"..."}} as produced by envelope-style backends.
	if inner := decode.Object(obj["error"]); inner != nil {
		return decode.StringField(inner, "message")
	}
	return ""
}

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
