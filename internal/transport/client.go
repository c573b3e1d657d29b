// Package transport provides a retrying HTTP call wrapper for provider APIs.
//
// Transient failures (connection errors, timeouts, 5xx responses, and a
// configurable set of provider status codes embedded in response bodies) are
// retried with exponential backoff. Everything else surfaces immediately.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default retry behavior.
const (
	DefaultMaxAttempts    = 4
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 10 * time.Second
	DefaultCallTimeout    = 30 * time.Second

	backoffMultiplier = 2.0
)

// Body snippet length preserved in error messages.
const errorBodyLimit = 256

// Static errors.
var (
	// ErrExhausted indicates that every retry attempt failed with a
	// transient error. It wraps the last attempt's error.
	ErrExhausted = errors.New("retry attempts exhausted")

	// ErrRequestRejected indicates a definitive non-retryable HTTP status.
	ErrRequestRejected = errors.New("request rejected")
)

// Response is the decoded result of a successful call: the terminal HTTP
// response after retries, with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	// MaxAttempts bounds the total number of tries, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; subsequent delays
	// double up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// CallTimeout applies to each individual HTTP attempt, independent of
	// any deadline the caller's context carries.
	CallTimeout time.Duration

	// TransientCodes lists provider status codes (from the JSON response
	// envelope, not the HTTP status line) that should be retried.
	TransientCodes []int64
}

// Client wraps an http.Client with bounded exponential-backoff retries.
// It is purely functional given its inputs and safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	maxAttempts    uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
	transient      map[int64]struct{}
}

// New creates a retrying transport client from the given options.
func New(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}

	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}

	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}

	transient := make(map[int64]struct{}, len(opts.TransientCodes))
	for _, code := range opts.TransientCodes {
		transient[code] = struct{}{}
	}

	return &Client{
		httpClient:     &http.Client{Timeout: opts.CallTimeout},
		maxAttempts:    uint(opts.MaxAttempts),
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		transient:      transient,
	}
}

// transientError marks an attempt failure as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("transient failure: %v", e.err)
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Call performs an HTTP request, retrying transient failures with exponential
// backoff. A fresh request is built for every attempt so bodies are replayed
// safely. After exhausting attempts it fails with an error wrapping
// ErrExhausted and the last attempt's cause.
func (c *Client) Call(
	ctx context.Context,
	method, url string,
	headers map[string]string,
	body []byte,
) (*Response, error) {
	attempt := func() (*Response, error) {
		resp, err := c.doOnce(ctx, method, url, headers, body)
		if err != nil {
			// Connection failures and timeouts are retryable.
			return nil, &transientError{err: err}
		}

		return c.classifyResponse(resp)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.initialBackoff
	expBackoff.MaxInterval = c.maxBackoff
	expBackoff.Multiplier = backoffMultiplier

	resp, err := backoff.Retry(
		ctx,
		attempt,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(c.maxAttempts),
	)
	if err != nil {
		var transient *transientError
		if errors.As(err, &transient) {
			return nil, fmt.Errorf(
				"%w after %d attempts: %w",
				ErrExhausted, c.maxAttempts, transient.Unwrap(),
			)
		}

		return nil, err
	}

	return resp, nil
}

// classifyResponse decides whether a completed HTTP exchange is terminal or
// should be retried.
func (c *Client) classifyResponse(resp *Response) (*Response, error) {
	if code, ok := envelopeStatusCode(resp.Body); ok {
		if _, isTransient := c.transient[code]; isTransient {
			return nil, &transientError{
				err: fmt.Errorf("provider reported transient status code %d", code),
			}
		}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &transientError{
			err: fmt.Errorf("server returned status %d", resp.StatusCode),
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		// Non-transient client errors are definitive; do not retry.
		return nil, backoff.Permanent(fmt.Errorf(
			"%w: status %d: %s",
			ErrRequestRejected, resp.StatusCode, bodySnippet(resp.Body),
		))
	}

	return resp, nil
}

// doOnce performs a single HTTP attempt and reads the full response body.
func (c *Client) doOnce(
	ctx context.Context,
	method, url string,
	headers map[string]string,
	body []byte,
) (*Response, error) {
	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}

	data, readErr := io.ReadAll(resp.Body)

	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("failed to close response body: %w", closeErr)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// flexibleCode decodes a provider status code that different provider
// revisions emit as a number, a quoted number, or not at all. Missing, 0, and
// "0" are all treated the same way by callers.
type flexibleCode struct {
	value   int64
	present bool
}

func (f *flexibleCode) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		// An unparseable code is treated as absent rather than failing
		// the whole decode.
		return nil
	}

	f.value = value
	f.present = true

	return nil
}

// statusProbe is the minimal shape needed to spot a provider status code in a
// response body, whether nested under base_resp or at the top level.
type statusProbe struct {
	BaseResp *struct {
		StatusCode flexibleCode `json:"status_code"`
	} `json:"base_resp"`
	StatusCode flexibleCode `json:"status_code"`
}

// envelopeStatusCode extracts a provider status code from a JSON response
// body. The second return value reports whether a code was present.
func envelopeStatusCode(body []byte) (int64, bool) {
	var probe statusProbe

	err := json.Unmarshal(body, &probe)
	if err != nil {
		return 0, false
	}

	if probe.BaseResp != nil && probe.BaseResp.StatusCode.present {
		return probe.BaseResp.StatusCode.value, true
	}

	if probe.StatusCode.present {
		return probe.StatusCode.value, true
	}

	return 0, false
}

// bodySnippet trims a response body for inclusion in error messages.
func bodySnippet(body []byte) string {
	if len(body) > errorBodyLimit {
		body = body[:errorBodyLimit]
	}

	return string(body)
}
