// Package minimax implements the synthesis-provider client: job submission,
// status polling, and artifact retrieval against the provider's asynchronous
// text-to-speech API.
//
// All envelope decoding happens here. The rest of the service only ever sees
// the typed outcomes defined in internal/core.
package minimax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prakasit008-sys/Pea-linebot/internal/core"
	"github.com/prakasit008-sys/Pea-linebot/internal/transport"
)

// API paths.
const (
	apiSubmitTask   = "/v1/t2a_async"
	apiQueryTask    = "/v1/query/t2a_async_query"
	apiRetrieveFile = "/v1/files/retrieve"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	audioContentPrefix  = "audio/"
)

// Provider status codes that indicate a transient condition worth retrying:
// request timeout, rate limiting, and the per-minute token budget.
const (
	codeTimeout     = 1001
	codeRateLimited = 1002
	codeTokenBudget = 1039
)

// DefaultMinAudioBytes is the smallest payload accepted as real audio. The
// provider occasionally serves an HTML error page or an empty body from the
// download URL; anything below this threshold is rejected.
const DefaultMinAudioBytes = 1024

// Provider poll status strings, compared case-insensitively.
const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusFailure = "failure"
	statusExpired = "expired"
)

// Static errors.
var (
	// ErrSubmitRejected indicates the provider refused the synthesis
	// request (invalid voice, insufficient quota, and similar).
	ErrSubmitRejected = errors.New("synthesis request rejected")

	// ErrMalformedResponse indicates the provider violated its own wire
	// contract (missing task id, missing download URL, undecodable body).
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrFetchFailed indicates artifact retrieval produced no valid audio.
	ErrFetchFailed = errors.New("artifact fetch failed")

	// ErrTextEmpty indicates an empty synthesis payload.
	ErrTextEmpty = errors.New("text cannot be empty")
)

// TransientStatusCodes returns the provider status codes the retrying
// transport should treat as transient. Wiring passes these to transport.New
// so the retry policy and this client always agree.
func TransientStatusCodes() []int64 {
	return []int64{codeTimeout, codeRateLimited, codeTokenBudget}
}

// Options configures a provider client.
type Options struct {
	// BaseURL includes protocol and host (e.g. "https://api.minimax.io").
	BaseURL string

	// APIKey is sent as a bearer token on every call.
	APIKey string

	// GroupID is the account scope the provider requires on every call.
	GroupID string

	// Model is the synthesis model identifier submitted with each job.
	Model string

	// MinAudioBytes rejects implausibly small payloads. Zero means
	// DefaultMinAudioBytes.
	MinAudioBytes int
}

// Client talks to the provider through the retrying transport. It performs
// single operations only; looping and deadlines belong to the orchestrator.
type Client struct {
	transport     *transport.Client
	baseURL       string
	apiKey        string
	groupID       string
	model         string
	minAudioBytes int
}

// New creates a provider client on top of the given retrying transport.
func New(transportClient *transport.Client, opts Options) *Client {
	if opts.MinAudioBytes <= 0 {
		opts.MinAudioBytes = DefaultMinAudioBytes
	}

	return &Client{
		transport:     transportClient,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		groupID:       opts.GroupID,
		model:         opts.Model,
		minAudioBytes: opts.MinAudioBytes,
	}
}

// baseResp is the status envelope every provider response carries.
//
// Different provider revisions emit the code as a number, a quoted number, or
// omit it entirely on success. Missing, 0, and "0" are all success.
type baseResp struct {
	StatusCode flexibleCode `json:"status_code"`
	StatusMsg  string       `json:"status_msg"`
}

func (b baseResp) ok() bool {
	return !b.StatusCode.present || b.StatusCode.value == 0
}

func (b baseResp) reason() string {
	if b.StatusMsg != "" {
		return fmt.Sprintf("code %d: %s", b.StatusCode.value, b.StatusMsg)
	}

	return fmt.Sprintf("code %d", b.StatusCode.value)
}

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
		return nil
	}

	f.value = value
	f.present = true

	return nil
}

// flexibleID tolerates identifiers emitted either as JSON numbers or strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if trimmed == "null" {
		trimmed = ""
	}

	*f = flexibleID(trimmed)

	return nil
}

type voiceSetting struct {
	VoiceID string `json:"voice_id"`
}

type submitRequest struct {
	Model        string       `json:"model"`
	Text         string       `json:"text"`
	VoiceSetting voiceSetting `json:"voice_setting"`
}

type submitResponse struct {
	TaskID   flexibleID `json:"task_id"`
	BaseResp baseResp   `json:"base_resp"`
}

type queryResponse struct {
	Status   string     `json:"status"`
	FileID   flexibleID `json:"file_id"`
	BaseResp baseResp   `json:"base_resp"`
}

type retrieveResponse struct {
	File struct {
		DownloadURL string `json:"download_url"`
	} `json:"file"`
	BaseResp baseResp `json:"base_resp"`
}

// Submit sends a synthesis job and returns the provider-issued task id.
func (c *Client) Submit(ctx context.Context, text, voiceProfile string) (string, error) {
	if text == "" {
		return "", ErrTextEmpty
	}

	payload := submitRequest{
		Model: c.model,
		Text:  text,
		VoiceSetting: voiceSetting{
			VoiceID: voiceProfile,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	resp, err := c.transport.Call(
		ctx, http.MethodPost, c.endpoint(apiSubmitTask, nil), c.headers(), body,
	)
	if err != nil {
		return "", fmt.Errorf("submit call failed: %w", err)
	}

	var decoded submitResponse

	err = json.Unmarshal(resp.Body, &decoded)
	if err != nil {
		return "", fmt.Errorf("%w: undecodable submit response: %w", ErrMalformedResponse, err)
	}

	if !decoded.BaseResp.ok() {
		return "", fmt.Errorf("%w: %s", ErrSubmitRejected, decoded.BaseResp.reason())
	}

	taskID := string(decoded.TaskID)
	if taskID == "" {
		return "", fmt.Errorf("%w: submit response carries no task id", ErrMalformedResponse)
	}

	return taskID, nil
}

// Poll performs a single status check for the given task. Unrecognized
// provider statuses map to PollPending so new provider states degrade to
// "keep waiting" instead of failing jobs.
func (c *Client) Poll(ctx context.Context, taskID string) (core.PollResult, error) {
	query := url.Values{"task_id": []string{taskID}}

	resp, err := c.transport.Call(
		ctx, http.MethodGet, c.endpoint(apiQueryTask, query), c.headers(), nil,
	)
	if err != nil {
		return core.PollResult{}, fmt.Errorf("poll call failed: %w", err)
	}

	var decoded queryResponse

	err = json.Unmarshal(resp.Body, &decoded)
	if err != nil {
		return core.PollResult{}, fmt.Errorf(
			"%w: undecodable poll response: %w", ErrMalformedResponse, err,
		)
	}

	if !decoded.BaseResp.ok() {
		return core.PollResult{
			Status: core.PollFailed,
			Reason: decoded.BaseResp.reason(),
		}, nil
	}

	switch strings.ToLower(decoded.Status) {
	case statusSuccess:
		fileID := string(decoded.FileID)
		if fileID == "" {
			return core.PollResult{}, fmt.Errorf(
				"%w: success status carries no file id", ErrMalformedResponse,
			)
		}

		return core.PollResult{Status: core.PollSucceeded, ResultRef: fileID}, nil
	case statusFailed, statusFailure:
		return core.PollResult{
			Status: core.PollFailed,
			Reason: pollReason(decoded),
		}, nil
	case statusExpired:
		return core.PollResult{
			Status: core.PollExpired,
			Reason: pollReason(decoded),
		}, nil
	default:
		return core.PollResult{Status: core.PollPending}, nil
	}
}

// Fetch resolves a result reference to raw audio bytes. The provider serves
// either the audio directly or a metadata document pointing at a download
// URL; at most one level of indirection is followed.
func (c *Client) Fetch(ctx context.Context, resultRef string) ([]byte, error) {
	query := url.Values{"file_id": []string{resultRef}}

	resp, err := c.transport.Call(
		ctx, http.MethodGet, c.endpoint(apiRetrieveFile, query), c.headers(), nil,
	)
	if err != nil {
		return nil, fmt.Errorf("retrieve call failed: %w", err)
	}

	if isAudioContentType(resp.Header.Get(headerContentType)) {
		return c.validateAudio(resp)
	}

	var decoded retrieveResponse

	err = json.Unmarshal(resp.Body, &decoded)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: undecodable retrieve response: %w", ErrMalformedResponse, err,
		)
	}

	if !decoded.BaseResp.ok() {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, decoded.BaseResp.reason())
	}

	if decoded.File.DownloadURL == "" {
		return nil, fmt.Errorf(
			"%w: retrieve response carries no download URL", ErrMalformedResponse,
		)
	}

	content, err := c.transport.Call(
		ctx, http.MethodGet, decoded.File.DownloadURL, nil, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("download call failed: %w", err)
	}

	if !isAudioContentType(content.Header.Get(headerContentType)) {
		return nil, fmt.Errorf(
			"%w: download served content type %q",
			ErrFetchFailed, content.Header.Get(headerContentType),
		)
	}

	return c.validateAudio(content)
}

func (c *Client) validateAudio(resp *transport.Response) ([]byte, error) {
	if len(resp.Body) < c.minAudioBytes {
		return nil, fmt.Errorf(
			"%w: payload of %d bytes is below the %d byte minimum",
			ErrFetchFailed, len(resp.Body), c.minAudioBytes,
		)
	}

	return resp.Body, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}

	query.Set("GroupId", c.groupID)

	return c.baseURL + path + "?" + query.Encode()
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		headerContentType:   contentTypeJSON,
		headerAuthorization: "Bearer " + c.apiKey,
	}
}

func pollReason(decoded queryResponse) string {
	if decoded.BaseResp.StatusMsg != "" {
		return decoded.BaseResp.StatusMsg
	}

	return strings.ToLower(decoded.Status)
}

func isAudioContentType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])

	return strings.HasPrefix(strings.ToLower(mediaType), audioContentPrefix)
}
