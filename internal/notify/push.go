// Package notify delivers result notices to chat targets through a
// LINE-style push endpoint. All outbound calls go through the retrying
// transport client.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prakasit008-sys/Pea-linebot/internal/core"
	"github.com/prakasit008-sys/Pea-linebot/internal/transport"
)

// Wire constants for the push API.
const (
	messageTypeText  = "text"
	messageTypeAudio = "audio"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
)

// Static errors.
var (
	// ErrPushRejected indicates the push endpoint returned a non-success
	// status for a delivery attempt.
	ErrPushRejected = errors.New("push delivery rejected")

	// ErrUnsupportedNotice indicates a notice kind this client cannot
	// serialize.
	ErrUnsupportedNotice = errors.New("unsupported notice kind")

	// ErrTargetEmpty indicates a delivery attempt without a target.
	ErrTargetEmpty = errors.New("push target is empty")
)

// pushRequest is the JSON body of one push call.
type pushRequest struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

// pushMessage is one message in a push body. Only the fields for the
// message's type are populated.
type pushMessage struct {
	Type               string `json:"type"`
	Text               string `json:"text,omitempty"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	Duration           int    `json:"duration,omitempty"`
}

// PushClient implements core.Notifier over a bearer-authenticated push
// endpoint.
type PushClient struct {
	transport *transport.Client
	url       string
	token     string
}

// NewPushClient creates a push notifier for the given endpoint and channel
// token.
func NewPushClient(transportClient *transport.Client, url, token string) *PushClient {
	return &PushClient{
		transport: transportClient,
		url:       url,
		token:     token,
	}
}

// Send delivers one notice to a target. Text notices become text messages;
// audio notices carry the artifact URL and a playback duration hint.
func (c *PushClient) Send(ctx context.Context, target string, notice core.Notice) error {
	if target == "" {
		return ErrTargetEmpty
	}

	message, err := buildMessage(notice)
	if err != nil {
		return err
	}

	body, err := json.Marshal(pushRequest{
		To:       target,
		Messages: []pushMessage{message},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	headers := map[string]string{
		headerAuthorization: "Bearer " + c.token,
		headerContentType:   contentTypeJSON,
	}

	response, err := c.transport.Call(ctx, http.MethodPost, c.url, headers, body)
	if err != nil {
		return fmt.Errorf("failed to call push endpoint: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrPushRejected, response.StatusCode)
	}

	return nil
}

func buildMessage(notice core.Notice) (pushMessage, error) {
	switch value := notice.(type) {
	case core.TextNotice:
		return pushMessage{
			Type:               messageTypeText,
			Text:               value.Text,
			OriginalContentURL: "",
			Duration:           0,
		}, nil
	case core.AudioNotice:
		return pushMessage{
			Type:               messageTypeAudio,
			Text:               "",
			OriginalContentURL: value.URL,
			Duration:           value.DurationHintMs,
		}, nil
	default:
		return pushMessage{}, fmt.Errorf("%w: %T", ErrUnsupportedNotice, notice)
	}
}
