// Command pea-client is an operations helper for a running bot service. It
// can check the health endpoint or inject a synthetic text event into the
// webhook, exactly as the chat platform would deliver it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Flag names.
const (
	flagService = "service"
	flagText    = "text"
	flagSender  = "sender"
	flagTarget  = "target"
	flagHealth  = "health"
	flagTimeout = "timeout"
)

// Flag descriptions.
const (
	flagServiceDesc = "Base URL of the running service"
	flagTextDesc    = "Message text to inject into the webhook"
	flagSenderDesc  = "Sender id to attribute the message to"
	flagTargetDesc  = "Group id to deliver results to (defaults to the sender's direct chat)"
	flagHealthDesc  = "Check service health and exit"
	flagTimeoutDesc = "Request timeout"
)

// Messages.
const (
	msgHealthy      = "Service is healthy"
	msgNotHealthy   = "Service is not healthy: %v\n"
	msgAccepted     = "Event accepted: %s\n"
	errTextRequired = "either --text or --health must be provided"
)

const defaultTimeout = 10 * time.Second

// Static errors.
var errUnexpectedStatus = errors.New("unexpected response status")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	service string
	text    string
	sender  string
	target  string
	health  bool
	timeout time.Duration
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	client := &http.Client{Timeout: flags.timeout}

	if flags.health {
		return checkHealth(ctx, client, flags.service)
	}

	if flags.text == "" {
		flag.Usage()

		return errors.New(errTextRequired)
	}

	return postEvent(ctx, client, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.service, flagService, "http://127.0.0.1:8080", flagServiceDesc)
	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.sender, flagSender, "ops-client", flagSenderDesc)
	flag.StringVar(&flags.target, flagTarget, "", flagTargetDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flag.Parse()

	return flags
}

// checkHealth probes the service root and reports the result.
func checkHealth(ctx context.Context, client *http.Client, serviceURL string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, serviceURL+"/", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	response, err := client.Do(request)
	if err != nil {
		fmt.Printf(msgNotHealthy, err)

		return fmt.Errorf("health check failed: %w", err)
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		fmt.Printf(msgNotHealthy, response.Status)

		return fmt.Errorf("%w: %s", errUnexpectedStatus, response.Status)
	}

	fmt.Println(msgHealthy)

	return nil
}

// postEvent sends one platform-shaped text event to the webhook.
func postEvent(ctx context.Context, client *http.Client, flags appFlags) error {
	type source struct {
		UserID  string `json:"userId"`
		GroupID string `json:"groupId,omitempty"`
	}

	type message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}

	type event struct {
		Type    string  `json:"type"`
		Source  source  `json:"source"`
		Message message `json:"message"`
	}

	body, err := json.Marshal(map[string]any{
		"events": []event{
			{
				Type:    "message",
				Source:  source{UserID: flags.sender, GroupID: flags.target},
				Message: message{Type: "text", Text: flags.text},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	request, err := http.NewRequestWithContext(
		ctx, http.MethodPost, flags.service+"/callback", bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}

	defer func() { _ = response.Body.Close() }()

	reply, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: %s", errUnexpectedStatus, response.Status, string(reply))
	}

	fmt.Printf(msgAccepted, string(reply))

	return nil
}
