// Package dispatch classifies inbound chat text and routes it: synthesis
// commands become queued background jobs with an immediate acknowledgment,
// voice-change commands mutate the configuration store behind an
// authorization check, and everything else is ignored.
//
// The router never runs a synthesis itself; a webhook response must go out
// long before the provider round trip completes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/logger"

	"github.com/prakasit008-sys/Pea-linebot/internal/core"
	"github.com/prakasit008-sys/Pea-linebot/internal/text"
	"github.com/prakasit008-sys/Pea-linebot/internal/voiceconfig"
)

// Acknowledgment and report texts.
const (
	ackInProgress     = "Synthesis started. The audio will be delivered here when it is ready."
	reportEmpty       = "There is nothing to synthesize. Send the command followed by the text."
	reportNotAccepted = "The request could not be accepted right now. Please try again."
	reportDenied      = "You are not allowed to change the active voice."
	fmtVoiceChanged   = "Active voice set to %s."
	fmtVoiceUsage     = "Send the command followed by a voice profile name."
)

// Static errors.
var (
	// ErrUnauthorized indicates a voice-change attempt by a sender outside
	// the configured admin set. Surfaced synchronously.
	ErrUnauthorized = errors.New("sender not authorized")

	// ErrEmptyPayload indicates a synthesis command with no usable text.
	ErrEmptyPayload = errors.New("synthesis payload is empty")
)

// Options configures a router.
type Options struct {
	// SynthesisPrefix marks a synthesis command; the rest of the message
	// is the payload.
	SynthesisPrefix string

	// SetVoicePrefix marks an admin voice-change command.
	SetVoicePrefix string

	// AdminSenders lists sender ids allowed to change the active voice.
	// An empty list denies everyone.
	AdminSenders []string
}

// Router is the dispatch boundary between platform adapters and the
// synthesis subsystem.
type Router struct {
	queue           core.Queue
	voices          *voiceconfig.Store
	notifier        core.Notifier
	normalizer      *text.Normalizer
	log             *logger.Logger
	synthesisPrefix string
	setVoicePrefix  string
	admins          map[string]struct{}
}

// NewRouter creates a router over the given collaborators.
func NewRouter(
	jobQueue core.Queue,
	voices *voiceconfig.Store,
	notifier core.Notifier,
	normalizer *text.Normalizer,
	log *logger.Logger,
	opts Options,
) *Router {
	admins := make(map[string]struct{}, len(opts.AdminSenders))
	for _, sender := range opts.AdminSenders {
		admins[sender] = struct{}{}
	}

	return &Router{
		queue:           jobQueue,
		voices:          voices,
		notifier:        notifier,
		normalizer:      normalizer,
		log:             log,
		synthesisPrefix: opts.SynthesisPrefix,
		setVoicePrefix:  opts.SetVoicePrefix,
		admins:          admins,
	}
}

// HandleEvent classifies one inbound event and acts on it. Unrecognized text
// returns nil without any side effect.
func (r *Router) HandleEvent(ctx context.Context, event core.InboundEvent) error {
	trimmed := strings.TrimSpace(event.Text)

	switch {
	case r.setVoicePrefix != "" && strings.HasPrefix(trimmed, r.setVoicePrefix):
		payload := strings.TrimPrefix(trimmed, r.setVoicePrefix)

		return r.handleSetVoice(ctx, event, payload)
	case r.synthesisPrefix != "" && strings.HasPrefix(trimmed, r.synthesisPrefix):
		payload := strings.TrimPrefix(trimmed, r.synthesisPrefix)

		return r.handleSynthesis(ctx, event, payload)
	default:
		return nil
	}
}

// handleSynthesis validates and enqueues a job, then acknowledges
// immediately. The final result arrives later through the notifier,
// independent of this call.
func (r *Router) handleSynthesis(
	ctx context.Context,
	event core.InboundEvent,
	payload string,
) error {
	normalized := r.normalizer.Normalize(payload)
	if normalized == "" {
		r.reply(ctx, event.Target, reportEmpty)

		return ErrEmptyPayload
	}

	req := core.SynthesisRequest{
		Text:         normalized,
		VoiceProfile: r.voices.Get(),
		Target:       event.Target,
	}

	err := r.queue.Enqueue(ctx, req)
	if err != nil {
		r.log.Error("Failed to enqueue synthesis for target %s: %v", event.Target, err)
		r.reply(ctx, event.Target, reportNotAccepted)

		return fmt.Errorf("failed to enqueue synthesis request: %w", err)
	}

	r.log.Info("Enqueued synthesis of %d runes for target %s", len([]rune(normalized)), event.Target)
	r.reply(ctx, event.Target, ackInProgress)

	return nil
}

// handleSetVoice applies a voice change for authorized senders. The
// authorization check lives here, not in the configuration store.
func (r *Router) handleSetVoice(
	ctx context.Context,
	event core.InboundEvent,
	payload string,
) error {
	if _, ok := r.admins[event.Sender]; !ok {
		r.log.Warn("Denied voice change from sender %s", event.Sender)
		r.reply(ctx, event.Target, reportDenied)

		return fmt.Errorf("%w: %s", ErrUnauthorized, event.Sender)
	}

	profile := strings.TrimSpace(payload)

	err := r.voices.Set(profile)
	if err != nil {
		if errors.Is(err, voiceconfig.ErrEmptyProfile) {
			r.reply(ctx, event.Target, fmtVoiceUsage)

			return err
		}

		r.log.Error("Failed to persist voice change to %s: %v", profile, err)

		return fmt.Errorf("failed to set voice profile: %w", err)
	}

	r.log.System("Active voice changed to %s by sender %s", profile, event.Sender)
	r.reply(ctx, event.Target, fmt.Sprintf(fmtVoiceChanged, profile))

	return nil
}

func (r *Router) reply(ctx context.Context, target, message string) {
	err := r.notifier.Send(ctx, target, core.TextNotice{Text: message})
	if err != nil {
		r.log.Error("Failed to send reply to target %s: %v", target, err)
	}
}
