// Package orchestrator drives one synthesis job end-to-end: submit the text
// to the provider, poll until a terminal outcome or the job deadline, fetch
// the finished audio, persist it, and push exactly one final notice to the
// conversation that asked for it.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"

	"github.com/prakasit008-sys/Pea-linebot/internal/core"
)

// Default temporal budget.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultJobDeadline  = 240 * time.Second
)

// finalNoticeTimeout bounds the delivery of a final notice when the job
// context itself is already cancelled.
const finalNoticeTimeout = 10 * time.Second

// assumedBitrateKbps is used to estimate audio duration from the artifact
// size. The provider encodes at a fixed bitrate, so size alone gives a
// serviceable hint for platforms that require a duration on audio pushes.
const assumedBitrateKbps = 128

// User-facing notice formats. Provider reason text is passed through
// verbatim.
const (
	noticeFmtFailed  = "Synthesis failed: %s"
	noticeFmtExpired = "Synthesis job expired at the provider: %s"
	noticeFmtStore   = "Synthesis finished but the audio could not be stored: %v"
	noticeFmtFetch   = "Synthesis finished but the audio could not be retrieved: %v"
	noticeTimedOut   = "Synthesis timed out before the provider finished. A new request starts a new job."
)

// State is the orchestrator's job state. Transitions are monotonic; the
// four terminal states are final.
type State int

const (
	// StateSubmitted means the job has been handed to the provider.
	StateSubmitted State = iota
	// StatePolling means the job is being checked at a fixed interval.
	StatePolling
	// StateSucceeded means audio was fetched, persisted, and announced.
	StateSucceeded
	// StateFailed means the provider or the local store terminally failed
	// the job.
	StateFailed
	// StateExpired means the provider discarded the job.
	StateExpired
	// StateTimedOut means the deadline elapsed while the job was pending.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Options tunes an orchestrator's temporal budget. Zero values mean the
// defaults above.
type Options struct {
	PollInterval time.Duration
	JobDeadline  time.Duration
}

// Orchestrator runs synthesis jobs. One Run owns one job; no state is shared
// between concurrent runs.
type Orchestrator struct {
	synthesizer  core.Synthesizer
	store        core.ArtifactStore
	notifier     core.Notifier
	log          *logger.Logger
	pollInterval time.Duration
	jobDeadline  time.Duration
}

// New creates an orchestrator over the given collaborators.
func New(
	synthesizer core.Synthesizer,
	store core.ArtifactStore,
	notifier core.Notifier,
	log *logger.Logger,
	opts Options,
) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if opts.JobDeadline <= 0 {
		opts.JobDeadline = DefaultJobDeadline
	}

	return &Orchestrator{
		synthesizer:  synthesizer,
		store:        store,
		notifier:     notifier,
		log:          log,
		pollInterval: opts.PollInterval,
		jobDeadline:  opts.JobDeadline,
	}
}

// Run executes one job to a terminal state and reports it to the requester.
// The caller is never blocked beyond the job itself; submit errors are not
// retried here because the transport has already retried transient causes.
func (o *Orchestrator) Run(ctx context.Context, req core.SynthesisRequest) State {
	taskID, err := o.synthesizer.Submit(ctx, req.Text, req.VoiceProfile)
	if err != nil {
		o.log.Error("Submit failed for target %s: %v", req.Target, err)
		o.notifyText(ctx, req.Target, fmt.Sprintf(noticeFmtFailed, err))

		return StateFailed
	}

	o.log.Info("Job %s submitted for target %s, polling", taskID, req.Target)

	return o.pollUntilTerminal(ctx, req, taskID)
}

// pollUntilTerminal checks the job at a fixed interval under the wall-clock
// deadline. The deadline is fire-and-forget: on expiry the job is abandoned
// locally without attempting provider-side cancellation.
func (o *Orchestrator) pollUntilTerminal(
	ctx context.Context,
	req core.SynthesisRequest,
	taskID string,
) State {
	deadline := time.NewTimer(o.jobDeadline)
	defer deadline.Stop()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Warn("Job %s abandoned: %v", taskID, ctx.Err())

			// The job context is dead; the notice still has to go out.
			noticeCtx, cancel := context.WithTimeout(context.Background(), finalNoticeTimeout)
			o.notifyText(noticeCtx, req.Target, noticeTimedOut)
			cancel()

			return StateTimedOut
		case <-deadline.C:
			o.log.Warn("Job %s exceeded the %s deadline", taskID, o.jobDeadline)
			o.notifyText(ctx, req.Target, noticeTimedOut)

			return StateTimedOut
		case <-ticker.C:
			result, err := o.synthesizer.Poll(ctx, taskID)
			if err != nil {
				// A failed status check is not terminal; the next tick
				// retries until the deadline bounds the job.
				o.log.Warn("Poll for job %s failed: %v", taskID, err)

				continue
			}

			switch result.Status {
			case core.PollSucceeded:
				return o.finish(ctx, req, taskID, result.ResultRef)
			case core.PollFailed:
				o.log.Error("Job %s failed at provider: %s", taskID, result.Reason)
				o.notifyText(ctx, req.Target, fmt.Sprintf(noticeFmtFailed, result.Reason))

				return StateFailed
			case core.PollExpired:
				o.log.Error("Job %s expired at provider: %s", taskID, result.Reason)
				o.notifyText(ctx, req.Target, fmt.Sprintf(noticeFmtExpired, result.Reason))

				return StateExpired
			case core.PollPending:
				continue
			}
		}
	}
}

// finish fetches the result, persists it, and announces the artifact URL.
func (o *Orchestrator) finish(
	ctx context.Context,
	req core.SynthesisRequest,
	taskID, resultRef string,
) State {
	data, err := o.synthesizer.Fetch(ctx, resultRef)
	if err != nil {
		o.log.Error("Fetch for job %s failed: %v", taskID, err)
		o.notifyText(ctx, req.Target, fmt.Sprintf(noticeFmtFetch, err))

		return StateFailed
	}

	id, url, err := o.store.Put(data)
	if err != nil {
		o.log.Error("Store write for job %s failed: %v", taskID, err)
		o.notifyText(ctx, req.Target, fmt.Sprintf(noticeFmtStore, err))

		return StateFailed
	}

	o.log.Info("Job %s stored as artifact %s (%d bytes)", taskID, id, len(data))

	notice := core.AudioNotice{
		URL:            url,
		DurationHintMs: estimateDurationMs(len(data)),
	}

	err = o.notifier.Send(ctx, req.Target, notice)
	if err != nil {
		o.log.Error("Failed to deliver audio notice for job %s: %v", taskID, err)
	}

	return StateSucceeded
}

func (o *Orchestrator) notifyText(ctx context.Context, target, message string) {
	err := o.notifier.Send(ctx, target, core.TextNotice{Text: message})
	if err != nil {
		o.log.Error("Failed to deliver notice to target %s: %v", target, err)
	}
}

// estimateDurationMs derives a duration hint from the artifact size at the
// provider's fixed encode bitrate.
func estimateDurationMs(sizeBytes int) int {
	return sizeBytes * 8 / assumedBitrateKbps
}
