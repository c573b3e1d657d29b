// Package core defines the shared types and interfaces for the synthesis service.
package core

import "context"

// SynthesisRequest describes one synthesis command extracted from an inbound
// message. It is immutable and lives only for the duration of a single job run.
type SynthesisRequest struct {
	// Text is the payload to synthesize. Non-empty, length-bounded at dispatch.
	Text string `json:"text"`

	// VoiceProfile is the provider voice identifier active when the request
	// was accepted.
	VoiceProfile string `json:"voice_profile"`

	// Target is the opaque conversation identifier the final result is
	// delivered to.
	Target string `json:"target"`
}

// InboundEvent is the shape the dispatch router consumes: raw text plus the
// conversation it came from. Platform adapters produce this; nothing below
// the router ever sees platform-specific payloads.
type InboundEvent struct {
	Text   string `json:"text"`
	Target string `json:"target"`
	Sender string `json:"sender"`
}

// PollStatus is the outcome of a single provider status check.
type PollStatus int

const (
	// PollPending means the job is still being processed (or the provider
	// reported a status this service does not recognize).
	PollPending PollStatus = iota
	// PollSucceeded means the provider finished the job and a result
	// reference is available.
	PollSucceeded
	// PollFailed means the provider terminally failed the job.
	PollFailed
	// PollExpired means the provider discarded the job before completion.
	PollExpired
)

// PollResult carries the decoded outcome of one poll call.
type PollResult struct {
	Status PollStatus

	// ResultRef identifies the finished artifact at the provider. Only set
	// when Status is PollSucceeded.
	ResultRef string

	// Reason is the provider's own message text for Failed and Expired
	// outcomes. Preserved verbatim for user-facing reporting.
	Reason string
}

// Synthesizer is the provider boundary: submit a job, check it once, and
// retrieve the finished audio. Looping and deadlines belong to the caller.
type Synthesizer interface {
	Submit(ctx context.Context, text, voiceProfile string) (string, error)
	Poll(ctx context.Context, taskID string) (PollResult, error)
	Fetch(ctx context.Context, resultRef string) ([]byte, error)
}

// ArtifactStore persists finished audio and hands back a stable public URL.
type ArtifactStore interface {
	Put(data []byte) (id string, url string, err error)
	Get(id string) ([]byte, error)
}

// Notice is a message pushed to a conversation target. Exactly one of the
// concrete types below is used per send.
type Notice interface {
	noticeKind() string
}

// TextNotice is a plain text message (acknowledgments and failure reports).
type TextNotice struct {
	Text string `json:"text"`
}

func (TextNotice) noticeKind() string { return "text" }

// AudioNotice references a stored artifact by public URL.
type AudioNotice struct {
	URL string `json:"url"`

	// DurationHintMs is an estimate of the audio length. Some platforms
	// require a duration when pushing audio; an estimate is acceptable.
	DurationHintMs int `json:"duration_hint_ms"`
}

func (AudioNotice) noticeKind() string { return "audio" }

// Notifier delivers notices to a conversation target, independent of any
// inbound request/response cycle.
type Notifier interface {
	Send(ctx context.Context, target string, notice Notice) error
}

// Queue hands a synthesis request to a background runner. Enqueue must return
// quickly; the actual run happens elsewhere.
type Queue interface {
	Enqueue(ctx context.Context, req SynthesisRequest) error
}
