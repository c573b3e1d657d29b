// Package worker provides a NATS worker that consumes queued synthesis
// requests and drives each one through the job orchestrator.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/prakasit008-sys/Pea-linebot/internal/core"
	"github.com/prakasit008-sys/Pea-linebot/internal/orchestrator"
)

// DefaultMaxConcurrentJobs bounds how many syntheses run at once. Each job
// spends most of its life waiting on the provider, so a small pool suffices.
const DefaultMaxConcurrentJobs = 4

// DefaultJobTimeout caps one job end to end, including queue wait for a
// concurrency slot.
const DefaultJobTimeout = 5 * time.Minute

// drainPollInterval paces the wait for a draining subscription to finish
// delivering its buffered messages.
const drainPollInterval = 10 * time.Millisecond

// Static errors.
var (
	// ErrSubjectEmpty indicates a worker created without a subject.
	ErrSubjectEmpty = errors.New("subject cannot be empty")

	// ErrTargetMissing indicates a queued request with no delivery target.
	ErrTargetMissing = errors.New("request target is missing")
)

// JobRunner executes one synthesis job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, req core.SynthesisRequest) orchestrator.State
}

// Options configures a NatsWorker. Zero values fall back to the defaults
// above.
type Options struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

// NatsWorker listens for synthesis requests on a NATS subject and processes
// them concurrently up to a fixed limit.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	runner         JobRunner
	log            *logger.Logger
	slots          chan struct{}
	jobTimeout     time.Duration
	inFlight       sync.WaitGroup
}

// NewNatsWorker creates a worker over an established NATS connection.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	runner JobRunner,
	log *logger.Logger,
	opts Options,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}

	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		runner:         runner,
		log:            log,
		slots:          make(chan struct{}, opts.MaxConcurrentJobs),
		jobTimeout:     opts.JobTimeout,
		inFlight:       sync.WaitGroup{},
	}, nil
}

// Run subscribes and processes messages until the context is canceled, then
// drains the subscription and waits for in-flight jobs to finish.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	// Drain is asynchronous: buffered messages are still handed to
	// handleMessage until the subscription goes invalid. Only after that
	// can no new job register with the wait group.
	for sub.IsValid() {
		time.Sleep(drainPollInterval)
	}

	w.inFlight.Wait()

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	request, err := parseRequest(msg.Data)
	if err != nil {
		// A bad message can never succeed; drop it rather than block a slot.
		w.log.Error("Discarding unusable synthesis request: %v", err)

		return
	}

	w.slots <- struct{}{}

	w.inFlight.Add(1)

	go func() {
		defer func() {
			<-w.slots

			w.inFlight.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
		defer cancel()

		finalState := w.runner.Run(ctx, request)
		w.log.Info(
			"Synthesis job for target %s finished in state %s",
			request.Target, finalState,
		)
	}()
}

func parseRequest(data []byte) (core.SynthesisRequest, error) {
	var request core.SynthesisRequest

	err := json.Unmarshal(data, &request)
	if err != nil {
		return core.SynthesisRequest{}, fmt.Errorf("failed to unmarshal request: %w", err)
	}

	if request.Target == "" {
		return core.SynthesisRequest{}, ErrTargetMissing
	}

	return request, nil
}
