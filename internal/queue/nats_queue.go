// Package queue provides the NATS-backed hand-off between the dispatch
// router and the synthesis workers. Enqueue returns as soon as the job has
// been flushed to the server, which keeps the webhook path fast while giving
// every run an observable, bounded home instead of a detached goroutine.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/prakasit008-sys/Pea-linebot/internal/core"
)

// flushTimeout bounds the flush when the caller's context carries no
// deadline; FlushWithContext requires one.
const flushTimeout = 5 * time.Second

// ErrSubjectEmpty indicates that no publish subject was configured.
var ErrSubjectEmpty = errors.New("queue subject cannot be empty")

// NatsQueue publishes synthesis jobs to a NATS subject.
type NatsQueue struct {
	conn    *nats.Conn
	subject string
}

// NewNatsQueue creates a queue publishing to the given subject.
func NewNatsQueue(conn *nats.Conn, subject string) (*NatsQueue, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsQueue{
		conn:    conn,
		subject: subject,
	}, nil
}

// Enqueue publishes one synthesis request and flushes it to the server.
func (q *NatsQueue) Enqueue(ctx context.Context, req core.SynthesisRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	err = q.conn.Publish(q.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", q.subject, err)
	}

	flushCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc

		flushCtx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}

	err = q.conn.FlushWithContext(flushCtx)
	if err != nil {
		return fmt.Errorf("failed to flush publish to subject %s: %w", q.subject, err)
	}

	return nil
}
