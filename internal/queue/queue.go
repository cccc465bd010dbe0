// Package queue provides the durable stage queues the pipeline communicates
// over. Delivery is at-least-once; effectively-once stage execution comes
// from deterministic job identities plus idempotent handlers, not from the
// queue itself.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ammobase/harvester/pkg/types"
)

// Message is one received queue message.
type Message struct {
	// Handle identifies the in-flight delivery for Delete.
	Handle string
	// Body is the JSON-encoded envelope.
	Body []byte
	// Attempt is the application-level attempt count, starting at 1.
	Attempt int
}

// Options control a single enqueue.
type Options struct {
	// DedupID is the deterministic job identity. The memory backend drops
	// enqueues it has already seen; SQS carries it as a message attribute
	// and leaves duplicate suppression to the idempotent handlers.
	DedupID string
	// Delay defers visibility of the message.
	Delay time.Duration
	// Attempt tags the message with its attempt count (0 means first, stored as 1).
	Attempt int
}

// Queue is a durable, at-least-once message queue with one channel per stage.
type Queue interface {
	Enqueue(ctx context.Context, stage types.Stage, body []byte, opts Options) error
	// Receive returns up to max messages, extending their invisibility while
	// they are being processed.
	Receive(ctx context.Context, stage types.Stage, max int) ([]Message, error)
	Delete(ctx context.Context, stage types.Stage, msg Message) error
}

// envelope wraps every payload so the attempt count survives re-enqueues.
type envelope struct {
	Attempt int             `json:"attempt"`
	Payload json.RawMessage `json:"payload"`
}

// Publish marshals a payload and enqueues it on the given stage.
func Publish(ctx context.Context, q Queue, stage types.Stage, payload any, opts Options) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", stage, err)
	}
	attempt := opts.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	body, err := json.Marshal(envelope{Attempt: attempt, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", stage, err)
	}
	opts.Attempt = attempt
	return q.Enqueue(ctx, stage, body, opts)
}

// Decode unmarshals a received message into the stage payload type and
// returns the attempt count.
func Decode(msg Message, payload any) (int, error) {
	var env envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return 0, fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return 0, fmt.Errorf("decode payload: %w", err)
	}
	attempt := env.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	return attempt, nil
}

// Reattempt re-enqueues a failed message with the envelope's attempt count
// rewritten to opts.Attempt. The caller supplies a fresh dedup id; reusing
// the original would make the queue drop the retry.
func Reattempt(ctx context.Context, q Queue, stage types.Stage, msg Message, opts Options) error {
	var env envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return fmt.Errorf("decode envelope for retry: %w", err)
	}
	env.Attempt = opts.Attempt
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal retry envelope: %w", err)
	}
	return q.Enqueue(ctx, stage, body, opts)
}

// JobID derives the deterministic queue-level job identity for a stage job.
// One execution produces exactly one job identity per stage; extra parts
// (e.g. a product id for alert jobs) extend the key.
func JobID(executionID string, stage types.Stage, parts ...string) string {
	id := executionID + ":" + string(stage)
	for _, p := range parts {
		id += ":" + p
	}
	return id
}
