// Package events provides a fire-and-forget NATS publisher for discussion
// business events. Downstream consumers (counter reconciliation, notification
// fan-out) subscribe to the discussion.* subjects.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subject constants for every discussion event type.
const (
	SubjectCommentCreated = "discussion.comment.created"
	SubjectCommentDeleted = "discussion.comment.deleted"
	SubjectCommentVoted   = "discussion.comment.voted"
)

// StreamName is the JetStream stream holding all discussion.* subjects.
const StreamName = "DISCUSSION"

// EnsureStream creates the DISCUSSION stream if it does not exist yet.
// Both the publisher and the reconciliation consumer call this on startup;
// without the stream, publishes and pull subscriptions fail outright.
func EnsureStream(js nats.JetStreamContext, log *zap.Logger) {
	cfg := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"discussion.>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	}

	_, err := js.AddStream(cfg)
	if err == nil {
		log.Info("events: stream created", zap.String("stream", StreamName))
		return
	}
	if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		if _, updateErr := js.UpdateStream(cfg); updateErr != nil {
			log.Warn("events: stream update failed (may already be up to date)", zap.Error(updateErr))
		}
	}
}

// Event is the canonical envelope sent to all discussion.* subjects.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher publishes discussion events to NATS JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// New creates a Publisher using an existing JetStream context.
// Pass js=nil to get a no-op stub (useful in tests and deployments without NATS).
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	return &Publisher{js: js, log: log}
}

// Publish sends an event asynchronously (fire-and-forget).
// Failures are logged as warnings and never surface to the caller.
// The publisher is safe to call with a nil receiver.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
