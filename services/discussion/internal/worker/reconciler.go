// Package worker hosts the background counter reconciler. Vote counters on
// comments are a denormalized cache of the vote ledger; after every vote
// event the reconciler recomputes them from the ledger, healing any drift
// left by writes that ran without a transaction scope.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/events"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/store"
)

const (
	reconcileDurable = "discussion_reconcile"
	fetchBatch       = 64
	fetchWait        = 2 * time.Second
)

type votedEvent struct {
	EventID    string `json:"event_id"`
	Properties struct {
		EntityKind string `json:"entity_kind"`
		CommentID  int64  `json:"comment_id"`
	} `json:"properties"`
}

// StartReconciler consumes discussion.comment.voted events and recomputes
// the affected comment's counters from the vote ledger. It blocks until ctx
// is cancelled and is safe to run as a goroutine next to the HTTP server.
func StartReconciler(ctx context.Context, nc *nats.Conn, st store.CommentStore, log *zap.Logger) {
	js, err := nc.JetStream()
	if err != nil {
		log.Error("reconciler: jetstream", zap.Error(err))
		return
	}

	// The durable pull consumer needs its backing stream before subscribing.
	events.EnsureStream(js, log)

	sub, err := js.PullSubscribe(events.SubjectCommentVoted, reconcileDurable)
	if err != nil {
		log.Error("reconciler: subscribe", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			log.Warn("reconciler: fetch", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, m := range msgs {
			if applyVoted(ctx, st, log, m.Data) {
				_ = m.Ack()
			} else {
				_ = m.Nak()
			}
		}
	}
}

// applyVoted processes one voted event payload and reports whether the
// message is settled. Malformed payloads and vanished comments are settled
// too; only a storage failure asks for redelivery.
func applyVoted(ctx context.Context, st store.CommentStore, log *zap.Logger, data []byte) bool {
	var ev votedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn("reconciler: invalid event", zap.Error(err))
		return true
	}
	kind, ok := store.ParseKind(ev.Properties.EntityKind)
	if !ok {
		log.Warn("reconciler: unknown entity kind", zap.String("kind", ev.Properties.EntityKind))
		return true
	}

	err := st.ReconcileCounts(ctx, kind, ev.Properties.CommentID)
	switch {
	case err == nil:
		return true
	case err == store.ErrNotFound:
		// A vanished comment needs no reconciliation.
		return true
	default:
		log.Warn("reconciler: recount failed",
			zap.String("kind", string(kind)),
			zap.Int64("comment_id", ev.Properties.CommentID),
			zap.Error(err))
		return false
	}
}
