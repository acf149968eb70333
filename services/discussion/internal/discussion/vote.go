package discussion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/events"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/store"
)

// Action is one of the four vote commands accepted from clients.
type Action string

const (
	ActionUpvote         Action = "upvote"
	ActionDownvote       Action = "downvote"
	ActionRemoveUpvote   Action = "removeUpvote"
	ActionRemoveDownvote Action = "removeDownvote"
)

// ParseAction maps an external action spelling onto an Action.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionUpvote, ActionDownvote, ActionRemoveUpvote, ActionRemoveDownvote:
		return Action(s), true
	default:
		return "", false
	}
}

// VoteResult is the refreshed counter state after a vote operation.
type VoteResult struct {
	UpvoteCount   int32 `json:"upvoteCount"`
	DownvoteCount int32 `json:"downvoteCount"`
	UserVote      int16 `json:"userVote"`
}

// transition applies one action to the voter's current state and yields the
// next state plus the counter deltas. Action/state mismatches (removeUpvote
// while downvoted) and repeats are no-ops, forgiving stale client state.
func transition(current int16, action Action) (next int16, dUp, dDown int32) {
	switch action {
	case ActionUpvote:
		switch current {
		case 1:
			return 1, 0, 0
		case -1:
			return 1, 1, -1
		default:
			return 1, 1, 0
		}
	case ActionDownvote:
		switch current {
		case -1:
			return -1, 0, 0
		case 1:
			return -1, -1, 1
		default:
			return -1, 0, 1
		}
	case ActionRemoveUpvote:
		if current == 1 {
			return 0, -1, 0
		}
	case ActionRemoveDownvote:
		if current == -1 {
			return 0, 0, -1
		}
	}
	return current, 0, 0
}

// VoteComment applies one vote action for one voter. The ledger row and the
// denormalized counters are written in one transaction scope when available;
// afterwards the comment is re-read and any negative counter (a lost-update
// symptom under the non-transactional fallback) is clamped back to zero.
func (s *Service) VoteComment(ctx context.Context, kind store.EntityKind, entityRef uuid.UUID, commentID int64, voter uuid.UUID, action Action) (VoteResult, error) {
	if _, ok := store.BindingFor(kind); !ok {
		return VoteResult{}, fmt.Errorf("%w: unknown entity kind %q", ErrValidation, kind)
	}
	if _, ok := ParseAction(string(action)); !ok {
		return VoteResult{}, fmt.Errorf("%w: unknown vote action %q", ErrValidation, action)
	}
	if voter == uuid.Nil {
		return VoteResult{}, fmt.Errorf("%w: voter reference is required", ErrValidation)
	}

	if _, err := s.store.GetComment(ctx, kind, entityRef, commentID); err != nil {
		if errorsIsNotFound(err) {
			return VoteResult{}, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
		}
		return VoteResult{}, fmt.Errorf("lookup comment: %w", err)
	}

	var finalSign int16
	err := s.runWrite(ctx, "voteComment", func(st store.Store) error {
		current, err := st.GetVote(ctx, kind, commentID, voter)
		if err != nil {
			return fmt.Errorf("read vote: %w", err)
		}

		next, dUp, dDown := transition(current, action)
		finalSign = next
		if next == current && dUp == 0 && dDown == 0 {
			return nil
		}

		if next == 0 {
			if err := st.DeleteVote(ctx, kind, commentID, voter); err != nil {
				return fmt.Errorf("delete vote: %w", err)
			}
		} else {
			v := store.Vote{
				EntityKind: kind,
				EntityRef:  entityRef,
				CommentID:  commentID,
				VoterRef:   voter,
				Sign:       next,
				CreatedAt:  s.now(),
			}
			if err := st.UpsertVote(ctx, v); err != nil {
				return fmt.Errorf("upsert vote: %w", err)
			}
		}
		if err := st.AdjustCounts(ctx, kind, commentID, dUp, dDown); err != nil {
			return fmt.Errorf("adjust counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return VoteResult{}, err
	}

	c, err := s.store.GetComment(ctx, kind, entityRef, commentID)
	if err != nil {
		return VoteResult{}, fmt.Errorf("reread comment: %w", err)
	}
	if c.UpvoteCount < 0 || c.DownvoteCount < 0 {
		s.log.Warn("negative vote counter detected, clamping to zero",
			zap.String("kind", string(kind)),
			zap.Int64("comment_id", commentID),
			zap.Int32("upvotes", c.UpvoteCount),
			zap.Int32("downvotes", c.DownvoteCount))
		if err := s.store.ClampCounts(ctx, kind, commentID); err != nil {
			return VoteResult{}, fmt.Errorf("clamp counters: %w", err)
		}
		if c.UpvoteCount < 0 {
			c.UpvoteCount = 0
		}
		if c.DownvoteCount < 0 {
			c.DownvoteCount = 0
		}
	}

	s.invalidateListings(ctx, kind, entityRef)
	s.events.Publish(events.SubjectCommentVoted, "comment_voted", voter.String(), map[string]any{
		"entity_kind": string(kind),
		"entity_ref":  entityRef.String(),
		"comment_id":  commentID,
		"user_vote":   finalSign,
	})

	return VoteResult{
		UpvoteCount:   c.UpvoteCount,
		DownvoteCount: c.DownvoteCount,
		UserVote:      finalSign,
	}, nil
}

// RecountComment recomputes one comment's counters from the vote ledger.
// Moderation tooling for counters that drifted under the non-transactional
// fallback.
func (s *Service) RecountComment(ctx context.Context, kind store.EntityKind, entityRef uuid.UUID, commentID int64) (VoteResult, error) {
	if _, ok := store.BindingFor(kind); !ok {
		return VoteResult{}, fmt.Errorf("%w: unknown entity kind %q", ErrValidation, kind)
	}
	if _, err := s.store.GetComment(ctx, kind, entityRef, commentID); err != nil {
		if errorsIsNotFound(err) {
			return VoteResult{}, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
		}
		return VoteResult{}, fmt.Errorf("lookup comment: %w", err)
	}

	if err := s.store.ReconcileCounts(ctx, kind, commentID); err != nil {
		return VoteResult{}, fmt.Errorf("reconcile counters: %w", err)
	}
	c, err := s.store.GetComment(ctx, kind, entityRef, commentID)
	if err != nil {
		return VoteResult{}, fmt.Errorf("reread comment: %w", err)
	}

	s.invalidateListings(ctx, kind, entityRef)
	return VoteResult{UpvoteCount: c.UpvoteCount, DownvoteCount: c.DownvoteCount}, nil
}
