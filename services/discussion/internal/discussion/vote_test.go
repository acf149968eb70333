package discussion

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/store"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		name    string
		current int16
		action  Action
		next    int16
		dUp     int32
		dDown   int32
	}{
		{"none upvote", 0, ActionUpvote, 1, 1, 0},
		{"none downvote", 0, ActionDownvote, -1, 0, 1},
		{"upvoted upvote noop", 1, ActionUpvote, 1, 0, 0},
		{"upvoted removeUpvote", 1, ActionRemoveUpvote, 0, -1, 0},
		{"upvoted downvote flip", 1, ActionDownvote, -1, -1, 1},
		{"downvoted downvote noop", -1, ActionDownvote, -1, 0, 0},
		{"downvoted removeDownvote", -1, ActionRemoveDownvote, 0, 0, -1},
		{"downvoted upvote flip", -1, ActionUpvote, 1, 1, -1},
		{"none removeUpvote noop", 0, ActionRemoveUpvote, 0, 0, 0},
		{"none removeDownvote noop", 0, ActionRemoveDownvote, 0, 0, 0},
		{"downvoted removeUpvote mismatch noop", -1, ActionRemoveUpvote, -1, 0, 0},
		{"upvoted removeDownvote mismatch noop", 1, ActionRemoveDownvote, 1, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, dUp, dDown := transition(tc.current, tc.action)
			assert.Equal(t, tc.next, next, "next state")
			assert.Equal(t, tc.dUp, dUp, "upvote delta")
			assert.Equal(t, tc.dDown, dDown, "downvote delta")
		})
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range []string{"upvote", "downvote", "removeUpvote", "removeDownvote"} {
		if _, ok := ParseAction(a); !ok {
			t.Fatalf("expected %q to parse", a)
		}
	}
	if _, ok := ParseAction("like"); ok {
		t.Fatal("expected unknown action to fail")
	}
}

func TestVoteComment_FullCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := uuid.New()

	c := env.mustCreate(t, "voteable", nil)

	res, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionUpvote)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{UpvoteCount: 1, DownvoteCount: 0, UserVote: 1}, res)

	res, err = env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionDownvote)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{UpvoteCount: 0, DownvoteCount: 1, UserVote: -1}, res)

	res, err = env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionRemoveDownvote)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{UpvoteCount: 0, DownvoteCount: 0, UserVote: 0}, res)
}

func TestVoteComment_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := uuid.New()

	c := env.mustCreate(t, "voteable", nil)

	first, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionUpvote)
	require.NoError(t, err)
	second, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionUpvote)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), second.UpvoteCount)
}

func TestVoteComment_RemoveWithoutVoteIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := uuid.New()

	c := env.mustCreate(t, "voteable", nil)

	res, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionRemoveUpvote)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{}, res)

	res, err = env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionRemoveDownvote)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{}, res)
}

func TestVoteComment_MismatchedRemoveKeepsVote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := uuid.New()

	c := env.mustCreate(t, "voteable", nil)

	_, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionDownvote)
	require.NoError(t, err)

	// removeUpvote while downvoted: forgiven, nothing changes.
	res, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionRemoveUpvote)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{UpvoteCount: 0, DownvoteCount: 1, UserVote: -1}, res)
}

func TestVoteComment_TwoVoters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	c := env.mustCreate(t, "popular", nil)

	_, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, alice, ActionUpvote)
	require.NoError(t, err)
	res, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, bob, ActionUpvote)
	require.NoError(t, err)

	assert.Equal(t, int32(2), res.UpvoteCount)
}

func TestVoteComment_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.VoteComment(context.Background(), store.KindNovel, env.novel, 404, uuid.New(), ActionUpvote)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVoteComment_InvalidAction(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCreate(t, "voteable", nil)

	_, err := env.svc.VoteComment(context.Background(), store.KindNovel, env.novel, c.CommentID, uuid.New(), Action("like"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVoteComment_NegativeCounterClamped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := uuid.New()

	c := env.mustCreate(t, "drifted", nil)

	// Simulate a lost update that left the counter below zero.
	require.NoError(t, env.store.AdjustCounts(ctx, store.KindNovel, c.CommentID, -2, 0))

	res, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionDownvote)
	require.NoError(t, err)
	assert.Equal(t, int32(0), res.UpvoteCount, "negative counter must clamp to zero")
	assert.Equal(t, int32(1), res.DownvoteCount)

	got, err := env.store.GetComment(ctx, store.KindNovel, env.novel, c.CommentID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.UpvoteCount, int32(0))
}

func TestVoteComment_DeletedCommentStillVotable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := uuid.New()

	c := env.mustCreate(t, "going away", nil)
	require.NoError(t, env.svc.DeleteComment(ctx, store.KindNovel, env.novel, c.CommentID, env.author))

	// No ordering between delete and concurrent votes; deletion never
	// touches counters, so the vote goes through.
	res, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, ActionUpvote)
	require.NoError(t, err)
	assert.Equal(t, int32(1), res.UpvoteCount)
}

func TestRecountComment_RepairsDriftedCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.mustCreate(t, "drifted", nil)
	_, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, uuid.New(), ActionUpvote)
	require.NoError(t, err)
	_, err = env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, uuid.New(), ActionDownvote)
	require.NoError(t, err)

	// Drift both counters away from the ledger.
	require.NoError(t, env.store.AdjustCounts(ctx, store.KindNovel, c.CommentID, 7, -1))

	res, err := env.svc.RecountComment(ctx, store.KindNovel, env.novel, c.CommentID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), res.UpvoteCount)
	assert.Equal(t, int32(1), res.DownvoteCount)
}

func TestRecountComment_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.RecountComment(context.Background(), store.KindNovel, env.novel, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVoteComment_ConcurrentInterleavingsNeverNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.mustCreate(t, "contended", nil)

	// Shared voters across goroutines race the read-modify-write sequence
	// the non-transactional fallback runs; that is the window that can
	// drive counters below zero before the clamp repairs them.
	voters := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	actions := []Action{ActionUpvote, ActionRemoveUpvote, ActionDownvote, ActionRemoveDownvote}

	var wg sync.WaitGroup
	for g := 0; g < 2*len(voters); g++ {
		voter := voters[g%len(voters)]
		offset := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				res, err := env.svc.VoteComment(ctx, store.KindNovel, env.novel, c.CommentID, voter, actions[(offset+i)%len(actions)])
				if err != nil {
					t.Errorf("vote: %v", err)
					return
				}
				if res.UpvoteCount < 0 || res.DownvoteCount < 0 {
					t.Errorf("negative counters surfaced to caller: %d/%d", res.UpvoteCount, res.DownvoteCount)
				}
			}
		}()
	}
	wg.Wait()

	// The ledger holds at most one row per voter; recounting from it must
	// land on consistent, bounded, non-negative counters.
	res, err := env.svc.RecountComment(ctx, store.KindNovel, env.novel, c.CommentID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.UpvoteCount, int32(0))
	assert.GreaterOrEqual(t, res.DownvoteCount, int32(0))
	assert.LessOrEqual(t, res.UpvoteCount+res.DownvoteCount, int32(len(voters)))
}
