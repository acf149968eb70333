package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStoreInterface(t *testing.T) {
	var _ Store = (*InMemoryStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}

func TestInMemoryStore_NextID_Monotonic(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.NextID(ctx, "novel_comment_id")
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if id <= last {
			t.Fatalf("expected id > %d, got %d", last, id)
		}
		last = id
	}

	// Independent namespace starts over.
	id, _ := s.NextID(ctx, "reading_list_comment_id")
	if id != 1 {
		t.Fatalf("expected 1 in fresh namespace, got %d", id)
	}
}

func newComment(id int64, ref uuid.UUID, at time.Time) Comment {
	return Comment{
		CommentID:     id,
		EntityKind:    KindNovel,
		EntityRef:     ref,
		AuthorRef:     uuid.New(),
		Content:       "c",
		RootCommentID: id,
		Path:          "",
		CreatedAt:     at,
	}
}

func TestInMemoryStore_GetComment_ScopedToEntity(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	refA, refB := uuid.New(), uuid.New()

	_ = s.InsertComment(ctx, KindNovel, newComment(1, refA, time.Now()))

	if _, err := s.GetComment(ctx, KindNovel, refA, 1); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := s.GetComment(ctx, KindNovel, refB, 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for wrong entity, got %v", err)
	}
	if _, err := s.GetComment(ctx, KindReadingList, refA, 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for wrong kind, got %v", err)
	}
}

func TestInMemoryStore_ListComments_FilterSortPage(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	ref := uuid.New()
	base := time.Now().UTC()

	for i := int64(1); i <= 5; i++ {
		c := newComment(i, ref, base.Add(time.Duration(i)*time.Second))
		if i == 3 {
			c.IsDeleted = true
		}
		c.UpvoteCount = int32(i % 3)
		_ = s.InsertComment(ctx, KindNovel, c)
	}

	items, total, err := s.ListComments(ctx, KindNovel, ref, ListOptions{Limit: 10, Sort: SortNewest})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected total 4 without deleted, got %d", total)
	}
	if items[0].CommentID != 5 {
		t.Fatalf("expected newest first (5), got %d", items[0].CommentID)
	}

	items, total, _ = s.ListComments(ctx, KindNovel, ref, ListOptions{Limit: 10, Sort: SortOldest, IncludeDeleted: true})
	if total != 5 {
		t.Fatalf("expected total 5 with deleted, got %d", total)
	}
	if items[0].CommentID != 1 {
		t.Fatalf("expected oldest first (1), got %d", items[0].CommentID)
	}

	// top: upvotes desc, then created desc
	items, _, _ = s.ListComments(ctx, KindNovel, ref, ListOptions{Limit: 10, Sort: SortTop})
	if items[0].UpvoteCount < items[len(items)-1].UpvoteCount {
		t.Fatal("expected top sort by upvotes descending")
	}

	// offset past the end
	items, total, _ = s.ListComments(ctx, KindNovel, ref, ListOptions{Offset: 10, Limit: 10, Sort: SortNewest})
	if len(items) != 0 || total != 4 {
		t.Fatalf("expected empty page with total 4, got %d items total %d", len(items), total)
	}
}

func TestInMemoryStore_MarkDeleted(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	ref := uuid.New()
	_ = s.InsertComment(ctx, KindNovel, newComment(1, ref, time.Now()))

	if err := s.MarkDeleted(ctx, KindNovel, ref, 1); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	c, _ := s.GetComment(ctx, KindNovel, ref, 1)
	if !c.IsDeleted {
		t.Fatal("expected is_deleted true")
	}
	if c.Content != "c" {
		t.Fatal("soft delete must keep content")
	}
	if err := s.MarkDeleted(ctx, KindNovel, ref, 99); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore_Votes(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	ref := uuid.New()
	voter := uuid.New()
	_ = s.InsertComment(ctx, KindNovel, newComment(1, ref, time.Now()))
	_ = s.InsertComment(ctx, KindNovel, newComment(2, ref, time.Now()))

	sign, err := s.GetVote(ctx, KindNovel, 1, voter)
	if err != nil || sign != 0 {
		t.Fatalf("expected no vote, got sign=%d err=%v", sign, err)
	}

	_ = s.UpsertVote(ctx, Vote{EntityKind: KindNovel, EntityRef: ref, CommentID: 1, VoterRef: voter, Sign: 1})
	_ = s.UpsertVote(ctx, Vote{EntityKind: KindNovel, EntityRef: ref, CommentID: 2, VoterRef: voter, Sign: -1})

	// Upsert replaces, never duplicates.
	_ = s.UpsertVote(ctx, Vote{EntityKind: KindNovel, EntityRef: ref, CommentID: 1, VoterRef: voter, Sign: -1})
	sign, _ = s.GetVote(ctx, KindNovel, 1, voter)
	if sign != -1 {
		t.Fatalf("expected sign -1 after flip, got %d", sign)
	}

	batch, err := s.VotesByVoter(ctx, KindNovel, voter, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch) != 2 || batch[1] != -1 || batch[2] != -1 {
		t.Fatalf("unexpected batch result: %v", batch)
	}

	_ = s.DeleteVote(ctx, KindNovel, 1, voter)
	sign, _ = s.GetVote(ctx, KindNovel, 1, voter)
	if sign != 0 {
		t.Fatalf("expected no vote after delete, got %d", sign)
	}
}

func TestInMemoryStore_CountsAndReconcile(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	ref := uuid.New()
	_ = s.InsertComment(ctx, KindNovel, newComment(1, ref, time.Now()))

	_ = s.AdjustCounts(ctx, KindNovel, 1, 2, 1)
	c, _ := s.GetComment(ctx, KindNovel, ref, 1)
	if c.UpvoteCount != 2 || c.DownvoteCount != 1 {
		t.Fatalf("expected 2/1, got %d/%d", c.UpvoteCount, c.DownvoteCount)
	}

	_ = s.AdjustCounts(ctx, KindNovel, 1, -3, 0)
	_ = s.ClampCounts(ctx, KindNovel, 1)
	c, _ = s.GetComment(ctx, KindNovel, ref, 1)
	if c.UpvoteCount != 0 {
		t.Fatalf("expected clamp to 0, got %d", c.UpvoteCount)
	}

	// Reconcile recomputes from the ledger.
	_ = s.UpsertVote(ctx, Vote{EntityKind: KindNovel, EntityRef: ref, CommentID: 1, VoterRef: uuid.New(), Sign: 1})
	_ = s.UpsertVote(ctx, Vote{EntityKind: KindNovel, EntityRef: ref, CommentID: 1, VoterRef: uuid.New(), Sign: 1})
	_ = s.UpsertVote(ctx, Vote{EntityKind: KindNovel, EntityRef: ref, CommentID: 1, VoterRef: uuid.New(), Sign: -1})
	if err := s.ReconcileCounts(ctx, KindNovel, 1); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	c, _ = s.GetComment(ctx, KindNovel, ref, 1)
	if c.UpvoteCount != 2 || c.DownvoteCount != 1 {
		t.Fatalf("expected reconciled 2/1, got %d/%d", c.UpvoteCount, c.DownvoteCount)
	}
}

func TestInMemoryStore_RunInTx_Unsupported(t *testing.T) {
	s := NewInMemoryStore()
	err := s.RunInTx(context.Background(), func(Store) error { return nil })
	if err != ErrTxUnsupported {
		t.Fatalf("expected ErrTxUnsupported, got %v", err)
	}
}
