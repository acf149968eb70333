package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Comment is a single comment row. Comments for each entity kind live in
// their own table but share this shape.
type Comment struct {
	CommentID       int64      `json:"commentId"`
	EntityKind      EntityKind `json:"entityKind"`
	EntityRef       uuid.UUID  `json:"entityRef"`
	AuthorRef       uuid.UUID  `json:"authorRef"`
	AuthorLegacyID  *int64     `json:"authorLegacyId,omitempty"`
	Content         string     `json:"content"`
	ParentCommentID *int64     `json:"parentCommentId,omitempty"`
	RootCommentID   int64      `json:"rootCommentId"`
	Path            string     `json:"path"`
	Depth           int32      `json:"depth"`
	UpvoteCount     int32      `json:"upvoteCount"`
	DownvoteCount   int32      `json:"downvoteCount"`
	IsDeleted       bool       `json:"isDeleted"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Vote is one ledger row: the current vote sign of one user on one comment.
// Absence of a row means no active vote; there is never a zero-sign row.
type Vote struct {
	EntityKind EntityKind `json:"entityKind"`
	EntityRef  uuid.UUID  `json:"entityRef"`
	CommentID  int64      `json:"commentId"`
	VoterRef   uuid.UUID  `json:"voterRef"`
	Sign       int16      `json:"sign"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Sort orders accepted by ListComments.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortTop    = "top"
)

// ListOptions narrows and orders a comment listing. Offset/Limit are assumed
// pre-clamped by the caller.
type ListOptions struct {
	Offset         int
	Limit          int
	IncludeDeleted bool
	Sort           string
}

var (
	// ErrNotFound marks a missing comment or vote row.
	ErrNotFound = errors.New("not found")

	// ErrTxUnsupported is reported by backends that cannot provide a
	// multi-write transaction scope. Callers are expected to retry the
	// write sequence without one.
	ErrTxUnsupported = errors.New("transactions unsupported")
)

// SequenceAllocator issues strictly increasing, collision-free integer ids
// per namespace. Gaps are acceptable.
type SequenceAllocator interface {
	NextID(ctx context.Context, namespace string) (int64, error)
}

// CommentStore is the per-kind comment persistence contract.
type CommentStore interface {
	InsertComment(ctx context.Context, kind EntityKind, c Comment) error
	GetComment(ctx context.Context, kind EntityKind, entityRef uuid.UUID, commentID int64) (Comment, error)
	ListComments(ctx context.Context, kind EntityKind, entityRef uuid.UUID, opts ListOptions) ([]Comment, int64, error)
	MarkDeleted(ctx context.Context, kind EntityKind, entityRef uuid.UUID, commentID int64) error
	// AdjustCounts applies vote counter deltas in place.
	AdjustCounts(ctx context.Context, kind EntityKind, commentID int64, dUp, dDown int32) error
	// ClampCounts corrects any negative counter back to zero.
	ClampCounts(ctx context.Context, kind EntityKind, commentID int64) error
	// ReconcileCounts recomputes both counters from the vote ledger.
	ReconcileCounts(ctx context.Context, kind EntityKind, commentID int64) error
}

// VoteLedger is the authoritative per-(comment, voter) vote record.
// Uniqueness of (kind, commentID, voterRef) is enforced by the backend.
type VoteLedger interface {
	// GetVote returns the current sign, or 0 when no vote exists.
	GetVote(ctx context.Context, kind EntityKind, commentID int64, voter uuid.UUID) (int16, error)
	UpsertVote(ctx context.Context, v Vote) error
	DeleteVote(ctx context.Context, kind EntityKind, commentID int64, voter uuid.UUID) error
	// VotesByVoter fetches one voter's signs for a batch of comments in a
	// single query. Comments without a vote are absent from the result.
	VotesByVoter(ctx context.Context, kind EntityKind, voter uuid.UUID, commentIDs []int64) (map[int64]int16, error)
}

// Store is the full discussion persistence contract.
type Store interface {
	SequenceAllocator
	CommentStore
	VoteLedger

	// RunInTx runs fn against a transactional view of the store, committing
	// on nil and rolling back otherwise. Backends without multi-write
	// atomicity return ErrTxUnsupported without invoking fn.
	RunInTx(ctx context.Context, fn func(Store) error) error
}
