package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type voteKey struct {
	kind      EntityKind
	commentID int64
	voter     uuid.UUID
}

// InMemoryStore is a development and test implementation. It holds no
// multi-write transaction scope: RunInTx reports ErrTxUnsupported, which
// exercises the service's non-transactional fallback the way a constrained
// single-node deployment would.
type InMemoryStore struct {
	mu       sync.RWMutex
	comments map[EntityKind]map[int64]Comment
	votes    map[voteKey]Vote
	seqs     map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	m := &InMemoryStore{
		comments: make(map[EntityKind]map[int64]Comment),
		votes:    make(map[voteKey]Vote),
		seqs:     make(map[string]int64),
	}
	for _, k := range Kinds() {
		m.comments[k] = make(map[int64]Comment)
	}
	return m
}

func (s *InMemoryStore) RunInTx(_ context.Context, _ func(Store) error) error {
	return ErrTxUnsupported
}

func (s *InMemoryStore) NextID(_ context.Context, namespace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[namespace]++
	return s.seqs[namespace], nil
}

func (s *InMemoryStore) InsertComment(_ context.Context, kind EntityKind, c Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[kind][c.CommentID] = c
	return nil
}

func (s *InMemoryStore) GetComment(_ context.Context, kind EntityKind, entityRef uuid.UUID, commentID int64) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[kind][commentID]
	if !ok || c.EntityRef != entityRef {
		return Comment{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) ListComments(_ context.Context, kind EntityKind, entityRef uuid.UUID, opts ListOptions) ([]Comment, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Comment
	for _, c := range s.comments[kind] {
		if c.EntityRef != entityRef {
			continue
		}
		if c.IsDeleted && !opts.IncludeDeleted {
			continue
		}
		all = append(all, c)
	}

	switch opts.Sort {
	case SortOldest:
		sort.Slice(all, func(i, j int) bool {
			if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].CreatedAt.Before(all[j].CreatedAt)
			}
			return all[i].CommentID < all[j].CommentID
		})
	case SortTop:
		sort.Slice(all, func(i, j int) bool {
			if all[i].UpvoteCount != all[j].UpvoteCount {
				return all[i].UpvoteCount > all[j].UpvoteCount
			}
			if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].CreatedAt.After(all[j].CreatedAt)
			}
			return all[i].CommentID > all[j].CommentID
		})
	default: // SortNewest
		sort.Slice(all, func(i, j int) bool {
			if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].CreatedAt.After(all[j].CreatedAt)
			}
			return all[i].CommentID > all[j].CommentID
		})
	}

	total := int64(len(all))
	if opts.Offset >= len(all) {
		return []Comment{}, total, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, total, nil
}

func (s *InMemoryStore) MarkDeleted(_ context.Context, kind EntityKind, entityRef uuid.UUID, commentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[kind][commentID]
	if !ok || c.EntityRef != entityRef {
		return ErrNotFound
	}
	c.IsDeleted = true
	s.comments[kind][commentID] = c
	return nil
}

func (s *InMemoryStore) AdjustCounts(_ context.Context, kind EntityKind, commentID int64, dUp, dDown int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[kind][commentID]
	if !ok {
		return ErrNotFound
	}
	c.UpvoteCount += dUp
	c.DownvoteCount += dDown
	s.comments[kind][commentID] = c
	return nil
}

func (s *InMemoryStore) ClampCounts(_ context.Context, kind EntityKind, commentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[kind][commentID]
	if !ok {
		return ErrNotFound
	}
	if c.UpvoteCount < 0 {
		c.UpvoteCount = 0
	}
	if c.DownvoteCount < 0 {
		c.DownvoteCount = 0
	}
	s.comments[kind][commentID] = c
	return nil
}

func (s *InMemoryStore) ReconcileCounts(_ context.Context, kind EntityKind, commentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[kind][commentID]
	if !ok {
		return ErrNotFound
	}
	var up, down int32
	for k, v := range s.votes {
		if k.kind != kind || k.commentID != commentID {
			continue
		}
		switch v.Sign {
		case 1:
			up++
		case -1:
			down++
		}
	}
	c.UpvoteCount = up
	c.DownvoteCount = down
	s.comments[kind][commentID] = c
	return nil
}

func (s *InMemoryStore) GetVote(_ context.Context, kind EntityKind, commentID int64, voter uuid.UUID) (int16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[voteKey{kind, commentID, voter}]
	if !ok {
		return 0, nil
	}
	return v.Sign, nil
}

func (s *InMemoryStore) UpsertVote(_ context.Context, v Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey{v.EntityKind, v.CommentID, v.VoterRef}] = v
	return nil
}

func (s *InMemoryStore) DeleteVote(_ context.Context, kind EntityKind, commentID int64, voter uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, voteKey{kind, commentID, voter})
	return nil
}

func (s *InMemoryStore) VotesByVoter(_ context.Context, kind EntityKind, voter uuid.UUID, commentIDs []int64) (map[int64]int16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int16, len(commentIDs))
	for _, id := range commentIDs {
		if v, ok := s.votes[voteKey{kind, id, voter}]; ok {
			out[id] = v.Sign
		}
	}
	return out, nil
}
