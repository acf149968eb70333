package discussion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/store"
)

// DefaultPageSize applies when the caller does not specify one.
const DefaultPageSize = 20

const maxPageSize = 100

const listingCacheTTL = time.Minute

// ListQuery narrows a comment listing. A non-positive PageSize means
// unspecified and maps to DefaultPageSize; transports clamp explicit
// out-of-range values before calling.
type ListQuery struct {
	Page           int
	PageSize       int
	IncludeDeleted bool
	Sort           string
	// RequestingUser enables per-item vote enrichment; uuid.Nil disables it.
	RequestingUser uuid.UUID
}

// CommentView is a listed comment enriched with the requesting user's own
// vote sign (0 when absent or anonymous).
type CommentView struct {
	store.Comment
	UserVote int16 `json:"userVote"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type CommentPage struct {
	Items      []CommentView `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// ListComments returns one page of a thread listing, filtered and sorted in
// storage. Vote enrichment is a single batched ledger query per page.
func (s *Service) ListComments(ctx context.Context, kind store.EntityKind, entityRef uuid.UUID, q ListQuery) (CommentPage, error) {
	if _, ok := store.BindingFor(kind); !ok {
		return CommentPage{}, fmt.Errorf("%w: unknown entity kind %q", ErrValidation, kind)
	}
	if entityRef == uuid.Nil {
		return CommentPage{}, fmt.Errorf("%w: entity reference is required", ErrValidation)
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	switch q.Sort {
	case store.SortNewest, store.SortOldest, store.SortTop:
	default:
		q.Sort = store.SortNewest
	}

	cacheKey := ""
	if s.cache != nil && q.RequestingUser == uuid.Nil {
		cacheKey = listingKey(kind, entityRef, q)
		if raw, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var page CommentPage
			if json.Unmarshal([]byte(raw), &page) == nil {
				return page, nil
			}
		} else if err != redis.Nil {
			s.log.Debug("listing cache read failed", zap.Error(err))
		}
	}

	items, total, err := s.store.ListComments(ctx, kind, entityRef, store.ListOptions{
		Offset:         (q.Page - 1) * q.PageSize,
		Limit:          q.PageSize,
		IncludeDeleted: q.IncludeDeleted,
		Sort:           q.Sort,
	})
	if err != nil {
		return CommentPage{}, fmt.Errorf("list comments: %w", err)
	}

	views := make([]CommentView, len(items))
	for i, c := range items {
		views[i] = CommentView{Comment: c}
	}

	if q.RequestingUser != uuid.Nil && len(items) > 0 {
		ids := make([]int64, len(items))
		for i, c := range items {
			ids[i] = c.CommentID
		}
		signs, err := s.store.VotesByVoter(ctx, kind, q.RequestingUser, ids)
		if err != nil {
			return CommentPage{}, fmt.Errorf("enrich votes: %w", err)
		}
		for i := range views {
			views[i].UserVote = signs[views[i].CommentID]
		}
	}

	page := CommentPage{
		Items: views,
		Pagination: Pagination{
			Page:       q.Page,
			PageSize:   q.PageSize,
			Total:      total,
			TotalPages: int((total + int64(q.PageSize) - 1) / int64(q.PageSize)),
		},
	}

	if cacheKey != "" {
		if raw, err := json.Marshal(page); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, listingCacheTTL).Err(); err != nil {
				s.log.Debug("listing cache write failed", zap.Error(err))
			}
		}
	}
	return page, nil
}

func listingKey(kind store.EntityKind, entityRef uuid.UUID, q ListQuery) string {
	return fmt.Sprintf("discussion:%s:%s:p%d:n%d:%s:d%t",
		kind, entityRef, q.Page, q.PageSize, q.Sort, q.IncludeDeleted)
}

// invalidateListings drops every cached page for one entity's thread.
func (s *Service) invalidateListings(ctx context.Context, kind store.EntityKind, entityRef uuid.UUID) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("discussion:%s:%s:*", kind, entityRef)
	keys, err := s.cache.Keys(ctx, pattern).Result()
	if err != nil {
		s.log.Debug("listing cache invalidation failed", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		_ = s.cache.Del(ctx, keys...).Err()
	}
}
