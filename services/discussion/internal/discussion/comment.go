package discussion

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/events"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/store"
)

// CreateComment validates and persists a new comment. A supplied parent
// comment id threads the comment under that parent; if the parent vanished
// (race or stale client state) the comment is demoted to a new top-level
// thread instead of being rejected.
func (s *Service) CreateComment(ctx context.Context, kind store.EntityKind, entityRef, authorRef uuid.UUID, content string, parentCommentID *int64) (store.Comment, error) {
	b, ok := store.BindingFor(kind)
	if !ok {
		return store.Comment{}, fmt.Errorf("%w: unknown entity kind %q", ErrValidation, kind)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Comment{}, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if entityRef == uuid.Nil {
		return store.Comment{}, fmt.Errorf("%w: entity reference is required", ErrValidation)
	}
	if authorRef == uuid.Nil {
		return store.Comment{}, fmt.Errorf("%w: author reference is required", ErrValidation)
	}

	found, err := s.entities.Exists(ctx, kind, entityRef)
	if err != nil {
		return store.Comment{}, fmt.Errorf("resolve %s %s: %w", kind, entityRef, err)
	}
	if !found {
		return store.Comment{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, entityRef)
	}

	id, err := s.store.NextID(ctx, b.Sequence)
	if err != nil {
		return store.Comment{}, fmt.Errorf("allocate comment id: %w", err)
	}

	c := store.Comment{
		CommentID:  id,
		EntityKind: kind,
		EntityRef:  entityRef,
		AuthorRef:  authorRef,
		Content:    content,
		CreatedAt:  s.now(),
	}

	if parentCommentID != nil {
		parent, err := s.store.GetComment(ctx, kind, entityRef, *parentCommentID)
		switch {
		case err == nil:
			c.ParentCommentID = parentCommentID
			c.RootCommentID = parent.RootCommentID
			c.Path, err = store.ChildPath(parent.Path, id)
			if err != nil {
				return store.Comment{}, err
			}
			c.Depth = store.PathDepth(c.Path)
		case errorsIsNotFound(err):
			// Vanished parent must not block the child; start a new thread.
			s.log.Info("parent comment missing, demoting reply to top level",
				zap.String("kind", string(kind)),
				zap.Int64("parent_comment_id", *parentCommentID),
				zap.Int64("comment_id", id))
		default:
			return store.Comment{}, fmt.Errorf("lookup parent comment: %w", err)
		}
	}

	if c.ParentCommentID == nil {
		c.RootCommentID = id
		c.Depth = 0
		c.Path, err = store.ChildPath("", id)
		if err != nil {
			return store.Comment{}, err
		}
	}

	if s.identity != nil {
		legacyID, okLegacy, err := s.identity.LegacyUserID(ctx, authorRef)
		if err != nil {
			s.log.Debug("legacy user id lookup failed", zap.String("author", authorRef.String()), zap.Error(err))
		} else if okLegacy {
			c.AuthorLegacyID = &legacyID
		}
	}

	err = s.runWrite(ctx, "createComment", func(st store.Store) error {
		return st.InsertComment(ctx, kind, c)
	})
	if err != nil {
		return store.Comment{}, fmt.Errorf("persist comment: %w", err)
	}

	s.invalidateListings(ctx, kind, entityRef)
	s.events.Publish(events.SubjectCommentCreated, "comment_created", authorRef.String(), map[string]any{
		"entity_kind": string(kind),
		"entity_ref":  entityRef.String(),
		"comment_id":  id,
		"depth":       c.Depth,
	})
	return c, nil
}

// DeleteComment soft-deletes a comment in place. When requestingUser is
// supplied only the author may delete; the nil UUID marks an administrative
// delete. Children stay threaded under the deleted node and vote records are
// untouched.
func (s *Service) DeleteComment(ctx context.Context, kind store.EntityKind, entityRef uuid.UUID, commentID int64, requestingUser uuid.UUID) error {
	if _, ok := store.BindingFor(kind); !ok {
		return fmt.Errorf("%w: unknown entity kind %q", ErrValidation, kind)
	}

	c, err := s.store.GetComment(ctx, kind, entityRef, commentID)
	if errorsIsNotFound(err) {
		return fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
	}
	if err != nil {
		return fmt.Errorf("lookup comment: %w", err)
	}

	if requestingUser != uuid.Nil && c.AuthorRef != requestingUser {
		return fmt.Errorf("%w: not permitted to delete", ErrPermission)
	}

	if err := s.store.MarkDeleted(ctx, kind, entityRef, commentID); err != nil {
		if errorsIsNotFound(err) {
			return fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
		}
		return fmt.Errorf("soft delete comment: %w", err)
	}

	deletedBy := ""
	if requestingUser != uuid.Nil {
		deletedBy = requestingUser.String()
	}
	s.invalidateListings(ctx, kind, entityRef)
	s.events.Publish(events.SubjectCommentDeleted, "comment_deleted", deletedBy, map[string]any{
		"entity_kind": string(kind),
		"entity_ref":  entityRef.String(),
		"comment_id":  commentID,
	})
	return nil
}
