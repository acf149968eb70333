package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/api"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/auth"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/httpserver"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/discussion"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/store"
)

type createCommentRequest struct {
	Content         string `json:"content"`
	ParentCommentID *int64 `json:"parentCommentId,omitempty"`
}

type voteCommentRequest struct {
	Action string `json:"action"`
}

type deleteCommentResponse struct {
	Success bool `json:"success"`
}

// CreateComment handles POST /v1/{kind}/{entity_id}/comments
func CreateComment(svc *discussion.Service, kind store.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		author, ok := userRef(r)
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}
		entityRef, ok := entityRefParam(r)
		if !ok {
			api.BadRequest(w, "INVALID_ID", "entity_id must be a UUID", rid, nil)
			return
		}

		var req createCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}

		created, err := svc.CreateComment(r.Context(), kind, entityRef, author, req.Content, req.ParentCommentID)
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// ListComments handles GET /v1/{kind}/{entity_id}/comments
func ListComments(svc *discussion.Service, kind store.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		entityRef, ok := entityRefParam(r)
		if !ok {
			api.BadRequest(w, "INVALID_ID", "entity_id must be a UUID", rid, nil)
			return
		}

		q := discussion.ListQuery{
			Page:     queryInt(r, "page", 1),
			PageSize: queryInt(r, "pageSize", discussion.DefaultPageSize),
			Sort:     strings.TrimSpace(r.URL.Query().Get("sort")),
		}
		// An explicit pageSize below the range clamps to 1; only an absent
		// parameter gets the default.
		if q.PageSize < 1 {
			q.PageSize = 1
		}
		if requester, ok := userRef(r); ok {
			q.RequestingUser = requester
		}
		// Deleted rows stay visible only to moderation views.
		if role, _ := auth.RoleFromContext(r.Context()); strings.EqualFold(role, "admin") {
			q.IncludeDeleted = r.URL.Query().Get("includeDeleted") == "true"
		}

		page, err := svc.ListComments(r.Context(), kind, entityRef, q)
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// DeleteComment handles DELETE /v1/{kind}/{entity_id}/comments/{comment_id}
func DeleteComment(svc *discussion.Service, kind store.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		requester, ok := userRef(r)
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}
		entityRef, ok := entityRefParam(r)
		if !ok {
			api.BadRequest(w, "INVALID_ID", "entity_id must be a UUID", rid, nil)
			return
		}
		commentID, ok := commentIDParam(r)
		if !ok {
			api.BadRequest(w, "INVALID_ID", "comment_id must be an integer", rid, nil)
			return
		}

		// Admins delete unconditionally; everyone else only their own.
		if role, _ := auth.RoleFromContext(r.Context()); strings.EqualFold(role, "admin") {
			requester = uuid.Nil
		}

		if err := svc.DeleteComment(r.Context(), kind, entityRef, commentID, requester); err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, deleteCommentResponse{Success: true})
	}
}

// VoteComment handles POST /v1/{kind}/{entity_id}/comments/{comment_id}/vote
func VoteComment(svc *discussion.Service, kind store.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		voter, ok := userRef(r)
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}
		entityRef, ok := entityRefParam(r)
		if !ok {
			api.BadRequest(w, "INVALID_ID", "entity_id must be a UUID", rid, nil)
			return
		}
		commentID, ok := commentIDParam(r)
		if !ok {
			api.BadRequest(w, "INVALID_ID", "comment_id must be an integer", rid, nil)
			return
		}

		var req voteCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}
		action, ok := discussion.ParseAction(strings.TrimSpace(req.Action))
		if !ok {
			api.BadRequest(w, "INVALID_ACTION", "action must be one of upvote, downvote, removeUpvote, removeDownvote", rid, nil)
			return
		}

		result, err := svc.VoteComment(r.Context(), kind, entityRef, commentID, voter, action)
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, result)
	}
}

// RecountComment handles POST /v1/{kind}/{entity_id}/comments/{comment_id}/recount
// (admin only; routing enforces the role).
func RecountComment(svc *discussion.Service, kind store.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		entityRef, ok := entityRefParam(r)
		if !ok {
			api.BadRequest(w, "INVALID_ID", "entity_id must be a UUID", rid, nil)
			return
		}
		commentID, ok := commentIDParam(r)
		if !ok {
			api.BadRequest(w, "INVALID_ID", "comment_id must be an integer", rid, nil)
			return
		}

		result, err := svc.RecountComment(r.Context(), kind, entityRef, commentID)
		if err != nil {
			writeServiceError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, result)
	}
}

func userRef(r *http.Request) (uuid.UUID, bool) {
	sub, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	ref, err := uuid.Parse(strings.TrimSpace(sub))
	if err != nil {
		return uuid.Nil, false
	}
	return ref, true
}

func entityRefParam(r *http.Request) (uuid.UUID, bool) {
	ref, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "entity_id")))
	if err != nil {
		return uuid.Nil, false
	}
	return ref, true
}

func commentIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "comment_id")), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeServiceError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, discussion.ErrValidation):
		api.BadRequest(w, "VALIDATION", err.Error(), rid, nil)
	case errors.Is(err, discussion.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", err.Error(), rid)
	case errors.Is(err, discussion.ErrPermission):
		api.Forbidden(w, "FORBIDDEN", err.Error(), rid)
	default:
		api.Internal(w, rid)
	}
}
