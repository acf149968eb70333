package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const commentColumns = `comment_id, %s, author_ref, author_legacy_id, content,
	parent_comment_id, root_comment_id, path, depth,
	upvote_count, downvote_count, is_deleted, created_at`

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists discussion data in Postgres.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool // nil inside a transaction
}

// NewPostgresStore creates a store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already transactional; compose into the same scope.
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) NextID(ctx context.Context, namespace string) (int64, error) {
	const q = `INSERT INTO sequences (name, value) VALUES ($1, 1)
	           ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
	           RETURNING value`
	var id int64
	err := s.db.QueryRow(ctx, q, namespace).Scan(&id)
	return id, err
}

func (s *PostgresStore) InsertComment(ctx context.Context, kind EntityKind, c Comment) error {
	b, ok := BindingFor(kind)
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	q := fmt.Sprintf(`INSERT INTO %s (`+commentColumns+`)
	                  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		b.Table, b.RefColumn)
	_, err := s.db.Exec(ctx, q,
		c.CommentID, c.EntityRef, c.AuthorRef, c.AuthorLegacyID, c.Content,
		c.ParentCommentID, c.RootCommentID, c.Path, c.Depth,
		c.UpvoteCount, c.DownvoteCount, c.IsDeleted, c.CreatedAt)
	return err
}

func (s *PostgresStore) GetComment(ctx context.Context, kind EntityKind, entityRef uuid.UUID, commentID int64) (Comment, error) {
	b, ok := BindingFor(kind)
	if !ok {
		return Comment{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	q := fmt.Sprintf(`SELECT `+commentColumns+` FROM %s WHERE comment_id = $1 AND %s = $2`,
		b.RefColumn, b.Table, b.RefColumn)
	c, err := scanComment(s.db.QueryRow(ctx, q, commentID, entityRef), kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) ListComments(ctx context.Context, kind EntityKind, entityRef uuid.UUID, opts ListOptions) ([]Comment, int64, error) {
	b, ok := BindingFor(kind)
	if !ok {
		return nil, 0, fmt.Errorf("unknown entity kind %q", kind)
	}

	filter := fmt.Sprintf("%s = $1", b.RefColumn)
	if !opts.IncludeDeleted {
		filter += " AND is_deleted = FALSE"
	}

	var total int64
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, b.Table, filter)
	if err := s.db.QueryRow(ctx, countQ, entityRef).Scan(&total); err != nil {
		return nil, 0, err
	}

	var order string
	switch opts.Sort {
	case SortOldest:
		order = "created_at ASC, comment_id ASC"
	case SortTop:
		order = "upvote_count DESC, created_at DESC, comment_id DESC"
	default: // SortNewest
		order = "created_at DESC, comment_id DESC"
	}

	q := fmt.Sprintf(`SELECT `+commentColumns+` FROM %s WHERE %s ORDER BY %s OFFSET $2 LIMIT $3`,
		b.RefColumn, b.Table, filter, order)
	rows, err := s.db.Query(ctx, q, entityRef, opts.Offset, opts.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		c, err := scanComment(rows, kind)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) MarkDeleted(ctx context.Context, kind EntityKind, entityRef uuid.UUID, commentID int64) error {
	b, ok := BindingFor(kind)
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	q := fmt.Sprintf(`UPDATE %s SET is_deleted = TRUE WHERE comment_id = $1 AND %s = $2`,
		b.Table, b.RefColumn)
	tag, err := s.db.Exec(ctx, q, commentID, entityRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AdjustCounts(ctx context.Context, kind EntityKind, commentID int64, dUp, dDown int32) error {
	if dUp == 0 && dDown == 0 {
		return nil
	}
	b, ok := BindingFor(kind)
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	q := fmt.Sprintf(`UPDATE %s SET upvote_count = upvote_count + $2, downvote_count = downvote_count + $3
	                  WHERE comment_id = $1`, b.Table)
	tag, err := s.db.Exec(ctx, q, commentID, dUp, dDown)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ClampCounts(ctx context.Context, kind EntityKind, commentID int64) error {
	b, ok := BindingFor(kind)
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	q := fmt.Sprintf(`UPDATE %s SET upvote_count = GREATEST(upvote_count, 0),
	                  downvote_count = GREATEST(downvote_count, 0)
	                  WHERE comment_id = $1`, b.Table)
	_, err := s.db.Exec(ctx, q, commentID)
	return err
}

func (s *PostgresStore) ReconcileCounts(ctx context.Context, kind EntityKind, commentID int64) error {
	b, ok := BindingFor(kind)
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	q := fmt.Sprintf(`UPDATE %s c SET upvote_count = v.up, downvote_count = v.down
	                  FROM (SELECT COUNT(*) FILTER (WHERE sign = 1) AS up,
	                               COUNT(*) FILTER (WHERE sign = -1) AS down
	                        FROM comment_votes
	                        WHERE entity_kind = $1 AND comment_id = $2) v
	                  WHERE c.comment_id = $2`, b.Table)
	_, err := s.db.Exec(ctx, q, string(kind), commentID)
	return err
}

func (s *PostgresStore) GetVote(ctx context.Context, kind EntityKind, commentID int64, voter uuid.UUID) (int16, error) {
	const q = `SELECT sign FROM comment_votes WHERE entity_kind = $1 AND comment_id = $2 AND voter_ref = $3`
	var sign int16
	err := s.db.QueryRow(ctx, q, string(kind), commentID, voter).Scan(&sign)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return sign, err
}

func (s *PostgresStore) UpsertVote(ctx context.Context, v Vote) error {
	const q = `INSERT INTO comment_votes (entity_kind, entity_ref, comment_id, voter_ref, sign, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6)
	           ON CONFLICT (entity_kind, comment_id, voter_ref) DO UPDATE SET sign = EXCLUDED.sign`
	_, err := s.db.Exec(ctx, q, string(v.EntityKind), v.EntityRef, v.CommentID, v.VoterRef, v.Sign, v.CreatedAt)
	return err
}

func (s *PostgresStore) DeleteVote(ctx context.Context, kind EntityKind, commentID int64, voter uuid.UUID) error {
	const q = `DELETE FROM comment_votes WHERE entity_kind = $1 AND comment_id = $2 AND voter_ref = $3`
	_, err := s.db.Exec(ctx, q, string(kind), commentID, voter)
	return err
}

func (s *PostgresStore) VotesByVoter(ctx context.Context, kind EntityKind, voter uuid.UUID, commentIDs []int64) (map[int64]int16, error) {
	out := make(map[int64]int16, len(commentIDs))
	if len(commentIDs) == 0 {
		return out, nil
	}
	const q = `SELECT comment_id, sign FROM comment_votes
	           WHERE entity_kind = $1 AND voter_ref = $2 AND comment_id = ANY($3)`
	rows, err := s.db.Query(ctx, q, string(kind), voter, commentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var sign int16
		if err := rows.Scan(&id, &sign); err != nil {
			return nil, err
		}
		out[id] = sign
	}
	return out, rows.Err()
}

func scanComment(row pgx.Row, kind EntityKind) (Comment, error) {
	var c Comment
	err := row.Scan(&c.CommentID, &c.EntityRef, &c.AuthorRef, &c.AuthorLegacyID, &c.Content,
		&c.ParentCommentID, &c.RootCommentID, &c.Path, &c.Depth,
		&c.UpvoteCount, &c.DownvoteCount, &c.IsDeleted, &c.CreatedAt)
	c.EntityKind = kind
	return c, err
}
