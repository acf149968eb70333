package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEntityResolver confirms parent entities (novels, reading lists)
// exist by consulting their platform tables through the kind binding. The
// tables themselves are owned by the catalog side of the platform; this
// resolver only reads them.
type PostgresEntityResolver struct {
	pool *pgxpool.Pool
}

func NewPostgresEntityResolver(pool *pgxpool.Pool) *PostgresEntityResolver {
	return &PostgresEntityResolver{pool: pool}
}

func (r *PostgresEntityResolver) Exists(ctx context.Context, kind EntityKind, ref uuid.UUID) (bool, error) {
	b, ok := BindingFor(kind)
	if !ok {
		return false, fmt.Errorf("unknown entity kind %q", kind)
	}
	q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)`, b.EntityTable, b.EntityIDCol)
	var exists bool
	err := r.pool.QueryRow(ctx, q, ref).Scan(&exists)
	return exists, err
}

// PostgresIdentityResolver maps a user UUID onto the platform's optional
// legacy numeric user id.
type PostgresIdentityResolver struct {
	pool *pgxpool.Pool
}

func NewPostgresIdentityResolver(pool *pgxpool.Pool) *PostgresIdentityResolver {
	return &PostgresIdentityResolver{pool: pool}
}

func (r *PostgresIdentityResolver) LegacyUserID(ctx context.Context, ref uuid.UUID) (int64, bool, error) {
	const q = `SELECT legacy_id FROM users WHERE user_uuid = $1 AND legacy_id IS NOT NULL`
	var id int64
	err := r.pool.QueryRow(ctx, q, ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
