// Package discussion implements the threaded comment and voting engine
// shared by every commentable entity kind on the platform.
package discussion

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/events"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/store"
)

// Error taxonomy surfaced to transport layers. Wrapped causes carry detail.
var (
	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("not permitted")
)

// EntityResolver confirms that a parent entity (novel, reading list) exists.
// Implemented elsewhere in the platform; consumed here as a narrow contract.
type EntityResolver interface {
	Exists(ctx context.Context, kind store.EntityKind, ref uuid.UUID) (bool, error)
}

// IdentityResolver supplies the optional legacy numeric user id attached to
// created comments. Absence or lookup failure never blocks creation.
type IdentityResolver interface {
	LegacyUserID(ctx context.Context, ref uuid.UUID) (int64, bool, error)
}

// Service orchestrates comment creation, listing, soft deletion and voting
// over the store, the vote ledger and the sequence allocator.
type Service struct {
	store    store.Store
	entities EntityResolver
	identity IdentityResolver // optional
	events   *events.Publisher
	cache    *redis.Client // optional
	log      *zap.Logger
	now      func() time.Time

	// txUnsupported caches the backend capability verdict so the
	// transactional path is not re-probed on every write.
	txUnsupported atomic.Bool
}

// Options configures a Service. Store, Entities and Logger are required;
// Identity, Events and Cache are optional.
type Options struct {
	Store    store.Store
	Entities EntityResolver
	Identity IdentityResolver
	Events   *events.Publisher
	Cache    *redis.Client
	Logger   *zap.Logger
}

func New(opts Options) *Service {
	return &Service{
		store:    opts.Store,
		entities: opts.Entities,
		identity: opts.Identity,
		events:   opts.Events,
		cache:    opts.Cache,
		log:      opts.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DegradedConsistency reports whether the service has fallen back to
// non-transactional writes.
func (s *Service) DegradedConsistency() bool {
	return s.txUnsupported.Load()
}

// runWrite executes a multi-write sequence transactionally when the backend
// allows it. On the specific "transactions unsupported" signal the sequence
// is retried once, immediately, without a transaction; the switch is logged
// distinctly so operators can tell they are running in degraded-consistency
// mode. Any other transaction failure propagates after rollback.
func (s *Service) runWrite(ctx context.Context, op string, fn func(store.Store) error) error {
	if s.txUnsupported.Load() {
		return fn(s.store)
	}
	err := s.store.RunInTx(ctx, fn)
	if errors.Is(err, store.ErrTxUnsupported) {
		if s.txUnsupported.CompareAndSwap(false, true) {
			s.log.Warn("store has no transaction scope, writes continue without atomicity",
				zap.String("op", op))
		}
		return fn(s.store)
	}
	return err
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// StaticEntityResolver is a map-backed EntityResolver for development and
// tests. AllowAll short-circuits every lookup to found.
type StaticEntityResolver struct {
	AllowAll bool
	Known    map[store.EntityKind]map[uuid.UUID]bool
}

func (r *StaticEntityResolver) Exists(_ context.Context, kind store.EntityKind, ref uuid.UUID) (bool, error) {
	if r.AllowAll {
		return true, nil
	}
	return r.Known[kind][ref], nil
}

// Add registers a known entity.
func (r *StaticEntityResolver) Add(kind store.EntityKind, ref uuid.UUID) {
	if r.Known == nil {
		r.Known = make(map[store.EntityKind]map[uuid.UUID]bool)
	}
	if r.Known[kind] == nil {
		r.Known[kind] = make(map[uuid.UUID]bool)
	}
	r.Known[kind][ref] = true
}
