package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/auth"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/config"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/db"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/events"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/httpserver"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/logging"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/natsconn"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/redisconn"
	"github.com/axelgear/KIRA-Asterales-sub001/internal/platform/run"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/discussion"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/handlers"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/store"
	"github.com/axelgear/KIRA-Asterales-sub001/services/discussion/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	st, pool, closeStore := initStore(log, cfg)
	if closeStore != nil {
		defer closeStore()
	}

	var entities discussion.EntityResolver
	var identity discussion.IdentityResolver
	if pool != nil {
		entities = store.NewPostgresEntityResolver(pool)
		identity = store.NewPostgresIdentityResolver(pool)
	} else {
		log.Warn("no database, entity resolution accepts every reference (development only)")
		entities = &discussion.StaticEntityResolver{AllowAll: true}
	}

	cache := initCache(log, cfg)
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		var publisher *events.Publisher
		nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
		if err != nil {
			log.Warn("nats unavailable, events disabled", zap.Error(err))
		} else {
			defer nc.Close()
			js, err := nc.JetStream()
			if err != nil {
				log.Warn("jetstream unavailable, events disabled", zap.Error(err))
			} else {
				events.EnsureStream(js, log)
				publisher = events.New(js, log)
				go worker.StartReconciler(ctx, nc, st, log)
			}
		}

		svc := discussion.New(discussion.Options{
			Store:    st,
			Entities: entities,
			Identity: identity,
			Events:   publisher,
			Cache:    cache,
			Logger:   log,
		})

		r := chi.NewRouter()
		httpserver.SetupRouter(r)
		mountKind(r, svc, verifier, "/v1/novels", store.KindNovel)
		mountKind(r, svc, verifier, "/v1/reading-lists", store.KindReadingList)

		srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// mountKind registers the four comment routes for one entity kind.
// Reads are public (with optional personalisation), writes need a user.
func mountKind(r chi.Router, svc *discussion.Service, verifier auth.JWTVerifier, prefix string, kind store.EntityKind) {
	r.With(auth.OptionalUser(verifier)).
		Get(prefix+"/{entity_id}/comments", handlers.ListComments(svc, kind))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Post(prefix+"/{entity_id}/comments", handlers.CreateComment(svc, kind))
		r.Delete(prefix+"/{entity_id}/comments/{comment_id}", handlers.DeleteComment(svc, kind))
		r.Post(prefix+"/{entity_id}/comments/{comment_id}/vote", handlers.VoteComment(svc, kind))

		r.With(auth.RequireAdmin).
			Post(prefix+"/{entity_id}/comments/{comment_id}/recount", handlers.RecountComment(svc, kind))
	})
}

// initStore selects the storage backend. In production a working Postgres
// connection is required and the process terminates otherwise.
func initStore(log *zap.Logger, cfg config.AppConfig) (store.Store, *pgxpool.Pool, func()) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			log.Error("DATABASE_URL is required in production")
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("DATABASE_URL not set, using in-memory store (development only)")
		return store.NewInMemoryStore(), nil, nil
	}

	pool, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		if cfg.IsProduction() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory store", zap.Error(err))
		return store.NewInMemoryStore(), nil, nil
	}

	log.Info("discussion store: postgres")
	return store.NewPostgresStore(pool), pool, pool.Close
}

func initCache(log *zap.Logger, cfg config.AppConfig) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	client, err := redisconn.Open(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, listing cache disabled", zap.Error(err))
		return nil
	}
	log.Info("listing cache: redis")
	return client
}
