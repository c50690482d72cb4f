package app

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/versefriends/backend/internal/config"
	"github.com/versefriends/backend/internal/db"
	"github.com/versefriends/backend/internal/events"
	"github.com/versefriends/backend/internal/friends"
	"github.com/versefriends/backend/internal/handlers"
	"github.com/versefriends/backend/internal/metrics"
	"github.com/versefriends/backend/internal/middleware"
	"github.com/versefriends/backend/internal/models"
	"github.com/versefriends/backend/internal/repositories"
	userdir "github.com/versefriends/backend/internal/users"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup releases every connection opened here.
func buildDependencies(ctx context.Context, cfg config.Config, logger *zap.Logger) (handlers.Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tokens, err := newTokenManager(cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	var (
		store  friends.Store
		users  repositories.UserRepository
		health func(context.Context) error
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		closers = append(closers, pool.Close)

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx, pool, "up"); err != nil {
				cleanup()
				return handlers.Dependencies{}, nil, err
			}
		}

		store = repositories.NewPostgresRelationshipRepository(pool)
		users = repositories.NewPostgresUserRepository(pool)
		if cfg.UserCacheTTL > 0 {
			users = userdir.NewCachingDirectory(users, cfg.UserCacheTTL)
		}
		health = pool.Ping
	case config.DriverMemory:
		memoryUsers := newMemoryUsers(cfg.Database.MemoryUsers)
		store = repositories.NewInMemoryRelationshipStore().WithUserCheck(memoryUsers.Exists)
		users = memoryUsers
		logger.Warn("using in-memory relationship store; data is lost on restart",
			zap.Int("users", cfg.Database.MemoryUsers))
	default:
		return handlers.Dependencies{}, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	var publisher friends.Publisher = events.Nop{}
	if cfg.Redis.Addr != "" {
		redisPublisher, err := events.NewRedisPublisher(ctx, events.RedisConfig{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
		})
		if err != nil {
			cleanup()
			return handlers.Dependencies{}, nil, err
		}
		closers = append(closers, func() { _ = redisPublisher.Close() })
		publisher = redisPublisher
	}

	collectors := metrics.New()

	limiter := middleware.NewKeyedRateLimiter(middleware.RateLimitConfig{
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimit.Window,
		Burst:    cfg.RateLimit.Burst,
	})

	return handlers.Dependencies{
		Friends:      friends.NewService(store, users, publisher, collectors),
		Users:        users,
		Limiter:      limiter,
		Authenticate: middleware.Authenticate(tokens),
		Metrics:      collectors.Handler(),
		Instrument:   collectors.Middleware,
		Health:       health,
	}, cleanup, nil
}

// newMemoryUsers creates active users 1..n named poet-<id>.
func newMemoryUsers(n int) *repositories.InMemoryUserRepository {
	users := repositories.NewInMemoryUserRepository()
	for id := int64(1); id <= int64(n); id++ {
		users.Put(models.UserBasicInfo{
			ID:       id,
			Nickname: "poet-" + strconv.FormatInt(id, 10),
			Status:   models.UserStatusActive,
			Role:     models.UserRoleUser,
		})
	}
	return users
}
