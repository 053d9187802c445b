package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/entity"
)

// Store holds order snapshots keyed by order code. Redis backs it in
// deployments; Noop disables caching.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrCacheMiss indicates the key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

const orderKeyPrefix = "orders:"

// OrderKey is the cache key holding an order snapshot.
func OrderKey(code string) string {
	return orderKeyPrefix + code
}

// GetOrder reads the snapshot cached for code. A snapshot that no longer
// decodes is treated as a miss.
func GetOrder(ctx context.Context, store Store, code string) (*entity.Order, error) {
	raw, err := store.Get(ctx, OrderKey(code))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("%w: decode order %s: %v", ErrCacheMiss, code, err)
	}
	if order.Code != code {
		return nil, ErrCacheMiss
	}
	return &order, nil
}

// SetOrder caches a snapshot of order under its code. A zero ttl falls back
// to the store default.
func SetOrder(ctx context.Context, store Store, order *entity.Order, ttl time.Duration) error {
	if order == nil || order.Code == "" {
		return nil
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", order.Code, err)
	}
	return store.Set(ctx, OrderKey(order.Code), raw, ttl)
}

// DropOrder evicts the snapshot for code after its status or payment moved.
func DropOrder(ctx context.Context, store Store, code string) error {
	return store.Delete(ctx, OrderKey(code))
}

// Noop returns a store that never hits, for tests and disabled caching.
func Noop() Store {
	return noopStore{}
}

// Module provides the cache store to the Fx graph.
var Module = fx.Provide(NewStore)

// NewStore initialises the configured cache store (redis or noop).
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Cache.Driver {
	case "noop":
		if logger != nil {
			logger.Info("order cache disabled; tracking reads go to the database")
		}
		return Noop(), nil
	case "redis":
		return newRedisStore(lc, cfg.Cache, logger)
	default:
		return nil, fmt.Errorf("unsupported cache driver %q (want redis or noop)", cfg.Cache.Driver)
	}
}

type noopStore struct{}

func (noopStore) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (noopStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (noopStore) Delete(context.Context, string) error {
	return nil
}

type redisStore struct {
	client     *goredis.Client
	defaultTTL time.Duration
}

func newRedisStore(lc fx.Lifecycle, cfg config.Cache, logger *zap.Logger) (Store, error) {
	opts := &goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := goredis.NewClient(opts)
	store := &redisStore{client: client, defaultTTL: cfg.DefaultTTL}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			if logger != nil {
				logger.Info("order cache connected",
					zap.String("addr", cfg.Redis.Addr),
					zap.Int("db", cfg.Redis.DB),
					zap.Duration("snapshot_ttl", cfg.DefaultTTL),
				)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if logger != nil {
				logger.Info("closing order cache")
			}
			return client.Close()
		},
	})

	return store, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrCacheMiss
	}
	res, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("order cache key is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}
