package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildStore returns the conversation store for STATE_BACKEND. Durable
// backends sit behind the in-memory cache and degrade to it on failure, so
// an unreachable backend at startup is logged rather than fatal.
func BuildStore(ctx context.Context, cfg *appconfig.Config, awsLoader *AWSLoader, logger *logging.Logger, m *metrics.ConversationMetrics) (conversation.Store, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	memory := conversation.NewMemoryStore(cfg.HistoryLimit)
	noop := func() {}

	var (
		backend conversation.Backend
		closer  = noop
	)
	switch cfg.StateBackend {
	case "", "memory":
		logger.Info("conversation store: memory only")
		return memory, noop, nil
	case "redis":
		client := BuildRedisClient(ctx, cfg, logger, false)
		if client == nil {
			return nil, nil, fmt.Errorf("bootstrap: REDIS_ADDR required for redis state backend")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup; serving from memory until it recovers", "error", err)
		}
		backend = conversation.NewRedisBackend(client)
		closer = func() { _ = client.Close() }
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, nil, fmt.Errorf("bootstrap: DATABASE_URL required for postgres state backend")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("postgres unreachable at startup; serving from memory until it recovers", "error", err)
		}
		backend = conversation.NewPostgresBackend(pool)
		closer = pool.Close
	case "dynamodb":
		awsCfg, err := awsLoader.Load(ctx)
		if err != nil {
			return nil, nil, err
		}
		backend = conversation.NewDynamoBackend(dynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown STATE_BACKEND %q", cfg.StateBackend)
	}

	logger.Info("conversation store: memory cache over durable backend", "backend", backend.Name())
	store := conversation.NewCachedStore(memory, backend, logger,
		conversation.WithStoreTimeout(cfg.StoreTimeout),
		conversation.WithStoreMetrics(m),
	)
	return store, closer, nil
}
