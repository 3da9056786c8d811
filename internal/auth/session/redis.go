package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avapbx/internal/observability"
	"github.com/vyrodovalexey/avapbx/internal/retry"
)

// DefaultRedisKeyPrefix is the key prefix for session records in Redis.
const DefaultRedisKeyPrefix = "avapbx:session:"

// RedisConfig holds configuration for the Redis session store.
type RedisConfig struct {
	// URL is the Redis connection URL.
	URL string `yaml:"url"`

	// KeyPrefix prefixes all session keys. Defaults to "avapbx:session:".
	KeyPrefix string `yaml:"keyPrefix"`

	// PoolSize overrides the client connection pool size.
	PoolSize int `yaml:"poolSize"`

	// ConnectTimeout overrides the dial timeout.
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	// ReadTimeout overrides the read timeout.
	ReadTimeout time.Duration `yaml:"readTimeout"`

	// WriteTimeout overrides the write timeout.
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// GetEffectiveKeyPrefix returns the configured key prefix or the default.
func (c *RedisConfig) GetEffectiveKeyPrefix() string {
	if c.KeyPrefix == "" {
		return DefaultRedisKeyPrefix
	}
	return c.KeyPrefix
}

// redisStore is a Redis-backed session store. Records carry the session
// TTL as the Redis key TTL, so expired sessions age out on their own.
type redisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    observability.Logger
	now       func() time.Time
}

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError checks if the error is retryable.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(cfg *RedisConfig, logger observability.Logger) (Store, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	s := &redisStore{
		client:    client,
		keyPrefix: cfg.GetEffectiveKeyPrefix(),
		logger:    logger,
		now:       time.Now,
	}

	logger.Info("redis session store initialized",
		observability.String("keyPrefix", s.keyPrefix))

	return s, nil
}

// NewRedisStoreWithClient creates a Redis-backed session store around an
// existing client, used in tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, logger observability.Logger) Store {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &redisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *redisStore) key(id string) string {
	return s.keyPrefix + id
}

// Put stores a session record with the session TTL as the key TTL.
func (s *redisStore) Put(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	ttl := rec.Session.TTL(s.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}

	key := s.key(rec.Session.ID)
	err = retry.Do(ctx, redisRetryConfig(), func() error {
		return s.client.Set(ctx, key, data, ttl).Err()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			s.logger.Debug("retrying redis session put",
				observability.String("session_id", rec.Session.ID),
				observability.Int("attempt", attempt))
		},
	})
	if err != nil {
		s.logger.Error("redis session put failed",
			observability.String("session_id", rec.Session.ID),
			observability.Error(err))
		return err
	}
	return nil
}

// Get retrieves a session record by id.
func (s *redisStore) Get(ctx context.Context, id string) (*Record, error) {
	var data []byte

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		val, getErr := s.client.Get(ctx, s.key(id)).Bytes()
		if getErr == nil {
			data = val
		}
		return getErr
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
	})

	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		s.logger.Error("redis session get failed",
			observability.String("session_id", id),
			observability.Error(err))
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &rec, nil
}

// Delete removes a session record by id.
func (s *redisStore) Delete(ctx context.Context, id string) error {
	var removed int64

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		var delErr error
		removed, delErr = s.client.Del(ctx, s.key(id)).Result()
		return delErr
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
	})
	if err != nil {
		s.logger.Error("redis session delete failed",
			observability.String("session_id", id),
			observability.Error(err))
		return err
	}
	if removed == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Touch updates the last-seen time of a session, keeping the key TTL.
func (s *redisStore) Touch(ctx context.Context, id string, at time.Time) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	rec.Session.LastSeenAt = at
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	return retry.Do(ctx, redisRetryConfig(), func() error {
		return s.client.Set(ctx, s.key(id), data, redis.KeepTTL).Err()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
	})
}

// Close closes the Redis connection.
func (s *redisStore) Close() error {
	s.logger.Info("redis session store closing")
	return s.client.Close()
}

// Ensure redisStore implements Store.
var _ Store = (*redisStore)(nil)
