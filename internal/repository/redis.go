package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nobat/internal/config"
	"nobat/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisStateRepository struct {
	client    *redis.Client
	ttl       time.Duration
	dedupeTTL time.Duration
	now       func() time.Time
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStateRepository(client *redis.Client, ttl, dedupeTTL time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client:    client,
		ttl:       ttl,
		dedupeTTL: dedupeTTL,
		now:       time.Now,
	}
}

func sessionKey(conversationID int64) string {
	return fmt.Sprintf("session:%d", conversationID)
}

func updateKey(updateID int) string {
	return fmt.Sprintf("update:%d", updateID)
}

// rateKey names the counter of the fixed window that contains now.
func rateKey(conversationID int64, now time.Time, window time.Duration) string {
	return fmt.Sprintf("rate_limit:%d:%d", conversationID, now.UnixNano()/int64(window))
}

func (r *RedisStateRepository) GetSession(ctx context.Context, conversationID int64) (*models.Session, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, sessionKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Answers == nil {
		session.Answers = make(map[string]string)
	}

	return &session, nil
}

func (r *RedisStateRepository) SaveSession(ctx context.Context, session *models.Session) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(session.ConversationID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}

	return nil
}

// IsNewUpdate records the update id with SETNX; only the first caller wins.
func (r *RedisStateRepository) IsNewUpdate(ctx context.Context, updateID int) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ok, err := r.client.SetNX(ctx, updateKey(updateID), 1, r.dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record update in redis: %w", err)
	}
	return ok, nil
}

// CheckRateLimit counts messages in the current window. INCR and EXPIRE go in one
// transaction, so a counter never outlives its window by more than one window.
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, conversationID int64, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := rateKey(conversationID, r.now(), window)
	var count *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	return count.Val() <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
