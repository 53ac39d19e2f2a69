package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
)

// SequenceRepository 为会话分配单调递增的消息序号。
type SequenceRepository interface {
	NextSequence(ctx context.Context, chatSessionID string) (int64, error)
}

// AttemptRepository 记录队列任务的失败次数。
type AttemptRepository interface {
	IncrAttempts(ctx context.Context, queue, jobID string) (int64, error)
	ResetAttempts(ctx context.Context, queue, jobID string) error
}

// CounterRepository 同时提供序号与重试计数。
type CounterRepository interface {
	SequenceRepository
	AttemptRepository
}

// counterClient 是计数器用到的 Redis 命令子集，*redis.Client 满足它。
type counterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisCounterRepository struct {
	redisClient counterClient
}

// NewCounterRepository 创建基于 Redis 的计数器仓库。
func NewCounterRepository(redisClient *redis.Client) CounterRepository {
	return newCounterRepository(redisClient)
}

func newCounterRepository(c counterClient) *redisCounterRepository {
	return &redisCounterRepository{redisClient: c}
}

const (
	sequenceTTL = 30 * 24 * time.Hour
	attemptsTTL = 24 * time.Hour
)

func sequenceKey(chatSessionID string) string {
	return fmt.Sprintf("chat:session:%s:seq", chatSessionID)
}

func attemptsKey(queue, jobID string) string {
	return fmt.Sprintf("kafka:attempts:%s:%s", queue, jobID)
}

// NextSequence 原子递增会话序号。
func (r *redisCounterRepository) NextSequence(ctx context.Context, chatSessionID string) (int64, error) {
	seq, err := r.redisClient.Incr(ctx, sequenceKey(chatSessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	// 会话长期不活跃后序号键自动过期
	r.expire(ctx, sequenceKey(chatSessionID), sequenceTTL)
	return seq, nil
}

// IncrAttempts 递增失败次数，计数保留 24 小时。
func (r *redisCounterRepository) IncrAttempts(ctx context.Context, queue, jobID string) (int64, error) {
	key := attemptsKey(queue, jobID)
	attempts, err := r.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr attempts: %w", err)
	}
	r.expire(ctx, key, attemptsTTL)
	return attempts, nil
}

// expire 设置键过期时间，失败只记日志，不影响已分配的计数。
func (r *redisCounterRepository) expire(ctx context.Context, key string, ttl time.Duration) {
	if err := r.redisClient.Expire(ctx, key, ttl).Err(); err != nil {
		log.Warnw("设置 Redis 键过期时间失败", "key", key, "ttl", ttl, "error", err)
	}
}

// ResetAttempts 在任务成功后清理计数。
func (r *redisCounterRepository) ResetAttempts(ctx context.Context, queue, jobID string) error {
	return r.redisClient.Del(ctx, attemptsKey(queue, jobID)).Err()
}
