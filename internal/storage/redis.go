package storage

import (
	"context"
	"fmt"
	"time"

	"cv-insight-go/internal/config"
	"cv-insight-go/internal/constants"
	"cv-insight-go/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetHashExpireDuration 返回配置的内容哈希记录过期时间
func (r *Redis) GetHashExpireDuration() time.Duration {
	days := r.config.HashRecordExpireDays
	if days <= 0 {
		return constants.CVHashExpireDefault
	}
	return time.Duration(days) * 24 * time.Hour
}

// CheckCVHashExists 检查CV内容哈希是否已经处理过
func (r *Redis) CheckCVHashExists(ctx context.Context, md5Hex string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	return r.Client.SIsMember(ctx, constants.KeyCVHashSet, md5Hex).Result()
}

// AddCVHash 将CV内容哈希加入去重集合并确保集合有过期时间
// ExpireNX 只在集合尚无过期时间时设置，不会刷新已有TTL
func (r *Redis) AddCVHash(ctx context.Context, md5Hex string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	pipe := r.Client.Pipeline()
	pipe.SAdd(ctx, constants.KeyCVHashSet, md5Hex)
	pipe.ExpireNX(ctx, constants.KeyCVHashSet, r.GetHashExpireDuration())
	_, err := pipe.Exec(ctx)
	return err
}

// AllowUpload 固定窗口限流：窗口内每用户最多maxRequests次上传
// 计数器首次自增时设置窗口过期，超限返回false
func (r *Redis) AllowUpload(ctx context.Context, userID string, maxRequests int, window time.Duration) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	if maxRequests <= 0 {
		return true, nil
	}

	key := fmt.Sprintf(constants.KeyUploadRateWindow, userID)

	count, err := r.Client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("限流计数失败 key=%s: %w", tracing.SafeRedisKey(key), err)
	}
	if count == 1 {
		if err := r.Client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("设置限流窗口过期失败: %w", err)
		}
	}

	return count <= int64(maxRequests), nil
}
