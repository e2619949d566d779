package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stardustagi/gptshell/libs/logs"
	"go.uber.org/zap"
)

// Nil 键不存在
const Nil = redis.Nil

// RedisCmd 底层命令接口，*redis.Client 与 *redis.ClusterClient 均满足
type RedisCmd interface {
	redis.Cmdable
}

// RedisCli 带前缀的 key/value 视图
type RedisCli interface {
	KeyPrefix() string
	NativeCmd() RedisCmd
	Key(key string) string
	Set(ctx context.Context, key string, value []byte, expiration string) error
	SetNX(ctx context.Context, key string, value []byte, expiration string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

type redisView struct {
	cmd    RedisCmd
	prefix string
	logger *zap.Logger
}

func NewRedisView(cmd RedisCmd, prefix string, logger *zap.Logger) RedisCli {
	if logger == nil {
		logger = logs.GetLogger("redis")
	}
	return &redisView{cmd: cmd, prefix: prefix, logger: logger}
}

// NewClient 按地址创建 go-redis 客户端
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func (r *redisView) KeyPrefix() string { return r.prefix }

func (r *redisView) NativeCmd() RedisCmd { return r.cmd }

// Key 拼接前缀
func (r *redisView) Key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// parseExpiration 空字符串表示永不过期
func parseExpiration(expiration string) (time.Duration, error) {
	if expiration == "" {
		return 0, nil
	}
	return time.ParseDuration(expiration)
}

func (r *redisView) Set(ctx context.Context, key string, value []byte, expiration string) error {
	ttl, err := parseExpiration(expiration)
	if err != nil {
		return err
	}
	if err := r.cmd.Set(ctx, r.Key(key), value, ttl).Err(); err != nil {
		r.logger.Error("redis set failed", logs.String("key", r.Key(key)), logs.ErrorInfo(err))
		return err
	}
	return nil
}

func (r *redisView) SetNX(ctx context.Context, key string, value []byte, expiration string) (bool, error) {
	ttl, err := parseExpiration(expiration)
	if err != nil {
		return false, err
	}
	return r.cmd.SetNX(ctx, r.Key(key), value, ttl).Result()
}

func (r *redisView) Get(ctx context.Context, key string) ([]byte, error) {
	return r.cmd.Get(ctx, r.Key(key)).Bytes()
}

func (r *redisView) Del(ctx context.Context, keys ...string) (int64, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.Key(k)
	}
	return r.cmd.Del(ctx, full...).Result()
}

// Scan 返回匹配 pattern 的 key（已去掉前缀）
func (r *redisView) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	strip := 0
	if r.prefix != "" {
		strip = len(r.prefix) + 1
	}
	for {
		keys, next, err := r.cmd.Scan(ctx, cursor, r.Key(pattern), 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			out = append(out, k[strip:])
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}
