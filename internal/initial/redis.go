package initial

import (
	"context"
	"fmt"
	"time"

	"SemHub/internal/config"

	goredis "github.com/redis/go-redis/v9"
)

// OpenRedis 建立 Redis 连接并验证连通性。
// Redis 是可选的外层缓存，地址为空时调用方应跳过。
func OpenRedis(conf *config.Config) (*goredis.Client, error) {
	cli := goredis.NewClient(&goredis.Options{
		Addr:         fmt.Sprintf("%s:%d", conf.RedisConfig.Host, conf.RedisConfig.Port),
		Password:     conf.RedisConfig.Password,
		DB:           conf.RedisConfig.DB,
		PoolSize:     conf.RedisConfig.PoolSize,
		MinIdleConns: conf.RedisConfig.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return cli, nil
}
