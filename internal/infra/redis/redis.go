package redis

import (
	"fmt"

	radix "github.com/mediocregopher/radix/v3"

	"github.com/KumarG23/nep-back/internal/config"
)

// New 创建 Redis 连接池，未配置地址时返回 nil，调用方按无缓存处理
func New(cfg config.RedisConfig) (radix.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 10
	}
	pool, err := radix.NewPool("tcp", cfg.Addr, size)
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return pool, nil
}

// Ping 健康检查
func Ping(c radix.Client) error {
	if c == nil {
		return nil
	}
	var pong string
	return c.Do(radix.Cmd(&pong, "PING"))
}
