package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	radix "github.com/mediocregopher/radix/v3"
)

const tokenCachePrefix = "nep:auth:jwt:"

// TokenCache 缓存 JWT 验签结果；key 先经哈希环分片，多个鉴权节点共用一个 Redis 时互不覆盖
type TokenCache struct {
	redis radix.Client
	ring  *ConsistentHashRing
	ttl   time.Duration
}

// NewTokenCache redis 为空时 Get 永远未命中、Set 不做任何事
func NewTokenCache(redis radix.Client, ring *ConsistentHashRing, ttl time.Duration) *TokenCache {
	if ring == nil {
		ring = NewConsistentHashRing(nil, 0)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenCache{redis: redis, ring: ring, ttl: ttl}
}

func (c *TokenCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return tokenCachePrefix + c.ring.GetNode(token) + ":" + hex.EncodeToString(sum[:16])
}

// Get 命中且未过期时返回 claims
func (c *TokenCache) Get(ctx context.Context, token string) (*Claims, bool, error) {
	if c.redis == nil {
		return nil, false, nil
	}
	k := c.key(token)
	var raw []byte
	mn := radix.MaybeNil{Rcv: &raw}
	if err := c.redis.Do(radix.Cmd(&mn, "GET", k)); err != nil {
		return nil, false, err
	}
	if mn.Nil || len(raw) == 0 {
		return nil, false, nil
	}
	claims := new(Claims)
	if err := json.Unmarshal(raw, claims); err != nil {
		// 损坏的缓存直接删掉
		_ = c.redis.Do(radix.Cmd(nil, "DEL", k))
		return nil, false, nil
	}
	if c.ttlFor(claims) <= 0 {
		return nil, false, nil
	}
	return claims, true, nil
}

// Set 写入 claims，过期时间取缓存 TTL 与 token 剩余有效期中较小者
func (c *TokenCache) Set(ctx context.Context, token string, claims *Claims) error {
	if c.redis == nil || claims == nil {
		return nil
	}
	secs := int64(c.ttlFor(claims) / time.Second)
	if secs <= 0 {
		return nil
	}
	body, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return c.redis.Do(radix.FlatCmd(nil, "SETEX", c.key(token), secs, body))
}

func (c *TokenCache) ttlFor(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return c.ttl
	}
	if left := time.Until(claims.ExpiresAt.Time); left < c.ttl {
		return left
	}
	return c.ttl
}
