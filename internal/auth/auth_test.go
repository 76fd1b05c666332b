package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	radix "github.com/mediocregopher/radix/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, radix.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	pool, err := radix.NewPool("tcp", mr.Addr(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return mr, pool
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := &config.JWTConfig{Secret: "s3cret", AccessTTL: time.Hour}
	tok, err := GenerateToken(cfg, 42, "ram", true)
	require.NoError(t, err)

	claims, err := ParseToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ram", claims.Username)
	assert.True(t, claims.IsAdmin)

	_, err = ParseToken(&config.JWTConfig{Secret: "other"}, tok)
	assert.Error(t, err)
}

func TestAuthenticatorUsesCache(t *testing.T) {
	mr, pool := newRedis(t)
	cfg := &config.JWTConfig{Secret: "s3cret", AccessTTL: time.Hour}
	cache := NewTokenCache(pool, NewConsistentHashRing([]string{"n1", "n2"}, 10), time.Minute)
	a := NewAuthenticator(cfg, cache, nil)
	ctx := context.Background()

	tok, err := GenerateToken(cfg, 7, "hari", false)
	require.NoError(t, err)

	id, err := a.Authenticate(ctx, "Bearer "+tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 7, Username: "hari"}, id)
	assert.Len(t, mr.Keys(), 1)
	assert.LessOrEqual(t, mr.TTL(mr.Keys()[0]), time.Minute)

	// 裸 token 也接受，并命中缓存
	id, err = a.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.UserID)

	anon, err := a.Authenticate(ctx, "")
	require.NoError(t, err)
	assert.True(t, anon.Anonymous())

	_, err = a.Authenticate(ctx, "Bearer garbage")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = a.Authenticate(ctx, "Basic abc")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestTokenCacheCorruptEntry(t *testing.T) {
	mr, pool := newRedis(t)
	cache := NewTokenCache(pool, nil, time.Minute)
	ctx := context.Background()

	key := cache.key("tok")
	require.NoError(t, mr.Set(key, "{not json"))

	_, hit, err := cache.Get(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists(key))
}

func TestTokenCacheWithoutRedis(t *testing.T) {
	cache := NewTokenCache(nil, nil, 0)
	require.NoError(t, cache.Set(context.Background(), "tok", &Claims{UserID: 1}))
	_, hit, err := cache.Get(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestConsistentHashRing(t *testing.T) {
	ring := NewConsistentHashRing([]string{"a", "b", "c"}, 20)
	assert.Equal(t, 3, ring.Len())

	owners := make(map[string]string)
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("token-%d", i)
		owners[k] = ring.GetNode(k)
		assert.Equal(t, owners[k], ring.GetNode(k))
	}

	ring.Remove("b")
	assert.Equal(t, 2, ring.Len())
	for k, owner := range owners {
		got := ring.GetNode(k)
		assert.NotEqual(t, "b", got)
		if owner != "b" {
			assert.Equal(t, owner, got, "keys on surviving nodes must not move")
		}
	}
}
