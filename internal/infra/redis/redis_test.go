package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KumarG23/nep-back/internal/config"
)

func TestNew(t *testing.T) {
	c, err := New(config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, Ping(c))

	mr := miniredis.RunT(t)
	c, err = New(config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, Ping(c))
}
