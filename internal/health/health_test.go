package health

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestChecker_ReadinessHealthy(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := New(rdb, "qless-core", "test")
	resp := c.Readiness(context.Background())
	require.Equal(t, StatusHealthy, resp.Status)
	require.Equal(t, StatusHealthy, resp.Redis.Status)
}

func TestChecker_ReadinessUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	c := New(rdb, "qless-core", "test")
	resp := c.Readiness(context.Background())
	require.Equal(t, StatusUnhealthy, resp.Status)
}
