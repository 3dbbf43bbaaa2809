//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"beacon/internal/platform/config"
	platformredis "beacon/internal/platform/redis"
	"beacon/pkg/testutil/containers"
)

func TestNew(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	client, err := platformredis.New(ctx, config.RedisConfig{})
	require.NoError(t, err)
	require.Nil(t, client, "empty URL disables redis")

	rc := containers.GetManager().GetRedis(t)
	client, err = platformredis.New(ctx, config.RedisConfig{URL: rc.URL})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Health(ctx))
}
