//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"beacon/internal/platform/config"
	"beacon/internal/platform/postgres"
	"beacon/pkg/testutil/containers"
)

func TestNew(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	client, err := postgres.New(ctx, config.PostgresConfig{})
	require.NoError(t, err)
	require.Nil(t, client, "empty URL disables postgres")

	pg := containers.GetManager().GetPostgres(t)
	client, err = postgres.New(ctx, config.PostgresConfig{URL: pg.DSN, MaxOpenConns: 2})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Health(ctx))
}
