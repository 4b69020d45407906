package redis_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/canvasflow/canvasflow/pkg/persistence/persistencetest"
	redisstore "github.com/canvasflow/canvasflow/pkg/persistence/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisContainer testcontainers.Container

func setupRedis(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	if redisContainer == nil || !redisContainer.IsRunning() {
		var err error

		redisContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
		require.NoError(t, err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)

	redisURL := "redis://" + endpoint + "/0"

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.FlushDB(ctx).Err())
	require.NoError(t, client.Close())

	return redisURL
}

func newStore(t *testing.T) persistence.Persistence {
	t.Helper()

	redisURL := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := redisstore.NewPersistence(context.Background(), logger, redisURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close(context.Background()))
	})

	return store
}

func TestPersistence(t *testing.T) {
	persistencetest.Run(t, newStore)
}

func TestNewPersistence_InvalidURL(t *testing.T) {
	_, err := redisstore.NewPersistence(context.Background(), slog.Default(), "postgres://not-redis")
	assert.Error(t, err)
}
