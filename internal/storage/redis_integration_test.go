package storage

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/angola031/ecoswap-session/internal/crypto"
	"github.com/angola031/ecoswap-session/internal/domain"
)

var (
	testRedisURL string
	redContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()

	// Skip container setup if running in short mode
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redContainer, err = redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	defer func() {
		if err := redContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
		}
	}()
	os.Exit(m.Run())
}

func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL)
	require.NoError(t, err)

	require.NoError(t, client.FlushAll(ctx).Err())
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func testCredential() *domain.Credential {
	return &domain.Credential{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	client := setupTestClient(t)
	store := NewRedisStore(client, "ecoswap:auth", nil)
	ctx := context.Background()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	cred := testCredential()
	require.NoError(t, store.Save(ctx, cred))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cred.AccessToken, loaded.AccessToken)
	assert.Equal(t, cred.RefreshToken, loaded.RefreshToken)
	assert.True(t, cred.ExpiresAt.Equal(loaded.ExpiresAt))
}

func TestRedisStore_EncryptsAtRest(t *testing.T) {
	client := setupTestClient(t)
	cipher, err := crypto.NewAESGCM("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	store := NewRedisStore(client, "ecoswap:auth", cipher)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCredential()))

	raw, err := client.Get(ctx, "ecoswap:auth:credential").Bytes()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "access-token", "token must not be readable at rest")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "access-token", loaded.AccessToken)
}

func TestRedisStore_UnreadablePayloadDegradesToAbsent(t *testing.T) {
	client := setupTestClient(t)
	cipher, err := crypto.NewAESGCM("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	store := NewRedisStore(client, "ecoswap:auth", cipher)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "ecoswap:auth:credential", "garbage", 0).Err())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	exists, err := client.Exists(ctx, "ecoswap:auth:credential").Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "unreadable payload must be removed")
}

func TestRedisStore_WipeRemovesOnlyNamespace(t *testing.T) {
	client := setupTestClient(t)
	store := NewRedisStore(client, "ecoswap:auth", nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCredential()))
	require.NoError(t, client.Set(ctx, "ecoswap:auth:last_login", "yesterday", 0).Err())
	require.NoError(t, client.Set(ctx, "ecoswap:cart:items", "3", 0).Err())

	require.NoError(t, store.Wipe(ctx))

	authKeys, err := client.Keys(ctx, "ecoswap:auth:*").Result()
	require.NoError(t, err)
	assert.Empty(t, authKeys)

	exists, err := client.Exists(ctx, "ecoswap:cart:items").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "keys outside the namespace must survive")
}

func TestRedisStore_ClearRemovesCredentialOnly(t *testing.T) {
	client := setupTestClient(t)
	store := NewRedisStore(client, "ecoswap:auth", nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCredential()))
	require.NoError(t, client.Set(ctx, "ecoswap:auth:last_login", "yesterday", 0).Err())

	require.NoError(t, store.Clear(ctx))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	exists, err := client.Exists(ctx, "ecoswap:auth:last_login").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
