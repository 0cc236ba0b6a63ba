package repository_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/gram-panchayat/go-portal-auth/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisRepo(t *testing.T) (*repository.RedisSessionRepository, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := repository.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return repository.NewRedisSessionRepository(client, ""), mr
}

func TestRedisSessionRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, mr := setupRedisRepo(t)

	snap, err := repo.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, repo.SaveSession(ctx, citizenSnapshot()))
	assert.True(t, mr.Exists("portal:session"))
	assert.Zero(t, mr.TTL("portal:session"), "opaque tokens do not expire the key")

	snap, err = repo.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, citizenSnapshot().Token, snap.Token)

	require.NoError(t, repo.ClearSession(ctx))
	assert.False(t, mr.Exists("portal:session"))
}

func TestRedisSessionRepositoryExpiresWithToken(t *testing.T) {
	subjects := map[string]any{
		"string subject":  "42",
		"numeric subject": 42,
	}

	for name, subject := range subjects {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, mr := setupRedisRepo(t)

			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": subject,
				"exp": time.Now().Add(time.Hour).Unix(),
			}).SignedString([]byte("secret"))
			require.NoError(t, err)

			snap := citizenSnapshot()
			snap.Token = token
			require.NoError(t, repo.SaveSession(ctx, snap))

			ttl := mr.TTL("portal:session")
			assert.Greater(t, ttl, 55*time.Minute)
			assert.LessOrEqual(t, ttl, time.Hour)

			mr.FastForward(2 * time.Hour)
			loaded, err := repo.LoadSession(ctx)
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})
	}
}

func TestRedisSessionRepositoryCorruptValue(t *testing.T) {
	ctx := context.Background()
	repo, mr := setupRedisRepo(t)

	require.NoError(t, mr.Set("portal:session", "not-json"))

	_, err := repo.LoadSession(ctx)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeCorruptSnapshot))
}

func TestNewRedisClientFailures(t *testing.T) {
	ctx := context.Background()

	_, err := repository.NewRedisClient(ctx, "")
	assert.Error(t, err)

	_, err = repository.NewRedisClient(ctx, "not a url")
	assert.Error(t, err)

	_, err = repository.NewRedisClient(ctx, "redis://127.0.0.1:1")
	assert.Error(t, err)
}
