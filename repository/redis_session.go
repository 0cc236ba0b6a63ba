package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/redis/go-redis/v9"
)

// RedisSessionRepository keeps the snapshot under a single key. The key
// expires with the token when the token carries an expiry.
type RedisSessionRepository struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

var _ auth.SessionPersister = (*RedisSessionRepository)(nil)

// NewRedisSessionRepository creates a new repository.
func NewRedisSessionRepository(client *redis.Client, key string) *RedisSessionRepository {
	if key == "" {
		key = "portal:session"
	}
	return &RedisSessionRepository{client: client, key: key, now: time.Now}
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, goerrors.New("redis url is required", goerrors.CategoryBadInput)
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse redis url")
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "ping redis")
	}

	return client, nil
}

// LoadSession implements auth.SessionPersister.
func (r *RedisSessionRepository) LoadSession(ctx context.Context) (*auth.SessionSnapshot, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session from redis")
	}

	var snap auth.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, goerrors.Wrap(err, auth.ErrCorruptSnapshot.Category, auth.ErrCorruptSnapshot.Message).
			WithTextCode(auth.ErrCorruptSnapshot.TextCode)
	}
	return &snap, nil
}

// SaveSession implements auth.SessionPersister.
func (r *RedisSessionRepository) SaveSession(ctx context.Context, snapshot auth.SessionSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session")
	}

	if err := r.client.Set(ctx, r.key, raw, r.ttl(snapshot.Token)).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save session to redis")
	}
	return nil
}

// ClearSession implements auth.SessionPersister.
func (r *RedisSessionRepository) ClearSession(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete session from redis")
	}
	return nil
}

// ttl follows the token expiry. Opaque or expired tokens get no expiry; the
// backend still decides whether they are accepted.
func (r *RedisSessionRepository) ttl(token string) time.Duration {
	claims, err := auth.InspectToken(token)
	if err != nil || claims.ExpiresAt.IsZero() {
		return 0
	}
	ttl := claims.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return 0
	}
	return ttl
}
