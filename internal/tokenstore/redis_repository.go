package tokenstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository on Redis for deployments without a
// Mongo instance. The document is stored as JSON under a single key with no
// TTL; the refresh token must outlive any access-token expiry.
type RedisRepository struct {
	client *redis.Client
	key    string
}

// NewRedisRepository creates a Redis-backed repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "cafe24:token:"
	}
	return &RedisRepository{client: client, key: prefix + DocumentID}
}

func (r *RedisRepository) Load(ctx context.Context) (*Record, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// mutate loads the current document, applies fn and writes it back. The
// read-modify-write is unguarded; concurrent refreshes are last-write-wins,
// matching the Mongo path's merge semantics.
func (r *RedisRepository) mutate(ctx context.Context, fn func(rec *Record)) error {
	rec, err := r.Load(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec == nil {
		rec = &Record{ID: DocumentID, CreatedAt: now}
	}
	fn(rec)
	rec.UpdatedAt = now
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, b, 0).Err()
}

func (r *RedisRepository) MergeAccessToken(ctx context.Context, at *AccessToken) error {
	return r.mutate(ctx, func(rec *Record) { rec.AccessToken = at })
}

func (r *RedisRepository) SetRefreshToken(ctx context.Context, token string) error {
	return r.mutate(ctx, func(rec *Record) { rec.RefreshToken = token })
}

func (r *RedisRepository) ClearAccessToken(ctx context.Context) error {
	return r.mutate(ctx, func(rec *Record) { rec.AccessToken = nil })
}
