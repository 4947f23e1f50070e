// Package guest issues short-lived anonymous identities. Unauthenticated
// duplication needs an owner id for the copy; minting it here keeps identity
// issuance in one seam instead of scattered through the duplication path.
package guest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"keepsake/api/internal/util"
)

// Identity is the stored record for one guest.
type Identity struct {
	ID       string    `json:"id"`
	IssuedAt time.Time `json:"issued_at"`
}

// Store issues and resolves guest identities.
type Store interface {
	Issue(ctx context.Context) (Identity, error)
	Lookup(ctx context.Context, id string) (Identity, error)
}

// RedisStore keeps guest identities in Redis with a TTL, so abandoned guest
// scrapbook copies age out of the identity namespace naturally.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client: client,
		prefix: "guest:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Issue(ctx context.Context) (Identity, error) {
	identity := Identity{
		ID:       util.NewID("guest"),
		IssuedAt: time.Now(),
	}
	jsonData, err := json.Marshal(identity)
	if err != nil {
		return Identity{}, fmt.Errorf("marshal guest identity: %w", err)
	}
	if err := s.client.Set(ctx, s.key(identity.ID), jsonData, s.ttl).Err(); err != nil {
		return Identity{}, fmt.Errorf("save guest identity: %w", err)
	}
	return identity, nil
}

func (s *RedisStore) Lookup(ctx context.Context, id string) (Identity, error) {
	jsonData, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return Identity{}, fmt.Errorf("guest identity not found or expired")
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup guest identity: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal([]byte(jsonData), &identity); err != nil {
		return Identity{}, fmt.Errorf("unmarshal guest identity: %w", err)
	}
	return identity, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
