package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/storekit/semindex/pkg/hashcache/consts"
)

// Store implements hashcache.Store using Redis.
// Digests are stored under "embedding_hash:{entityID}".
type Store struct {
	client *redis.Client
}

// New creates a Redis-backed hash store.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func key(entityID string) string {
	return fmt.Sprintf("%s:%s", consts.KeyPrefixHash, entityID)
}

// Get returns the persisted digest, or "" when none is stored.
func (s *Store) Get(ctx context.Context, entityID string) (string, error) {
	digest, err := s.client.Get(ctx, key(entityID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read digest for %s: %w", entityID, err)
	}
	return digest, nil
}

// Put stores the digest, overwriting any previous one.
func (s *Store) Put(ctx context.Context, entityID, digest string) error {
	return s.client.Set(ctx, key(entityID), digest, 0).Err()
}
