package hashcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// DigestLen is the length of a content digest in hex characters.
const DigestLen = 16

// Digest returns a short deterministic digest of the canonical text used
// to build an embedding: the first 16 hex characters of its SHA-256.
// Identical text yields an identical digest across processes and restarts.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:DigestLen]
}

// Store persists content digests per entity. A digest must only be written
// after the corresponding vector write is confirmed successful.
type Store interface {
	// Get returns the persisted digest for an entity, or "" when none is
	// stored.
	Get(ctx context.Context, entityID string) (string, error)
	// Put stores the digest for an entity, overwriting any previous one.
	Put(ctx context.Context, entityID, digest string) error
}
