package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/storekit/semindex/pkg/hashcache/consts"
)

// Store implements hashcache.Store using Neo4j. The digest is kept as a
// property on the entity node, MERGEd by id.
type Store struct {
	driver neo4j.DriverWithContext
	dbName string
}

// New creates a Neo4j-backed hash store.
func New(uri, username, password, dbName string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		return nil, err
	}

	return &Store{driver: driver, dbName: dbName}, nil
}

// Get returns the persisted digest, or "" when the node or property is
// absent.
func (s *Store) Get(ctx context.Context, entityID string) (string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
		MATCH (e:%s {id: $entityID})
		RETURN e.%s
		`, consts.LabelEntity, consts.ColEmbeddingHash)

		res, err := tx.Run(ctx, query, map[string]any{"entityID": entityID})
		if err != nil {
			return "", err
		}

		if res.Next(ctx) {
			if v, ok := res.Record().Get("e." + consts.ColEmbeddingHash); ok && v != nil {
				return v.(string), nil
			}
		}
		return "", res.Err()
	})
	if err != nil {
		return "", fmt.Errorf("failed to read digest for %s: %w", entityID, err)
	}
	return result.(string), nil
}

// Put merges the entity node and sets the digest property.
func (s *Store) Put(ctx context.Context, entityID, digest string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
		MERGE (e:%s {id: $entityID})
		SET e.%s = $digest
		`, consts.LabelEntity, consts.ColEmbeddingHash)

		_, err := tx.Run(ctx, query, map[string]any{
			"entityID": entityID,
			"digest":   digest,
		})
		return nil, err
	})
	return err
}

// Close closes the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
