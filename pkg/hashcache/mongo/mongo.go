package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/storekit/semindex/pkg/hashcache/consts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements hashcache.Store using MongoDB, one document per entity.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type digestDoc struct {
	EntityID string `bson:"_id"`
	Digest   string `bson:"digest"`
}

// New creates a Mongo-backed hash store.
func New(client *mongo.Client, dbName, collectionName string) *Store {
	if dbName == "" {
		dbName = consts.DefaultDBName
	}
	if collectionName == "" {
		collectionName = consts.CollectionNameHashes
	}
	return &Store{
		client:     client,
		collection: client.Database(dbName).Collection(collectionName),
	}
}

// Get returns the persisted digest, or "" when none is stored.
func (s *Store) Get(ctx context.Context, entityID string) (string, error) {
	var doc digestDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": entityID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read digest for %s: %w", entityID, err)
	}
	return doc.Digest, nil
}

// Put upserts the digest document for an entity.
func (s *Store) Put(ctx context.Context, entityID, digest string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": entityID},
		bson.M{"$set": bson.M{"digest": digest}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store digest for %s: %w", entityID, err)
	}
	return nil
}
