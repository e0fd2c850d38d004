package cache

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps one document per key in a Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(ctx context.Context, projectID, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	if collection == "" {
		collection = "extraction_cache"
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(safeKey(key))
}

func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	snap, err := s.doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get document %s: %w", key, err)
	}
	value, ok := snap.Data()["value"].([]byte)
	if !ok {
		return nil, false, fmt.Errorf("document %s: value field missing", key)
	}
	return value, true, nil
}

func (s *FirestoreStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.doc(key).Set(ctx, map[string]any{
		"value":     value,
		"updatedAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("set document %s: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
