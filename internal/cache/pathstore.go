package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgallion1/esgcompare/internal/pathstore"
)

// PathstoreStore keeps entries as nodes in a pathstore service under a key
// path such as "esgcompare/metrics/<key>".
type PathstoreStore struct {
	client *pathstore.Client
	root   string
	ttl    time.Duration
}

func NewPathstoreStore(client *pathstore.Client, root string, ttl time.Duration) *PathstoreStore {
	if root == "" {
		root = "esgcompare/metrics"
	}
	return &PathstoreStore{client: client, root: root, ttl: ttl}
}

func (s *PathstoreStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.client.Get(ctx, s.root+"/"+safeKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

func (s *PathstoreStore) Put(ctx context.Context, key string, value []byte) error {
	return s.client.Put(ctx, s.root+"/"+safeKey(key), json.RawMessage(value), s.ttl)
}

func (s *PathstoreStore) Close() error {
	s.client.Close()
	return nil
}
