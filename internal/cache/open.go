package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgallion1/esgcompare/internal/pathstore"
)

// Options selects and configures a backend.
type Options struct {
	Backend string // memory, file, sqlite, postgres, gcs, firestore, pathstore

	Dir         string // file, sqlite
	DatabaseURL string // postgres
	Bucket      string // gcs
	ProjectID   string // firestore
	Collection  string // firestore

	PathstoreURL    string
	PathstoreAPIKey string
	TTL             time.Duration // pathstore node expiry
}

// Open builds the store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(opts.Dir)
	case "sqlite":
		return NewSQLiteStore(filepath.Join(opts.Dir, "cache.db"))
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case "gcs":
		return NewGCSStore(ctx, opts.Bucket, "esgcompare/metrics")
	case "firestore":
		return NewFirestoreStore(ctx, opts.ProjectID, opts.Collection)
	case "pathstore":
		return NewPathstoreStore(pathstore.NewClient(opts.PathstoreURL, opts.PathstoreAPIKey), "", opts.TTL), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}
